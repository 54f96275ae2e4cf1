package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

func TestAssertHTTPStatus(t *testing.T) {
	m := &mockTestingT{}
	AssertHTTPStatus(m, 200, 200, "ok")
	if m.failed {
		t.Error("equal status should pass")
	}
	AssertHTTPStatus(m, 200, 401, "webhook")
	if !m.failed || !strings.Contains(m.errorMsg, "webhook") {
		t.Errorf("expected failure naming the context, got %q", m.errorMsg)
	}
}

func TestAssertAPIStatus(t *testing.T) {
	body := MustMarshalJSON(t, models.Success(map[string]int{"live_sessions": 1}))
	m := &mockTestingT{}
	resp := AssertAPIStatus(m, bytes.NewReader(body), "ok")
	if m.failed || resp.Status != "ok" {
		t.Errorf("unexpected failure %q", m.errorMsg)
	}

	m = &mockTestingT{}
	AssertAPIStatus(m, bytes.NewReader(MustMarshalJSON(t, models.Error("nope"))), "ok")
	if !m.failed {
		t.Error("status mismatch should fail")
	}

	m = &mockTestingT{}
	AssertAPIStatus(m, strings.NewReader("not json"), "ok")
	if !m.failed || !strings.Contains(m.errorMsg, "decode") {
		t.Errorf("invalid JSON should fail, got %q", m.errorMsg)
	}
}

func TestRecordingSender(t *testing.T) {
	s := &RecordingSender{}
	ctx := context.Background()
	_ = s.SendMessage(ctx, "a", "one")
	_ = s.SendMessage(ctx, "b", "two")
	_ = s.SendMessage(ctx, "a", "three")

	if got := s.SentTo("a"); len(got) != 2 || got[1] != "three" {
		t.Errorf("SentTo(a) = %q", got)
	}
	AssertSentContains(t, s, "b", 0, "tw")

	s.SetErr(errors.New("down"))
	if err := s.SendMessage(ctx, "a", "four"); err == nil {
		t.Error("expected injected error")
	}
	s.Reset()
	if len(s.Sent()) != 0 {
		t.Error("Reset should clear messages")
	}
}

func TestManualTimer(t *testing.T) {
	m := NewManualTimer()
	var order []string
	_, _ = m.ScheduleAfter(2*time.Hour, func() { order = append(order, "b") })
	_, _ = m.ScheduleAfter(time.Hour, func() { order = append(order, "a") })
	id, _ := m.ScheduleAfter(3*time.Hour, func() { order = append(order, "c") })
	_ = m.Cancel(id)

	m.Advance(90 * time.Minute)
	if fmt.Sprint(order) != "[a]" {
		t.Fatalf("after 90m order = %v", order)
	}
	m.Advance(10 * time.Hour)
	if fmt.Sprint(order) != "[a b]" {
		t.Fatalf("order = %v, canceled entry must not run", order)
	}
	if m.Pending() != 0 {
		t.Errorf("pending = %d", m.Pending())
	}
}

func TestFailingRowStore(t *testing.T) {
	f := NewFailingRowStore(nil)
	ctx := context.Background()
	if err := f.AppendRow(ctx, "Sheet4", []string{"PAT-1"}); err != nil {
		t.Fatal(err)
	}
	f.SetFailures(true, true)
	if err := f.AppendRow(ctx, "Sheet4", nil); !errors.Is(err, ErrInjected) {
		t.Errorf("append err = %v", err)
	}
	if _, err := f.Rows(ctx, "Sheet4"); !errors.Is(err, ErrInjected) {
		t.Errorf("rows err = %v", err)
	}
	f.SetFailures(false, false)
	rows, _ := f.Rows(ctx, "Sheet4")
	if len(rows) != 1 || f.Reads("Sheet4") != 2 {
		t.Errorf("rows = %v reads = %d", rows, f.Reads("Sheet4"))
	}
}

// mockTestingT records failures reported by the helpers.
type mockTestingT struct {
	failed   bool
	errorMsg string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}
