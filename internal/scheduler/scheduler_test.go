package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/messaging"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/session"
	"github.com/BTreeMap/IntakePipe/internal/testutil"
)

const who = "919876543210@s.whatsapp.net"

var testLinks = flow.Links{
	Webinar:         "https://example.com/webinar",
	Patient:         "https://example.com/patient",
	DiabetesWebinar: "https://example.com/diabetes-webinar",
	Type1:           "https://example.com/type1",
}

type fixture struct {
	timer  *testutil.ManualTimer
	rows   *testutil.FailingRowStore
	sender *testutil.RecordingSender
	sched  *Scheduler
}

func newFixture(t *testing.T, delays ...time.Duration) *fixture {
	t.Helper()
	if len(delays) == 0 {
		delays = []time.Duration{24 * time.Hour, 48 * time.Hour, 72 * time.Hour}
	}
	f := &fixture{
		timer:  testutil.NewManualTimer(),
		rows:   testutil.NewFailingRowStore(nil),
		sender: &testutil.RecordingSender{},
	}
	f.sched = NewScheduler(f.timer, f.rows, f.sender, nil, Config{
		Delays:   delays,
		Links:    testLinks,
		Students: "students",
		Patients: "patients",
	})
	return f
}

var patientFields = map[models.DataKey]string{
	models.DataKeyContactNumber: "9876543210",
	models.DataKeyDiabetesType:  "Type 2",
}

func TestArmSchedulesOneTaskPerDelay(t *testing.T) {
	f := newFixture(t)
	tasks := f.sched.Arm(who, models.FlowTypePatient, patientFields)
	if len(tasks) != 3 || f.sched.Pending() != 3 {
		t.Fatalf("armed %d tasks (pending %d), want 3", len(tasks), f.sched.Pending())
	}
	if tasks[0].Collection != "patients" || tasks[0].OptOutColumn != models.ColumnPatientOptOut {
		t.Errorf("unexpected task routing %+v", tasks[0])
	}

	f.timer.Advance(24 * time.Hour)
	if got := f.sender.SentTo(who); len(got) != 1 || !strings.Contains(got[0], testLinks.Patient) {
		t.Fatalf("after 24h sent %q", got)
	}
	f.timer.Advance(48 * time.Hour)
	got := f.sender.SentTo(who)
	if len(got) != 3 {
		t.Fatalf("sent %d follow-ups, want 3", len(got))
	}
	if !strings.Contains(got[1], testLinks.DiabetesWebinar) || !strings.HasPrefix(got[2], "Final follow-up") {
		t.Errorf("unexpected follow-up order %q", got)
	}
	if f.sched.Pending() != 0 || f.sched.PendingFor(who) != nil {
		t.Error("expected no pending follow-ups")
	}
}

func TestArmSkipsNonPositiveDelays(t *testing.T) {
	f := newFixture(t, 0, 2*time.Hour, -time.Hour)
	tasks := f.sched.Arm(who, models.FlowTypeStudent, patientFields)
	if len(tasks) != 1 {
		t.Fatalf("armed %d tasks, want 1", len(tasks))
	}
	// the single delay pairs with the first message
	if !strings.Contains(tasks[0].Message, testLinks.Webinar) || tasks[0].Delay != 2*time.Hour {
		t.Errorf("unexpected task %+v", tasks[0])
	}
}

func TestArmReplacesPreviousSet(t *testing.T) {
	f := newFixture(t)
	f.sched.Arm(who, models.FlowTypePatient, patientFields)
	f.sched.Arm(who, models.FlowTypeStudent, patientFields)
	if f.sched.Pending() != 3 || f.timer.Pending() != 3 {
		t.Fatalf("pending = %d (timers %d), want 3", f.sched.Pending(), f.timer.Pending())
	}
	f.timer.Advance(100 * time.Hour)
	for _, body := range f.sender.SentTo(who) {
		if strings.Contains(body, testLinks.Patient) {
			t.Errorf("stale patient follow-up sent: %q", body)
		}
	}
}

func TestCancelStopsAllTasks(t *testing.T) {
	f := newFixture(t)
	f.sched.Arm(who, models.FlowTypePatient, patientFields)
	f.sched.Cancel(who)
	f.sched.Cancel(who)
	f.sched.Cancel("nobody")

	f.timer.Advance(100 * time.Hour)
	if got := f.sender.Sent(); len(got) != 0 {
		t.Errorf("canceled follow-ups were sent: %v", got)
	}
}

func TestCancelAfterFirstFire(t *testing.T) {
	f := newFixture(t)
	f.sched.Arm(who, models.FlowTypePatient, patientFields)
	f.timer.Advance(24 * time.Hour)
	f.sched.Cancel(who)
	f.timer.Advance(100 * time.Hour)
	if got := f.sender.SentTo(who); len(got) != 1 {
		t.Errorf("sent %d follow-ups, want only the one before cancel", len(got))
	}
}

func TestOptOutSuppressesSend(t *testing.T) {
	tests := []struct {
		name     string
		rows     [][]string
		wantSent int
	}{
		{
			name:     "latest row opted out",
			rows:     [][]string{optOutRow("9876543210", "Yes"), optOutRow("+91 98765 43210", " NO ")},
			wantSent: 0,
		},
		{
			name:     "latest row opted back in",
			rows:     [][]string{optOutRow("9876543210", "no"), optOutRow("9876543210", "Yes")},
			wantSent: 1,
		},
		{
			name:     "other contact opted out",
			rows:     [][]string{optOutRow("9123456789", "no")},
			wantSent: 1,
		},
		{
			name:     "short row",
			rows:     [][]string{{"PAT-1", "Jane", "34", "9876543210"}},
			wantSent: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Hour)
			for _, r := range tt.rows {
				_ = f.rows.AppendRow(context.Background(), "patients", r)
			}
			f.sched.Arm(who, models.FlowTypePatient, patientFields)
			f.timer.Advance(time.Hour)
			if got := len(f.sender.Sent()); got != tt.wantSent {
				t.Errorf("sent %d, want %d", got, tt.wantSent)
			}
		})
	}
}

func optOutRow(phone, take string) []string {
	row := make([]string, models.PatientRowWidth)
	row[0], row[models.ColumnPhone], row[models.ColumnPatientOptOut] = "PAT-x", phone, take
	return row
}

func TestOptOutLookupFailureDefaultsToSend(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.rows.SetFailures(false, true)
	f.sched.Arm(who, models.FlowTypePatient, patientFields)
	f.timer.Advance(time.Hour)
	if got := len(f.sender.Sent()); got != 1 {
		t.Errorf("sent %d, want 1", got)
	}
}

func TestSendFailureDoesNotCancelSiblings(t *testing.T) {
	f := newFixture(t)
	f.sender.SetErr(errors.New("socket closed"))
	f.sched.Arm(who, models.FlowTypeStudent, patientFields)
	f.timer.Advance(24 * time.Hour)
	f.sender.SetErr(nil)
	f.timer.Advance(48 * time.Hour)
	if got := f.sender.SentTo(who); len(got) != 2 {
		t.Errorf("sent %d, want the 2 tasks after the failure", len(got))
	}
}

func TestFollowUpsRunThroughDispatcher(t *testing.T) {
	timer := testutil.NewManualTimer()
	sender := &testutil.RecordingSender{}
	ser := session.NewSerializer()
	sched := NewScheduler(timer, nil, sender, ser, Config{Delays: []time.Duration{time.Hour}, Links: testLinks})

	sched.Arm(who, models.FlowTypeStudent, patientFields)
	timer.Advance(time.Hour)
	ser.Wait()
	if got := sender.SentTo(who); len(got) != 1 {
		t.Fatalf("sent %d, want 1", len(got))
	}
}

func TestStaleTaskDroppedInsideDispatcher(t *testing.T) {
	timer := testutil.NewManualTimer()
	sender := &testutil.RecordingSender{}
	ser := session.NewSerializer()
	sched := NewScheduler(timer, nil, sender, ser, Config{Delays: []time.Duration{time.Hour}, Links: testLinks})

	block := make(chan struct{})
	_ = ser.Submit(who, func() { <-block })

	sched.Arm(who, models.FlowTypeStudent, patientFields)
	timer.Advance(time.Hour) // queued behind the blocked work
	_ = ser.Submit(who, func() { sched.Cancel(who) })
	close(block)
	ser.Wait()

	// the cancel was queued after the fire, so the task ran first and sent
	if got := len(sender.Sent()); got != 1 {
		t.Fatalf("sent %d, want 1", got)
	}

	sender.Reset()
	sched.Arm(who, models.FlowTypeStudent, patientFields)
	block = make(chan struct{})
	_ = ser.Submit(who, func() { <-block; sched.Cancel(who) })
	timer.Advance(time.Hour)
	close(block)
	ser.Wait()
	if got := len(sender.Sent()); got != 0 {
		t.Errorf("task fired before a queued cancel must not send, sent %d", got)
	}
}

func TestPacedFollowUpGetsReplyDelayBudget(t *testing.T) {
	timer := testutil.NewManualTimer()
	rec := &testutil.RecordingSender{}
	paced := messaging.NewPacedSender(rec, 150*time.Millisecond, 150*time.Millisecond)
	sched := NewScheduler(timer, nil, paced, nil, Config{
		Delays:        []time.Duration{time.Hour},
		Links:         testLinks,
		Students:      "students",
		Patients:      "patients",
		CallTimeout:   50 * time.Millisecond,
		MaxReplyDelay: 150 * time.Millisecond,
	})

	sched.Arm(who, models.FlowTypePatient, patientFields)
	timer.Advance(time.Hour)

	if got := rec.SentTo(who); len(got) != 1 {
		t.Fatalf("delivered %d follow-ups, want 1", len(got))
	}
}

func TestHoursToDelays(t *testing.T) {
	got := HoursToDelays(24, 0, -1, 0.5)
	want := []time.Duration{24 * time.Hour, 30 * time.Minute}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("HoursToDelays = %v, want %v", got, want)
	}
}

func TestSimpleTimer(t *testing.T) {
	timer := NewSimpleTimer()
	defer timer.Stop()

	done := make(chan struct{})
	if _, err := timer.ScheduleAfter(10*time.Millisecond, func() { close(done) }); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	fired := make(chan struct{}, 1)
	id, _ := timer.ScheduleAfter(50*time.Millisecond, func() { fired <- struct{}{} })
	if len(timer.ListActive()) != 1 {
		t.Errorf("ListActive = %d, want 1", len(timer.ListActive()))
	}
	if err := timer.Cancel(id); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
		t.Error("canceled timer fired")
	case <-time.After(150 * time.Millisecond):
	}
	if err := timer.Cancel("unknown"); err != nil {
		t.Errorf("Cancel(unknown) = %v", err)
	}
}

func TestSimpleTimerStop(t *testing.T) {
	timer := NewSimpleTimer()
	fired := make(chan struct{}, 2)
	if _, err := timer.ScheduleAfter(time.Hour, func() { fired <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	if _, err := timer.ScheduleAfter(30*time.Minute, func() { fired <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	active := timer.ListActive()
	if len(active) != 2 || !active[0].ExpiresAt.Before(active[1].ExpiresAt) {
		t.Fatalf("ListActive = %+v, want two entries soonest first", active)
	}

	timer.Stop()
	if n := len(timer.ListActive()); n != 0 {
		t.Errorf("ListActive after Stop = %d, want 0", n)
	}
	if _, err := timer.ScheduleAfter(0, func() { fired <- struct{}{} }); !errors.Is(err, ErrTimerStopped) {
		t.Errorf("ScheduleAfter after Stop = %v, want ErrTimerStopped", err)
	}
	select {
	case <-fired:
		t.Error("no call should fire after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}
