package messaging

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/testutil"
)

func TestNormalizeDelayRange(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
		lo, hi   time.Duration
	}{
		{"defaults", 0, 60, 0, 60 * time.Second},
		{"swapped", 30, 5, 5 * time.Second, 30 * time.Second},
		{"negative clamps", -10, -2, 0, 0},
		{"negative min", -5, 3, 0, 3 * time.Second},
		{"fractional", 0.5, 1.5, 500 * time.Millisecond, 1500 * time.Millisecond},
		{"nan", math.NaN(), 2, 0, 2 * time.Second},
		{"inf", 1, math.Inf(1), 0, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := NormalizeDelayRange(tt.min, tt.max)
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("NormalizeDelayRange(%v, %v) = %v, %v; want %v, %v", tt.min, tt.max, lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

func TestPacedSender_WaitsThenSends(t *testing.T) {
	rec := &testutil.RecordingSender{}
	p := NewPacedSender(rec, 2*time.Second, 4*time.Second)
	var slept time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error { slept = d; return nil }
	p.jitter = func(lo, hi time.Duration) time.Duration { return 3 * time.Second }

	if err := p.SendMessage(context.Background(), "a", "hi"); err != nil {
		t.Fatal(err)
	}
	if slept != 3*time.Second {
		t.Errorf("slept %v, want 3s", slept)
	}
	if len(rec.Sent()) != 1 {
		t.Errorf("expected 1 send, got %d", len(rec.Sent()))
	}
}

func TestPacedSender_ZeroDelaySkipsSleep(t *testing.T) {
	rec := &testutil.RecordingSender{}
	p := NewPacedSender(rec, 0, 0)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("sleep should not be called")
		return nil
	}
	if err := p.SendMessage(context.Background(), "a", "hi"); err != nil {
		t.Fatal(err)
	}
	if lo, hi := p.Range(); lo != 0 || hi != 0 {
		t.Errorf("Range = %v, %v", lo, hi)
	}
}

func TestPacedSender_CancelledWait(t *testing.T) {
	rec := &testutil.RecordingSender{}
	p := NewPacedSender(rec, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.SendMessage(ctx, "a", "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(rec.Sent()) != 0 {
		t.Error("cancelled send must not reach the transport")
	}
}
