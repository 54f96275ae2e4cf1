package messaging

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/util"
)

// Sender is the send half of a Service.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// PacedSender delays every send by a random duration in [lo, hi] so replies
// read as typed by a person.
type PacedSender struct {
	next   Sender
	lo, hi time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
}

var _ Sender = (*PacedSender)(nil)

// NewPacedSender wraps next. lo and hi should come from NormalizeDelayRange.
func NewPacedSender(next Sender, lo, hi time.Duration) *PacedSender {
	return &PacedSender{
		next:   next,
		lo:     lo,
		hi:     hi,
		sleep:  sleepContext,
		jitter: util.RandomDuration,
	}
}

// NormalizeDelayRange converts a configured delay range in seconds into
// durations. Negative or non-finite bounds become 0 and the bounds are
// swapped when min > max.
func NormalizeDelayRange(minSeconds, maxSeconds float64) (lo, hi time.Duration) {
	clean := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0
		}
		return v
	}
	a, b := clean(minSeconds), clean(maxSeconds)
	if a > b {
		a, b = b, a
	}
	return time.Duration(a * float64(time.Second)), time.Duration(b * float64(time.Second))
}

// Range returns the effective delay bounds.
func (p *PacedSender) Range() (time.Duration, time.Duration) { return p.lo, p.hi }

// SendMessage waits the paced delay, then sends. Cancelling ctx during the
// wait abandons the send.
func (p *PacedSender) SendMessage(ctx context.Context, to string, body string) error {
	if d := p.jitter(p.lo, p.hi); d > 0 {
		slog.Debug("PacedSender waiting before reply", "to", to, "delay", d)
		if err := p.sleep(ctx, d); err != nil {
			return err
		}
	}
	return p.next.SendMessage(ctx, to, body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
