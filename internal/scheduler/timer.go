package scheduler

import (
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// ErrTimerStopped is returned by ScheduleAfter once Stop has been called.
var ErrTimerStopped = errors.New("timer stopped")

type pendingCall struct {
	t      *time.Timer
	armed  time.Time
	fireAt time.Time
}

// SimpleTimer is the production models.Timer, one time.AfterFunc per call.
type SimpleTimer struct {
	mu      sync.Mutex
	seq     uint64
	calls   map[string]pendingCall
	stopped bool
}

var _ models.Timer = (*SimpleTimer)(nil)

// NewSimpleTimer returns a ready SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{calls: make(map[string]pendingCall)}
}

// ScheduleAfter runs fn once after delay. Negative delays fire immediately.
func (st *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	if fn == nil {
		return "", errors.New("timer: nil function")
	}
	delay = max(delay, 0)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stopped {
		return "", ErrTimerStopped
	}
	st.seq++
	id := "t" + strconv.FormatUint(st.seq, 10)
	now := time.Now()
	// Registered before the lock is released, so even a zero delay finds its entry.
	st.calls[id] = pendingCall{
		t: time.AfterFunc(delay, func() {
			if !st.take(id) {
				return
			}
			fn()
		}),
		armed:  now,
		fireAt: now.Add(delay),
	}
	slog.Debug("SimpleTimer.ScheduleAfter", "id", id, "delay", delay)
	return id, nil
}

// take removes id and reports whether it was still pending.
func (st *SimpleTimer) take(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.calls[id]; !ok {
		return false
	}
	delete(st.calls, id)
	return true
}

// Cancel stops id. Unknown or already fired IDs are ignored.
func (st *SimpleTimer) Cancel(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if c, ok := st.calls[id]; ok {
		c.t.Stop()
		delete(st.calls, id)
	}
	return nil
}

// Stop cancels everything pending and rejects further scheduling.
func (st *SimpleTimer) Stop() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, c := range st.calls {
		c.t.Stop()
	}
	if n := len(st.calls); n > 0 {
		slog.Info("SimpleTimer.Stop: dropped pending calls", "count", n)
	}
	st.calls = make(map[string]pendingCall)
	st.stopped = true
}

// ListActive reports pending calls, soonest first.
func (st *SimpleTimer) ListActive() []models.TimerInfo {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now()
	out := make([]models.TimerInfo, 0, len(st.calls))
	for id, c := range st.calls {
		out = append(out, models.TimerInfo{
			ID:          id,
			ScheduledAt: c.armed,
			ExpiresAt:   c.fireAt,
			Remaining:   max(c.fireAt.Sub(now), 0).Round(time.Millisecond).String(),
		})
	}
	slices.SortFunc(out, func(a, b models.TimerInfo) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	return out
}
