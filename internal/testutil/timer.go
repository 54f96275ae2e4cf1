package testutil

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// ManualTimer is a models.Timer driven by Advance instead of wall-clock time.
type ManualTimer struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  int
	pending map[string]manualEntry
}

type manualEntry struct {
	at  time.Duration
	seq int
	fn  func()
}

var _ models.Timer = (*ManualTimer)(nil)

// NewManualTimer creates a ManualTimer at offset zero.
func NewManualTimer() *ManualTimer {
	return &ManualTimer{pending: make(map[string]manualEntry)}
}

func (m *ManualTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("manual_%d", m.nextID)
	m.pending[id] = manualEntry{at: m.now + delay, seq: m.nextID, fn: fn}
	return id, nil
}

func (m *ManualTimer) Cancel(id string) error {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
	return nil
}

// Pending returns the number of scheduled functions not yet run.
func (m *ManualTimer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance moves time forward by d and runs every function that came due, in
// due order, on the caller's goroutine.
func (m *ManualTimer) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due []manualEntry
	for id, e := range m.pending {
		if e.at <= m.now {
			due = append(due, e)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, e := range due {
		e.fn()
	}
}
