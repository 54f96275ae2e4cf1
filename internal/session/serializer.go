package session

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrSerializerClosed is returned by Submit after Close.
var ErrSerializerClosed = errors.New("serializer closed")

// Serializer runs submitted functions one at a time per key, in submission
// order. Different keys run in parallel. A worker goroutine exists only while
// its key has queued work.
type Serializer struct {
	mu      sync.Mutex
	idle    *sync.Cond
	queues  map[string][]func()
	running int
	closed  bool
}

// NewSerializer creates a Serializer.
func NewSerializer() *Serializer {
	s := &Serializer{queues: make(map[string][]func())}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Submit enqueues fn for key. It never blocks on other work.
func (s *Serializer) Submit(key string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSerializerClosed
	}
	q, active := s.queues[key]
	s.queues[key] = append(q, fn)
	if !active {
		s.running++
		go s.drain(key)
	}
	return nil
}

func (s *Serializer) drain(key string) {
	for {
		s.mu.Lock()
		q := s.queues[key]
		if len(q) == 0 {
			delete(s.queues, key)
			s.running--
			if s.running == 0 {
				s.idle.Broadcast()
			}
			s.mu.Unlock()
			return
		}
		fn := q[0]
		q[0] = nil
		s.queues[key] = q[1:]
		s.mu.Unlock()

		s.run(key, fn)
	}
}

func (s *Serializer) run(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Serializer: recovered panic", "key", key, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Pending returns the number of keys with queued or running work.
func (s *Serializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until no key has queued or running work.
func (s *Serializer) Wait() {
	s.mu.Lock()
	for s.running > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close rejects further submissions and waits for queued work to finish.
func (s *Serializer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Wait()
}
