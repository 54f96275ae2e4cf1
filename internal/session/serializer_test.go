package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSerializerPreservesOrderPerKey(t *testing.T) {
	s := NewSerializer()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if err := s.Submit("k", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatal(err)
		}
	}
	s.Wait()
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d ran %d", i, v)
		}
	}
	if len(got) != 100 {
		t.Fatalf("ran %d of 100", len(got))
	}
}

func TestSerializerNoInterleavingPerKey(t *testing.T) {
	s := NewSerializer()
	var inFlight, maxInFlight int32
	for i := 0; i < 20; i++ {
		_ = s.Submit("same", func() {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		})
	}
	s.Wait()
	if maxInFlight != 1 {
		t.Errorf("max concurrent for one key = %d, want 1", maxInFlight)
	}
}

func TestSerializerKeysAreIndependent(t *testing.T) {
	s := NewSerializer()
	block := make(chan struct{})
	done := make(chan struct{})

	_ = s.Submit("slow", func() { <-block })
	_ = s.Submit("fast", func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked key stalled another key")
	}
	close(block)
	s.Wait()
}

func TestSerializerRecoversPanics(t *testing.T) {
	s := NewSerializer()
	ran := false
	_ = s.Submit("k", func() { panic("boom") })
	_ = s.Submit("k", func() { ran = true })
	s.Wait()
	if !ran {
		t.Error("work after a panic did not run")
	}
}

func TestSerializerClose(t *testing.T) {
	s := NewSerializer()
	var n int32
	_ = s.Submit("k", func() { atomic.AddInt32(&n, 1) })
	s.Close()
	if atomic.LoadInt32(&n) != 1 {
		t.Error("Close must drain queued work")
	}
	if err := s.Submit("k", func() {}); !errors.Is(err, ErrSerializerClosed) {
		t.Errorf("expected ErrSerializerClosed, got %v", err)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d after Close", s.Pending())
	}
}
