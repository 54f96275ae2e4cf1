// Package session keeps live intake sessions and serializes work per identifier.
package session

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// DefaultShards is the shard count used by NewStore when none is given.
const DefaultShards = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]models.FlowState
}

// Store is a concurrency-safe registry of live sessions keyed by identifier.
// Sessions are stored by value; callers get copies.
type Store struct {
	shards []*shard
}

// NewStore creates a Store with n shards (DefaultShards when n <= 0).
func NewStore(n int) *Store {
	if n <= 0 {
		n = DefaultShards
	}
	s := &Store{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]models.FlowState)}
	}
	slog.Debug("Creating session Store", "shards", n)
	return s
}

func (s *Store) shardFor(identifier string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identifier))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Get returns a copy of the live session for identifier.
func (s *Store) Get(identifier string) (models.FlowState, bool) {
	sh := s.shardFor(identifier)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.sessions[identifier]
	if !ok {
		return models.FlowState{}, false
	}
	return st.Clone(), true
}

// Put stores a copy of state under its Identifier.
func (s *Store) Put(state models.FlowState) {
	sh := s.shardFor(state.Identifier)
	sh.mu.Lock()
	sh.sessions[state.Identifier] = state.Clone()
	sh.mu.Unlock()
}

// Delete removes the session for identifier. Missing sessions are ignored.
func (s *Store) Delete(identifier string) {
	sh := s.shardFor(identifier)
	sh.mu.Lock()
	delete(sh.sessions, identifier)
	sh.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot returns copies of every live session.
func (s *Store) Snapshot() []models.FlowState {
	var out []models.FlowState
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, st := range sh.sessions {
			out = append(out, st.Clone())
		}
		sh.mu.RUnlock()
	}
	return out
}
