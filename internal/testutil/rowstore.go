// Package testutil provides fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/BTreeMap/IntakePipe/internal/store"
)

// ErrInjected is returned by FailingRowStore.
var ErrInjected = errors.New("injected failure")

// FailingRowStore wraps a RowStore and fails selected operations on demand.
// It also counts Rows calls per collection.
type FailingRowStore struct {
	store.RowStore

	mu         sync.Mutex
	FailAppend bool
	FailRows   bool
	reads      map[string]int
}

var _ store.RowStore = (*FailingRowStore)(nil)

// NewFailingRowStore wraps inner (an in-memory store when nil).
func NewFailingRowStore(inner store.RowStore) *FailingRowStore {
	if inner == nil {
		inner = store.NewInMemoryStore()
	}
	return &FailingRowStore{RowStore: inner, reads: make(map[string]int)}
}

// SetFailures toggles injected failures.
func (f *FailingRowStore) SetFailures(appendErr, rowsErr bool) {
	f.mu.Lock()
	f.FailAppend, f.FailRows = appendErr, rowsErr
	f.mu.Unlock()
}

func (f *FailingRowStore) AppendRow(ctx context.Context, collection string, row []string) error {
	f.mu.Lock()
	fail := f.FailAppend
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.RowStore.AppendRow(ctx, collection, row)
}

func (f *FailingRowStore) Rows(ctx context.Context, collection string) ([][]string, error) {
	f.mu.Lock()
	f.reads[collection]++
	fail := f.FailRows
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.RowStore.Rows(ctx, collection)
}

// Reads returns how many times Rows was called for collection.
func (f *FailingRowStore) Reads(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[collection]
}
