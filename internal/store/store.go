// Package store provides persistence backends for IntakePipe.
//
// Completed intake records are append-only rows of positional string cells,
// grouped into named collections ("students", "patients"). Backends: in-memory,
// SQLite, PostgreSQL, Google Sheets and a disabled no-op store.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ErrUnknownCollection is returned when a collection name is empty.
var ErrUnknownCollection = errors.New("unknown collection")

// RowStore is the persistence collaborator used by the intake engine.
type RowStore interface {
	// AppendRow appends one row to collection.
	AppendRow(ctx context.Context, collection string, row []string) error
	// Rows returns every data row of collection in append order. Header rows
	// are never returned.
	Rows(ctx context.Context, collection string) ([][]string, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN string // database connection string (file path for SQLite)

	SheetID         string // Google spreadsheet ID
	CredentialsJSON []byte // service account key
	HeaderRows      int    // leading sheet rows to skip on read
	HeaderRowsSet   bool
}

// Option configures store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return WithDSN(dsn)
}

// WithSheetID sets the Google spreadsheet ID.
func WithSheetID(id string) Option {
	return func(o *Opts) {
		o.SheetID = id
	}
}

// WithCredentialsJSON sets the Google service account key.
func WithCredentialsJSON(b []byte) Option {
	return func(o *Opts) {
		o.CredentialsJSON = b
	}
}

// WithHeaderRows sets how many leading sheet rows are headers.
func WithHeaderRows(n int) Option {
	return func(o *Opts) {
		o.HeaderRows = n
		o.HeaderRowsSet = true
	}
}

// DetectDSNType returns the database/sql driver name for a DSN:
// "postgres" for URLs and key=value connection strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	for _, key := range []string{"host=", "user=", "dbname=", "password=", "sslmode="} {
		if strings.Contains(dsn, key) {
			return "postgres"
		}
	}
	return "sqlite3"
}

func copyRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}

// InMemoryStore keeps rows in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	rows  map[string][][]string
	dedup map[string]DedupRecord
}

var (
	_ RowStore  = (*InMemoryStore)(nil)
	_ DedupRepo = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string][][]string), dedup: make(map[string]DedupRecord)}
}

func (s *InMemoryStore) AppendRow(ctx context.Context, collection string, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.rows[collection] = append(s.rows[collection], copyRow(row))
	s.mu.Unlock()
	slog.Debug("InMemoryStore AppendRow", "collection", collection, "cells", len(row))
	return nil
}

func (s *InMemoryStore) Rows(ctx context.Context, collection string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.rows[collection]
	out := make([][]string, len(src))
	for i, r := range src {
		out[i] = copyRow(r)
	}
	return out, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, identifier string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, Identifier: identifier, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
		s.dedup[messageID] = rec
	}
	return nil
}

func (s *InMemoryStore) PruneInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.dedup {
		if rec.ReceivedAt.Before(cutoff) {
			delete(s.dedup, id)
			n++
		}
	}
	return n, nil
}

// Processed reports whether messageID was marked processed.
func (s *InMemoryStore) Processed(messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dedup[messageID].ProcessedAt != nil
}

func (s *InMemoryStore) Close() error { return nil }

// NopStore is used when no persistence is configured. Appends are dropped and
// reads return no rows.
type NopStore struct{}

var _ RowStore = NopStore{}

func (NopStore) AppendRow(ctx context.Context, collection string, row []string) error {
	slog.Debug("NopStore AppendRow dropped", "collection", collection)
	return nil
}

func (NopStore) Rows(ctx context.Context, collection string) ([][]string, error) {
	return nil, nil
}

func (NopStore) Close() error { return nil }
