// Package membership answers whether a phone number already has a completed
// intake record.
package membership

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

// Oracle checks a write-through cache of known phones, then the students and
// patients collections. The store stays authoritative; the cache only grows.
type Oracle struct {
	rows     store.RowStore
	students string
	patients string
	known    sync.Map // canonical phone -> struct{}
}

// NewOracle creates an Oracle over the given collections.
func NewOracle(rows store.RowStore, students, patients string) *Oracle {
	return &Oracle{rows: rows, students: students, patients: patients}
}

// IsKnownMember reports whether phone has a completed record. Unmatchable
// phones and store failures both yield false so a fresh session can start.
func (o *Oracle) IsKnownMember(ctx context.Context, phone string) bool {
	canonical := util.CanonicalizePhone(phone)
	if canonical == "" {
		return false
	}
	if o.Known(canonical) {
		return true
	}

	found := o.inCollection(ctx, o.students, canonical) || o.inCollection(ctx, o.patients, canonical)
	if found {
		o.known.Store(canonical, struct{}{})
		slog.Debug("Oracle.IsKnownMember: cached", "phone", canonical)
	}
	return found
}

func (o *Oracle) inCollection(ctx context.Context, collection, canonical string) bool {
	rows, err := o.rows.Rows(ctx, collection)
	if err != nil {
		slog.Error("Oracle.IsKnownMember: lookup failed, treating as new contact", "collection", collection, "phone", canonical, "error", err)
		return false
	}
	for _, row := range rows {
		if p := util.CanonicalizePhone(models.Cell(row, models.ColumnPhone)); p != "" && p == canonical {
			return true
		}
	}
	return false
}

// Remember marks phones as known members. Empty values are skipped.
func (o *Oracle) Remember(phones ...string) {
	for _, p := range phones {
		if c := util.CanonicalizePhone(p); c != "" {
			o.known.Store(c, struct{}{})
		}
	}
}

// Known reports whether phone is in the cache, without consulting the store.
func (o *Oracle) Known(phone string) bool {
	c := util.CanonicalizePhone(phone)
	if c == "" {
		return false
	}
	_, ok := o.known.Load(c)
	return ok
}

// CacheSize returns the number of cached phones.
func (o *Oracle) CacheSize() int {
	n := 0
	o.known.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
