package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/config"
	"github.com/BTreeMap/IntakePipe/internal/store"
)

// backends holds the opened persistence collaborators and everything that
// must be closed on shutdown.
type backends struct {
	rows    store.RowStore
	dedup   store.DedupRepo
	closers []io.Closer
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openSQLStore opens SQLite or Postgres depending on the DSN shape.
func openSQLStore(dsn string) (sqlStore, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

type sqlStore interface {
	store.RowStore
	store.DedupRepo
}

// openBackends picks the row store: Google Sheets when a sheet ID is set,
// otherwise DATABASE_URL, otherwise a disabled store. DATABASE_URL also backs
// inbound dedup. Unusable persistence is a warning, not a startup failure.
func openBackends(ctx context.Context, cfg *config.Config) *backends {
	b := &backends{}

	var db sqlStore
	if cfg.DatabaseURL != "" {
		s, err := openSQLStore(cfg.DatabaseURL)
		if err != nil {
			slog.Warn("openBackends: database unavailable, dedup and SQL rows disabled", "error", err)
		} else {
			db = s
			b.dedup = s
			b.closers = append(b.closers, s)
			pruneDedup(ctx, s)
		}
	}

	if cfg.Sheets.SheetID != "" {
		sheets, err := openSheets(ctx, cfg)
		if err == nil {
			b.rows = sheets
			b.closers = append(b.closers, sheets)
			slog.Info("openBackends: using Google Sheets row store")
			return b
		}
		slog.Warn("openBackends: Google Sheets unavailable", "error", err)
	}

	if db != nil {
		b.rows = db
		slog.Info("openBackends: using SQL row store", "driver", store.DetectDSNType(cfg.DatabaseURL))
		return b
	}

	slog.Warn("openBackends: no row store configured, records will not be saved and membership lookups report unknown")
	b.rows = store.NopStore{}
	return b
}

// pruneDedup drops message IDs older than the retention window.
func pruneDedup(ctx context.Context, repo store.DedupRepo) {
	pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := repo.PruneInbound(pctx, time.Now().Add(-store.DefaultDedupRetention))
	if err != nil {
		slog.Warn("pruneDedup: failed", "error", err)
		return
	}
	slog.Debug("pruneDedup: removed old inbound records", "count", n)
}

func openSheets(ctx context.Context, cfg *config.Config) (*store.SheetsStore, error) {
	creds, err := store.LoadServiceAccountJSON(cfg.Sheets.CredentialsJSON, cfg.Sheets.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("load service account: %w", err)
	}
	return store.NewSheetsStore(ctx, []store.Option{
		store.WithSheetID(cfg.Sheets.SheetID),
		store.WithCredentialsJSON(creds),
	})
}
