package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// migrateTimeout bounds the ping and schema migration when a SQL store opens.
const migrateTimeout = 30 * time.Second

// sqlDialect holds the statements that differ between SQLite and Postgres.
type sqlDialect struct {
	name      string
	appendRow string
	selectRow string
	dedup     dedupQueries
}

// sqlStore is the database/sql row store shared by SQLiteStore and
// PostgresStore. Rows are kept as JSON arrays of cells.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// openSQL opens driver, applies tune, then runs the embedded migrations.
func openSQL(driver, dsn, migrations string, tune func(*sql.DB)) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if tune != nil {
		tune(db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", driver, err)
	}
	slog.Debug("store: migrations applied", "driver", driver)
	return db, nil
}

func (s *sqlStore) AppendRow(ctx context.Context, collection string, row []string) error {
	if collection == "" {
		return ErrUnknownCollection
	}
	cells, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.appendRow, collection, string(cells)); err != nil {
		slog.Error("store.AppendRow: insert failed", "backend", s.dialect.name, "collection", collection, "error", err)
		return fmt.Errorf("append row to %s: %w", collection, err)
	}
	return nil
}

// Rows returns the rows of collection in insertion order.
func (s *sqlStore) Rows(ctx context.Context, collection string) ([][]string, error) {
	if collection == "" {
		return nil, ErrUnknownCollection
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.selectRow, collection)
	if err != nil {
		slog.Error("store.Rows: query failed", "backend", s.dialect.name, "collection", collection, "error", err)
		return nil, fmt.Errorf("query rows of %s: %w", collection, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row of %s: %w", collection, err)
		}
		var cells []string
		if err := json.Unmarshal(raw, &cells); err != nil {
			return nil, fmt.Errorf("decode row of %s: %w", collection, err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %s: %w", collection, err)
	}
	return out, nil
}

func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Warn("store.Close: failed", "backend", s.dialect.name, "error", err)
		return err
	}
	return nil
}
