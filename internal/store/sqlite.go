package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions is used when creating the database directory.
const DefaultDirPermissions = 0o755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

var sqliteDialect = sqlDialect{
	name:      "sqlite",
	appendRow: `INSERT INTO intake_rows (collection, cells) VALUES (?, ?)`,
	selectRow: `SELECT cells FROM intake_rows WHERE collection = ? ORDER BY id`,
	dedup:     sqliteDedup,
}

// SQLiteStore is a RowStore and DedupRepo in a local SQLite file.
type SQLiteStore struct {
	sqlStore
}

var _ RowStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database named by WithDSN.
// Plain paths and "file:" URIs are accepted.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, errors.New("sqlite: DSN not set")
	}

	if dir := filepath.Dir(sqlitePath(cfg.DSN)); dir != "." {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return nil, fmt.Errorf("sqlite: create %s: %w", dir, err)
		}
	}
	db, err := openSQL("sqlite3", cfg.DSN, sqliteMigrations, func(db *sql.DB) {
		// One writer at a time; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore{db: db, dialect: sqliteDialect}}, nil
}

// sqlitePath strips the "file:" scheme and query string from a DSN.
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	p, _, _ = strings.Cut(p, "?")
	return p
}
