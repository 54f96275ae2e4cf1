package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"time"

	_ "github.com/lib/pq"
)

// Connection pool settings for PostgresStore.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

var postgresDialect = sqlDialect{
	name:      "postgres",
	appendRow: `INSERT INTO intake_rows (collection, cells) VALUES ($1, $2)`,
	selectRow: `SELECT cells FROM intake_rows WHERE collection = $1 ORDER BY id`,
	dedup:     postgresDedup,
}

// PostgresStore is a RowStore and DedupRepo in PostgreSQL.
type PostgresStore struct {
	sqlStore
}

var _ RowStore = (*PostgresStore)(nil)

// NewPostgresStore connects to the database named by WithPostgresDSN (or WithDSN).
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, errors.New("postgres: DSN not set")
	}
	db, err := openSQL("postgres", cfg.DSN, postgresMigrations, func(db *sql.DB) {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{sqlStore{db: db, dialect: postgresDialect}}, nil
}
