package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// dedupQueries holds the dialect-specific inbound_dedup statements.
type dedupQueries struct {
	record string
	mark   string
	prune  string
}

var (
	sqliteDedup = dedupQueries{
		record: `INSERT OR IGNORE INTO inbound_dedup (message_id, identifier, received_at) VALUES (?, ?, ?)`,
		mark:   `UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		prune:  `DELETE FROM inbound_dedup WHERE received_at < ?`,
	}
	postgresDedup = dedupQueries{
		record: `INSERT INTO inbound_dedup (message_id, identifier, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		mark:   `UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
		prune:  `DELETE FROM inbound_dedup WHERE received_at < $1`,
	}
)

var (
	_ DedupRepo = (*SQLiteStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)

func (q dedupQueries) recordInbound(ctx context.Context, db *sql.DB, messageID, identifier string) (bool, error) {
	res, err := db.ExecContext(ctx, q.record, messageID, identifier, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound %s: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound %s: rows affected: %w", messageID, err)
	}
	return n == 1, nil
}

func (q dedupQueries) markProcessed(ctx context.Context, db *sql.DB, messageID string) error {
	if _, err := db.ExecContext(ctx, q.mark, time.Now().UTC(), messageID); err != nil {
		return fmt.Errorf("mark processed %s: %w", messageID, err)
	}
	return nil
}

func (q dedupQueries) pruneInbound(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, q.prune, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune inbound: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, identifier string) (bool, error) {
	return s.dialect.dedup.recordInbound(ctx, s.db, messageID, identifier)
}

func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	return s.dialect.dedup.markProcessed(ctx, s.db, messageID)
}

func (s *sqlStore) PruneInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.dialect.dedup.pruneInbound(ctx, s.db, cutoff)
}
