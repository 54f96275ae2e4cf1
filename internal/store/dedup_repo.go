package store

import (
	"context"
	"time"
)

// DefaultDedupRetention is how long inbound message IDs are kept. Transports
// redeliver within minutes, so a week is generous.
const DefaultDedupRetention = 7 * 24 * time.Hour

// DedupRecord is one remembered inbound message.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	Identifier  string     `json:"identifier"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo drops transport redeliveries before they reach the intake engine.
type DedupRepo interface {
	// RecordInbound remembers messageID and reports whether it was new.
	RecordInbound(ctx context.Context, messageID, identifier string) (bool, error)

	// MarkProcessed stamps messageID as handled by the engine.
	MarkProcessed(ctx context.Context, messageID string) error

	// PruneInbound forgets messages received before cutoff and returns how many.
	PruneInbound(ctx context.Context, cutoff time.Time) (int64, error)
}
