// Package models defines the core data structures for IntakePipe.
//
// It includes the inbound message shape, the session (FlowState) and the
// positional record layout shared by persistence, membership and follow-ups.
package models

import "time"

// Response is an inbound message delivered by a chat transport.
type Response struct {
	MessageID string `json:"message_id,omitempty"`
	// From is the transport identifier of the counterpart (e.g. "919876543210@s.whatsapp.net").
	From     string `json:"from"`
	Body     string `json:"body"`
	Time     int64  `json:"time"`
	FromSelf bool   `json:"from_self,omitempty"`
	// Kind carries transport metadata about the message type (text, image, ...).
	Kind string `json:"kind,omitempty"`
}

// Timer schedules delayed one-shot functions.
type Timer interface {
	// ScheduleAfter schedules fn to run after delay and returns an ID for Cancel.
	ScheduleAfter(delay time.Duration, fn func()) (string, error)
	// Cancel stops a scheduled function. Unknown IDs are ignored.
	Cancel(id string) error
}

// TimerInfo describes one pending timer call.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Remaining   string    `json:"remaining"`
}
