package testutil

import (
	"context"
	"sync"
)

// SentMessage is one captured outbound message.
type SentMessage struct {
	To   string
	Body string
}

// RecordingSender captures SendMessage calls. Err, when set, is returned
// instead of recording.
type RecordingSender struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

func (r *RecordingSender) SendMessage(ctx context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, SentMessage{To: to, Body: body})
	return nil
}

// SetErr makes later sends fail with err (nil to succeed again).
func (r *RecordingSender) SetErr(err error) {
	r.mu.Lock()
	r.Err = err
	r.mu.Unlock()
}

// Sent returns a copy of every captured message.
func (r *RecordingSender) Sent() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentMessage, len(r.sent))
	copy(out, r.sent)
	return out
}

// SentTo returns the bodies sent to one recipient, in order.
func (r *RecordingSender) SentTo(to string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		if m.To == to {
			out = append(out, m.Body)
		}
	}
	return out
}

// Reset discards captured messages.
func (r *RecordingSender) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
