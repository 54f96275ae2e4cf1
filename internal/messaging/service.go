// Package messaging adapts chat transports to IntakePipe and dispatches
// inbound messages to the intake engine one identifier at a time.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

const (
	// DefaultChannelBufferSize defines the buffer size of the responses channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds a blocked emit before the message is dropped.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by SendMessage after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable chat transport.
type Service interface {
	// Name identifies the transport in logs and /status.
	Name() string

	// SendMessage sends a text message to a transport identifier.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event handlers).
	Start(ctx context.Context) error

	// Stop stops background processing and closes Responses.
	Stop() error

	// Responses returns a channel of inbound messages.
	Responses() <-chan models.Response
}

// emitter is the responses channel shared by both transports. Emits after
// Stop are dropped instead of panicking on a closed channel.
type emitter struct {
	mu        sync.RWMutex
	responses chan models.Response
	stopped   bool
}

func (e *emitter) emit(name string, resp models.Response) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.responses <- resp:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(name+" responses channel blocked, dropping message", "from", resp.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (e *emitter) stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.stopped = true
	close(e.responses)
	return true
}

func (e *emitter) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}
