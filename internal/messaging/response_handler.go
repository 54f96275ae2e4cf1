package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/store"
)

// Engine consumes one inbound message. Calls for the same identifier are
// never concurrent.
type Engine interface {
	HandleResponse(ctx context.Context, resp models.Response) error
}

// Dispatcher runs fn serialized with every other fn submitted for key.
type Dispatcher interface {
	Submit(key string, fn func()) error
}

// DefaultDedupTimeout bounds each dedup store call.
const DefaultDedupTimeout = 5 * time.Second

// ResponseHandler pumps a Service's inbound messages into the Engine. It drops
// messages that are not conversations with a person, drops redeliveries when a
// DedupRepo is set, and hands the rest to the Dispatcher keyed by identifier.
type ResponseHandler struct {
	svc      Service
	engine   Engine
	dispatch Dispatcher
	dedup    store.DedupRepo

	wg sync.WaitGroup
}

// NewResponseHandler creates a ResponseHandler.
func NewResponseHandler(svc Service, engine Engine, dispatch Dispatcher) *ResponseHandler {
	return &ResponseHandler{svc: svc, engine: engine, dispatch: dispatch}
}

// WithDedup enables inbound deduplication by message ID.
func (rh *ResponseHandler) WithDedup(repo store.DedupRepo) *ResponseHandler {
	rh.dedup = repo
	return rh
}

// IgnoreReason reports why resp is not a person-to-business message, or ""
// when it should be processed.
func IgnoreReason(resp models.Response) string {
	switch {
	case resp.FromSelf:
		return "from_self"
	case resp.From == "":
		return "no_sender"
	case resp.From == "status@broadcast":
		return "status_broadcast"
	case strings.HasSuffix(resp.From, "@g.us"):
		return "group"
	case strings.HasSuffix(resp.From, "@newsletter"):
		return "newsletter"
	}
	return ""
}

// Start begins processing responses from the messaging service in the
// background. It returns immediately; Wait blocks until the pump exits.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing", "transport", rh.svc.Name())
	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		defer slog.Info("ResponseHandler stopped response processing")
		for {
			select {
			case resp, ok := <-rh.svc.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				if err := rh.ProcessResponse(ctx, resp); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", resp.From)
				}
			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

// Wait blocks until the pump started by Start exits.
func (rh *ResponseHandler) Wait() { rh.wg.Wait() }

// ProcessResponse filters resp and submits it to the Engine through the
// Dispatcher. It does not wait for the Engine.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, resp models.Response) error {
	if reason := IgnoreReason(resp); reason != "" {
		slog.Debug("ResponseHandler ignoring message", "from", resp.From, "reason", reason)
		return nil
	}
	if rh.isDuplicate(ctx, resp) {
		slog.Info("ResponseHandler dropping duplicate message", "from", resp.From, "message_id", resp.MessageID)
		return nil
	}
	return rh.dispatch.Submit(resp.From, func() {
		if err := rh.engine.HandleResponse(ctx, resp); err != nil {
			slog.Error("ResponseHandler engine failed", "error", err, "from", resp.From)
		}
		rh.markProcessed(ctx, resp)
	})
}

// isDuplicate records the message ID. Store errors let the message through.
func (rh *ResponseHandler) isDuplicate(ctx context.Context, resp models.Response) bool {
	if rh.dedup == nil || resp.MessageID == "" {
		return false
	}
	dctx, cancel := context.WithTimeout(ctx, DefaultDedupTimeout)
	defer cancel()
	fresh, err := rh.dedup.RecordInbound(dctx, resp.MessageID, resp.From)
	if err != nil {
		slog.Warn("ResponseHandler dedup record failed, processing anyway", "error", err, "message_id", resp.MessageID)
		return false
	}
	return !fresh
}

func (rh *ResponseHandler) markProcessed(ctx context.Context, resp models.Response) {
	if rh.dedup == nil || resp.MessageID == "" {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, DefaultDedupTimeout)
	defer cancel()
	if err := rh.dedup.MarkProcessed(dctx, resp.MessageID); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("ResponseHandler dedup mark failed", "error", err, "message_id", resp.MessageID)
	}
}
