// Package intake wires the dialogue machine to its collaborators.
//
// Engine.HandleResponse is the single entry point for inbound messages. Calls
// for one identifier must be serialized by the caller (messaging.ResponseHandler
// does this through session.Serializer); different identifiers run in parallel.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/membership"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/scheduler"
	"github.com/BTreeMap/IntakePipe/internal/session"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

const (
	// CannedReply is sent to returning members when the AI fallback is unavailable.
	CannedReply = "Thanks for your message. Our team has your details and will continue this chat with you."

	DefaultStudentsCollection = "Sheet3"
	DefaultPatientsCollection = "Sheet4"
	DefaultCallTimeout        = 30 * time.Second
)

// Sender delivers one outbound message.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// Replier produces the AI fallback reply for returning members.
type Replier interface {
	GenerateReply(ctx context.Context, text string) (string, error)
}

// FollowUps arms and cancels reminder sets.
type FollowUps interface {
	Arm(identifier string, flowType models.FlowType, fields map[models.DataKey]string) []scheduler.Task
	Cancel(identifier string)
	PendingFor(identifier string) []scheduler.Task
}

// Config holds Engine settings.
type Config struct {
	Students    string
	Patients    string
	CallTimeout time.Duration
	// MaxReplyDelay is added to CallTimeout for paced sends.
	MaxReplyDelay time.Duration
}

// Deps are the Engine's collaborators. Rows, AI and FollowUps may be nil.
type Deps struct {
	Machine   *flow.Machine
	Sessions  *session.Store
	Oracle    *membership.Oracle
	FollowUps FollowUps
	Rows      store.RowStore
	Sender    Sender
	AI        Replier
}

// Engine processes inbound messages for every identifier.
type Engine struct {
	machine   *flow.Machine
	sessions  *session.Store
	oracle    *membership.Oracle
	followUps FollowUps
	rows      store.RowStore
	sender    Sender
	ai        Replier
	cfg       Config
	now       func() time.Time
}

// NewEngine creates an Engine. Missing optional collaborators are replaced
// with disabled ones.
func NewEngine(deps Deps, cfg Config) (*Engine, error) {
	if deps.Sender == nil {
		return nil, errors.New("intake: sender is required")
	}
	if deps.Machine == nil {
		deps.Machine = flow.NewMachine(flow.Links{})
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore(session.DefaultShards)
	}
	if deps.Rows == nil {
		deps.Rows = store.NopStore{}
	}
	if cfg.Students == "" {
		cfg.Students = DefaultStudentsCollection
	}
	if cfg.Patients == "" {
		cfg.Patients = DefaultPatientsCollection
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if deps.Oracle == nil {
		deps.Oracle = membership.NewOracle(deps.Rows, cfg.Students, cfg.Patients)
	}
	if deps.FollowUps == nil {
		deps.FollowUps = noFollowUps{}
	}
	return &Engine{
		machine:   deps.Machine,
		sessions:  deps.Sessions,
		oracle:    deps.Oracle,
		followUps: deps.FollowUps,
		rows:      deps.Rows,
		sender:    deps.Sender,
		ai:        deps.AI,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Sessions exposes the live session store (for /status).
func (e *Engine) Sessions() *session.Store { return e.sessions }

// HandleResponse processes one inbound message. Collaborator failures are
// logged and handled with safe defaults; the returned error only reports a
// session that had to be discarded.
func (e *Engine) HandleResponse(ctx context.Context, resp models.Response) error {
	identifier := resp.From
	state, live := e.sessions.Get(identifier)
	if !live {
		return e.handleNewContact(ctx, identifier, resp.Body)
	}

	next, effects, err := e.machine.Advance(state, resp.Body, e.now())
	if err != nil {
		e.sessions.Delete(identifier)
		return fmt.Errorf("discarding session %s: %w", identifier, err)
	}
	slog.Debug("Engine.HandleResponse: advanced", "identifier", identifier, "flow", next.FlowType, "from", state.CurrentState, "to", next.CurrentState)
	e.sessions.Put(next)
	e.execute(ctx, next, effects)
	return nil
}

// handleNewContact routes a message from an identifier with no live session:
// returning members get the AI fallback, everyone else a fresh session.
func (e *Engine) handleNewContact(ctx context.Context, identifier, text string) error {
	phone := util.PhoneFromIdentifier(identifier)

	mctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	known := e.oracle.IsKnownMember(mctx, phone)
	cancel()
	if known {
		slog.Info("Engine.HandleResponse: returning member, using fallback reply", "identifier", identifier, "phone", phone)
		e.send(ctx, identifier, e.fallbackReply(ctx, identifier, text))
		return nil
	}

	// Stale reminders from an earlier intake must not reach the new conversation.
	if stale := e.followUps.PendingFor(identifier); len(stale) > 0 {
		slog.Info("Engine.HandleResponse: canceling stale follow-ups", "identifier", identifier, "count", len(stale))
	}
	e.followUps.Cancel(identifier)
	state, effects := e.machine.Start(identifier, e.now())
	e.sessions.Put(state)
	slog.Info("Engine.HandleResponse: session started", "identifier", identifier, "phone", phone)
	e.execute(ctx, state, effects)
	return nil
}

func (e *Engine) fallbackReply(ctx context.Context, identifier, text string) string {
	if e.ai == nil {
		return CannedReply
	}
	actx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	reply, err := e.ai.GenerateReply(actx, text)
	if err != nil {
		slog.Warn("Engine.fallbackReply: AI fallback failed, using canned reply", "identifier", identifier, "error", err)
		return CannedReply
	}
	if strings.TrimSpace(reply) == "" {
		return CannedReply
	}
	return reply
}

func (e *Engine) execute(ctx context.Context, state models.FlowState, effects []flow.Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case flow.EffectSend:
			e.send(ctx, state.Identifier, eff.Text)
		case flow.EffectComplete:
			e.complete(ctx, state)
		}
	}
}

// send abandons only this message on failure.
func (e *Engine) send(ctx context.Context, identifier, text string) {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout+e.cfg.MaxReplyDelay)
	defer cancel()
	if err := e.sender.SendMessage(sctx, identifier, text); err != nil {
		slog.Error("Engine.send: send failed", "identifier", identifier, "body_length", len(text), "error", err)
	}
}

// complete persists the record, marks the contact as a member, arms
// follow-ups from a snapshot and removes the session.
func (e *Engine) complete(ctx context.Context, state models.FlowState) {
	now := e.now()
	collection, row := e.recordFor(state, now)

	actx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	if err := e.rows.AppendRow(actx, collection, row); err != nil {
		slog.Error("Engine.complete: record append failed", "identifier", state.Identifier, "collection", collection, "error", err)
	} else {
		slog.Info("Engine.complete: record saved", "identifier", state.Identifier, "collection", collection, "record_id", row[0])
	}
	cancel()

	e.oracle.Remember(state.Field(models.DataKeyContactNumber), state.Phone)
	e.followUps.Arm(state.Identifier, state.FlowType, state.Snapshot())
	e.sessions.Delete(state.Identifier)
	slog.Info("Engine.complete: flow completed", "identifier", state.Identifier, "flow", state.FlowType)
}

type noFollowUps struct{}

func (noFollowUps) Arm(string, models.FlowType, map[models.DataKey]string) []scheduler.Task {
	return nil
}
func (noFollowUps) Cancel(string) {}
func (noFollowUps) PendingFor(string) []scheduler.Task {
	return nil
}
