// Package scheduler arms and cancels follow-up reminders for completed intakes.
//
// Each completed session gets a set of one-shot tasks. Tasks are plain
// descriptors (identifier, text, delay, opt-out lookup key) held here, so they
// survive the session being deleted. A task re-checks the opt-out column in the
// store right before sending.
package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

// Sender delivers a reminder.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// Dispatcher runs fn on the per-identifier serialization point.
type Dispatcher interface {
	Submit(key string, fn func()) error
}

// Task is one pending reminder.
type Task struct {
	Identifier   string
	Message      string
	Delay        time.Duration
	FireAt       time.Time
	Collection   string
	OptOutColumn int
	Phone        string // contact phone used to find the latest record
}

type armedTask struct {
	Task
	timerID string
	fired   bool
}

type taskSet struct {
	gen       uint64
	tasks     []*armedTask
	undeliver int // tasks not yet finished (fired and delivered, or skipped)
}

// Config configures a Scheduler.
type Config struct {
	Delays      []time.Duration // positive entries only are used
	Links       flow.Links
	Students    string
	Patients    string
	CallTimeout time.Duration
	// MaxReplyDelay is the longest pause the sender may add before sending.
	MaxReplyDelay time.Duration
}

// Scheduler owns every armed follow-up set, keyed by identifier.
type Scheduler struct {
	timer    models.Timer
	rows     store.RowStore
	sender   Sender
	dispatch Dispatcher
	cfg      Config

	mu   sync.Mutex
	gen  uint64
	sets map[string]*taskSet
}

// NewScheduler creates a Scheduler. dispatch may be nil, in which case tasks
// run on the timer goroutine.
func NewScheduler(timer models.Timer, rows store.RowStore, sender Sender, dispatch Dispatcher, cfg Config) *Scheduler {
	if rows == nil {
		rows = store.NopStore{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.MaxReplyDelay < 0 {
		cfg.MaxReplyDelay = 0
	}
	var delays []time.Duration
	for _, d := range cfg.Delays {
		if d > 0 {
			delays = append(delays, d)
		}
	}
	cfg.Delays = delays
	cfg.Links = cfg.Links.WithDefaults()
	return &Scheduler{
		timer:    timer,
		rows:     rows,
		sender:   sender,
		dispatch: dispatch,
		cfg:      cfg,
		sets:     make(map[string]*taskSet),
	}
}

// HoursToDelays converts configured hours into delays. Non-positive values are dropped.
func HoursToDelays(hours ...float64) []time.Duration {
	var out []time.Duration
	for _, h := range hours {
		if h > 0 {
			out = append(out, time.Duration(h*float64(time.Hour)))
		}
	}
	return out
}

// Arm replaces any follow-up set for identifier with a fresh one built from a
// snapshot of the completed session's fields. It returns the armed tasks.
func (s *Scheduler) Arm(identifier string, flowType models.FlowType, fields map[models.DataKey]string) []Task {
	s.Cancel(identifier)

	snapshot := make(map[models.DataKey]string, len(fields))
	for k, v := range fields {
		snapshot[k] = v
	}
	messages := s.cfg.Links.FollowUpMessages(flowType, snapshot)

	collection := s.cfg.Patients
	if flowType == models.FlowTypeStudent {
		collection = s.cfg.Students
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	set := &taskSet{gen: s.gen}
	var armed []Task
	for i := 0; i < len(s.cfg.Delays) && i < len(messages); i++ {
		at := &armedTask{Task: Task{
			Identifier:   identifier,
			Message:      messages[i],
			Delay:        s.cfg.Delays[i],
			FireAt:       now.Add(s.cfg.Delays[i]),
			Collection:   collection,
			OptOutColumn: models.OptOutColumn(flowType),
			Phone:        snapshot[models.DataKeyContactNumber],
		}}
		gen := set.gen
		id, err := s.timer.ScheduleAfter(at.Delay, func() { s.fire(identifier, gen, at) })
		if err != nil {
			slog.Error("Scheduler.Arm: failed to schedule follow-up", "identifier", identifier, "index", i, "error", err)
			continue
		}
		at.timerID = id
		set.tasks = append(set.tasks, at)
		armed = append(armed, at.Task)
	}
	set.undeliver = len(set.tasks)
	if len(set.tasks) > 0 {
		s.sets[identifier] = set
	}
	slog.Info("Scheduler.Arm: follow-ups armed", "identifier", identifier, "flow", flowType, "count", len(armed))
	return armed
}

// Cancel drops every pending task for identifier. Unknown identifiers are a no-op.
// A task already handed to its sender may still complete.
func (s *Scheduler) Cancel(identifier string) {
	s.mu.Lock()
	set, ok := s.sets[identifier]
	delete(s.sets, identifier)
	var timerIDs []string
	if ok {
		for _, t := range set.tasks {
			if !t.fired {
				timerIDs = append(timerIDs, t.timerID)
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, id := range timerIDs {
		if err := s.timer.Cancel(id); err != nil {
			slog.Warn("Scheduler.Cancel: timer cancel failed", "identifier", identifier, "timerID", id, "error", err)
		}
	}
	slog.Debug("Scheduler.Cancel", "identifier", identifier, "canceled", len(timerIDs))
}

// Pending returns the number of armed tasks that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, set := range s.sets {
		for _, t := range set.tasks {
			if !t.fired {
				n++
			}
		}
	}
	return n
}

// PendingFor returns the unfired tasks armed for identifier.
func (s *Scheduler) PendingFor(identifier string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[identifier]
	if !ok {
		return nil
	}
	var out []Task
	for _, t := range set.tasks {
		if !t.fired {
			out = append(out, t.Task)
		}
	}
	return out
}

// current reports whether gen is still the live set for identifier.
func (s *Scheduler) current(identifier string, gen uint64) bool {
	set, ok := s.sets[identifier]
	return ok && set.gen == gen
}

func (s *Scheduler) fire(identifier string, gen uint64, t *armedTask) {
	s.mu.Lock()
	if !s.current(identifier, gen) || t.fired {
		s.mu.Unlock()
		return
	}
	t.fired = true
	s.mu.Unlock()

	run := func() { s.deliver(identifier, gen, t.Task) }
	if s.dispatch == nil {
		run()
		return
	}
	if err := s.dispatch.Submit(identifier, run); err != nil {
		slog.Error("Scheduler: dispatch failed, dropping follow-up", "identifier", identifier, "error", err)
		s.finish(identifier, gen)
	}
}

// deliver runs on the identifier's serialization point, so a session started
// meanwhile has already canceled this generation.
func (s *Scheduler) deliver(identifier string, gen uint64, t Task) {
	defer s.finish(identifier, gen)

	s.mu.Lock()
	live := s.current(identifier, gen)
	s.mu.Unlock()
	if !live {
		slog.Debug("Scheduler: stale follow-up skipped", "identifier", identifier)
		return
	}

	if !s.shouldSend(t) {
		slog.Info("Scheduler: follow-up suppressed by opt-out", "identifier", identifier, "collection", t.Collection)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout+s.cfg.MaxReplyDelay)
	defer cancel()
	if err := s.sender.SendMessage(ctx, identifier, t.Message); err != nil {
		slog.Error("Scheduler: follow-up send failed", "identifier", identifier, "error", err)
		return
	}
	slog.Info("Scheduler: follow-up sent", "identifier", identifier)
}

func (s *Scheduler) finish(identifier string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[identifier]
	if !ok || set.gen != gen {
		return
	}
	set.undeliver--
	if set.undeliver <= 0 {
		delete(s.sets, identifier)
	}
}

// shouldSend checks the latest record for the contact. Lookup failures and
// missing records both allow the send.
func (s *Scheduler) shouldSend(t Task) bool {
	phone := util.CanonicalizePhone(t.Phone)
	if phone == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	rows, err := s.rows.Rows(ctx, t.Collection)
	if err != nil {
		slog.Error("Scheduler: opt-out lookup failed, defaulting to send", "collection", t.Collection, "error", err)
		return true
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if util.CanonicalizePhone(models.Cell(rows[i], models.ColumnPhone)) != phone {
			continue
		}
		take := strings.ToLower(strings.TrimSpace(models.Cell(rows[i], t.OptOutColumn)))
		return take != "no"
	}
	return true
}
