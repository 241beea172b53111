// Package session implements the exchange coordinator: the single
// authority over one conversation's state.
//
// The coordinator owns the canonical in-memory message log and drives
// the submit → persist → respond → persist lifecycle. Every mutation
// funnels through its methods. A waiting flag enforces at most one
// exchange in flight; submissions arriving while an exchange is in
// flight are dropped, not queued. A mutex protects the state itself:
// it is held across store writes (fast, local) but released for the
// remote respond call.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/responder"
)

var (
	// ErrEmptyMessage is returned when the submitted text is empty
	// after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrExchangeInFlight is returned when a mutation arrives while an
	// exchange is awaiting its response. The submission is dropped.
	ErrExchangeInFlight = errors.New("an exchange is already in flight")

	// ErrNotInitialized is returned when Submit is called before a
	// successful Initialize.
	ErrNotInitialized = errors.New("session is not initialized")

	// ErrClosed is returned once the coordinator has been torn down.
	ErrClosed = errors.New("session is closed")
)

// MessageStore is the durable storage the coordinator reconciles
// against. Implementations must preserve insertion order in ListAll.
type MessageStore interface {
	Append(ctx context.Context, msg domain.Message) error
	ListAll(ctx context.Context) ([]domain.Message, error)
	ClearAll(ctx context.Context) error
}

// ChangeHandler receives a state snapshot after every mutation.
type ChangeHandler func(state domain.SessionState)

// Config configures a Coordinator.
type Config struct {
	// Greeting is the synthetic assistant message seeded into an empty
	// session. Empty selects the default.
	Greeting string
}

// Coordinator drives the submit→respond lifecycle for one session.
type Coordinator struct {
	cfg   Config
	store MessageStore
	resp  responder.Responder
	log   *logging.Logger

	mu          sync.Mutex
	messages    []domain.Message
	waiting     bool
	typing      bool
	lastErr     string
	initialized bool
	closed      bool
	onChange    ChangeHandler
}

// New creates a coordinator over the given store and responder.
func New(cfg Config, store MessageStore, resp responder.Responder, log *logging.Logger) *Coordinator {
	if cfg.Greeting == "" {
		cfg.Greeting = config.DefaultGreeting
	}
	return &Coordinator{
		cfg:   cfg,
		store: store,
		resp:  resp,
		log:   log.Sub("session"),
	}
}

// OnChange registers the handler invoked with a snapshot after every
// mutation. The handler runs synchronously outside the coordinator's
// lock; it must not block for long.
func (c *Coordinator) OnChange(h ChangeHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = h
}

// Initialize loads the persisted log and replaces the in-memory state.
// If the store is empty it seeds a synthetic greeting. Idempotent: a
// second call on an initialized session is a no-op. On store failure
// the session stays uninitialized and the call may be retried.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}

	msgs, err := c.store.ListAll(ctx)
	if err != nil {
		perr := &domain.PersistenceError{Op: "load messages", Err: err}
		c.lastErr = perr.Error()
		c.unlockAndNotify(perr, "initialize failed")
		return perr
	}

	if len(msgs) == 0 {
		greeting := c.newMessage(c.cfg.Greeting, domain.OriginAssistant, domain.DeliveryDelivered)
		if err := c.store.Append(ctx, greeting); err != nil {
			perr := &domain.PersistenceError{Op: "seed greeting", Err: err}
			c.lastErr = perr.Error()
			c.unlockAndNotify(perr, "initialize failed")
			return perr
		}
		msgs = []domain.Message{greeting}
	}

	c.messages = msgs
	c.initialized = true
	c.log.Info().Int("messages", len(msgs)).Msg("session initialized")
	c.unlockAndNotify(nil, "")
	return nil
}

// Submit runs one full exchange: persist the user message, call the
// responder with the history as it stands, then persist and surface the
// reply. On any failure the user message stays persisted with
// delivery=sent and no automatic retry is attempted.
func (c *Coordinator) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.initialized:
		c.mu.Unlock()
		return ErrNotInitialized
	case c.waiting:
		c.mu.Unlock()
		c.log.Debug().Msg("submit dropped: exchange in flight")
		return ErrExchangeInFlight
	}

	c.lastErr = ""

	userMsg := c.newMessage(text, domain.OriginUser, domain.DeliverySent)
	if err := c.store.Append(ctx, userMsg); err != nil {
		// Rolled back by never applying: the message is not in the
		// in-memory log and no exchange started.
		perr := &domain.PersistenceError{Op: "append user message", Err: err}
		c.lastErr = perr.Error()
		c.unlockAndNotify(perr, "user message not persisted")
		return perr
	}

	c.messages = append(c.messages, userMsg)
	c.waiting = true
	c.typing = true
	history := domain.ProjectHistory(c.messages)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	out, err := c.resp.Send(ctx, text, history)

	c.mu.Lock()
	if c.closed {
		// Torn down while the call was in flight: apply nothing.
		c.mu.Unlock()
		return ErrClosed
	}

	if err != nil {
		rerr := &domain.ResponderError{Err: err}
		c.waiting = false
		c.typing = false
		c.lastErr = rerr.Error()
		c.unlockAndNotify(rerr, "exchange failed")
		return rerr
	}

	if !out.Success {
		rej := &domain.ResponderRejected{Reason: out.Message}
		c.waiting = false
		c.typing = false
		c.lastErr = out.Message
		c.unlockAndNotify(rej, "exchange rejected")
		return rej
	}

	botMsg := c.newMessage(out.Message, domain.OriginAssistant, domain.DeliveryDelivered)
	if err := c.store.Append(ctx, botMsg); err != nil {
		perr := &domain.PersistenceError{Op: "append assistant message", Err: err}
		c.waiting = false
		c.typing = false
		c.lastErr = perr.Error()
		c.unlockAndNotify(perr, "assistant message not persisted")
		return perr
	}

	c.messages = append(c.messages, botMsg)
	c.waiting = false
	c.typing = false
	c.log.Info().Int("messages", len(c.messages)).Msg("exchange completed")
	c.unlockAndNotify(nil, "")
	return nil
}

// Clear deletes all messages, then re-initializes the session (which
// re-seeds the greeting). All-or-nothing: if the store delete fails the
// in-memory state is untouched. Rejected while an exchange is in
// flight.
func (c *Coordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.waiting {
		c.mu.Unlock()
		return ErrExchangeInFlight
	}

	if err := c.store.ClearAll(ctx); err != nil {
		perr := &domain.PersistenceError{Op: "clear messages", Err: err}
		c.lastErr = perr.Error()
		c.unlockAndNotify(perr, "clear failed")
		return perr
	}

	c.messages = nil
	c.lastErr = ""
	c.initialized = false
	c.log.Info().Msg("session cleared")
	c.unlockAndNotify(nil, "")

	return c.Initialize(ctx)
}

// History returns the derived responder-context projection of the
// current log.
func (c *Coordinator) History() []domain.HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ProjectHistory(c.messages)
}

// Snapshot returns a copy of the current session state.
func (c *Coordinator) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close marks the coordinator dead. Completions of an exchange already
// in flight observe the flag and apply nothing.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// snapshotLocked builds a SessionState copy. Caller holds c.mu.
func (c *Coordinator) snapshotLocked() domain.SessionState {
	msgs := make([]domain.Message, len(c.messages))
	copy(msgs, c.messages)
	return domain.SessionState{
		Messages:    msgs,
		Waiting:     c.waiting,
		Typing:      c.typing,
		LastError:   c.lastErr,
		Initialized: c.initialized,
	}
}

// unlockAndNotify snapshots state, releases the lock, notifies the change
// handler, and logs the error if any. Caller holds c.mu; the lock is
// released on return.
func (c *Coordinator) unlockAndNotify(err error, msg string) {
	snap := c.snapshotLocked()
	h := c.onChange
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Msg(msg)
	}
	if h != nil {
		h(snap)
	}
}

// notify delivers a snapshot to the change handler, if registered.
func (c *Coordinator) notify(state domain.SessionState) {
	c.mu.Lock()
	h := c.onChange
	c.mu.Unlock()
	if h != nil {
		h(state)
	}
}

func (c *Coordinator) newMessage(text string, origin domain.Origin, delivery domain.DeliveryState) domain.Message {
	return domain.Message{
		ID:        uuid.New().String(),
		Text:      text,
		Origin:    origin,
		CreatedAt: time.Now(),
		Delivery:  delivery,
	}
}
