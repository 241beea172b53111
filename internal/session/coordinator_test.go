package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/responder"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent", "json")
}

// stubStore is a test double for MessageStore with injectable failures.
type stubStore struct {
	mu       sync.Mutex
	messages []domain.Message

	appendErr func(msg domain.Message) error
	listErr   error
	clearErr  error
}

func (s *stubStore) Append(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		if err := s.appendErr(msg); err != nil {
			return err
		}
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *stubStore) ListAll(_ context.Context) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs, nil
}

func (s *stubStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.messages = nil
	return nil
}

func (s *stubStore) stored() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs
}

// scriptedResponder replies with canned messages in order.
func scriptedResponder(replies ...string) *responder.MockResponder {
	var i int
	return &responder.MockResponder{
		SendFunc: func(_ context.Context, _ string, _ []domain.HistoryEntry) (*responder.Outcome, error) {
			reply := replies[i%len(replies)]
			i++
			return &responder.Outcome{Success: true, Message: reply}, nil
		},
	}
}

func newTestCoordinator(store MessageStore, resp responder.Responder) *Coordinator {
	return New(Config{}, store, resp, testLogger())
}

func TestInitializeSeedsGreetingOnEmptyStore(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, &responder.MockResponder{})

	require.NoError(t, c.Initialize(context.Background()))

	state := c.Snapshot()
	require.True(t, state.Initialized)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, domain.OriginAssistant, state.Messages[0].Origin)
	assert.Equal(t, config.DefaultGreeting, state.Messages[0].Text)
	assert.Equal(t, domain.DeliveryDelivered, state.Messages[0].Delivery)

	// The greeting is persisted, not just in memory.
	stored := store.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, config.DefaultGreeting, stored[0].Text)
}

func TestInitializeIdempotent(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, &responder.MockResponder{})
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Initialize(ctx))

	assert.Len(t, c.Snapshot().Messages, 1)
	assert.Len(t, store.stored(), 1, "no duplicate greeting persisted")
}

func TestInitializeLoadsExistingMessages(t *testing.T) {
	store := &stubStore{messages: []domain.Message{
		{ID: "1", Text: "hi", Origin: domain.OriginUser, Delivery: domain.DeliverySent},
		{ID: "2", Text: "hello", Origin: domain.OriginAssistant, Delivery: domain.DeliveryDelivered},
	}}
	c := newTestCoordinator(store, &responder.MockResponder{})

	require.NoError(t, c.Initialize(context.Background()))

	state := c.Snapshot()
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "hi", state.Messages[0].Text)
	assert.Equal(t, "hello", state.Messages[1].Text)
	// No greeting added to a non-empty session.
	assert.Len(t, store.stored(), 2)
}

func TestInitializeStoreFailureIsRetryable(t *testing.T) {
	store := &stubStore{listErr: errors.New("db locked")}
	c := newTestCoordinator(store, &responder.MockResponder{})
	ctx := context.Background()

	err := c.Initialize(ctx)
	require.Error(t, err)
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)

	state := c.Snapshot()
	assert.False(t, state.Initialized)
	assert.Contains(t, state.LastError, "db locked")

	// The store recovers; initialize succeeds on retry.
	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()

	require.NoError(t, c.Initialize(ctx))
	assert.True(t, c.Snapshot().Initialized)
}

func TestSubmitExchange(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, scriptedResponder("hello"))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	require.NoError(t, c.Submit(ctx, "hi"))

	state := c.Snapshot()
	require.Len(t, state.Messages, 3)
	assert.Equal(t, domain.OriginUser, state.Messages[1].Origin)
	assert.Equal(t, "hi", state.Messages[1].Text)
	assert.Equal(t, domain.DeliverySent, state.Messages[1].Delivery)
	assert.Equal(t, domain.OriginAssistant, state.Messages[2].Origin)
	assert.Equal(t, "hello", state.Messages[2].Text)
	assert.Equal(t, domain.DeliveryDelivered, state.Messages[2].Delivery)
	assert.False(t, state.Waiting)
	assert.False(t, state.Typing)
	assert.Empty(t, state.LastError)

	assert.Len(t, store.stored(), 3)
}

func TestSubmitEmptyText(t *testing.T) {
	c := newTestCoordinator(&stubStore{}, &responder.MockResponder{})
	require.NoError(t, c.Initialize(context.Background()))

	assert.ErrorIs(t, c.Submit(context.Background(), ""), ErrEmptyMessage)
	assert.ErrorIs(t, c.Submit(context.Background(), "   \t\n"), ErrEmptyMessage)
	assert.Len(t, c.Snapshot().Messages, 1)
}

func TestSubmitBeforeInitialize(t *testing.T) {
	c := newTestCoordinator(&stubStore{}, &responder.MockResponder{})
	assert.ErrorIs(t, c.Submit(context.Background(), "hi"), ErrNotInitialized)
}

func TestAtMostOneExchangeInFlight(t *testing.T) {
	store := &stubStore{}
	release := make(chan struct{})
	var calls atomic.Int32
	resp := &responder.MockResponder{
		SendFunc: func(_ context.Context, _ string, _ []domain.HistoryEntry) (*responder.Outcome, error) {
			calls.Add(1)
			<-release
			return &responder.Outcome{Success: true, Message: "hello"}, nil
		},
	}
	c := newTestCoordinator(store, resp)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Submit(ctx, "a") }()

	require.Eventually(t, func() bool { return c.Snapshot().Waiting }, time.Second, time.Millisecond)

	// Second submission is dropped, not queued.
	assert.ErrorIs(t, c.Submit(ctx, "b"), ErrExchangeInFlight)

	close(release)
	require.NoError(t, <-errCh)

	assert.Equal(t, int32(1), calls.Load(), "only one responder invocation")
	for _, m := range c.Snapshot().Messages {
		assert.NotEqual(t, "b", m.Text)
	}
	assert.False(t, c.Snapshot().Waiting)
}

func TestResponderRejectedLeavesUserMessageIntact(t *testing.T) {
	store := &stubStore{}
	resp := &responder.MockResponder{
		SendFunc: func(_ context.Context, _ string, _ []domain.HistoryEntry) (*responder.Outcome, error) {
			return &responder.Outcome{Success: false, Message: "model overloaded"}, nil
		},
	}
	c := newTestCoordinator(store, resp)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	err := c.Submit(ctx, "hi")
	require.Error(t, err)
	var rej *domain.ResponderRejected
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "model overloaded", rej.Reason)

	state := c.Snapshot()
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "hi", state.Messages[1].Text)
	assert.Equal(t, domain.DeliverySent, state.Messages[1].Delivery)
	assert.Equal(t, "model overloaded", state.LastError)
	assert.False(t, state.Waiting)
	assert.False(t, state.Typing)

	// No assistant message persisted.
	assert.Len(t, store.stored(), 2)
}

func TestResponderTransportError(t *testing.T) {
	store := &stubStore{}
	resp := &responder.MockResponder{
		SendFunc: func(_ context.Context, _ string, _ []domain.HistoryEntry) (*responder.Outcome, error) {
			return nil, errors.New("connection refused")
		},
	}
	c := newTestCoordinator(store, resp)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	err := c.Submit(ctx, "hi")
	var rerr *domain.ResponderError
	require.ErrorAs(t, err, &rerr)

	state := c.Snapshot()
	assert.Contains(t, state.LastError, "connection refused")
	assert.False(t, state.Waiting, "a responder failure always resolves the in-flight guard")
	require.Len(t, state.Messages, 2)
	assert.Equal(t, domain.DeliverySent, state.Messages[1].Delivery)
}

func TestUserMessagePersistFailureRollsBack(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, &responder.MockResponder{})
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	store.mu.Lock()
	store.appendErr = func(domain.Message) error { return errors.New("disk full") }
	store.mu.Unlock()

	err := c.Submit(ctx, "hi")
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)

	state := c.Snapshot()
	require.Len(t, state.Messages, 1, "user message not applied in memory")
	assert.Contains(t, state.LastError, "disk full")
	assert.False(t, state.Waiting)
	assert.Len(t, store.stored(), 1)
}

func TestAssistantPersistFailure(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, scriptedResponder("hello"))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	// Fail only the assistant write.
	store.mu.Lock()
	store.appendErr = func(msg domain.Message) error {
		if msg.Origin == domain.OriginAssistant {
			return errors.New("disk full")
		}
		return nil
	}
	store.mu.Unlock()

	err := c.Submit(ctx, "hi")
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)

	state := c.Snapshot()
	require.Len(t, state.Messages, 2, "assistant message not applied")
	assert.Equal(t, "hi", state.Messages[1].Text)
	assert.False(t, state.Waiting)
	assert.Contains(t, state.LastError, "disk full")
}

func TestLastErrorClearedByNextSubmit(t *testing.T) {
	store := &stubStore{}
	fail := true
	resp := &responder.MockResponder{
		SendFunc: func(_ context.Context, _ string, _ []domain.HistoryEntry) (*responder.Outcome, error) {
			if fail {
				return &responder.Outcome{Success: false, Message: "busy"}, nil
			}
			return &responder.Outcome{Success: true, Message: "hello"}, nil
		},
	}
	c := newTestCoordinator(store, resp)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	require.Error(t, c.Submit(ctx, "hi"))
	assert.Equal(t, "busy", c.Snapshot().LastError)

	fail = false
	require.NoError(t, c.Submit(ctx, "again"))
	assert.Empty(t, c.Snapshot().LastError)
}

func TestHistoryProjectionFidelity(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, scriptedResponder("hello", "I'm fine"))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	require.NoError(t, c.Submit(ctx, "hi"))
	require.NoError(t, c.Submit(ctx, "how are you"))

	want := []domain.HistoryEntry{
		{Content: "Hello! How can I help you today?", IsUser: false},
		{Content: "hi", IsUser: true},
		{Content: "hello", IsUser: false},
		{Content: "how are you", IsUser: true},
		{Content: "I'm fine", IsUser: false},
	}
	assert.Equal(t, want, c.History())
}

func TestHistoryPassedToResponderIncludesNewMessage(t *testing.T) {
	store := &stubStore{}
	var seen []domain.HistoryEntry
	resp := &responder.MockResponder{
		SendFunc: func(_ context.Context, _ string, history []domain.HistoryEntry) (*responder.Outcome, error) {
			seen = history
			return &responder.Outcome{Success: true, Message: "hello"}, nil
		},
	}
	c := newTestCoordinator(store, resp)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Submit(ctx, "hi"))

	// History as it stood at call time: greeting plus the new user entry.
	require.Len(t, seen, 2)
	assert.Equal(t, domain.HistoryEntry{Content: "hi", IsUser: true}, seen[1])
}

func TestClearIsAllOrNothing(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, scriptedResponder("hello"))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Submit(ctx, "hi"))

	before := c.Snapshot().Messages

	store.mu.Lock()
	store.clearErr = errors.New("db locked")
	store.mu.Unlock()

	err := c.Clear(ctx)
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)

	state := c.Snapshot()
	assert.Equal(t, before, state.Messages, "in-memory log untouched on failed clear")
	assert.True(t, state.Initialized)
	assert.Contains(t, state.LastError, "db locked")
}

func TestClearReseedsGreeting(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, scriptedResponder("hello"))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Submit(ctx, "hi"))
	require.Len(t, c.Snapshot().Messages, 3)

	require.NoError(t, c.Clear(ctx))

	state := c.Snapshot()
	require.True(t, state.Initialized)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, config.DefaultGreeting, state.Messages[0].Text)
	assert.Empty(t, state.LastError)
	assert.Len(t, store.stored(), 1)
}

func TestClearRejectedWhileInFlight(t *testing.T) {
	store := &stubStore{}
	release := make(chan struct{})
	resp := &responder.MockResponder{
		SendFunc: func(_ context.Context, _ string, _ []domain.HistoryEntry) (*responder.Outcome, error) {
			<-release
			return &responder.Outcome{Success: true, Message: "hello"}, nil
		},
	}
	c := newTestCoordinator(store, resp)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Submit(ctx, "hi") }()
	require.Eventually(t, func() bool { return c.Snapshot().Waiting }, time.Second, time.Millisecond)

	assert.ErrorIs(t, c.Clear(ctx), ErrExchangeInFlight)

	close(release)
	require.NoError(t, <-errCh)
}

func TestCloseDiscardsInFlightCompletion(t *testing.T) {
	store := &stubStore{}
	release := make(chan struct{})
	resp := &responder.MockResponder{
		SendFunc: func(_ context.Context, _ string, _ []domain.HistoryEntry) (*responder.Outcome, error) {
			<-release
			return &responder.Outcome{Success: true, Message: "hello"}, nil
		},
	}
	c := newTestCoordinator(store, resp)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Submit(ctx, "hi") }()
	require.Eventually(t, func() bool { return c.Snapshot().Waiting }, time.Second, time.Millisecond)

	c.Close()
	close(release)

	assert.ErrorIs(t, <-errCh, ErrClosed)

	// The assistant reply was not applied and all further operations
	// are refused.
	assert.Len(t, store.stored(), 2, "user message persisted, assistant reply dropped")
	assert.ErrorIs(t, c.Submit(ctx, "again"), ErrClosed)
	assert.ErrorIs(t, c.Initialize(ctx), ErrClosed)
	assert.ErrorIs(t, c.Clear(ctx), ErrClosed)
}

func TestRoundTripPersistence(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, scriptedResponder("hello", "I'm fine"))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Submit(ctx, "hi"))
	require.NoError(t, c.Submit(ctx, "how are you"))

	first := c.Snapshot().Messages

	// Simulated restart: a fresh coordinator over the same store.
	c2 := newTestCoordinator(store, &responder.MockResponder{})
	require.NoError(t, c2.Initialize(ctx))

	second := c2.Snapshot().Messages
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Origin, second[i].Origin)
	}
}

func TestOnChangeNotifications(t *testing.T) {
	store := &stubStore{}
	c := newTestCoordinator(store, scriptedResponder("hello"))
	ctx := context.Background()

	var mu sync.Mutex
	var snaps []domain.SessionState
	c.OnChange(func(state domain.SessionState) {
		mu.Lock()
		snaps = append(snaps, state)
		mu.Unlock()
	})

	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Submit(ctx, "hi"))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(snaps), 3)

	// One notification observed the exchange in flight.
	var sawWaiting bool
	for _, s := range snaps {
		if s.Waiting && s.Typing {
			sawWaiting = true
		}
	}
	assert.True(t, sawWaiting)

	last := snaps[len(snaps)-1]
	assert.Len(t, last.Messages, 3)
	assert.False(t, last.Waiting)
}
