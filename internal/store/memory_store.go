package store

import (
	"context"
	"sync"

	"github.com/soyeahso/parley/internal/domain"
)

// MemoryMessageStore is an in-memory session.MessageStore implementation.
// Selected with `storage.driver: memory`; nothing survives a restart.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// NewMemoryMessageStore creates an empty in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{}
}

// Append adds a message to the end of the log.
func (s *MemoryMessageStore) Append(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// ListAll returns a copy of the log in insertion order.
func (s *MemoryMessageStore) ListAll(_ context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil, nil
	}
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs, nil
}

// ClearAll removes every message.
func (s *MemoryMessageStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	return nil
}
