package responder

import (
	"context"

	"github.com/soyeahso/parley/internal/domain"
)

// MockResponder is a test double for Responder.
type MockResponder struct {
	SendFunc func(ctx context.Context, text string, history []domain.HistoryEntry) (*Outcome, error)
}

func (m *MockResponder) Send(ctx context.Context, text string, history []domain.HistoryEntry) (*Outcome, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, text, history)
	}
	return &Outcome{Success: true, Message: "mock reply"}, nil
}
