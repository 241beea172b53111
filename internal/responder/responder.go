// Package responder defines the remote respond contract and its
// implementations.
//
// A respond call has two distinct failure modes: the transport can fail
// (returned as an error), or the remote side can complete the call but
// report an unsuccessful outcome (Outcome.Success=false with a
// user-facing reason in Message). Callers must handle both.
package responder

import (
	"context"

	"github.com/soyeahso/parley/internal/domain"
)

// Outcome is the result of a respond call that completed at the
// transport level.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Responder produces an assistant reply for a new user utterance given
// the prior exchange history.
type Responder interface {
	Send(ctx context.Context, text string, history []domain.HistoryEntry) (*Outcome, error)
}
