// Package domain holds the core types shared across parley.
package domain

import "time"

// Origin identifies who authored a message.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// DeliveryState tracks a message's progress through an exchange.
// It only moves forward: sent → delivered, or sent → failed.
type DeliveryState string

const (
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryFailed    DeliveryState = "failed"
)

// Message is a single turn in the conversation. Once persisted it is
// immutable.
type Message struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Origin    Origin        `json:"origin"`
	CreatedAt time.Time     `json:"createdAt"`
	Delivery  DeliveryState `json:"delivery"`
}

// HistoryEntry is the simplified view of a message passed to the remote
// responder as conversation context. Always derived from the message
// log, never stored.
type HistoryEntry struct {
	Content string `json:"content"`
	IsUser  bool   `json:"isUser"`
}

// ProjectHistory derives the responder context from the message log,
// preserving order.
func ProjectHistory(msgs []Message) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, HistoryEntry{
			Content: m.Text,
			IsUser:  m.Origin == OriginUser,
		})
	}
	return entries
}
