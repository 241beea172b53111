package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/parley/internal/domain"
)

// SQLiteMessageStore implements session.MessageStore backed by SQLite.
type SQLiteMessageStore struct {
	db *DB
}

// NewSQLiteMessageStore creates a message store using the given database.
func NewSQLiteMessageStore(db *DB) *SQLiteMessageStore {
	return &SQLiteMessageStore{db: db}
}

// Append persists a message at the end of the log.
func (s *SQLiteMessageStore) Append(ctx context.Context, msg domain.Message) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO messages (id, origin, text, delivery, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Origin), msg.Text, string(msg.Delivery),
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListAll returns every persisted message in original insertion order.
func (s *SQLiteMessageStore) ListAll(ctx context.Context) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, origin, text, delivery, created_at FROM messages ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var origin, delivery, createdAt string
		if err := rows.Scan(&msg.ID, &origin, &msg.Text, &delivery, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Origin = domain.Origin(origin)
		msg.Delivery = domain.DeliveryState(delivery)
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// ClearAll deletes every persisted message.
func (s *SQLiteMessageStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	return nil
}
