package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent represents an outbox event for the application layer
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	DraftID   uuid.UUID       `json:"draft_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// Publisher delivers an outbox event to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Notifier delivers the ids of newly inserted outbox rows. Postgres
// LISTEN/NOTIFY backs it in production; the in-memory store has its own.
// A closed or nil-valued channel read means the connection was lost.
type Notifier interface {
	Notify() <-chan string
	Ping() error
	Close() error
}
