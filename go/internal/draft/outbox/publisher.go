package outbox

import (
	"context"
	"fmt"

	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// LogPublisher only logs events. Useful when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("draft_id", event.DraftID.String()).
		Msg("publishing event")
	return nil
}

// HandlerFunc consumes a published envelope.
type HandlerFunc func(ctx context.Context, env events.Envelope) error

// LocalPublisher delivers events to in-process handlers, in order. It stands
// in for the broker when the server runs as a single process.
type LocalPublisher struct {
	handlers []HandlerFunc
}

func NewLocalPublisher(handlers ...HandlerFunc) *LocalPublisher {
	return &LocalPublisher{handlers: handlers}
}

func (p *LocalPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	env := NewEnvelope(event)
	for _, h := range p.handlers {
		if err := h(ctx, env); err != nil {
			return fmt.Errorf("local handler for %s: %w", event.EventType, err)
		}
	}
	return nil
}

// MultiPublisher publishes to each publisher in turn and stops at the first error.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// NewEnvelope wraps an outbox event for the bus.
func NewEnvelope(event OutboxEvent) events.Envelope {
	return events.Envelope{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		DraftID:   event.DraftID.String(),
		Timestamp: event.CreatedAt.UTC(),
		Payload:   event.Payload,
	}
}
