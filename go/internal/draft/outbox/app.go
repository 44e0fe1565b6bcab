package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OutboxRepository is the read side of the outbox. Rows are inserted by the
// draft store in the same transaction as the state change they describe.
type OutboxRepository interface {
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	CountUnsentOutbox(ctx context.Context) (int64, error)
}

type App struct {
	repo OutboxRepository
}

func NewApp(repo OutboxRepository) *App {
	return &App{repo: repo}
}

// FetchUnsentEvents returns up to limit unsent rows, oldest first.
func (a *App) FetchUnsentEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	evts, err := a.repo.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}
	return evts, nil
}

func (a *App) MarkEventSent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.MarkOutboxSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark event %s as sent: %w", eventID, err)
	}
	return nil
}

// GetEventByID returns an unsent row, or ErrEventNotFound if it is unknown
// or already sent.
func (a *App) GetEventByID(ctx context.Context, eventID uuid.UUID) (*OutboxEvent, error) {
	event, err := a.repo.FetchOutboxByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", eventID, err)
	}
	return event, nil
}

// PendingCount returns how many events are waiting to be published.
func (a *App) PendingCount(ctx context.Context) (int64, error) {
	n, err := a.repo.CountUnsentOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsent events: %w", err)
	}
	return n, nil
}

// ProcessUnsentEvents hands one batch to processor in creation order and
// marks each event sent once it succeeds. The batch stops at the first
// failure so clients never see a draft's events out of order; the failed
// row is retried on the next sweep. It returns the number sent.
func (a *App) ProcessUnsentEvents(ctx context.Context, batchSize int32, processor func(event OutboxEvent) error) (int, error) {
	evts, err := a.FetchUnsentEvents(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range evts {
		if err := processor(event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Str("draft_id", event.DraftID.String()).
				Msg("failed to relay event, stopping batch")
			break
		}
		if err := a.MarkEventSent(ctx, event.ID); err != nil {
			return sent, err
		}
		sent++
	}

	if len(evts) > 0 {
		log.Debug().
			Int("sent", sent).
			Int("fetched", len(evts)).
			Msg("relayed outbox batch")
	}
	return sent, nil
}
