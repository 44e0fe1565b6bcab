package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/draft/draft"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DraftApp is what the gateway needs from the draft application
type DraftApp interface {
	HandleEvent(ctx context.Context, env events.Envelope) error
	GetDraft(ctx context.Context, draftID uuid.UUID) (*draft.DraftView, error)
	GetOptions(ctx context.Context, draftID uuid.UUID) ([]models.Race, error)
	Heartbeat(ctx context.Context, draftID uuid.UUID, userID string) error
	RaceInfos(races []models.Race) []models.RaceInfo
}

// Dispatcher turns published draft events into websocket pushes. Every
// event goes to the whole draft; the active participant additionally gets
// their round options whenever a turn opens or is rerolled.
type Dispatcher struct {
	app   DraftApp
	cm    *ConnectionManager
	clock clockwork.Clock
}

func NewDispatcher(app DraftApp, cm *ConnectionManager, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{app: app, cm: cm, clock: clock}
}

// Handle processes one event envelope. It has the signature of
// outbox.HandlerFunc so it can be fed by either the JetStream consumer or
// an in-process publisher.
func (d *Dispatcher) Handle(ctx context.Context, env events.Envelope) error {
	draftID, err := uuid.Parse(env.DraftID)
	if err != nil {
		return fmt.Errorf("parse draft ID: %w", err)
	}

	if err := d.app.HandleEvent(ctx, env); err != nil {
		return err
	}

	wsEvent, err := envelopeToDraftEvent(env)
	if err != nil {
		log.Warn().Err(err).Str("event_id", env.EventID).Msg("skipping event")
		return nil
	}
	d.cm.BroadcastToDraft(draftID, wsEvent)

	switch EventType(env.EventType) {
	case EventTypeDraftStarted, EventTypeTurnAdvanced:
		return d.pushOptions(ctx, draftID, "")
	case EventTypeOptionsRerolled:
		var payload events.OptionsRerolledPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", env.EventType, err)
		}
		races := make([]models.Race, len(payload.Options))
		for i, o := range payload.Options {
			races[i] = models.Race(o)
		}
		return d.sendOptions(draftID, payload.TurnIndex, payload.UserID, races)
	}
	return nil
}

// Sync sends a newly connected user the current draft state, and their
// options if it is their turn.
func (d *Dispatcher) Sync(ctx context.Context, draftID uuid.UUID, userID string) error {
	view, err := d.app.GetDraft(ctx, draftID)
	if err != nil {
		return err
	}
	ev, err := newDraftEvent(uuid.NewString(), draftID.String(), EventTypeStateSnapshot, d.clock.Now(), StateSnapshotPayload{Draft: view})
	if err != nil {
		return err
	}
	d.cm.BroadcastToUser(draftID, userID, ev)
	return d.pushOptions(ctx, draftID, userID)
}

// pushOptions sends the current options to the active participant. When
// onlyUser is set, nothing is sent unless that user is the active one.
func (d *Dispatcher) pushOptions(ctx context.Context, draftID uuid.UUID, onlyUser string) error {
	view, err := d.app.GetDraft(ctx, draftID)
	if err != nil {
		return err
	}
	turn := view.ActiveTurn
	if turn == nil || (onlyUser != "" && turn.UserID != onlyUser) {
		return nil
	}
	options, err := d.app.GetOptions(ctx, draftID)
	if err != nil {
		return err
	}
	return d.sendOptions(draftID, view.Draft.CurrentTurnIndex, turn.UserID, options)
}

func (d *Dispatcher) sendOptions(draftID uuid.UUID, turnIndex int, userID string, options []models.Race) error {
	ev, err := newDraftEvent(uuid.NewString(), draftID.String(), EventTypeRoundOptions, d.clock.Now(), RoundOptionsPayload{
		DraftID:   draftID.String(),
		TurnIndex: turnIndex,
		UserID:    userID,
		Options:   d.app.RaceInfos(options),
	})
	if err != nil {
		return err
	}
	d.cm.BroadcastToUser(draftID, userID, ev)
	return nil
}
