package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/racedraft/go/internal/draft/draft"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/models"
)

// DraftEvent represents the base structure for all events pushed to clients
type DraftEvent struct {
	ID        string          `json:"id"`        // Event UUID
	DraftID   string          `json:"draft_id"`  // Draft UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of draft event
type EventType string

const (
	EventTypeParticipantJoined EventType = events.TypeParticipantJoined
	EventTypeDraftStarted      EventType = events.TypeDraftStarted
	EventTypePickMade          EventType = events.TypePickMade
	EventTypeTurnAdvanced      EventType = events.TypeTurnAdvanced
	EventTypeOptionsRerolled   EventType = events.TypeOptionsRerolled
	EventTypeDraftCompleted    EventType = events.TypeDraftCompleted

	// Gateway-only events, sent to a single connection.
	EventTypeRoundOptions  EventType = "RoundOptions"
	EventTypeStateSnapshot EventType = "StateSnapshot"
)

// RoundOptionsPayload carries the races offered to the active participant.
type RoundOptionsPayload struct {
	DraftID   string            `json:"draft_id"`
	TurnIndex int               `json:"turn_index"`
	UserID    string            `json:"user_id"`
	Options   []models.RaceInfo `json:"options"`
}

// StateSnapshotPayload is sent once when a client connects.
type StateSnapshotPayload struct {
	Draft *draft.DraftView `json:"draft"`
}

// ClientMessage is a message sent by a client over its websocket.
type ClientMessage struct {
	Type string `json:"type"`
}

const ClientMessageHeartbeat = "heartbeat"

func envelopeToDraftEvent(env events.Envelope) (*DraftEvent, error) {
	switch t := EventType(env.EventType); t {
	case EventTypeParticipantJoined, EventTypeDraftStarted, EventTypePickMade,
		EventTypeTurnAdvanced, EventTypeOptionsRerolled, EventTypeDraftCompleted:
		data, err := roomPayload(t, env.Payload)
		if err != nil {
			return nil, err
		}
		return &DraftEvent{
			ID:        env.EventID,
			DraftID:   env.DraftID,
			Type:      t,
			Timestamp: env.Timestamp,
			Data:      data,
		}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}
}

// roomPayload returns the payload as broadcast to the whole draft. Rerolled
// options are private to the active participant and reach them as
// RoundOptions instead.
func roomPayload(t EventType, raw json.RawMessage) (json.RawMessage, error) {
	if t != EventTypeOptionsRerolled {
		return raw, nil
	}
	var p events.OptionsRerolledPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", t, err)
	}
	p.Options = nil
	return json.Marshal(p)
}

func newDraftEvent(id, draftID string, t EventType, at time.Time, payload any) (*DraftEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &DraftEvent{ID: id, DraftID: draftID, Type: t, Timestamp: at, Data: data}, nil
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *DraftEvent) (any, error) {
	var payload any
	switch event.Type {
	case EventTypeParticipantJoined:
		payload = &events.ParticipantJoinedPayload{}
	case EventTypeDraftStarted:
		payload = &events.DraftStartedPayload{}
	case EventTypePickMade:
		payload = &events.PickMadePayload{}
	case EventTypeTurnAdvanced:
		payload = &events.TurnAdvancedPayload{}
	case EventTypeOptionsRerolled:
		payload = &events.OptionsRerolledPayload{}
	case EventTypeDraftCompleted:
		payload = &events.DraftCompletedPayload{}
	case EventTypeRoundOptions:
		payload = &RoundOptionsPayload{}
	case EventTypeStateSnapshot:
		payload = &StateSnapshotPayload{}
	default:
		return nil, nil // Unknown event type
	}
	if err := json.Unmarshal(event.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
