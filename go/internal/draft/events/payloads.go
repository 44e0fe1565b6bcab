package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event payload types that are shared between the draft, outbox and gateway packages

const (
	TypeParticipantJoined = "ParticipantJoined"
	TypeDraftStarted      = "DraftStarted"
	TypePickMade          = "PickMade"
	TypeTurnAdvanced      = "TurnAdvanced"
	TypeOptionsRerolled   = "OptionsRerolled"
	TypeDraftCompleted    = "DraftCompleted"
)

// Event is a domain event waiting to be written to the outbox alongside the
// state change that produced it.
type Event struct {
	DraftID uuid.UUID
	Type    string
	Payload json.RawMessage
}

// New marshals payload into an Event.
func New(draftID uuid.UUID, eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{DraftID: draftID, Type: eventType, Payload: data}, nil
}

// Envelope is the message published on the event bus.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	DraftID   string          `json:"draftId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// TurnSlot is one entry of the turn order.
type TurnSlot struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	TurnPosition int    `json:"turn_position"`
}

// ParticipantJoinedPayload is the payload for a ParticipantJoined event
type ParticipantJoinedPayload struct {
	DraftID      string    `json:"draft_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	TurnPosition int       `json:"turn_position"`
	JoinedAt     time.Time `json:"joined_at"`
}

// DraftStartedPayload is the payload for a DraftStarted event
type DraftStartedPayload struct {
	DraftID           string     `json:"draft_id"`
	StartedAt         time.Time  `json:"started_at"`
	TotalParticipants int        `json:"total_participants"`
	TurnOrder         []TurnSlot `json:"turn_order"`
}

// PickMadePayload is the payload for a PickMade event
type PickMadePayload struct {
	DraftID      string    `json:"draft_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Race         string    `json:"race"`
	TurnPosition int       `json:"turn_position"`
	MadeAt       time.Time `json:"made_at"`
}

// TurnAdvancedPayload is the payload for a TurnAdvanced event
type TurnAdvancedPayload struct {
	DraftID    string    `json:"draft_id"`
	TurnIndex  int       `json:"turn_index"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	AdvancedAt time.Time `json:"advanced_at"`
}

// OptionsRerolledPayload is the payload for an OptionsRerolled event
type OptionsRerolledPayload struct {
	DraftID   string   `json:"draft_id"`
	TurnIndex int      `json:"turn_index"`
	UserID    string   `json:"user_id"`
	Options   []string `json:"options,omitempty"`
}

// DraftCompletedPayload is the payload for a DraftCompleted event
type DraftCompletedPayload struct {
	DraftID     string    `json:"draft_id"`
	CompletedAt time.Time `json:"completed_at"`
	Duration    string    `json:"duration"`
	TotalPicks  int       `json:"total_picks"`
}
