package draft

import (
	"github.com/mcdev12/racedraft/go/internal/models"
)

// CreateDraftParams describes a new draft room.
type CreateDraftParams struct {
	InitiatorID      string        `json:"initiator_id"`
	InitiatorName    string        `json:"initiator_name"`
	ExcludedRaces    []models.Race `json:"excluded_races"`
	ParticipantSlots int           `json:"participant_slots"`
}

// ActiveTurn identifies the participant who may pick now.
type ActiveTurn struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	TurnPosition int    `json:"turn_position"`
}

// DraftView is a draft with its participants in turn order.
type DraftView struct {
	Draft        models.Draft         `json:"draft"`
	Participants []models.Participant `json:"participants"`
	ActiveTurn   *ActiveTurn          `json:"active_turn,omitempty"`
}

// Config holds the tunables of the draft app.
type Config struct {
	MaxParticipants int
	OptionsPerTurn  int
}

func DefaultConfig() Config {
	return Config{
		MaxParticipants: 12,
		OptionsPerTurn:  3,
	}
}
