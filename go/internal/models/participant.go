package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is one drafter registered to a draft.
type Participant struct {
	ID           uuid.UUID `json:"id"`
	DraftID      uuid.UUID `json:"draft_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	TurnPosition int       `json:"turn_position"`
	Selection    *Race     `json:"selection,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// HasPicked reports whether the participant has a selection.
func (p *Participant) HasPicked() bool {
	return p.Selection != nil
}
