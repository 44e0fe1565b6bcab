package models

import (
	"github.com/google/uuid"
	"time"
)

// DraftStatus defines the status of a draft.
type DraftStatus string

const (
	DraftStatusPending  DraftStatus = "PENDING"
	DraftStatusActive   DraftStatus = "ACTIVE"
	DraftStatusComplete DraftStatus = "COMPLETE"
)

// CanTransitionTo reports whether the status may move to next.
// Statuses only ever move forward.
func (s DraftStatus) CanTransitionTo(next DraftStatus) bool {
	switch s {
	case DraftStatusPending:
		return next == DraftStatusActive
	case DraftStatusActive:
		return next == DraftStatusComplete
	default:
		return false
	}
}

// Draft represents one drafting session.
type Draft struct {
	ID               uuid.UUID   `json:"id"`
	InitiatorID      string      `json:"initiator_id"`
	Status           DraftStatus `json:"status"`
	ExcludedRaces    []Race      `json:"excluded_races"`
	ParticipantSlots int         `json:"participant_slots"`
	CurrentTurnIndex int         `json:"current_turn_index"`
	CreatedAt        time.Time   `json:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// IsExcluded reports whether r is in the draft's exclusion set.
func (d *Draft) IsExcluded(r Race) bool {
	for _, ex := range d.ExcludedRaces {
		if ex == r {
			return true
		}
	}
	return false
}
