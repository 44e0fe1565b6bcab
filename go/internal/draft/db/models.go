package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

type Draft struct {
	ID               uuid.UUID             `json:"id"`
	InitiatorID      string                `json:"initiator_id"`
	Status           string                `json:"status"`
	ExcludedRaces    pq.StringArray        `json:"excluded_races"`
	ParticipantSlots int32                 `json:"participant_slots"`
	CurrentTurnIndex int32                 `json:"current_turn_index"`
	CreatedAt        time.Time             `json:"created_at"`
	StartedAt        sql.NullTime          `json:"started_at"`
	CompletedAt      sql.NullTime          `json:"completed_at"`
	Result           pqtype.NullRawMessage `json:"result"`
}

type Participant struct {
	ID           uuid.UUID      `json:"id"`
	DraftID      uuid.UUID      `json:"draft_id"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	TurnPosition int32          `json:"turn_position"`
	Selection    sql.NullString `json:"selection"`
	JoinedAt     time.Time      `json:"joined_at"`
	LastSeenAt   time.Time      `json:"last_seen_at"`
}

type DraftOutbox struct {
	ID        uuid.UUID       `json:"id"`
	DraftID   uuid.UUID       `json:"draft_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    sql.NullTime    `json:"sent_at"`
}
