package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
	"time"
)

const createDraft = `-- name: CreateDraft :exec
INSERT INTO drafts (id, initiator_id, status, excluded_races, participant_slots, current_turn_index, created_at)
VALUES ($1, $2, $3, $4, $5, 0, $6)
`

type CreateDraftParams struct {
	ID               uuid.UUID      `json:"id"`
	InitiatorID      string         `json:"initiator_id"`
	Status           string         `json:"status"`
	ExcludedRaces    pq.StringArray `json:"excluded_races"`
	ParticipantSlots int32          `json:"participant_slots"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (q *Queries) CreateDraft(ctx context.Context, arg CreateDraftParams) error {
	_, err := q.db.ExecContext(ctx, createDraft,
		arg.ID,
		arg.InitiatorID,
		arg.Status,
		arg.ExcludedRaces,
		arg.ParticipantSlots,
		arg.CreatedAt,
	)
	return err
}

const getDraft = `-- name: GetDraft :one
SELECT id, initiator_id, status, excluded_races, participant_slots, current_turn_index, created_at, started_at, completed_at, result
FROM drafts
WHERE id = $1
`

func (q *Queries) GetDraft(ctx context.Context, id uuid.UUID) (Draft, error) {
	row := q.db.QueryRowContext(ctx, getDraft, id)
	return scanDraft(row)
}

const getDraftForUpdate = `-- name: GetDraftForUpdate :one
SELECT id, initiator_id, status, excluded_races, participant_slots, current_turn_index, created_at, started_at, completed_at, result
FROM drafts
WHERE id = $1
FOR UPDATE
`

// GetDraftForUpdate locks the draft row until the surrounding transaction ends.
func (q *Queries) GetDraftForUpdate(ctx context.Context, id uuid.UUID) (Draft, error) {
	row := q.db.QueryRowContext(ctx, getDraftForUpdate, id)
	return scanDraft(row)
}

func scanDraft(row *sql.Row) (Draft, error) {
	var i Draft
	err := row.Scan(
		&i.ID,
		&i.InitiatorID,
		&i.Status,
		&i.ExcludedRaces,
		&i.ParticipantSlots,
		&i.CurrentTurnIndex,
		&i.CreatedAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.Result,
	)
	return i, err
}

const updateDraftState = `-- name: UpdateDraftState :exec
UPDATE drafts
SET status = $2,
    current_turn_index = $3,
    started_at = $4,
    completed_at = $5,
    result = $6
WHERE id = $1
`

type UpdateDraftStateParams struct {
	ID               uuid.UUID             `json:"id"`
	Status           string                `json:"status"`
	CurrentTurnIndex int32                 `json:"current_turn_index"`
	StartedAt        sql.NullTime          `json:"started_at"`
	CompletedAt      sql.NullTime          `json:"completed_at"`
	Result           pqtype.NullRawMessage `json:"result"`
}

func (q *Queries) UpdateDraftState(ctx context.Context, arg UpdateDraftStateParams) error {
	_, err := q.db.ExecContext(ctx, updateDraftState,
		arg.ID,
		arg.Status,
		arg.CurrentTurnIndex,
		arg.StartedAt,
		arg.CompletedAt,
		arg.Result,
	)
	return err
}
