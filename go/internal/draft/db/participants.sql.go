package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const listParticipantsByDraft = `-- name: ListParticipantsByDraft :many
SELECT id, draft_id, user_id, name, turn_position, selection, joined_at, last_seen_at
FROM participants
WHERE draft_id = $1
ORDER BY turn_position
`

func (q *Queries) ListParticipantsByDraft(ctx context.Context, draftID uuid.UUID) ([]Participant, error) {
	rows, err := q.db.QueryContext(ctx, listParticipantsByDraft, draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Participant
	for rows.Next() {
		var i Participant
		if err := rows.Scan(
			&i.ID,
			&i.DraftID,
			&i.UserID,
			&i.Name,
			&i.TurnPosition,
			&i.Selection,
			&i.JoinedAt,
			&i.LastSeenAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertParticipant = `-- name: UpsertParticipant :exec
INSERT INTO participants (id, draft_id, user_id, name, turn_position, selection, joined_at, last_seen_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    turn_position = EXCLUDED.turn_position,
    selection = EXCLUDED.selection,
    last_seen_at = EXCLUDED.last_seen_at
`

type UpsertParticipantParams struct {
	ID           uuid.UUID      `json:"id"`
	DraftID      uuid.UUID      `json:"draft_id"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	TurnPosition int32          `json:"turn_position"`
	Selection    sql.NullString `json:"selection"`
	JoinedAt     time.Time      `json:"joined_at"`
	LastSeenAt   time.Time      `json:"last_seen_at"`
}

func (q *Queries) UpsertParticipant(ctx context.Context, arg UpsertParticipantParams) error {
	_, err := q.db.ExecContext(ctx, upsertParticipant,
		arg.ID,
		arg.DraftID,
		arg.UserID,
		arg.Name,
		arg.TurnPosition,
		arg.Selection,
		arg.JoinedAt,
		arg.LastSeenAt,
	)
	return err
}

const touchParticipant = `-- name: TouchParticipant :execrows
UPDATE participants
SET last_seen_at = $3
WHERE draft_id = $1 AND user_id = $2
`

type TouchParticipantParams struct {
	DraftID    uuid.UUID `json:"draft_id"`
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (q *Queries) TouchParticipant(ctx context.Context, arg TouchParticipantParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, touchParticipant, arg.DraftID, arg.UserID, arg.LastSeenAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
