package db

import (
	"context"
)

const upsertRace = `-- name: UpsertRace :exec
INSERT INTO races (name, emoji, blurb)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET emoji = EXCLUDED.emoji, blurb = EXCLUDED.blurb
`

type UpsertRaceParams struct {
	Name  string
	Emoji string
	Blurb string
}

func (q *Queries) UpsertRace(ctx context.Context, arg UpsertRaceParams) error {
	_, err := q.db.ExecContext(ctx, upsertRace, arg.Name, arg.Emoji, arg.Blurb)
	return err
}

const countRaces = `-- name: CountRaces :one
SELECT COUNT(*) FROM races
`

func (q *Queries) CountRaces(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRaces)
	var count int64
	err := row.Scan(&count)
	return count, err
}
