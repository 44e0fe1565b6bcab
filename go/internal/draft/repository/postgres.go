package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mcdev12/racedraft/go/internal/draft/db"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/draft/outbox"
	"github.com/mcdev12/racedraft/go/internal/models"
	"github.com/mcdev12/racedraft/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// txAttempts bounds replays of a transaction that hit a serialization
// failure or deadlock.
const txAttempts = 3

// Postgres stores drafts in Postgres. Every mutation locks the draft row with
// SELECT ... FOR UPDATE, so concurrent writers to one draft run one at a time,
// and the outbox rows are written in the same transaction.
type Postgres struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewPostgres(conn *sql.DB, clock clockwork.Clock) *Postgres {
	return &Postgres{db: conn, clock: clock}
}

func newQueries(tx *sql.Tx) *db.Queries {
	return db.New(tx)
}

func (r *Postgres) CreateDraft(ctx context.Context, state *engine.State, evts []events.Event) error {
	err := sqlutil.Run(ctx, r.db, newQueries, func(q *db.Queries) error {
		d := state.Draft
		if err := q.CreateDraft(ctx, db.CreateDraftParams{
			ID:               d.ID,
			InitiatorID:      d.InitiatorID,
			Status:           string(d.Status),
			ExcludedRaces:    racesToArray(d.ExcludedRaces),
			ParticipantSlots: int32(d.ParticipantSlots),
			CreatedAt:        d.CreatedAt,
		}); err != nil {
			return fmt.Errorf("failed to insert draft: %w", err)
		}
		for _, p := range state.Participants {
			if err := q.UpsertParticipant(ctx, participantParams(p)); err != nil {
				return fmt.Errorf("failed to insert participant: %w", err)
			}
		}
		return r.insertEvents(ctx, q, evts)
	})
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

func (r *Postgres) GetState(ctx context.Context, id uuid.UUID) (*engine.State, error) {
	q := db.New(r.db)
	row, err := q.GetDraft(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, id)
	}
	return r.loadState(ctx, q, row)
}

func (r *Postgres) UpdateState(ctx context.Context, id uuid.UUID, fn func(*engine.State) ([]events.Event, error)) (*engine.State, error) {
	var committed *engine.State
	err := sqlutil.RunWithRetry(ctx, r.db, txAttempts, newQueries, func(q *db.Queries) error {
		row, err := q.GetDraftForUpdate(ctx, id)
		if err != nil {
			return wrapNotFound(err, id)
		}
		state, err := r.loadState(ctx, q, row)
		if err != nil {
			return err
		}
		before := state.Clone()

		evts, err := fn(state)
		if err != nil {
			return err
		}

		if err := r.writeState(ctx, q, before, state); err != nil {
			return err
		}
		if err := r.insertEvents(ctx, q, evts); err != nil {
			return err
		}
		committed = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

func (r *Postgres) TouchParticipant(ctx context.Context, draftID uuid.UUID, userID string, at time.Time) error {
	n, err := db.New(r.db).TouchParticipant(ctx, db.TouchParticipantParams{
		DraftID:    draftID,
		UserID:     userID,
		LastSeenAt: at,
	})
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: participant not found", engine.ErrNotFound)
	}
	return nil
}

func (r *Postgres) loadState(ctx context.Context, q *db.Queries, row db.Draft) (*engine.State, error) {
	rows, err := q.ListParticipantsByDraft(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	state := &engine.State{Draft: draftFromRow(row)}
	for _, p := range rows {
		state.Participants = append(state.Participants, participantFromRow(p))
	}
	return state, nil
}

// writeState persists what changed between before and after.
func (r *Postgres) writeState(ctx context.Context, q *db.Queries, before, after *engine.State) error {
	result, err := resultSnapshot(after)
	if err != nil {
		return err
	}
	if err := q.UpdateDraftState(ctx, db.UpdateDraftStateParams{
		ID:               after.Draft.ID,
		Status:           string(after.Draft.Status),
		CurrentTurnIndex: int32(after.Draft.CurrentTurnIndex),
		StartedAt:        sqlutil.ToNullTime(after.Draft.StartedAt),
		CompletedAt:      sqlutil.ToNullTime(after.Draft.CompletedAt),
		Result:           result,
	}); err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}

	old := make(map[uuid.UUID]models.Participant, len(before.Participants))
	for _, p := range before.Participants {
		old[p.ID] = p
	}
	for _, p := range after.Participants {
		if prev, ok := old[p.ID]; ok && participantEqual(prev, p) {
			continue
		}
		if err := q.UpsertParticipant(ctx, participantParams(p)); err != nil {
			return fmt.Errorf("failed to write participant: %w", err)
		}
	}
	return nil
}

func (r *Postgres) insertEvents(ctx context.Context, q *db.Queries, evts []events.Event) error {
	now := r.clock.Now()
	for _, e := range evts {
		if err := q.InsertOutboxEvent(ctx, db.InsertOutboxEventParams{
			ID:        uuid.New(),
			DraftID:   e.DraftID,
			EventType: e.Type,
			Payload:   e.Payload,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to insert %s outbox event: %w", e.Type, err)
		}
	}
	return nil
}

func (r *Postgres) FetchUnsentOutbox(ctx context.Context, limit int32) ([]outbox.OutboxEvent, error) {
	rows, err := db.New(r.db).FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	out := make([]outbox.OutboxEvent, len(rows))
	for i, row := range rows {
		out[i] = outboxFromRow(row)
	}
	return out, nil
}

func (r *Postgres) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if err := db.New(r.db).MarkOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Postgres) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*outbox.OutboxEvent, error) {
	row, err := db.New(r.db).FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outbox.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	ev := outboxFromRow(row)
	return &ev, nil
}

func (r *Postgres) CountUnsentOutbox(ctx context.Context) (int64, error) {
	n, err := db.New(r.db).CountUnsentOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

func wrapNotFound(err error, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: draft %s", engine.ErrNotFound, id)
	}
	return fmt.Errorf("failed to get draft: %w", err)
}

func resultSnapshot(s *engine.State) (pqtype.NullRawMessage, error) {
	if s.Draft.Status != models.DraftStatusComplete {
		return pqtype.NullRawMessage{}, nil
	}
	result, err := engine.Result(s)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

func draftFromRow(row db.Draft) models.Draft {
	excluded := make([]models.Race, len(row.ExcludedRaces))
	for i, r := range row.ExcludedRaces {
		excluded[i] = models.Race(r)
	}
	return models.Draft{
		ID:               row.ID,
		InitiatorID:      row.InitiatorID,
		Status:           models.DraftStatus(row.Status),
		ExcludedRaces:    excluded,
		ParticipantSlots: int(row.ParticipantSlots),
		CurrentTurnIndex: int(row.CurrentTurnIndex),
		CreatedAt:        row.CreatedAt,
		StartedAt:        sqlutil.FromNullTime(row.StartedAt),
		CompletedAt:      sqlutil.FromNullTime(row.CompletedAt),
	}
}

func participantFromRow(row db.Participant) models.Participant {
	p := models.Participant{
		ID:           row.ID,
		DraftID:      row.DraftID,
		UserID:       row.UserID,
		Name:         row.Name,
		TurnPosition: int(row.TurnPosition),
		JoinedAt:     row.JoinedAt,
		LastSeenAt:   row.LastSeenAt,
	}
	if s := sqlutil.FromSqlStringPtr(row.Selection); s != nil {
		r := models.Race(*s)
		p.Selection = &r
	}
	return p
}

func participantParams(p models.Participant) db.UpsertParticipantParams {
	var selection *string
	if p.Selection != nil {
		s := string(*p.Selection)
		selection = &s
	}
	return db.UpsertParticipantParams{
		ID:           p.ID,
		DraftID:      p.DraftID,
		UserID:       p.UserID,
		Name:         p.Name,
		TurnPosition: int32(p.TurnPosition),
		Selection:    sqlutil.ToSqlString(selection),
		JoinedAt:     p.JoinedAt,
		LastSeenAt:   p.LastSeenAt,
	}
}

func participantEqual(a, b models.Participant) bool {
	sameSelection := (a.Selection == nil) == (b.Selection == nil) &&
		(a.Selection == nil || *a.Selection == *b.Selection)
	return sameSelection &&
		a.Name == b.Name &&
		a.TurnPosition == b.TurnPosition &&
		a.LastSeenAt.Equal(b.LastSeenAt)
}

func outboxFromRow(row db.DraftOutbox) outbox.OutboxEvent {
	return outbox.OutboxEvent{
		ID:        row.ID,
		DraftID:   row.DraftID,
		EventType: row.EventType,
		Payload:   row.Payload,
		CreatedAt: row.CreatedAt,
		SentAt:    sqlutil.FromNullTime(row.SentAt),
	}
}

func racesToArray(races []models.Race) pq.StringArray {
	out := make(pq.StringArray, len(races))
	for i, r := range races {
		out[i] = string(r)
	}
	return out
}
