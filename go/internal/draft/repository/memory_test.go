package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/draft/outbox"
	"github.com/mcdev12/racedraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeState(users ...string) *engine.State {
	id := uuid.New()
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	s := &engine.State{Draft: models.Draft{
		ID:               id,
		InitiatorID:      users[0],
		Status:           models.DraftStatusActive,
		ParticipantSlots: len(users),
		CreatedAt:        now,
		StartedAt:        &now,
	}}
	for i, u := range users {
		s.Participants = append(s.Participants, models.Participant{
			ID: uuid.New(), DraftID: id, UserID: u, Name: u, TurnPosition: i,
			JoinedAt: now, LastSeenAt: now,
		})
	}
	return s
}

func pickFn(cat *catalog.Catalog, user string, race models.Race, clock clockwork.Clock) func(*engine.State) ([]events.Event, error) {
	return func(s *engine.State) ([]events.Event, error) {
		if _, err := engine.CommitPick(cat, s, user, race, clock.Now()); err != nil {
			return nil, err
		}
		ev, err := events.New(s.Draft.ID, events.TypePickMade, events.PickMadePayload{UserID: user, Race: string(race)})
		if err != nil {
			return nil, err
		}
		return []events.Event{ev}, nil
	}
}

func TestMemoryConcurrentPicksForSameRace(t *testing.T) {
	cat := catalog.New("X", "Y")
	clock := clockwork.NewFakeClock()

	for round := 0; round < 50; round++ {
		repo := NewMemory(clock)
		s := activeState("A", "B")
		require.NoError(t, repo.CreateDraft(context.Background(), s, nil))

		var wg sync.WaitGroup
		var aErr, bErr error
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, aErr = repo.UpdateState(context.Background(), s.Draft.ID, pickFn(cat, "A", "X", clock))
		}()
		go func() {
			defer wg.Done()
			<-start
			for {
				_, bErr = repo.UpdateState(context.Background(), s.Draft.ID, pickFn(cat, "B", "X", clock))
				if !errors.Is(bErr, engine.ErrOutOfTurn) {
					return
				}
			}
		}()
		close(start)
		wg.Wait()

		require.NoError(t, aErr)
		require.ErrorIs(t, bErr, engine.ErrUnavailable)

		final, err := repo.GetState(context.Background(), s.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, models.Race("X"), *final.Participant("A").Selection)
		assert.Nil(t, final.Participant("B").Selection)
		assert.Equal(t, 1, final.Draft.CurrentTurnIndex)

		pending, err := repo.CountUnsentOutbox(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 1, pending, "only the successful pick writes an event")
	}
}

func TestMemoryDoubleSubmitHasSingleWinner(t *testing.T) {
	cat := catalog.Default()
	clock := clockwork.NewFakeClock()
	repo := NewMemory(clock)
	s := activeState("A", "B", "C")
	require.NoError(t, repo.CreateDraft(context.Background(), s, nil))

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.UpdateState(context.Background(), s.Draft.ID, pickFn(cat, "A", "Orcs", clock))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, engine.ErrOutOfTurn)
	}
	assert.Equal(t, 1, successes)
}

func TestMemoryFailedUpdateLeavesStateUntouched(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewMemory(clock)
	s := activeState("A", "B")
	require.NoError(t, repo.CreateDraft(context.Background(), s, nil))

	_, err := repo.UpdateState(context.Background(), s.Draft.ID, func(st *engine.State) ([]events.Event, error) {
		st.Draft.CurrentTurnIndex = 99
		return nil, errors.New("validation failed")
	})
	require.Error(t, err)

	got, err := repo.GetState(context.Background(), s.Draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Draft.CurrentTurnIndex)
}

func TestMemoryNotFound(t *testing.T) {
	repo := NewMemory(clockwork.NewFakeClock())
	_, err := repo.GetState(context.Background(), uuid.New())
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = repo.UpdateState(context.Background(), uuid.New(), func(*engine.State) ([]events.Event, error) { return nil, nil })
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestMemoryTouchParticipant(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewMemory(clock)
	s := activeState("A", "B")
	require.NoError(t, repo.CreateDraft(context.Background(), s, nil))

	later := clock.Now().Add(time.Minute)
	require.NoError(t, repo.TouchParticipant(context.Background(), s.Draft.ID, "B", later))
	got, err := repo.GetState(context.Background(), s.Draft.ID)
	require.NoError(t, err)
	assert.True(t, got.Participant("B").LastSeenAt.Equal(later))

	err = repo.TouchParticipant(context.Background(), s.Draft.ID, "nobody", later)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestMemoryOutboxLifecycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewMemory(clock)
	s := activeState("A", "B")
	ev, err := events.New(s.Draft.ID, events.TypeDraftStarted, events.DraftStartedPayload{DraftID: s.Draft.ID.String()})
	require.NoError(t, err)
	require.NoError(t, repo.CreateDraft(context.Background(), s, []events.Event{ev}))

	var id string
	select {
	case id = <-repo.Notify():
	default:
		t.Fatal("expected a notification")
	}

	parsed := uuid.MustParse(id)
	row, err := repo.FetchOutboxByID(context.Background(), parsed)
	require.NoError(t, err)
	assert.Equal(t, events.TypeDraftStarted, row.EventType)

	require.NoError(t, repo.MarkOutboxSent(context.Background(), parsed))
	unsent, err := repo.FetchUnsentOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, unsent)
	assert.Empty(t, repo.outbox, "sent rows are not retained")

	_, err = repo.FetchOutboxByID(context.Background(), parsed)
	assert.ErrorIs(t, err, outbox.ErrEventNotFound)
	assert.Error(t, repo.MarkOutboxSent(context.Background(), parsed))

	require.NoError(t, repo.Close())
	_, open := <-repo.Notify()
	assert.False(t, open)
}
