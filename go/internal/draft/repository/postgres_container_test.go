package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/draft/db"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/models"
	"github.com/mcdev12/racedraft/go/internal/sqlutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway Postgres with the schema applied. It skips
// the test when Docker is not available.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("racedraft"),
		postgres.WithUsername("racedraft"),
		postgres.WithPassword("racedraft"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.PingContext(ctx))
	require.NoError(t, db.Migrate(ctx, conn))
	return conn
}

func pendingState(users ...string) *engine.State {
	s := activeState(users...)
	s.Draft.Status = models.DraftStatusPending
	s.Draft.StartedAt = nil
	return s
}

func TestPostgresRepository(t *testing.T) {
	conn := startPostgres(t)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	repo := NewPostgres(conn, clock)
	ctx := context.Background()

	t.Run("ConcurrentPicksForSameRace", func(t *testing.T) {
		cat := catalog.New("X", "Y")
		for round := 0; round < 10; round++ {
			s := activeState("A", "B")
			require.NoError(t, repo.CreateDraft(ctx, s, nil))

			var wg sync.WaitGroup
			var aErr, bErr error
			start := make(chan struct{})
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				_, aErr = repo.UpdateState(ctx, s.Draft.ID, pickFn(cat, "A", "X", clock))
			}()
			go func() {
				defer wg.Done()
				<-start
				for {
					_, bErr = repo.UpdateState(ctx, s.Draft.ID, pickFn(cat, "B", "X", clock))
					if !errors.Is(bErr, engine.ErrOutOfTurn) {
						return
					}
				}
			}()
			close(start)
			wg.Wait()

			require.NoError(t, aErr)
			require.ErrorIs(t, bErr, engine.ErrUnavailable)

			final, err := repo.GetState(ctx, s.Draft.ID)
			require.NoError(t, err)
			require.NotNil(t, final.Participant("A").Selection)
			assert.Equal(t, models.Race("X"), *final.Participant("A").Selection)
			assert.Nil(t, final.Participant("B").Selection)
			assert.Equal(t, 1, final.Draft.CurrentTurnIndex)
		}
	})

	t.Run("DoubleSubmitOfFinalPick", func(t *testing.T) {
		cat := catalog.New("X", "Y")
		s := activeState("A", "B")
		s.Participants[0].Selection = ptr(models.Race("X"))
		s.Draft.CurrentTurnIndex = 1
		require.NoError(t, repo.CreateDraft(ctx, s, nil))

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = repo.UpdateState(ctx, s.Draft.ID, pickFn(cat, "B", "Y", clock))
			}()
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, engine.ErrInvalidState)
		}
		assert.Equal(t, 1, ok)

		final, err := repo.GetState(ctx, s.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusComplete, final.Draft.Status)
		require.NotNil(t, final.Draft.CompletedAt)
	})

	t.Run("SelectionIndexRejectsDuplicateRace", func(t *testing.T) {
		s := activeState("A", "B")
		s.Participants[0].Selection = ptr(models.Race("X"))
		require.NoError(t, repo.CreateDraft(ctx, s, nil))

		b := s.Participants[1]
		b.Selection = ptr(models.Race("X"))
		err := sqlutil.Run(ctx, conn, newQueries, func(q *db.Queries) error {
			return q.UpsertParticipant(ctx, participantParams(b))
		})
		var pqErr *pq.Error
		require.ErrorAs(t, err, &pqErr)
		assert.Equal(t, pq.ErrorCode("23505"), pqErr.Code)
	})

	t.Run("StartReshuffleRoundTrip", func(t *testing.T) {
		cat := catalog.New("X", "Y", "Z", "W", "V")
		s := pendingState("host", "b", "c", "d", "e")
		require.NoError(t, repo.CreateDraft(ctx, s, nil))

		committed, err := repo.UpdateState(ctx, s.Draft.ID, func(st *engine.State) ([]events.Event, error) {
			if _, err := engine.Start(cat, st, "host", engine.NewSeededSource(7), clock.Now()); err != nil {
				return nil, err
			}
			ev, err := events.New(st.Draft.ID, events.TypeDraftStarted, events.DraftStartedPayload{DraftID: st.Draft.ID.String()})
			if err != nil {
				return nil, err
			}
			return []events.Event{ev}, nil
		})
		require.NoError(t, err)

		loaded, err := repo.GetState(ctx, s.Draft.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftStatusActive, loaded.Draft.Status)
		require.NotNil(t, loaded.Draft.StartedAt)
		assert.True(t, loaded.Draft.StartedAt.Equal(clock.Now()))

		want := committed.Ordered()
		got := loaded.Ordered()
		require.Len(t, got, len(want))
		assert.Equal(t, "host", got[0].UserID)
		seen := map[int]bool{}
		for i := range want {
			assert.Equal(t, want[i].UserID, got[i].UserID)
			assert.Equal(t, i, got[i].TurnPosition)
			seen[got[i].TurnPosition] = true
		}
		assert.Len(t, seen, len(want))

		_, err = repo.UpdateState(ctx, s.Draft.ID, func(st *engine.State) ([]events.Event, error) {
			_, err := engine.Start(cat, st, "host", engine.NewSeededSource(7), clock.Now())
			return nil, err
		})
		assert.ErrorIs(t, err, engine.ErrInvalidState)
	})

	t.Run("OutboxLifecycle", func(t *testing.T) {
		s := activeState("A", "B")
		var evts []events.Event
		for _, typ := range []string{events.TypeDraftStarted, events.TypePickMade} {
			ev, err := events.New(s.Draft.ID, typ, map[string]string{"draft_id": s.Draft.ID.String()})
			require.NoError(t, err)
			evts = append(evts, ev)
		}
		before, err := repo.CountUnsentOutbox(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.CreateDraft(ctx, s, evts))

		after, err := repo.CountUnsentOutbox(ctx)
		require.NoError(t, err)
		assert.Equal(t, before+2, after)

		unsent, err := repo.FetchUnsentOutbox(ctx, 100)
		require.NoError(t, err)
		var mine []string
		for _, row := range unsent {
			if row.DraftID == s.Draft.ID {
				mine = append(mine, row.EventType)
				require.NoError(t, repo.MarkOutboxSent(ctx, row.ID))
				_, err := repo.FetchOutboxByID(ctx, row.ID)
				assert.Error(t, err)
			}
		}
		assert.ElementsMatch(t, []string{events.TypeDraftStarted, events.TypePickMade}, mine)
	})

	t.Run("UnknownDraft", func(t *testing.T) {
		_, err := repo.GetState(ctx, activeState("A").Draft.ID)
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})
}

func ptr[T any](v T) *T { return &v }
