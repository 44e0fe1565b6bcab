package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newState builds a draft whose participants hold positions in the order given.
func newState(status models.DraftStatus, users ...string) *State {
	draftID := uuid.New()
	s := &State{
		Draft: models.Draft{
			ID:               draftID,
			InitiatorID:      users[0],
			Status:           status,
			ParticipantSlots: len(users),
			CreatedAt:        now,
		},
	}
	for i, u := range users {
		s.Participants = append(s.Participants, models.Participant{
			ID:           uuid.New(),
			DraftID:      draftID,
			UserID:       u,
			Name:         "Player " + u,
			TurnPosition: i,
			JoinedAt:     now,
			LastSeenAt:   now,
		})
	}
	return s
}

func selection(s *State, user string) models.Race {
	p := s.Participant(user)
	if p == nil || p.Selection == nil {
		return ""
	}
	return *p.Selection
}

func TestTwoParticipantScenario(t *testing.T) {
	cat := catalog.New("X", "Y", "Z")
	s := newState(models.DraftStatusActive, "A", "B")

	events, err := CommitPick(cat, s, "A", "X", now)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Draft.CurrentTurnIndex)
	assert.Equal(t, models.Race("X"), selection(s, "A"))
	assert.True(t, HasEvent(events, EvtPickMade))
	assert.True(t, HasEvent(events, EvtTurnAdvanced))

	_, err = CommitPick(cat, s, "A", "Y", now)
	assert.ErrorIs(t, err, ErrOutOfTurn)

	_, err = CommitPick(cat, s, "B", "X", now)
	assert.ErrorIs(t, err, ErrUnavailable)

	events, err = CommitPick(cat, s, "B", "Y", now)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusComplete, s.Draft.Status)
	assert.Equal(t, 2, s.Draft.CurrentTurnIndex)
	assert.True(t, HasEvent(events, EvtDraftCompleted))
	assert.False(t, HasEvent(events, EvtTurnAdvanced))
	require.NotNil(t, s.Draft.CompletedAt)
}

func TestTerminationAfterEveryParticipantPicks(t *testing.T) {
	cat := catalog.Default()
	s := newState(models.DraftStatusActive, "p1", "p2", "p3", "p4")
	src := NewSeededSource(7)

	for i := 0; i < 4; i++ {
		require.Equal(t, models.DraftStatusActive, s.Draft.Status)
		active := ActiveParticipant(s)
		require.NotNil(t, active)
		assert.Equal(t, i, active.TurnPosition)

		options := Sample(Eligible(cat, s), OptionsPerTurn, src)
		require.Len(t, options, OptionsPerTurn)
		_, err := CommitPick(cat, s, active.UserID, options[0], now)
		require.NoError(t, err)
	}

	assert.Equal(t, models.DraftStatusComplete, s.Draft.Status)
	assert.Equal(t, 4, s.Draft.CurrentTurnIndex)
	assert.Nil(t, ActiveParticipant(s))

	seen := map[models.Race]bool{}
	for _, p := range s.Participants {
		require.NotNil(t, p.Selection)
		assert.False(t, seen[*p.Selection], "race %s drafted twice", *p.Selection)
		seen[*p.Selection] = true
	}
	assert.Len(t, Eligible(cat, s), 20)
}

func TestCommitPickValidationOrder(t *testing.T) {
	cat := catalog.New("X", "Y", "Z")

	tests := []struct {
		name    string
		setup   func() *State
		user    string
		race    models.Race
		wantErr error
	}{
		{
			name:    "pending draft",
			setup:   func() *State { return newState(models.DraftStatusPending, "A", "B") },
			user:    "A",
			race:    "X",
			wantErr: ErrInvalidState,
		},
		{
			name: "complete draft",
			setup: func() *State {
				s := newState(models.DraftStatusComplete, "A", "B")
				s.Draft.CurrentTurnIndex = 2
				return s
			},
			user:    "A",
			race:    "X",
			wantErr: ErrInvalidState,
		},
		{
			name:    "unknown participant",
			setup:   func() *State { return newState(models.DraftStatusActive, "A", "B") },
			user:    "C",
			race:    "X",
			wantErr: ErrNotFound,
		},
		{
			name: "out of turn wins over unavailable",
			setup: func() *State {
				s := newState(models.DraftStatusActive, "A", "B")
				s.Draft.ExcludedRaces = []models.Race{"X"}
				return s
			},
			user:    "B",
			race:    "X",
			wantErr: ErrOutOfTurn,
		},
		{
			name: "already picked",
			setup: func() *State {
				s := newState(models.DraftStatusActive, "A", "B")
				r := models.Race("Z")
				s.Participants[0].Selection = &r
				return s
			},
			user:    "A",
			race:    "X",
			wantErr: ErrAlreadyPicked,
		},
		{
			name: "excluded race",
			setup: func() *State {
				s := newState(models.DraftStatusActive, "A", "B")
				s.Draft.ExcludedRaces = []models.Race{"Y"}
				return s
			},
			user:    "A",
			race:    "Y",
			wantErr: ErrUnavailable,
		},
		{
			name:    "race not in catalog",
			setup:   func() *State { return newState(models.DraftStatusActive, "A", "B") },
			user:    "A",
			race:    "Squigs",
			wantErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.setup()
			before := s.Clone()

			events, err := CommitPick(cat, s, tt.user, tt.race, now)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, events)
			assert.Equal(t, before, s, "state must be unchanged on failure")
		})
	}
}

func TestExcludedRacesAreNeverEligible(t *testing.T) {
	cat := catalog.New("X", "Y", "Z")
	s := newState(models.DraftStatusActive, "A", "B")
	s.Draft.ExcludedRaces = []models.Race{"Y"}

	assert.Equal(t, []models.Race{"X", "Z"}, Eligible(cat, s))
	assert.False(t, IsEligible(cat, s, "Y"))

	_, err := CommitPick(cat, s, "A", "Z", now)
	require.NoError(t, err)
	assert.Equal(t, []models.Race{"X"}, Eligible(cat, s))
}

func TestEligibleMatchesIncrementalRemoval(t *testing.T) {
	cat := catalog.Default()
	users := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	s := newState(models.DraftStatusActive, users...)
	s.Draft.ExcludedRaces = []models.Race{"Goblins", "Ogres"}
	src := NewSeededSource(99)

	cached := Eligible(cat, s)
	for s.Draft.Status == models.DraftStatusActive {
		options := Sample(cached, OptionsPerTurn, src)
		pick := options[len(options)-1]
		_, err := CommitPick(cat, s, ActiveParticipant(s).UserID, pick, now)
		require.NoError(t, err)

		next := cached[:0:0]
		for _, r := range cached {
			if r != pick {
				next = append(next, r)
			}
		}
		cached = next
		assert.Equal(t, cached, Eligible(cat, s))
	}
}

func TestPoolExhaustionEndsDraftEarly(t *testing.T) {
	cat := catalog.New("X", "Y")
	s := newState(models.DraftStatusActive, "A", "B", "C")

	_, err := CommitPick(cat, s, "A", "X", now)
	require.NoError(t, err)
	events, err := CommitPick(cat, s, "B", "Y", now)
	require.NoError(t, err)

	assert.True(t, HasEvent(events, EvtDraftCompleted))
	assert.Equal(t, models.DraftStatusComplete, s.Draft.Status)
	assert.Equal(t, 3, s.Draft.CurrentTurnIndex)

	result, err := Result(s)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "C", result[2].UserID)
	assert.Nil(t, result[2].Race)
}

func TestStart(t *testing.T) {
	cat := catalog.Default()

	t.Run("already started", func(t *testing.T) {
		s := newState(models.DraftStatusActive, "host", "guest")
		_, err := Start(cat, s, "guest", NewSeededSource(1), now)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("not the initiator", func(t *testing.T) {
		s := newState(models.DraftStatusPending, "host", "guest")
		_, err := Start(cat, s, "guest", NewSeededSource(1), now)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, models.DraftStatusPending, s.Draft.Status)
	})

	t.Run("too few participants", func(t *testing.T) {
		s := newState(models.DraftStatusPending, "host")
		_, err := Start(cat, s, "host", NewSeededSource(1), now)
		assert.ErrorIs(t, err, ErrInsufficientParticipants)
	})

	t.Run("initiator pinned first", func(t *testing.T) {
		for seed := uint64(0); seed < 20; seed++ {
			s := newState(models.DraftStatusPending, "host", "b", "c", "d", "e")
			events, err := Start(cat, s, "host", NewSeededSource(seed), now)
			require.NoError(t, err)

			assert.True(t, HasEvent(events, EvtDraftStarted))
			assert.Equal(t, models.DraftStatusActive, s.Draft.Status)
			assert.Equal(t, 0, s.Draft.CurrentTurnIndex)
			require.NotNil(t, s.Draft.StartedAt)
			assert.Equal(t, "host", ActiveParticipant(s).UserID)

			positions := map[int]bool{}
			for _, p := range s.Participants {
				positions[p.TurnPosition] = true
			}
			assert.Len(t, positions, 5)
			for i := 0; i < 5; i++ {
				assert.True(t, positions[i], "position %d unassigned", i)
			}
		}
	})

	t.Run("rest of the order varies", func(t *testing.T) {
		orders := map[string]bool{}
		for seed := uint64(0); seed < 50; seed++ {
			s := newState(models.DraftStatusPending, "host", "b", "c", "d")
			_, err := Start(cat, s, "host", NewSeededSource(seed), now)
			require.NoError(t, err)
			key := ""
			for _, p := range s.Ordered() {
				key += p.UserID
			}
			orders[key] = true
		}
		assert.Greater(t, len(orders), 1)
	})
}

func TestSample(t *testing.T) {
	src := NewSeededSource(42)
	five := []models.Race{"A", "B", "C", "D", "E"}

	for i := 0; i < 200; i++ {
		got := Sample(five, 3, src)
		require.Len(t, got, 3)
		seen := map[models.Race]bool{}
		for _, r := range got {
			assert.Contains(t, five, r)
			assert.False(t, seen[r], "duplicate %s in sample", r)
			seen[r] = true
		}
	}

	assert.Len(t, Sample([]models.Race{"A", "B"}, 3, src), 2)
	assert.Empty(t, Sample(nil, 3, src))
	assert.Equal(t, []models.Race{"A", "B", "C", "D", "E"}, five, "input must not be modified")
}

func TestSampleIsUniform(t *testing.T) {
	src := NewSeededSource(2024)
	items := []models.Race{"A", "B", "C", "D", "E"}
	const draws = 50000

	first := map[models.Race]int{}
	included := map[models.Race]int{}
	for i := 0; i < draws; i++ {
		got := Sample(items, 3, src)
		first[got[0]]++
		for _, r := range got {
			included[r]++
		}
	}

	for _, r := range items {
		assert.InDelta(t, draws/5, first[r], draws*0.02, "first position bias for %s", r)
		assert.InDelta(t, draws*3/5, included[r], draws*0.02, "inclusion bias for %s", r)
	}
}

func TestSkip(t *testing.T) {
	cat := catalog.New("X", "Y", "Z")
	s := newState(models.DraftStatusActive, "A", "B")

	events, err := Skip(cat, s, now)
	require.NoError(t, err)
	assert.True(t, HasEvent(events, EvtTurnSkipped))
	assert.Equal(t, 1, s.Draft.CurrentTurnIndex)
	assert.Nil(t, s.Participant("A").Selection)
	assert.Len(t, Eligible(cat, s), 3)

	_, err = Skip(cat, s, now)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusComplete, s.Draft.Status)

	_, err = Skip(cat, s, now)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestResultRequiresCompleteDraft(t *testing.T) {
	s := newState(models.DraftStatusActive, "A", "B")
	_, err := Result(s)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: not your turn", ErrOutOfTurn), "OutOfTurn"},
		{fmt.Errorf("failed to commit pick: %w", fmt.Errorf("%w: x", ErrUnavailable)), "Unavailable"},
		{ErrDraftFull, "RoomFull"},
		{errors.New("boom"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}
