package engine

import (
	"fmt"
	"time"

	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/models"
)

// MinParticipants is the smallest draft that can be started.
const MinParticipants = 2

// ActiveParticipant returns the participant whose turn it is, or nil when
// the draft is not active.
func ActiveParticipant(s *State) *models.Participant {
	if s.Draft.Status != models.DraftStatusActive {
		return nil
	}
	for i := range s.Participants {
		if s.Participants[i].TurnPosition == s.Draft.CurrentTurnIndex {
			return &s.Participants[i]
		}
	}
	return nil
}

// Start moves a pending draft to active. The initiator keeps position 0 and
// everyone else gets a uniformly random position after it.
func Start(cat *catalog.Catalog, s *State, initiatorID string, src Source, now time.Time) ([]Event, error) {
	if s.Draft.Status != models.DraftStatusPending {
		return nil, fmt.Errorf("%w: draft has already started", ErrInvalidState)
	}
	if initiatorID != s.Draft.InitiatorID {
		return nil, fmt.Errorf("%w: only the initiator can start the draft", ErrUnauthorized)
	}
	if len(s.Participants) < MinParticipants {
		return nil, fmt.Errorf("%w: need at least %d participants", ErrInsufficientParticipants, MinParticipants)
	}

	var order []*models.Participant
	rest := make([]*models.Participant, 0, len(s.Participants))
	for i := range s.Participants {
		p := &s.Participants[i]
		if p.UserID == initiatorID {
			order = append(order, p)
			continue
		}
		rest = append(rest, p)
	}
	Shuffle(rest, src)
	order = append(order, rest...)
	for pos, p := range order {
		p.TurnPosition = pos
	}

	return Activate(cat, s, now), nil
}

// Activate opens turn 0 on a pending draft with positions already
// assigned. An empty pool completes the draft immediately.
func Activate(cat *catalog.Catalog, s *State, now time.Time) []Event {
	started := now
	s.Draft.Status = models.DraftStatusActive
	s.Draft.CurrentTurnIndex = 0
	s.Draft.StartedAt = &started

	events := []Event{{Type: EvtDraftStarted, TurnIndex: 0}}
	if len(Eligible(cat, s)) == 0 {
		return append(events, complete(s, now)...)
	}
	return events
}

// Advance moves to the next turn. It must be called exactly once per
// committed pick or skip. When the last position has played, or no race is
// left for the remaining positions, the draft completes.
func Advance(cat *catalog.Catalog, s *State, now time.Time) []Event {
	s.Draft.CurrentTurnIndex++
	if s.Draft.CurrentTurnIndex >= len(s.Participants) {
		return complete(s, now)
	}
	if len(Eligible(cat, s)) == 0 {
		return complete(s, now)
	}
	return []Event{{Type: EvtTurnAdvanced, TurnIndex: s.Draft.CurrentTurnIndex}}
}

// complete ends the draft. The index jumps to the participant count so that
// Complete holds exactly when CurrentTurnIndex >= len(Participants).
func complete(s *State, now time.Time) []Event {
	done := now
	if s.Draft.CurrentTurnIndex < len(s.Participants) {
		s.Draft.CurrentTurnIndex = len(s.Participants)
	}
	s.Draft.Status = models.DraftStatusComplete
	s.Draft.CompletedAt = &done
	return []Event{{Type: EvtDraftCompleted, TurnIndex: s.Draft.CurrentTurnIndex}}
}
