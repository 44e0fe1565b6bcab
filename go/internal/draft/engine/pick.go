package engine

import (
	"fmt"
	"time"

	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/models"
)

// CommitPick validates and applies one selection. Checks run in a fixed
// order and the first failure wins; on failure s is left untouched.
// The caller is responsible for the draft-exists check and for running this
// inside a transaction scoped to the draft.
func CommitPick(cat *catalog.Catalog, s *State, userID string, race models.Race, now time.Time) ([]Event, error) {
	if s.Draft.Status != models.DraftStatusActive {
		return nil, fmt.Errorf("%w: draft is not in progress", ErrInvalidState)
	}
	p := s.Participant(userID)
	if p == nil {
		return nil, fmt.Errorf("%w: participant not found", ErrNotFound)
	}
	if p.TurnPosition != s.Draft.CurrentTurnIndex {
		return nil, fmt.Errorf("%w: not your turn", ErrOutOfTurn)
	}
	if p.HasPicked() {
		return nil, fmt.Errorf("%w: you have already picked", ErrAlreadyPicked)
	}
	if !IsEligible(cat, s, race) {
		return nil, fmt.Errorf("%w: race %q is not available", ErrUnavailable, race)
	}

	selection := race
	p.Selection = &selection
	events := []Event{{
		Type:      EvtPickMade,
		UserID:    userID,
		Race:      race,
		TurnIndex: s.Draft.CurrentTurnIndex,
	}}
	return append(events, Advance(cat, s, now)...), nil
}

// Skip passes the active turn without a selection. Only the single-device
// mode offers it; the operator must have confirmed beforehand.
func Skip(cat *catalog.Catalog, s *State, now time.Time) ([]Event, error) {
	active := ActiveParticipant(s)
	if active == nil {
		return nil, fmt.Errorf("%w: draft is not in progress", ErrInvalidState)
	}
	events := []Event{{
		Type:      EvtTurnSkipped,
		UserID:    active.UserID,
		TurnIndex: s.Draft.CurrentTurnIndex,
	}}
	return append(events, Advance(cat, s, now)...), nil
}
