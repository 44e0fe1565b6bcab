package engine

import (
	"slices"

	"github.com/mcdev12/racedraft/go/internal/models"
)

// State is the authoritative aggregate for one draft.
type State struct {
	Draft        models.Draft
	Participants []models.Participant
}

// Clone returns a deep copy so a failed mutation can be discarded.
func (s *State) Clone() *State {
	out := &State{
		Draft:        s.Draft,
		Participants: make([]models.Participant, len(s.Participants)),
	}
	out.Draft.ExcludedRaces = slices.Clone(s.Draft.ExcludedRaces)
	if s.Draft.StartedAt != nil {
		t := *s.Draft.StartedAt
		out.Draft.StartedAt = &t
	}
	if s.Draft.CompletedAt != nil {
		t := *s.Draft.CompletedAt
		out.Draft.CompletedAt = &t
	}
	for i, p := range s.Participants {
		if p.Selection != nil {
			r := *p.Selection
			p.Selection = &r
		}
		out.Participants[i] = p
	}
	return out
}

// Participant returns the participant with the given user id, or nil.
func (s *State) Participant(userID string) *models.Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// Ordered returns the participants sorted by turn position.
func (s *State) Ordered() []models.Participant {
	out := slices.Clone(s.Participants)
	slices.SortStableFunc(out, func(a, b models.Participant) int {
		return a.TurnPosition - b.TurnPosition
	})
	return out
}
