package engine

import (
	"fmt"

	"github.com/mcdev12/racedraft/go/internal/models"
)

// ResultEntry pairs a participant with what they drafted. Race is nil for
// participants who were skipped or reached after the pool ran out.
type ResultEntry struct {
	UserID       string       `json:"user_id"`
	Name         string       `json:"name"`
	TurnPosition int          `json:"turn_position"`
	Race         *models.Race `json:"race,omitempty"`
}

// Result returns the final allocation in turn order.
func Result(s *State) ([]ResultEntry, error) {
	if s.Draft.Status != models.DraftStatusComplete {
		return nil, fmt.Errorf("%w: draft is not complete", ErrInvalidState)
	}
	ordered := s.Ordered()
	out := make([]ResultEntry, len(ordered))
	for i, p := range ordered {
		out[i] = ResultEntry{
			UserID:       p.UserID,
			Name:         p.Name,
			TurnPosition: p.TurnPosition,
			Race:         p.Selection,
		}
	}
	return out, nil
}
