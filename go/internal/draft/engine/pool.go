package engine

import (
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/models"
)

// Eligible returns the races that are neither excluded nor selected, in
// catalog order. It is recomputed from the state on every call.
func Eligible(cat *catalog.Catalog, s *State) []models.Race {
	taken := make(map[models.Race]struct{}, len(s.Participants)+len(s.Draft.ExcludedRaces))
	for _, r := range s.Draft.ExcludedRaces {
		taken[r] = struct{}{}
	}
	for _, p := range s.Participants {
		if p.Selection != nil {
			taken[*p.Selection] = struct{}{}
		}
	}

	out := make([]models.Race, 0, cat.Len())
	for _, r := range cat.Races() {
		if _, ok := taken[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// IsEligible reports whether r can be picked right now.
func IsEligible(cat *catalog.Catalog, s *State, r models.Race) bool {
	if !cat.Contains(r) || s.Draft.IsExcluded(r) {
		return false
	}
	for _, p := range s.Participants {
		if p.Selection != nil && *p.Selection == r {
			return false
		}
	}
	return true
}
