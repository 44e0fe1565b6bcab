package engine

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/mcdev12/racedraft/go/internal/models"
)

// OptionsPerTurn is the number of races offered to the active participant.
const OptionsPerTurn = 3

// Source supplies uniform random integers in [0, n). *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource draws from the process-wide math/rand/v2 generator.
var DefaultSource Source = globalSource{}

// NewSeededSource returns a deterministic source, safe for concurrent use.
func NewSeededSource(seed uint64) Source {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// Shuffle permutes items in place with Fisher-Yates.
func Shuffle[T any](items []T, src Source) {
	for i := len(items) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// Sample draws min(k, len(eligible)) distinct races uniformly without
// replacement, in random order. eligible is not modified.
func Sample(eligible []models.Race, k int, src Source) []models.Race {
	pool := slices.Clone(eligible)
	n := min(k, len(pool))
	if n <= 0 {
		return []models.Race{}
	}
	// Partial Fisher-Yates: fix positions 0..n-1 only.
	for i := 0; i < n; i++ {
		j := i + src.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}
