package draft

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/racedraft/go/internal/models"
)

// OptionsCache holds the races offered for each draft's current turn.
// Entries are tagged with the turn index they were drawn for, so a read for
// a later turn never sees them. The cache is per process and is not
// authoritative: CommitPick always revalidates.
type OptionsCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]roundOptions
}

type roundOptions struct {
	turnIndex int
	races     []models.Race
}

func NewOptionsCache() *OptionsCache {
	return &OptionsCache{entries: make(map[uuid.UUID]roundOptions)}
}

// Get returns the options drawn for turnIndex, if any.
func (c *OptionsCache) Get(id uuid.UUID, turnIndex int) ([]models.Race, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.turnIndex != turnIndex {
		return nil, false
	}
	return slices.Clone(e.races), true
}

// Put replaces the options for the draft. It is a no-op when options for a
// later turn are already cached.
func (c *OptionsCache) Put(id uuid.UUID, turnIndex int, races []models.Race) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && e.turnIndex > turnIndex {
		return
	}
	c.entries[id] = roundOptions{turnIndex: turnIndex, races: slices.Clone(races)}
}

// Ensure returns the cached options for turnIndex, drawing them with draw
// when the entry is missing or belongs to an earlier turn. Concurrent callers
// for the same turn all get the same draw. A caller behind the cached turn
// gets a one-off draw that is not stored.
func (c *OptionsCache) Ensure(id uuid.UUID, turnIndex int, draw func() []models.Race) []models.Race {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	switch {
	case ok && e.turnIndex == turnIndex:
		return slices.Clone(e.races)
	case ok && e.turnIndex > turnIndex:
		return draw()
	}
	races := draw()
	c.entries[id] = roundOptions{turnIndex: turnIndex, races: races}
	return slices.Clone(races)
}

func (c *OptionsCache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *OptionsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
