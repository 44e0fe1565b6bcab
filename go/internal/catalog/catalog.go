package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/mcdev12/racedraft/go/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed races.yaml
var defaultRacesYAML []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Catalog is the read-only table of draftable races. It is built once
// and never mutated, so it is safe to share between goroutines.
type Catalog struct {
	races    []models.Race
	info     map[models.Race]models.RaceInfo
	fallback models.RaceInfo
}

type catalogFile struct {
	Default struct {
		Emoji string `yaml:"emoji"`
		Blurb string `yaml:"blurb"`
	} `yaml:"default"`
	Races []models.RaceInfo `yaml:"races"`
}

// Load parses a catalog document.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(file.Races) == 0 {
		return nil, fmt.Errorf("catalog has no races")
	}

	c := &Catalog{
		races: make([]models.Race, 0, len(file.Races)),
		info:  make(map[models.Race]models.RaceInfo, len(file.Races)),
		fallback: models.RaceInfo{
			Emoji: file.Default.Emoji,
			Blurb: file.Default.Blurb,
		},
	}
	for _, ri := range file.Races {
		if ri.Name == "" {
			return nil, fmt.Errorf("catalog entry with empty name")
		}
		if _, dup := c.info[ri.Name]; dup {
			return nil, fmt.Errorf("duplicate race %q in catalog", ri.Name)
		}
		c.races = append(c.races, ri.Name)
		c.info[ri.Name] = ri
	}
	return c, nil
}

// New builds a catalog of bare race names with no display metadata.
func New(races ...models.Race) *Catalog {
	c := &Catalog{
		races: make([]models.Race, 0, len(races)),
		info:  make(map[models.Race]models.RaceInfo, len(races)),
	}
	for _, r := range races {
		if _, dup := c.info[r]; dup {
			continue
		}
		c.races = append(c.races, r)
		c.info[r] = models.RaceInfo{Name: r}
	}
	return c
}

// Default returns the built-in 24 race catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(defaultRacesYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded race catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Races returns the races in catalog order.
func (c *Catalog) Races() []models.Race {
	out := make([]models.Race, len(c.races))
	copy(out, c.races)
	return out
}

func (c *Catalog) Len() int {
	return len(c.races)
}

// Contains reports whether r is a known race.
func (c *Catalog) Contains(r models.Race) bool {
	_, ok := c.info[r]
	return ok
}

// Info returns display metadata for r, falling back to the catalog default
// for unknown races.
func (c *Catalog) Info(r models.Race) models.RaceInfo {
	if ri, ok := c.info[r]; ok {
		return ri
	}
	return models.RaceInfo{Name: r, Emoji: c.fallback.Emoji, Blurb: c.fallback.Blurb}
}

// Validate returns an error naming the first race not in the catalog.
func (c *Catalog) Validate(races []models.Race) error {
	for _, r := range races {
		if !c.Contains(r) {
			return fmt.Errorf("unknown race %q", r)
		}
	}
	return nil
}
