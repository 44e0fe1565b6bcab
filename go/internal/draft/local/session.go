// Package local runs a whole draft on one device: players take turns at
// the same terminal and the session is kept in a JSON file between runs.
package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/models"
)

const (
	MaxPlayers = 12

	SkipPrompt  = "Skip this player's pick? They will get no race."
	ResetPrompt = "Reset everything? This will clear saved progress."

	fileVersion = 1
)

// ErrNotConfigured is returned by operations that need players first.
var ErrNotConfigured = errors.New("no players configured")

// ConfirmFunc asks the operator a yes/no question.
type ConfirmFunc func(prompt string) bool

// Session is a local draft. Players keep the order they were entered in;
// there is no shuffle and the first player picks first.
type Session struct {
	catalog *catalog.Catalog
	src     engine.Source
	clock   clockwork.Clock

	state   *engine.State
	options []models.Race
}

func NewSession(cat *catalog.Catalog, src engine.Source, clock clockwork.Clock) *Session {
	return &Session{catalog: cat, src: src, clock: clock}
}

// Setup replaces any existing session with a pending one. Blank names
// become "Player N".
func (s *Session) Setup(names []string, excluded []models.Race) error {
	if len(names) < 1 || len(names) > MaxPlayers {
		return fmt.Errorf("player count must be between 1 and %d", MaxPlayers)
	}
	if err := s.catalog.Validate(excluded); err != nil {
		return err
	}

	now := s.clock.Now()
	id := uuid.New()
	state := &engine.State{
		Draft: models.Draft{
			ID:               id,
			InitiatorID:      playerID(0),
			Status:           models.DraftStatusPending,
			ParticipantSlots: len(names),
			CreatedAt:        now,
		},
	}
	for _, r := range excluded {
		if !slices.Contains(state.Draft.ExcludedRaces, r) {
			state.Draft.ExcludedRaces = append(state.Draft.ExcludedRaces, r)
		}
	}
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Player %d", i+1)
		}
		state.Participants = append(state.Participants, models.Participant{
			ID:           uuid.New(),
			DraftID:      id,
			UserID:       playerID(i),
			Name:         name,
			TurnPosition: i,
			JoinedAt:     now,
			LastSeenAt:   now,
		})
	}

	s.state = state
	s.options = nil
	return nil
}

func playerID(i int) string {
	return fmt.Sprintf("player-%d", i+1)
}

// Start opens the first turn.
func (s *Session) Start() error {
	if s.state == nil {
		return ErrNotConfigured
	}
	if s.state.Draft.Status != models.DraftStatusPending {
		return fmt.Errorf("%w: draft has already started", engine.ErrInvalidState)
	}
	engine.Activate(s.catalog, s.state, s.clock.Now())
	s.drawOptions()
	return nil
}

func (s *Session) drawOptions() {
	if engine.ActiveParticipant(s.state) == nil {
		s.options = nil
		return
	}
	s.options = engine.Sample(engine.Eligible(s.catalog, s.state), engine.OptionsPerTurn, s.src)
}

// Status is PENDING before Start, and empty when nothing is configured.
func (s *Session) Status() models.DraftStatus {
	if s.state == nil {
		return ""
	}
	return s.state.Draft.Status
}

func (s *Session) Players() []models.Participant {
	if s.state == nil {
		return nil
	}
	return s.state.Ordered()
}

func (s *Session) ExcludedRaces() []models.Race {
	if s.state == nil {
		return nil
	}
	return slices.Clone(s.state.Draft.ExcludedRaces)
}

// Active returns the player whose turn it is, or nil.
func (s *Session) Active() *models.Participant {
	if s.state == nil {
		return nil
	}
	p := engine.ActiveParticipant(s.state)
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// Options returns the races offered to the active player.
func (s *Session) Options() []models.Race {
	return slices.Clone(s.options)
}

// Available returns every race nobody has taken yet.
func (s *Session) Available() []models.Race {
	if s.state == nil {
		return s.catalog.Races()
	}
	return engine.Eligible(s.catalog, s.state)
}

// Pick gives race to the active player. Only offered races can be picked.
func (s *Session) Pick(race models.Race) error {
	active := s.Active()
	if active == nil {
		return fmt.Errorf("%w: no turn is open", engine.ErrInvalidState)
	}
	if !slices.Contains(s.options, race) {
		return fmt.Errorf("%w: %q was not offered", engine.ErrUnavailable, race)
	}
	if _, err := engine.CommitPick(s.catalog, s.state, active.UserID, race, s.clock.Now()); err != nil {
		return err
	}
	s.drawOptions()
	return nil
}

// Reroll draws new options for the active player.
func (s *Session) Reroll() ([]models.Race, error) {
	if s.Active() == nil {
		return nil, fmt.Errorf("%w: no turn is open", engine.ErrInvalidState)
	}
	s.drawOptions()
	return s.Options(), nil
}

// Skip passes the active player's turn if confirm agrees. It reports
// whether the turn was skipped.
func (s *Session) Skip(confirm ConfirmFunc) (bool, error) {
	if s.Active() == nil {
		return false, fmt.Errorf("%w: no turn is open", engine.ErrInvalidState)
	}
	if !confirm(SkipPrompt) {
		return false, nil
	}
	if _, err := engine.Skip(s.catalog, s.state, s.clock.Now()); err != nil {
		return false, err
	}
	s.drawOptions()
	return true, nil
}

// Reset clears the session if confirm agrees.
func (s *Session) Reset(confirm ConfirmFunc) bool {
	if !confirm(ResetPrompt) {
		return false
	}
	s.state = nil
	s.options = nil
	return true
}

func (s *Session) Finished() bool {
	return s.state != nil && s.state.Draft.Status == models.DraftStatusComplete
}

func (s *Session) Result() ([]engine.ResultEntry, error) {
	if s.state == nil {
		return nil, ErrNotConfigured
	}
	return engine.Result(s.state)
}

// Export writes the final picks as indented JSON.
func (s *Session) Export(w io.Writer) error {
	result, err := s.Result()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

type sessionFile struct {
	Version      int                  `json:"version"`
	Draft        models.Draft         `json:"draft"`
	Participants []models.Participant `json:"participants"`
	Options      []models.Race        `json:"options,omitempty"`
}

// Save writes the session to path. An empty session removes the file.
func (s *Session) Save(path string) error {
	if s.state == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(sessionFile{
		Version:      fileVersion,
		Draft:        s.state.Draft,
		Participants: s.state.Participants,
		Options:      s.options,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Load restores a session saved with Save. A missing file leaves the
// session empty and is not an error.
func (s *Session) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}
	if file.Version != fileVersion {
		return fmt.Errorf("unsupported session file version %d", file.Version)
	}
	if len(file.Participants) == 0 {
		return fmt.Errorf("session file has no players")
	}
	if err := s.catalog.Validate(file.Draft.ExcludedRaces); err != nil {
		return fmt.Errorf("session file: %w", err)
	}

	s.state = &engine.State{Draft: file.Draft, Participants: file.Participants}
	s.options = file.Options
	if engine.ActiveParticipant(s.state) != nil && len(s.options) == 0 {
		s.drawOptions()
	}
	return nil
}
