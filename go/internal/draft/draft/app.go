package draft

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DraftRepository defines what the draft app layer needs from the draft store
type DraftRepository interface {
	CreateDraft(ctx context.Context, state *engine.State, evts []events.Event) error
	GetState(ctx context.Context, id uuid.UUID) (*engine.State, error)
	// UpdateState runs fn against the current state inside one atomic
	// read-modify-write. The state and the events fn returns are stored
	// together, or not at all when fn fails.
	UpdateState(ctx context.Context, id uuid.UUID, fn func(*engine.State) ([]events.Event, error)) (*engine.State, error)
	TouchParticipant(ctx context.Context, draftID uuid.UUID, userID string, at time.Time) error
}

// App handles draft business logic
type App struct {
	repo    DraftRepository
	catalog *catalog.Catalog
	clock   clockwork.Clock
	rng     engine.Source
	options *OptionsCache
	cfg     Config
}

// NewApp creates a new draft App
func NewApp(repo DraftRepository, cat *catalog.Catalog, clock clockwork.Clock, rng engine.Source, cfg Config) *App {
	if cfg.MaxParticipants < engine.MinParticipants {
		cfg.MaxParticipants = DefaultConfig().MaxParticipants
	}
	if cfg.OptionsPerTurn <= 0 {
		cfg.OptionsPerTurn = engine.OptionsPerTurn
	}
	return &App{
		repo:    repo,
		catalog: cat,
		clock:   clock,
		rng:     rng,
		options: NewOptionsCache(),
		cfg:     cfg,
	}
}

// CreateDraft opens a new room with the initiator seated at position 0.
func (a *App) CreateDraft(ctx context.Context, req CreateDraftParams) (*DraftView, error) {
	excluded, err := a.validateCreateDraftParams(&req)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	id := uuid.New()
	state := &engine.State{
		Draft: models.Draft{
			ID:               id,
			InitiatorID:      req.InitiatorID,
			Status:           models.DraftStatusPending,
			ExcludedRaces:    excluded,
			ParticipantSlots: req.ParticipantSlots,
			CreatedAt:        now,
		},
		Participants: []models.Participant{{
			ID:           uuid.New(),
			DraftID:      id,
			UserID:       req.InitiatorID,
			Name:         req.InitiatorName,
			TurnPosition: 0,
			JoinedAt:     now,
			LastSeenAt:   now,
		}},
	}

	joined, err := joinedEvent(state.Participants[0])
	if err != nil {
		return nil, err
	}
	if err := a.repo.CreateDraft(ctx, state, []events.Event{joined}); err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}

	log.Info().
		Str("draft_id", id.String()).
		Str("initiator_id", req.InitiatorID).
		Int("slots", req.ParticipantSlots).
		Int("excluded", len(excluded)).
		Msg("created draft")
	return a.view(state), nil
}

func (a *App) validateCreateDraftParams(req *CreateDraftParams) ([]models.Race, error) {
	req.InitiatorID = strings.TrimSpace(req.InitiatorID)
	req.InitiatorName = strings.TrimSpace(req.InitiatorName)
	if req.InitiatorID == "" {
		return nil, fmt.Errorf("%w: initiator id is required", ErrInvalidArgument)
	}
	if req.InitiatorName == "" {
		return nil, fmt.Errorf("%w: initiator name is required", ErrInvalidArgument)
	}

	if req.ParticipantSlots == 0 {
		req.ParticipantSlots = a.cfg.MaxParticipants
	}
	if req.ParticipantSlots < engine.MinParticipants || req.ParticipantSlots > a.cfg.MaxParticipants {
		return nil, fmt.Errorf("%w: participant slots must be between %d and %d",
			ErrInvalidArgument, engine.MinParticipants, a.cfg.MaxParticipants)
	}

	if err := a.catalog.Validate(req.ExcludedRaces); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	excluded := make([]models.Race, 0, len(req.ExcludedRaces))
	for _, r := range req.ExcludedRaces {
		if !slices.Contains(excluded, r) {
			excluded = append(excluded, r)
		}
	}
	if len(excluded) >= a.catalog.Len() {
		return nil, fmt.Errorf("%w: at least one race must remain available", ErrInvalidArgument)
	}
	return excluded, nil
}

// JoinDraft seats a user in a pending draft. Joining again with the same
// user id only refreshes their last-seen time, in any status.
func (a *App) JoinDraft(ctx context.Context, draftID uuid.UUID, userID, name string) (*DraftView, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return nil, fmt.Errorf("%w: user id and name are required", ErrInvalidArgument)
	}

	now := a.clock.Now()
	var rejoined bool
	state, err := a.repo.UpdateState(ctx, draftID, func(s *engine.State) ([]events.Event, error) {
		rejoined = false
		if p := s.Participant(userID); p != nil {
			rejoined = true
			p.LastSeenAt = now
			return nil, nil
		}
		if s.Draft.Status != models.DraftStatusPending {
			return nil, fmt.Errorf("%w: draft has already started", engine.ErrInvalidState)
		}
		if len(s.Participants) >= s.Draft.ParticipantSlots {
			return nil, fmt.Errorf("%w: all %d seats are taken", engine.ErrDraftFull, s.Draft.ParticipantSlots)
		}

		p := models.Participant{
			ID:           uuid.New(),
			DraftID:      s.Draft.ID,
			UserID:       userID,
			Name:         name,
			TurnPosition: len(s.Participants),
			JoinedAt:     now,
			LastSeenAt:   now,
		}
		s.Participants = append(s.Participants, p)
		ev, err := joinedEvent(p)
		if err != nil {
			return nil, err
		}
		return []events.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	if rejoined {
		log.Debug().Str("draft_id", draftID.String()).Str("user_id", userID).Msg("participant rejoined")
	} else {
		log.Info().Str("draft_id", draftID.String()).Str("user_id", userID).Msg("participant joined")
	}
	return a.view(state), nil
}

// Heartbeat records that a participant is still connected.
func (a *App) Heartbeat(ctx context.Context, draftID uuid.UUID, userID string) error {
	return a.repo.TouchParticipant(ctx, draftID, userID, a.clock.Now())
}

// StartDraft fixes the turn order and opens the first turn.
func (a *App) StartDraft(ctx context.Context, draftID uuid.UUID, initiatorID string) (*DraftView, error) {
	state, err := a.repo.UpdateState(ctx, draftID, func(s *engine.State) ([]events.Event, error) {
		now := a.clock.Now()
		evs, err := engine.Start(a.catalog, s, initiatorID, a.rng, now)
		if err != nil {
			return nil, err
		}
		return a.toEvents(s, evs, now)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("draft_id", draftID.String()).
		Int("participants", len(state.Participants)).
		Str("status", string(state.Draft.Status)).
		Msg("draft started")
	return a.view(state), nil
}

// GetActiveTurn returns whose turn it is, or nil when no turn is open.
func (a *App) GetActiveTurn(ctx context.Context, draftID uuid.UUID) (*ActiveTurn, error) {
	state, err := a.repo.GetState(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return activeTurn(state), nil
}

// GetOptions returns the races offered for the current turn. The draw is
// made once per turn and reused by every caller until the turn changes or
// the active participant rerolls. It is empty when no turn is open.
func (a *App) GetOptions(ctx context.Context, draftID uuid.UUID) ([]models.Race, error) {
	state, err := a.repo.GetState(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return a.currentOptions(state), nil
}

func (a *App) currentOptions(s *engine.State) []models.Race {
	if engine.ActiveParticipant(s) == nil {
		return []models.Race{}
	}
	return a.options.Ensure(s.Draft.ID, s.Draft.CurrentTurnIndex, func() []models.Race {
		return engine.Sample(engine.Eligible(a.catalog, s), a.cfg.OptionsPerTurn, a.rng)
	})
}

// RerollOptions redraws the active participant's options. Turn state is
// not changed.
func (a *App) RerollOptions(ctx context.Context, draftID uuid.UUID, userID string) ([]models.Race, error) {
	var (
		options   []models.Race
		turnIndex int
	)
	_, err := a.repo.UpdateState(ctx, draftID, func(s *engine.State) ([]events.Event, error) {
		if s.Draft.Status != models.DraftStatusActive {
			return nil, fmt.Errorf("%w: draft is not in progress", engine.ErrInvalidState)
		}
		p := s.Participant(userID)
		if p == nil {
			return nil, fmt.Errorf("%w: participant not found", engine.ErrNotFound)
		}
		if p.TurnPosition != s.Draft.CurrentTurnIndex {
			return nil, fmt.Errorf("%w: only the active participant can reroll", engine.ErrOutOfTurn)
		}

		turnIndex = s.Draft.CurrentTurnIndex
		options = engine.Sample(engine.Eligible(a.catalog, s), a.cfg.OptionsPerTurn, a.rng)
		ev, err := events.New(s.Draft.ID, events.TypeOptionsRerolled, events.OptionsRerolledPayload{
			DraftID:   s.Draft.ID.String(),
			TurnIndex: turnIndex,
			UserID:    userID,
			Options:   raceStrings(options),
		})
		if err != nil {
			return nil, err
		}
		return []events.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}

	a.options.Put(draftID, turnIndex, options)
	log.Debug().Str("draft_id", draftID.String()).Str("user_id", userID).Msg("options rerolled")
	return slices.Clone(options), nil
}

// CommitPick records the active participant's selection and advances the
// turn. Offered options are only a hint; the race is checked against the
// live pool inside the same transaction as the write.
func (a *App) CommitPick(ctx context.Context, draftID uuid.UUID, userID string, race models.Race) (*DraftView, error) {
	state, err := a.repo.UpdateState(ctx, draftID, func(s *engine.State) ([]events.Event, error) {
		now := a.clock.Now()
		evs, err := engine.CommitPick(a.catalog, s, userID, race, now)
		if err != nil {
			return nil, err
		}
		return a.toEvents(s, evs, now)
	})
	if err != nil {
		return nil, err
	}

	if state.Draft.Status == models.DraftStatusComplete {
		a.options.Invalidate(draftID)
		log.Info().Str("draft_id", draftID.String()).Msg("draft completed")
	}
	log.Info().
		Str("draft_id", draftID.String()).
		Str("user_id", userID).
		Str("race", race.String()).
		Msg("pick committed")
	return a.view(state), nil
}

// GetDraft returns the draft with participants in turn order.
func (a *App) GetDraft(ctx context.Context, draftID uuid.UUID) (*DraftView, error) {
	state, err := a.repo.GetState(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return a.view(state), nil
}

// AvailableRaces returns every race still eligible in the draft.
func (a *App) AvailableRaces(ctx context.Context, draftID uuid.UUID) ([]models.RaceInfo, error) {
	state, err := a.repo.GetState(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return a.RaceInfos(engine.Eligible(a.catalog, state)), nil
}

// GetResult returns the final allocation of a completed draft.
func (a *App) GetResult(ctx context.Context, draftID uuid.UUID) ([]engine.ResultEntry, error) {
	state, err := a.repo.GetState(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return engine.Result(state)
}

// Catalog returns display metadata for every race in catalog order.
func (a *App) Catalog() []models.RaceInfo {
	return a.RaceInfos(a.catalog.Races())
}

func (a *App) RaceInfos(races []models.Race) []models.RaceInfo {
	out := make([]models.RaceInfo, len(races))
	for i, r := range races {
		out[i] = a.catalog.Info(r)
	}
	return out
}

// HandleEvent keeps the options cache in step with published draft events.
// A new turn gets its options drawn as soon as the turn opens.
func (a *App) HandleEvent(ctx context.Context, env events.Envelope) error {
	draftID, err := uuid.Parse(env.DraftID)
	if err != nil {
		return fmt.Errorf("invalid draft id %q: %w", env.DraftID, err)
	}

	switch env.EventType {
	case events.TypeDraftStarted, events.TypeTurnAdvanced:
		state, err := a.repo.GetState(ctx, draftID)
		if err != nil {
			return fmt.Errorf("failed to load draft for %s: %w", env.EventType, err)
		}
		a.currentOptions(state)
	case events.TypeDraftCompleted:
		a.options.Invalidate(draftID)
	}
	return nil
}

// toEvents turns engine transitions into outbox events.
func (a *App) toEvents(s *engine.State, evs []engine.Event, now time.Time) ([]events.Event, error) {
	id := s.Draft.ID
	out := make([]events.Event, 0, len(evs))
	for _, e := range evs {
		var (
			eventType string
			payload   any
		)
		switch e.Type {
		case engine.EvtDraftStarted:
			ordered := s.Ordered()
			order := make([]events.TurnSlot, len(ordered))
			for i, p := range ordered {
				order[i] = events.TurnSlot{UserID: p.UserID, Name: p.Name, TurnPosition: p.TurnPosition}
			}
			eventType = events.TypeDraftStarted
			payload = events.DraftStartedPayload{
				DraftID:           id.String(),
				StartedAt:         *s.Draft.StartedAt,
				TotalParticipants: len(ordered),
				TurnOrder:         order,
			}
		case engine.EvtPickMade:
			p := s.Participant(e.UserID)
			eventType = events.TypePickMade
			payload = events.PickMadePayload{
				DraftID:      id.String(),
				UserID:       e.UserID,
				Name:         p.Name,
				Race:         e.Race.String(),
				TurnPosition: p.TurnPosition,
				MadeAt:       now,
			}
		case engine.EvtTurnAdvanced:
			active := engine.ActiveParticipant(s)
			if active == nil {
				continue
			}
			eventType = events.TypeTurnAdvanced
			payload = events.TurnAdvancedPayload{
				DraftID:    id.String(),
				TurnIndex:  e.TurnIndex,
				UserID:     active.UserID,
				Name:       active.Name,
				AdvancedAt: now,
			}
		case engine.EvtDraftCompleted:
			picks := 0
			for _, p := range s.Participants {
				if p.HasPicked() {
					picks++
				}
			}
			var duration time.Duration
			if s.Draft.StartedAt != nil {
				duration = now.Sub(*s.Draft.StartedAt)
			}
			eventType = events.TypeDraftCompleted
			payload = events.DraftCompletedPayload{
				DraftID:     id.String(),
				CompletedAt: now,
				Duration:    duration.String(),
				TotalPicks:  picks,
			}
		default:
			continue
		}

		ev, err := events.New(id, eventType, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (a *App) view(s *engine.State) *DraftView {
	return &DraftView{
		Draft:        s.Draft,
		Participants: s.Ordered(),
		ActiveTurn:   activeTurn(s),
	}
}

func activeTurn(s *engine.State) *ActiveTurn {
	p := engine.ActiveParticipant(s)
	if p == nil {
		return nil
	}
	return &ActiveTurn{UserID: p.UserID, Name: p.Name, TurnPosition: p.TurnPosition}
}

func joinedEvent(p models.Participant) (events.Event, error) {
	return events.New(p.DraftID, events.TypeParticipantJoined, events.ParticipantJoinedPayload{
		DraftID:      p.DraftID.String(),
		UserID:       p.UserID,
		Name:         p.Name,
		TurnPosition: p.TurnPosition,
		JoinedAt:     p.JoinedAt,
	})
}

func raceStrings(races []models.Race) []string {
	out := make([]string, len(races))
	for i, r := range races {
		out[i] = r.String()
	}
	return out
}
