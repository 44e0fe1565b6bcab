package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/models"
)

const DraftServiceName = "racedraft.v1.DraftService"

const (
	CreateDraftProcedure    = "/" + DraftServiceName + "/CreateDraft"
	JoinDraftProcedure      = "/" + DraftServiceName + "/JoinDraft"
	HeartbeatProcedure      = "/" + DraftServiceName + "/Heartbeat"
	GetDraftProcedure       = "/" + DraftServiceName + "/GetDraft"
	StartDraftProcedure     = "/" + DraftServiceName + "/StartDraft"
	GetActiveTurnProcedure  = "/" + DraftServiceName + "/GetActiveTurn"
	GetOptionsProcedure     = "/" + DraftServiceName + "/GetOptions"
	RerollOptionsProcedure  = "/" + DraftServiceName + "/RerollOptions"
	CommitPickProcedure     = "/" + DraftServiceName + "/CommitPick"
	AvailableRacesProcedure = "/" + DraftServiceName + "/AvailableRaces"
	GetResultProcedure      = "/" + DraftServiceName + "/GetResult"
	ListRacesProcedure      = "/" + DraftServiceName + "/ListRaces"
)

// ErrorKindHeader carries the draft error kind on failed calls so clients
// can branch without parsing messages.
const ErrorKindHeader = "Draft-Error"

// DraftApp defines what the service layer needs from the draft application
type DraftApp interface {
	CreateDraft(ctx context.Context, req CreateDraftParams) (*DraftView, error)
	JoinDraft(ctx context.Context, draftID uuid.UUID, userID, name string) (*DraftView, error)
	Heartbeat(ctx context.Context, draftID uuid.UUID, userID string) error
	GetDraft(ctx context.Context, draftID uuid.UUID) (*DraftView, error)
	StartDraft(ctx context.Context, draftID uuid.UUID, initiatorID string) (*DraftView, error)
	GetActiveTurn(ctx context.Context, draftID uuid.UUID) (*ActiveTurn, error)
	GetOptions(ctx context.Context, draftID uuid.UUID) ([]models.Race, error)
	RerollOptions(ctx context.Context, draftID uuid.UUID, userID string) ([]models.Race, error)
	CommitPick(ctx context.Context, draftID uuid.UUID, userID string, race models.Race) (*DraftView, error)
	AvailableRaces(ctx context.Context, draftID uuid.UUID) ([]models.RaceInfo, error)
	GetResult(ctx context.Context, draftID uuid.UUID) ([]engine.ResultEntry, error)
	Catalog() []models.RaceInfo
	RaceInfos(races []models.Race) []models.RaceInfo
}

// Service implements the DraftService connect handlers
type Service struct {
	app DraftApp
}

// NewService creates a new draft connect service
func NewService(app DraftApp) *Service {
	return &Service{app: app}
}

// NewDraftServiceHandler builds an http.Handler serving every DraftService
// procedure, and returns the path to mount it on.
func NewDraftServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateDraftProcedure, connect.NewUnaryHandler(CreateDraftProcedure, svc.CreateDraft, opts...))
	mux.Handle(JoinDraftProcedure, connect.NewUnaryHandler(JoinDraftProcedure, svc.JoinDraft, opts...))
	mux.Handle(HeartbeatProcedure, connect.NewUnaryHandler(HeartbeatProcedure, svc.Heartbeat, opts...))
	mux.Handle(GetDraftProcedure, connect.NewUnaryHandler(GetDraftProcedure, svc.GetDraft, opts...))
	mux.Handle(StartDraftProcedure, connect.NewUnaryHandler(StartDraftProcedure, svc.StartDraft, opts...))
	mux.Handle(GetActiveTurnProcedure, connect.NewUnaryHandler(GetActiveTurnProcedure, svc.GetActiveTurn, opts...))
	mux.Handle(GetOptionsProcedure, connect.NewUnaryHandler(GetOptionsProcedure, svc.GetOptions, opts...))
	mux.Handle(RerollOptionsProcedure, connect.NewUnaryHandler(RerollOptionsProcedure, svc.RerollOptions, opts...))
	mux.Handle(CommitPickProcedure, connect.NewUnaryHandler(CommitPickProcedure, svc.CommitPick, opts...))
	mux.Handle(AvailableRacesProcedure, connect.NewUnaryHandler(AvailableRacesProcedure, svc.AvailableRaces, opts...))
	mux.Handle(GetResultProcedure, connect.NewUnaryHandler(GetResultProcedure, svc.GetResult, opts...))
	mux.Handle(ListRacesProcedure, connect.NewUnaryHandler(ListRacesProcedure, svc.ListRaces, opts...))
	return "/" + DraftServiceName + "/", mux
}

// JSONCodec serialises plain Go structs with encoding/json under the
// connect "json" codec name.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// CreateDraft creates a new draft
func (s *Service) CreateDraft(ctx context.Context, req *connect.Request[CreateDraftRequest]) (*connect.Response[DraftResponse], error) {
	excluded := make([]models.Race, len(req.Msg.ExcludedRaces))
	for i, r := range req.Msg.ExcludedRaces {
		excluded[i] = models.Race(r)
	}

	view, err := s.app.CreateDraft(ctx, CreateDraftParams{
		InitiatorID:      req.Msg.InitiatorID,
		InitiatorName:    req.Msg.InitiatorName,
		ExcludedRaces:    excluded,
		ParticipantSlots: req.Msg.ParticipantSlots,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: draftToMsg(view)}), nil
}

// JoinDraft seats the caller in a pending draft
func (s *Service) JoinDraft(ctx context.Context, req *connect.Request[JoinDraftRequest]) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	view, err := s.app.JoinDraft(ctx, id, req.Msg.UserID, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: draftToMsg(view)}), nil
}

func (s *Service) Heartbeat(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[Empty], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	if err := s.app.Heartbeat(ctx, id, req.Msg.UserID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetDraft retrieves a draft by ID
func (s *Service) GetDraft(ctx context.Context, req *connect.Request[DraftRequest]) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	view, err := s.app.GetDraft(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: draftToMsg(view)}), nil
}

// StartDraft starts a pending draft; only its initiator may call it
func (s *Service) StartDraft(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	view, err := s.app.StartDraft(ctx, id, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: draftToMsg(view)}), nil
}

func (s *Service) GetActiveTurn(ctx context.Context, req *connect.Request[DraftRequest]) (*connect.Response[GetActiveTurnResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	turn, err := s.app.GetActiveTurn(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetActiveTurnResponse{ActiveTurn: turn}), nil
}

func (s *Service) GetOptions(ctx context.Context, req *connect.Request[DraftRequest]) (*connect.Response[RacesResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	options, err := s.app.GetOptions(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RacesResponse{Races: s.app.RaceInfos(options)}), nil
}

func (s *Service) RerollOptions(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[RacesResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	options, err := s.app.RerollOptions(ctx, id, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RacesResponse{Races: s.app.RaceInfos(options)}), nil
}

// CommitPick records a pick for the active participant
func (s *Service) CommitPick(ctx context.Context, req *connect.Request[CommitPickRequest]) (*connect.Response[DraftResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	view, err := s.app.CommitPick(ctx, id, req.Msg.UserID, models.Race(req.Msg.Race))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: draftToMsg(view)}), nil
}

func (s *Service) AvailableRaces(ctx context.Context, req *connect.Request[DraftRequest]) (*connect.Response[RacesResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	races, err := s.app.AvailableRaces(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RacesResponse{Races: races}), nil
}

func (s *Service) GetResult(ctx context.Context, req *connect.Request[DraftRequest]) (*connect.Response[GetResultResponse], error) {
	id, err := parseDraftID(req.Msg.DraftID)
	if err != nil {
		return nil, err
	}
	result, err := s.app.GetResult(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetResultResponse{Entries: result}), nil
}

// ListRaces returns the race catalog with display metadata
func (s *Service) ListRaces(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[RacesResponse], error) {
	return connect.NewResponse(&RacesResponse{Races: s.app.Catalog()}), nil
}

func parseDraftID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, toConnectError(fmt.Errorf("%w: draft id %q: %v", ErrInvalidArgument, raw, err))
	}
	return id, nil
}

// toConnectError maps draft errors onto connect codes and tags the response
// with the error kind.
func toConnectError(err error) *connect.Error {
	var (
		code = connect.CodeInternal
		kind = engine.Kind(err)
	)
	switch {
	case errors.Is(err, ErrInvalidArgument):
		code, kind = connect.CodeInvalidArgument, "InvalidArgument"
	case errors.Is(err, engine.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, engine.ErrUnauthorized):
		code = connect.CodePermissionDenied
	case errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrInsufficientParticipants),
		errors.Is(err, engine.ErrOutOfTurn):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, engine.ErrAlreadyPicked):
		code = connect.CodeAlreadyExists
	case errors.Is(err, engine.ErrUnavailable):
		code = connect.CodeAborted
	case errors.Is(err, engine.ErrDraftFull):
		code = connect.CodeResourceExhausted
	}

	cerr := connect.NewError(code, err)
	if kind != "" {
		cerr.Meta().Set(ErrorKindHeader, kind)
	}
	return cerr
}

// ErrorKind returns the draft error kind carried by a DraftService error,
// or "" when there is none.
func ErrorKind(err error) string {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return ""
	}
	return cerr.Meta().Get(ErrorKindHeader)
}

func draftToMsg(v *DraftView) DraftMsg {
	excluded := make([]string, len(v.Draft.ExcludedRaces))
	for i, r := range v.Draft.ExcludedRaces {
		excluded[i] = r.String()
	}
	participants := make([]ParticipantMsg, len(v.Participants))
	for i, p := range v.Participants {
		participants[i] = ParticipantMsg{
			ID:           p.ID.String(),
			UserID:       p.UserID,
			Name:         p.Name,
			TurnPosition: p.TurnPosition,
			JoinedAt:     p.JoinedAt,
			LastSeenAt:   p.LastSeenAt,
		}
		if p.Selection != nil {
			sel := p.Selection.String()
			participants[i].Selection = &sel
		}
	}
	return DraftMsg{
		ID:               v.Draft.ID.String(),
		InitiatorID:      v.Draft.InitiatorID,
		Status:           string(v.Draft.Status),
		ExcludedRaces:    excluded,
		ParticipantSlots: v.Draft.ParticipantSlots,
		CurrentTurnIndex: v.Draft.CurrentTurnIndex,
		CreatedAt:        v.Draft.CreatedAt,
		StartedAt:        v.Draft.StartedAt,
		CompletedAt:      v.Draft.CompletedAt,
		Participants:     participants,
		ActiveTurn:       v.ActiveTurn,
	}
}

// Wire messages.

type Empty struct{}

type DraftRequest struct {
	DraftID string `json:"draft_id"`
}

type ParticipantRequest struct {
	DraftID string `json:"draft_id"`
	UserID  string `json:"user_id"`
}

type CreateDraftRequest struct {
	InitiatorID      string   `json:"initiator_id"`
	InitiatorName    string   `json:"initiator_name"`
	ExcludedRaces    []string `json:"excluded_races"`
	ParticipantSlots int      `json:"participant_slots"`
}

type JoinDraftRequest struct {
	DraftID string `json:"draft_id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
}

type CommitPickRequest struct {
	DraftID string `json:"draft_id"`
	UserID  string `json:"user_id"`
	Race    string `json:"race"`
}

type DraftResponse struct {
	Draft DraftMsg `json:"draft"`
}

type GetActiveTurnResponse struct {
	ActiveTurn *ActiveTurn `json:"active_turn"`
}

type RacesResponse struct {
	Races []models.RaceInfo `json:"races"`
}

type GetResultResponse struct {
	Entries []engine.ResultEntry `json:"entries"`
}

type DraftMsg struct {
	ID               string           `json:"id"`
	InitiatorID      string           `json:"initiator_id"`
	Status           string           `json:"status"`
	ExcludedRaces    []string         `json:"excluded_races"`
	ParticipantSlots int              `json:"participant_slots"`
	CurrentTurnIndex int              `json:"current_turn_index"`
	CreatedAt        time.Time        `json:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Participants     []ParticipantMsg `json:"participants"`
	ActiveTurn       *ActiveTurn      `json:"active_turn,omitempty"`
}

type ParticipantMsg struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	TurnPosition int       `json:"turn_position"`
	Selection    *string   `json:"selection,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}
