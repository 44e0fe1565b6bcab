package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/racedraft/go/internal/draft/draft"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DraftStateResponse is the REST snapshot clients use to resynchronise
// after a reconnect or a stale pick.
type DraftStateResponse struct {
	Draft          *draft.DraftView  `json:"draft"`
	Options        []models.RaceInfo `json:"options"`
	CompletedPicks int               `json:"completed_picks"`
}

// StateHandler handles HTTP requests for draft state
type StateHandler struct {
	app DraftApp
}

// NewStateHandler creates a new state handler
func NewStateHandler(app DraftApp) *StateHandler {
	return &StateHandler{app: app}
}

// HandleGetDraftState handles GET /api/drafts/{id}/state
func (h *StateHandler) HandleGetDraftState(w http.ResponseWriter, r *http.Request) {
	draftID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid draft ID format", http.StatusBadRequest)
		return
	}

	view, err := h.app.GetDraft(r.Context(), draftID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			http.Error(w, "Draft not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("draft_id", draftID.String()).Msg("failed to get draft state")
		http.Error(w, "Failed to get draft state", http.StatusInternalServerError)
		return
	}

	options, err := h.app.GetOptions(r.Context(), draftID)
	if err != nil {
		log.Error().Err(err).Str("draft_id", draftID.String()).Msg("failed to get draft options")
		http.Error(w, "Failed to get draft state", http.StatusInternalServerError)
		return
	}

	resp := DraftStateResponse{
		Draft:   view,
		Options: h.app.RaceInfos(options),
	}
	for _, p := range view.Participants {
		if p.HasPicked() {
			resp.CompletedPicks++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode draft state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/drafts/{id}/state", h.HandleGetDraftState)
}
