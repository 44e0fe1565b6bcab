package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// spectatorID is used for sockets that do not name a participant. They see
// draft-wide events but never receive round options.
const spectatorID = "spectator"

// WebSocketHandler serves /ws/draft?draft_id=<uuid>&user_id=<id>.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	dispatcher        *Dispatcher
}

func NewWebSocketHandler(cm *ConnectionManager, dispatcher *Dispatcher) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		dispatcher:        dispatcher,
	}
}

// HandleDraftConnection upgrades the request and sends the caller a state
// snapshot, plus their round options if it is their turn.
func (h *WebSocketHandler) HandleDraftConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	draftID, err := uuid.Parse(q.Get("draft_id"))
	if err != nil {
		http.Error(w, "draft_id must be a UUID", http.StatusBadRequest)
		return
	}
	userID := q.Get("user_id")
	if userID == "" {
		userID = spectatorID
	}

	logger := log.With().Str("draft_id", draftID.String()).Str("user_id", userID).Logger()

	if _, err := h.connectionManager.UpgradeConnection(w, r, userID, draftID); err != nil {
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	if err := h.dispatcher.Sync(r.Context(), draftID, userID); err != nil {
		logger.Warn().Err(err).Msg("failed to send initial draft state")
	}
}

// HandleConnectionStats reports open sockets per draft.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/draft", h.HandleDraftConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
