package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ClientHandler receives presence signals from connected participants.
type ClientHandler interface {
	Heartbeat(ctx context.Context, draftID uuid.UUID, userID string) error
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int // Per-connection queue; a full queue drops the client
	QueueSize       int // Pending broadcasts across all drafts
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      64,
		QueueSize:       1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// room is the set of sockets watching one draft.
type room map[*Connection]struct{}

type delivery struct {
	draftID uuid.UUID
	userID  string // empty means everyone in the room
	event   *DraftEvent
}

// ConnectionManager fans draft events out to the sockets watching each
// draft. Deliveries are queued and written by Start, so callers never block
// on a slow client.
type ConnectionManager struct {
	cfg      ConnectionConfig
	upgrader websocket.Upgrader
	clients  ClientHandler
	clock    clockwork.Clock

	mu    sync.RWMutex
	rooms map[uuid.UUID]room

	queue chan delivery
}

// Connection is one participant's (or spectator's) socket on a draft.
type Connection struct {
	ID          string
	UserID      string
	DraftID     uuid.UUID
	ConnectedAt time.Time

	ws       *websocket.Conn
	cm       *ConnectionManager
	lastPong atomic.Int64

	sendMu sync.Mutex
	send   chan []byte
	closed bool
}

// NewConnectionManager creates a manager. clients may be nil, in which case
// heartbeats are ignored.
func NewConnectionManager(config ConnectionConfig, clients ClientHandler, clock clockwork.Clock) *ConnectionManager {
	return &ConnectionManager{
		cfg: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		clients: clients,
		clock:   clock,
		rooms:   make(map[uuid.UUID]room),
		queue:   make(chan delivery, config.QueueSize),
	}
}

// Start writes queued deliveries until ctx is cancelled, then closes every
// open socket.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			n := cm.closeAll()
			log.Info().Int("connections", n).Msg("connection manager shutting down")
			return
		case d := <-cm.queue:
			cm.deliver(d)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a socket on draftID and
// records the user as present. On failure the upgrader has already written
// an HTTP error response.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, draftID uuid.UUID) (*Connection, error) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.clock.Now()
	c := &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		DraftID:     draftID,
		ConnectedAt: now,
		ws:          ws,
		cm:          cm,
		send:        make(chan []byte, cm.cfg.SendBuffer),
	}
	c.lastPong.Store(now.UnixNano())

	cm.join(c)
	cm.heartbeat(r.Context(), c)

	go c.writeLoop()
	go c.readLoop()

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", userID).
		Str("draft_id", draftID.String()).
		Msg("WebSocket connection established")

	return c, nil
}

func (cm *ConnectionManager) join(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	r := cm.rooms[c.DraftID]
	if r == nil {
		r = make(room)
		cm.rooms[c.DraftID] = r
	}
	r[c] = struct{}{}
}

// leave drops c from its room and stops its writer. Safe to call more than
// once.
func (cm *ConnectionManager) leave(c *Connection) {
	cm.mu.Lock()
	r := cm.rooms[c.DraftID]
	_, present := r[c]
	if present {
		delete(r, c)
		if len(r) == 0 {
			delete(cm.rooms, c.DraftID)
		}
	}
	cm.mu.Unlock()

	c.stop()
	if present {
		log.Info().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Str("draft_id", c.DraftID.String()).
			Msg("connection closed")
	}
}

func (cm *ConnectionManager) closeAll() int {
	cm.mu.Lock()
	var all []*Connection
	for _, r := range cm.rooms {
		for c := range r {
			all = append(all, c)
		}
	}
	cm.rooms = make(map[uuid.UUID]room)
	cm.mu.Unlock()

	for _, c := range all {
		c.stop()
	}
	return len(all)
}

// BroadcastToDraft queues event for every socket on draftID.
func (cm *ConnectionManager) BroadcastToDraft(draftID uuid.UUID, event *DraftEvent) {
	cm.enqueue(delivery{draftID: draftID, event: event})
}

// BroadcastToUser queues event for userID's sockets on draftID only.
func (cm *ConnectionManager) BroadcastToUser(draftID uuid.UUID, userID string, event *DraftEvent) {
	cm.enqueue(delivery{draftID: draftID, userID: userID, event: event})
}

func (cm *ConnectionManager) enqueue(d delivery) {
	select {
	case cm.queue <- d:
	default:
		log.Warn().
			Str("draft_id", d.draftID.String()).
			Str("user_id", d.userID).
			Str("event_type", string(d.event.Type)).
			Msg("broadcast queue full, dropping event")
	}
}

func (cm *ConnectionManager) deliver(d delivery) {
	cm.mu.RLock()
	var targets []*Connection
	for c := range cm.rooms[d.draftID] {
		if d.userID == "" || c.UserID == d.userID {
			targets = append(targets, c)
		}
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(d.event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(d.event.Type)).Msg("failed to marshal event")
		return
	}

	for _, c := range targets {
		if !c.enqueue(data) {
			log.Warn().
				Str("connection_id", c.ID).
				Str("user_id", c.UserID).
				Msg("client is not keeping up, disconnecting")
			cm.leave(c)
		}
	}

	log.Debug().
		Str("event_type", string(d.event.Type)).
		Str("draft_id", d.draftID.String()).
		Int("connections", len(targets)).
		Msg("event delivered")
}

func (cm *ConnectionManager) heartbeat(ctx context.Context, c *Connection) {
	if cm.clients == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cm.cfg.WriteTimeout)
	defer cancel()
	if err := cm.clients.Heartbeat(ctx, c.DraftID, c.UserID); err != nil {
		// Spectators are not participants; nothing to record.
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Msg("heartbeat not recorded")
	}
}

// ConnectionStats summarises the open sockets.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveDrafts     int            `json:"active_drafts"`
	DraftConnections map[string]int `json:"draft_connections"`
	DraftUsers       map[string]int `json:"draft_users"`
}

// GetConnectionStats counts sockets and distinct users per draft.
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveDrafts:     len(cm.rooms),
		DraftConnections: make(map[string]int, len(cm.rooms)),
		DraftUsers:       make(map[string]int, len(cm.rooms)),
	}
	for draftID, r := range cm.rooms {
		users := make(map[string]struct{}, len(r))
		for c := range r {
			users[c.UserID] = struct{}{}
		}
		stats.TotalConnections += len(r)
		stats.DraftConnections[draftID.String()] = len(r)
		stats.DraftUsers[draftID.String()] = len(users)
	}
	return stats
}

// LastPong returns when the client last answered a ping.
func (c *Connection) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// enqueue hands data to the writer without blocking. It reports false when
// the client's queue is full.
func (c *Connection) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) stop() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Connection) writeLoop() {
	ticker := c.cm.clock.NewTicker(c.cm.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cm.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("write failed")
				c.cm.leave(c)
				return
			}

		case <-ticker.Chan():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cm.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("ping failed")
				c.cm.leave(c)
				return
			}
		}
	}
}

func (c *Connection) readLoop() {
	defer func() {
		c.cm.leave(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.cm.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cm.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.lastPong.Store(c.cm.clock.Now().UnixNano())
		return c.ws.SetReadDeadline(time.Now().Add(c.cm.cfg.ReadTimeout))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cm.cfg.ReadTimeout))
		c.handleClientMessage(message)
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		return
	}

	switch msg.Type {
	case ClientMessageHeartbeat:
		c.cm.heartbeat(context.Background(), c)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("ignoring unknown client message")
	}
}
