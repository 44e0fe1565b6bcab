package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/draft/draft"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/draft/outbox"
	"github.com/mcdev12/racedraft/go/internal/draft/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayEnv struct {
	app   *draft.App
	repo  *repository.Memory
	svc   *Service
	srv   *httptest.Server
	clock *clockwork.FakeClock
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClock()
	repo := repository.NewMemory(clock)
	app := draft.NewApp(repo, catalog.Default(), clock, engine.NewSeededSource(3), draft.DefaultConfig())

	svc, err := NewService(ctx, DefaultConfig(), app, nil, clock)
	require.NoError(t, err)
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &gatewayEnv{app: app, repo: repo, svc: svc, srv: srv, clock: clock}
}

// startedDraft creates a draft for users and starts it, discarding the
// events written so far.
func (e *gatewayEnv) startedDraft(t *testing.T, users ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	view, err := e.app.CreateDraft(ctx, draft.CreateDraftParams{InitiatorID: users[0], InitiatorName: users[0]})
	require.NoError(t, err)
	for _, u := range users[1:] {
		_, err := e.app.JoinDraft(ctx, view.Draft.ID, u, u)
		require.NoError(t, err)
	}
	_, err = e.app.StartDraft(ctx, view.Draft.ID, users[0])
	require.NoError(t, err)
	e.drainOutbox(t)
	return view.Draft.ID
}

// drainOutbox marks pending rows as sent and returns them as envelopes.
func (e *gatewayEnv) drainOutbox(t *testing.T) []events.Envelope {
	t.Helper()
	ctx := context.Background()
	rows, err := e.repo.FetchUnsentOutbox(ctx, 100)
	require.NoError(t, err)
	out := make([]events.Envelope, len(rows))
	for i, row := range rows {
		out[i] = outbox.NewEnvelope(row)
		require.NoError(t, e.repo.MarkOutboxSent(ctx, row.ID))
	}
	return out
}

func (e *gatewayEnv) dial(t *testing.T, draftID uuid.UUID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/draft?draft_id=" + draftID.String() + "&user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) DraftEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev DraftEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestConnectSendsSnapshotAndOptions(t *testing.T) {
	env := newGatewayEnv(t)
	draftID := env.startedDraft(t, "a", "b")

	active := env.dial(t, draftID, "a")
	snapshot := readEvent(t, active)
	require.Equal(t, EventTypeStateSnapshot, snapshot.Type)
	payload, err := ParseEventPayload(&snapshot)
	require.NoError(t, err)
	assert.Equal(t, "a", payload.(*StateSnapshotPayload).Draft.ActiveTurn.UserID)

	options := readEvent(t, active)
	require.Equal(t, EventTypeRoundOptions, options.Type)
	var round RoundOptionsPayload
	require.NoError(t, json.Unmarshal(options.Data, &round))
	assert.Equal(t, "a", round.UserID)
	require.Len(t, round.Options, 3)

	current, err := env.app.GetOptions(context.Background(), draftID)
	require.NoError(t, err)
	for i, o := range round.Options {
		assert.Equal(t, current[i], o.Name)
	}
}

func TestPickBroadcastsAndPushesNextOptions(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()
	draftID := env.startedDraft(t, "a", "b")

	connA := env.dial(t, draftID, "a")
	readEvent(t, connA) // snapshot
	readEvent(t, connA) // options
	connB := env.dial(t, draftID, "b")
	require.Equal(t, EventTypeStateSnapshot, readEvent(t, connB).Type)

	options, err := env.app.GetOptions(ctx, draftID)
	require.NoError(t, err)
	_, err = env.app.CommitPick(ctx, draftID, "a", options[0])
	require.NoError(t, err)

	for _, envl := range env.drainOutbox(t) {
		require.NoError(t, env.svc.HandleEvent(ctx, envl))
	}

	assert.Equal(t, EventTypePickMade, readEvent(t, connA).Type)
	assert.Equal(t, EventTypeTurnAdvanced, readEvent(t, connA).Type)

	assert.Equal(t, EventTypePickMade, readEvent(t, connB).Type)
	assert.Equal(t, EventTypeTurnAdvanced, readEvent(t, connB).Type)
	next := readEvent(t, connB)
	require.Equal(t, EventTypeRoundOptions, next.Type)
	var round RoundOptionsPayload
	require.NoError(t, json.Unmarshal(next.Data, &round))
	assert.Equal(t, 1, round.TurnIndex)
	for _, o := range round.Options {
		assert.NotEqual(t, options[0], o.Name)
	}
}

func TestRerollPushesToActiveUser(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()
	draftID := env.startedDraft(t, "a", "b")

	connA := env.dial(t, draftID, "a")
	readEvent(t, connA)
	readEvent(t, connA)
	connB := env.dial(t, draftID, "b")
	readEvent(t, connB)

	rerolled, err := env.app.RerollOptions(ctx, draftID, "a")
	require.NoError(t, err)
	for _, envl := range env.drainOutbox(t) {
		require.NoError(t, env.svc.HandleEvent(ctx, envl))
	}

	// The room hears about the reroll but not what was drawn.
	seen := readEvent(t, connB)
	require.Equal(t, EventTypeOptionsRerolled, seen.Type)
	var announced events.OptionsRerolledPayload
	require.NoError(t, json.Unmarshal(seen.Data, &announced))
	assert.Equal(t, "a", announced.UserID)
	assert.Empty(t, announced.Options)
	assert.NotContains(t, string(seen.Data), `"options"`)

	assert.Equal(t, EventTypeOptionsRerolled, readEvent(t, connA).Type)
	pushed := readEvent(t, connA)
	require.Equal(t, EventTypeRoundOptions, pushed.Type)
	var round RoundOptionsPayload
	require.NoError(t, json.Unmarshal(pushed.Data, &round))
	require.Len(t, round.Options, len(rerolled))
	for i, o := range round.Options {
		assert.Equal(t, rerolled[i], o.Name)
	}
}

func TestClientHeartbeat(t *testing.T) {
	env := newGatewayEnv(t)
	draftID := env.startedDraft(t, "a", "b")

	conn := env.dial(t, draftID, "b")
	readEvent(t, conn)

	env.clock.Advance(time.Minute)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: ClientMessageHeartbeat}))

	assert.Eventually(t, func() bool {
		view, err := env.app.GetDraft(context.Background(), draftID)
		if err != nil {
			return false
		}
		return view.Participants[1].LastSeenAt.Equal(env.clock.Now())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionStats(t *testing.T) {
	env := newGatewayEnv(t)
	draftID := env.startedDraft(t, "a", "b")
	conn := env.dial(t, draftID, "b")
	readEvent(t, conn)

	resp, err := http.Get(env.srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.DraftConnections[draftID.String()])
}

func TestStateHandler(t *testing.T) {
	env := newGatewayEnv(t)
	draftID := env.startedDraft(t, "a", "b")

	resp, err := http.Get(env.srv.URL + "/api/drafts/" + draftID.String() + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state DraftStateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, "a", state.Draft.ActiveTurn.UserID)
	assert.Len(t, state.Options, 3)
	assert.Equal(t, 0, state.CompletedPicks)

	bad, err := http.Get(env.srv.URL + "/api/drafts/nope/state")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	missing, err := http.Get(env.srv.URL + "/api/drafts/" + uuid.NewString() + "/state")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestEnvelopeConversion(t *testing.T) {
	env := events.Envelope{EventID: "e1", EventType: events.TypePickMade, DraftID: "d1", Payload: json.RawMessage(`{"race":"Orcs"}`)}
	ev, err := envelopeToDraftEvent(env)
	require.NoError(t, err)
	payload, err := ParseEventPayload(ev)
	require.NoError(t, err)
	assert.Equal(t, "Orcs", payload.(*events.PickMadePayload).Race)

	_, err = envelopeToDraftEvent(events.Envelope{EventType: "Mystery"})
	assert.Error(t, err)
}

func TestEventConsumerProcessMessage(t *testing.T) {
	var got []events.Envelope
	ec := &EventConsumer{handler: func(ctx context.Context, env events.Envelope) error {
		got = append(got, env)
		return nil
	}}

	require.NoError(t, ec.processMessage(context.Background(), []byte(`{"eventId":"1","eventType":"TurnAdvanced","draftId":"d"}`)))
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeTurnAdvanced, got[0].EventType)

	assert.Error(t, ec.processMessage(context.Background(), []byte(`not json`)))
}
