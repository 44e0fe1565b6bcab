package draft

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/catalog"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cat *catalog.Catalog) *Client {
	t.Helper()
	clock := clockwork.NewFakeClock()
	app := NewApp(repository.NewMemory(clock), cat, clock, engine.NewSeededSource(11), DefaultConfig())

	mux := http.NewServeMux()
	path, handler := NewDraftServiceHandler(NewService(app))
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL)
}

func TestServiceDraftRoundTrip(t *testing.T) {
	client := newTestServer(t, catalog.Default())
	ctx := context.Background()

	created, err := client.CreateDraft(ctx, &CreateDraftRequest{
		InitiatorID:      "host",
		InitiatorName:    "Host",
		ExcludedRaces:    []string{"Goblins"},
		ParticipantSlots: 2,
	})
	require.NoError(t, err)
	draftID := created.Draft.ID
	assert.Equal(t, "PENDING", created.Draft.Status)
	assert.Equal(t, []string{"Goblins"}, created.Draft.ExcludedRaces)

	_, err = client.JoinDraft(ctx, &JoinDraftRequest{DraftID: draftID, UserID: "guest", Name: "Guest"})
	require.NoError(t, err)
	require.NoError(t, client.Heartbeat(ctx, &ParticipantRequest{DraftID: draftID, UserID: "guest"}))

	started, err := client.StartDraft(ctx, &ParticipantRequest{DraftID: draftID, UserID: "host"})
	require.NoError(t, err)
	require.NotNil(t, started.Draft.ActiveTurn)
	assert.Equal(t, "host", started.Draft.ActiveTurn.UserID)

	options, err := client.GetOptions(ctx, &DraftRequest{DraftID: draftID})
	require.NoError(t, err)
	require.Len(t, options.Races, 3)
	assert.NotEmpty(t, options.Races[0].Emoji)

	rerolled, err := client.RerollOptions(ctx, &ParticipantRequest{DraftID: draftID, UserID: "host"})
	require.NoError(t, err)
	require.Len(t, rerolled.Races, 3)

	picked, err := client.CommitPick(ctx, &CommitPickRequest{DraftID: draftID, UserID: "host", Race: string(rerolled.Races[0].Name)})
	require.NoError(t, err)
	require.NotNil(t, picked.Draft.Participants[0].Selection)

	turn, err := client.GetActiveTurn(ctx, &DraftRequest{DraftID: draftID})
	require.NoError(t, err)
	require.NotNil(t, turn.ActiveTurn)
	assert.Equal(t, "guest", turn.ActiveTurn.UserID)

	available, err := client.AvailableRaces(ctx, &DraftRequest{DraftID: draftID})
	require.NoError(t, err)
	assert.Len(t, available.Races, 22)

	guestOptions, err := client.GetOptions(ctx, &DraftRequest{DraftID: draftID})
	require.NoError(t, err)
	_, err = client.CommitPick(ctx, &CommitPickRequest{DraftID: draftID, UserID: "guest", Race: string(guestOptions.Races[0].Name)})
	require.NoError(t, err)

	result, err := client.GetResult(ctx, &DraftRequest{DraftID: draftID})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "host", result.Entries[0].UserID)

	got, err := client.GetDraft(ctx, &DraftRequest{DraftID: draftID})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", got.Draft.Status)
	assert.Nil(t, got.Draft.ActiveTurn)
}

func TestServiceErrors(t *testing.T) {
	client := newTestServer(t, catalog.New("X", "Y", "Z"))
	ctx := context.Background()

	created, err := client.CreateDraft(ctx, &CreateDraftRequest{InitiatorID: "a", InitiatorName: "A", ParticipantSlots: 2})
	require.NoError(t, err)
	draftID := created.Draft.ID
	_, err = client.JoinDraft(ctx, &JoinDraftRequest{DraftID: draftID, UserID: "b", Name: "B"})
	require.NoError(t, err)

	_, err = client.JoinDraft(ctx, &JoinDraftRequest{DraftID: draftID, UserID: "c", Name: "C"})
	assertDraftError(t, err, connect.CodeResourceExhausted, "RoomFull")

	_, err = client.StartDraft(ctx, &ParticipantRequest{DraftID: draftID, UserID: "b"})
	assertDraftError(t, err, connect.CodePermissionDenied, "Unauthorized")

	_, err = client.StartDraft(ctx, &ParticipantRequest{DraftID: draftID, UserID: "a"})
	require.NoError(t, err)

	_, err = client.CommitPick(ctx, &CommitPickRequest{DraftID: draftID, UserID: "b", Race: "X"})
	assertDraftError(t, err, connect.CodeFailedPrecondition, "OutOfTurn")

	_, err = client.CommitPick(ctx, &CommitPickRequest{DraftID: draftID, UserID: "a", Race: "X"})
	require.NoError(t, err)

	_, err = client.CommitPick(ctx, &CommitPickRequest{DraftID: draftID, UserID: "b", Race: "X"})
	assertDraftError(t, err, connect.CodeAborted, "Unavailable")

	// An empty race goes through the same ordered checks as any other.
	_, err = client.CommitPick(ctx, &CommitPickRequest{DraftID: draftID, UserID: "a", Race: ""})
	assertDraftError(t, err, connect.CodeFailedPrecondition, "OutOfTurn")
	_, err = client.CommitPick(ctx, &CommitPickRequest{DraftID: draftID, UserID: "b", Race: ""})
	assertDraftError(t, err, connect.CodeAborted, "Unavailable")
	_, err = client.CommitPick(ctx, &CommitPickRequest{DraftID: "6f1c2d9e-1b7a-4a43-9a4e-3f2b1c0d9e8f", UserID: "b", Race: ""})
	assertDraftError(t, err, connect.CodeNotFound, "NotFound")

	_, err = client.GetDraft(ctx, &DraftRequest{DraftID: "not-a-uuid"})
	assertDraftError(t, err, connect.CodeInvalidArgument, "InvalidArgument")

	_, err = client.GetDraft(ctx, &DraftRequest{DraftID: "6f1c2d9e-1b7a-4a43-9a4e-3f2b1c0d9e8f"})
	assertDraftError(t, err, connect.CodeNotFound, "NotFound")

	_, err = client.GetResult(ctx, &DraftRequest{DraftID: draftID})
	assertDraftError(t, err, connect.CodeFailedPrecondition, "InvalidState")
}

func assertDraftError(t *testing.T, err error, code connect.Code, kind string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, connect.CodeOf(err))
	assert.Equal(t, kind, ErrorKind(err))
}

func TestListRaces(t *testing.T) {
	client := newTestServer(t, catalog.Default())
	resp, err := client.ListRaces(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Races, 24)
	assert.Equal(t, "Humans", string(resp.Races[0].Name))
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		code connect.Code
		kind string
	}{
		{fmt.Errorf("%w: x", engine.ErrNotFound), connect.CodeNotFound, "NotFound"},
		{fmt.Errorf("%w: x", engine.ErrInvalidState), connect.CodeFailedPrecondition, "InvalidState"},
		{fmt.Errorf("%w: x", engine.ErrInsufficientParticipants), connect.CodeFailedPrecondition, "InsufficientParticipants"},
		{fmt.Errorf("%w: x", engine.ErrAlreadyPicked), connect.CodeAlreadyExists, "AlreadyPicked"},
		{fmt.Errorf("%w: x", ErrInvalidArgument), connect.CodeInvalidArgument, "InvalidArgument"},
		{errors.New("boom"), connect.CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			cerr := toConnectError(tt.err)
			assert.Equal(t, tt.code, cerr.Code())
			assert.Equal(t, tt.kind, cerr.Meta().Get(ErrorKindHeader))
		})
	}
}
