package draft

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote DraftService.
type Client struct {
	createDraft    *connect.Client[CreateDraftRequest, DraftResponse]
	joinDraft      *connect.Client[JoinDraftRequest, DraftResponse]
	heartbeat      *connect.Client[ParticipantRequest, Empty]
	getDraft       *connect.Client[DraftRequest, DraftResponse]
	startDraft     *connect.Client[ParticipantRequest, DraftResponse]
	getActiveTurn  *connect.Client[DraftRequest, GetActiveTurnResponse]
	getOptions     *connect.Client[DraftRequest, RacesResponse]
	rerollOptions  *connect.Client[ParticipantRequest, RacesResponse]
	commitPick     *connect.Client[CommitPickRequest, DraftResponse]
	availableRaces *connect.Client[DraftRequest, RacesResponse]
	getResult      *connect.Client[DraftRequest, GetResultResponse]
	listRaces      *connect.Client[Empty, RacesResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &Client{
		createDraft:    connect.NewClient[CreateDraftRequest, DraftResponse](httpClient, baseURL+CreateDraftProcedure, opts...),
		joinDraft:      connect.NewClient[JoinDraftRequest, DraftResponse](httpClient, baseURL+JoinDraftProcedure, opts...),
		heartbeat:      connect.NewClient[ParticipantRequest, Empty](httpClient, baseURL+HeartbeatProcedure, opts...),
		getDraft:       connect.NewClient[DraftRequest, DraftResponse](httpClient, baseURL+GetDraftProcedure, opts...),
		startDraft:     connect.NewClient[ParticipantRequest, DraftResponse](httpClient, baseURL+StartDraftProcedure, opts...),
		getActiveTurn:  connect.NewClient[DraftRequest, GetActiveTurnResponse](httpClient, baseURL+GetActiveTurnProcedure, opts...),
		getOptions:     connect.NewClient[DraftRequest, RacesResponse](httpClient, baseURL+GetOptionsProcedure, opts...),
		rerollOptions:  connect.NewClient[ParticipantRequest, RacesResponse](httpClient, baseURL+RerollOptionsProcedure, opts...),
		commitPick:     connect.NewClient[CommitPickRequest, DraftResponse](httpClient, baseURL+CommitPickProcedure, opts...),
		availableRaces: connect.NewClient[DraftRequest, RacesResponse](httpClient, baseURL+AvailableRacesProcedure, opts...),
		getResult:      connect.NewClient[DraftRequest, GetResultResponse](httpClient, baseURL+GetResultProcedure, opts...),
		listRaces:      connect.NewClient[Empty, RacesResponse](httpClient, baseURL+ListRacesProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) CreateDraft(ctx context.Context, req *CreateDraftRequest) (*DraftResponse, error) {
	return unary(ctx, c.createDraft, req)
}

func (c *Client) JoinDraft(ctx context.Context, req *JoinDraftRequest) (*DraftResponse, error) {
	return unary(ctx, c.joinDraft, req)
}

func (c *Client) Heartbeat(ctx context.Context, req *ParticipantRequest) error {
	_, err := unary(ctx, c.heartbeat, req)
	return err
}

func (c *Client) GetDraft(ctx context.Context, req *DraftRequest) (*DraftResponse, error) {
	return unary(ctx, c.getDraft, req)
}

func (c *Client) StartDraft(ctx context.Context, req *ParticipantRequest) (*DraftResponse, error) {
	return unary(ctx, c.startDraft, req)
}

func (c *Client) GetActiveTurn(ctx context.Context, req *DraftRequest) (*GetActiveTurnResponse, error) {
	return unary(ctx, c.getActiveTurn, req)
}

func (c *Client) GetOptions(ctx context.Context, req *DraftRequest) (*RacesResponse, error) {
	return unary(ctx, c.getOptions, req)
}

func (c *Client) RerollOptions(ctx context.Context, req *ParticipantRequest) (*RacesResponse, error) {
	return unary(ctx, c.rerollOptions, req)
}

func (c *Client) CommitPick(ctx context.Context, req *CommitPickRequest) (*DraftResponse, error) {
	return unary(ctx, c.commitPick, req)
}

func (c *Client) AvailableRaces(ctx context.Context, req *DraftRequest) (*RacesResponse, error) {
	return unary(ctx, c.availableRaces, req)
}

func (c *Client) GetResult(ctx context.Context, req *DraftRequest) (*GetResultResponse, error) {
	return unary(ctx, c.getResult, req)
}

func (c *Client) ListRaces(ctx context.Context) (*RacesResponse, error) {
	return unary(ctx, c.listRaces, &Empty{})
}
