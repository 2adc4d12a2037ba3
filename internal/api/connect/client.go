package connect

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a RemoteService client.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	token      string
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, token string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

func newRequest[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set(RemoteTokenHeader, token)
	return req
}

func (c *Client) command(ctx context.Context, procedure string, args map[string]any) error {
	msg, err := structpb.NewStruct(args)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}
	client := connect.NewClient[structpb.Struct, emptypb.Empty](c.httpClient, c.baseURL+procedure)
	_, err = client.CallUnary(ctx, newRequest(msg, c.token))
	return err
}

// Toggle triggers a cue. An empty retrigger uses the cue's own behavior.
func (c *Client) Toggle(ctx context.Context, cueID, retrigger string) error {
	args := map[string]any{"cue_id": cueID}
	if retrigger != "" {
		args["retrigger"] = retrigger
	}
	return c.command(ctx, ToggleProcedure, args)
}

// Play starts a cue from the beginning.
func (c *Client) Play(ctx context.Context, cueID string) error {
	return c.command(ctx, PlayProcedure, map[string]any{"cue_id": cueID})
}

// Resume continues a paused or cued cue.
func (c *Client) Resume(ctx context.Context, cueID string) error {
	return c.command(ctx, ResumeProcedure, map[string]any{"cue_id": cueID})
}

// Stop stops a cue.
func (c *Client) Stop(ctx context.Context, cueID string, fade bool) error {
	return c.command(ctx, StopProcedure, map[string]any{"cue_id": cueID, "fade": fade})
}

// Pause pauses a cue.
func (c *Client) Pause(ctx context.Context, cueID string) error {
	return c.command(ctx, PauseProcedure, map[string]any{"cue_id": cueID})
}

// StopAll stops every cue.
func (c *Client) StopAll(ctx context.Context, fade bool) error {
	return c.command(ctx, StopAllProcedure, map[string]any{"fade": fade})
}

// Seek moves a cue to pos.
func (c *Client) Seek(ctx context.Context, cueID string, pos time.Duration) error {
	return c.command(ctx, SeekProcedure, map[string]any{
		"cue_id":      cueID,
		"position_ms": float64(pos) / float64(time.Millisecond),
	})
}

// Next moves a playlist forward.
func (c *Client) Next(ctx context.Context, cueID string) error {
	return c.command(ctx, NextProcedure, map[string]any{"cue_id": cueID})
}

// Previous moves a playlist back.
func (c *Client) Previous(ctx context.Context, cueID string) error {
	return c.command(ctx, PreviousProcedure, map[string]any{"cue_id": cueID})
}

// State returns the state of one cue, or of all active cues when cueID is
// empty.
func (c *Client) State(ctx context.Context, cueID string) (map[string]any, error) {
	client := connect.NewClient[wrapperspb.StringValue, structpb.Struct](c.httpClient, c.baseURL+GetPlaybackStateProcedure)
	resp, err := client.CallUnary(ctx, newRequest(wrapperspb.String(cueID), c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

// OpenWorkspace switches the server to another cue file.
func (c *Client) OpenWorkspace(ctx context.Context, path string) (string, error) {
	client := connect.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](c.httpClient, c.baseURL+OpenWorkspaceProcedure)
	resp, err := client.CallUnary(ctx, newRequest(wrapperspb.String(path), c.token))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetValue(), nil
}

// Watch calls fn with every status message until ctx is done or the
// server closes the stream.
func (c *Client) Watch(ctx context.Context, fn func(map[string]any)) error {
	client := connect.NewClient[emptypb.Empty, structpb.Struct](c.httpClient, c.baseURL+WatchStatusProcedure)
	stream, err := client.CallServerStream(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		fn(stream.Msg().AsMap())
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
