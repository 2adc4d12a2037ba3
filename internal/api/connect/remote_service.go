package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/cuedeck/internal/app/notification"
	"github.com/osa030/cuedeck/internal/app/playback"
	"github.com/osa030/cuedeck/internal/app/workspace"
	"github.com/osa030/cuedeck/internal/domain/cue"
)

// RemoteServiceName is the fully-qualified name of the remote service.
const RemoteServiceName = "cuedeck.remote.v1.RemoteService"

// Procedure paths of the remote service.
const (
	ToggleProcedure           = "/" + RemoteServiceName + "/Toggle"
	PlayProcedure             = "/" + RemoteServiceName + "/Play"
	ResumeProcedure           = "/" + RemoteServiceName + "/Resume"
	StopProcedure             = "/" + RemoteServiceName + "/Stop"
	PauseProcedure            = "/" + RemoteServiceName + "/Pause"
	StopAllProcedure          = "/" + RemoteServiceName + "/StopAll"
	SeekProcedure             = "/" + RemoteServiceName + "/Seek"
	NextProcedure             = "/" + RemoteServiceName + "/Next"
	PreviousProcedure         = "/" + RemoteServiceName + "/Previous"
	GetPlaybackStateProcedure = "/" + RemoteServiceName + "/GetPlaybackState"
	OpenWorkspaceProcedure    = "/" + RemoteServiceName + "/OpenWorkspace"
	WatchStatusProcedure      = "/" + RemoteServiceName + "/WatchStatus"
)

// RemoteService implements the remote trigger and status RPCs.
type RemoteService struct {
	workspace *workspace.Manager
}

// NewRemoteService creates a new RemoteService.
func NewRemoteService(ws *workspace.Manager) *RemoteService {
	return &RemoteService{workspace: ws}
}

// NewRemoteServiceHandler builds an HTTP handler serving every procedure
// and returns the path prefix to mount it on.
func NewRemoteServiceHandler(svc *RemoteService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ToggleProcedure, connect.NewUnaryHandler(ToggleProcedure, svc.Toggle, opts...))
	mux.Handle(PlayProcedure, connect.NewUnaryHandler(PlayProcedure, svc.Play, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(StopAllProcedure, connect.NewUnaryHandler(StopAllProcedure, svc.StopAll, opts...))
	mux.Handle(SeekProcedure, connect.NewUnaryHandler(SeekProcedure, svc.Seek, opts...))
	mux.Handle(NextProcedure, connect.NewUnaryHandler(NextProcedure, svc.Next, opts...))
	mux.Handle(PreviousProcedure, connect.NewUnaryHandler(PreviousProcedure, svc.Previous, opts...))
	mux.Handle(GetPlaybackStateProcedure, connect.NewUnaryHandler(GetPlaybackStateProcedure, svc.GetPlaybackState, opts...))
	mux.Handle(OpenWorkspaceProcedure, connect.NewUnaryHandler(OpenWorkspaceProcedure, svc.OpenWorkspace, opts...))
	mux.Handle(WatchStatusProcedure, connect.NewServerStreamHandler(WatchStatusProcedure, svc.WatchStatus, opts...))
	return "/" + RemoteServiceName + "/", mux
}

func (s *RemoteService) engine() (*playback.Engine, error) {
	engine, err := s.workspace.Engine()
	if err != nil {
		return nil, toConnectError(err)
	}
	return engine, nil
}

// withCue decodes a cue request and runs fn against the open engine.
func (s *RemoteService) withCue(msg *structpb.Struct, fn func(*playback.Engine, string) error) (*connect.Response[emptypb.Empty], error) {
	var r cueRequest
	if err := decodeRequest(msg, &r); err != nil {
		return nil, err
	}
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	if err := fn(engine, r.CueID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Toggle triggers a cue, applying its retrigger behavior when active.
func (s *RemoteService) Toggle(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var r toggleRequest
	if err := decodeRequest(req.Msg, &r); err != nil {
		return nil, err
	}
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("remote: toggle: cue=%s retrigger=%s", r.CueID, r.Retrigger)
	if err := engine.Toggle(r.CueID, cue.Retrigger(r.Retrigger)); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Play starts a cue from the beginning.
func (s *RemoteService) Play(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	return s.withCue(req.Msg, func(e *playback.Engine, id string) error {
		return e.Play(id, false)
	})
}

// Resume continues a paused or cued cue.
func (s *RemoteService) Resume(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	return s.withCue(req.Msg, func(e *playback.Engine, id string) error {
		return e.Play(id, true)
	})
}

// Stop stops a cue and its independent instances.
func (s *RemoteService) Stop(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var r stopRequest
	if err := decodeRequest(req.Msg, &r); err != nil {
		return nil, err
	}
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	if err := engine.Stop(r.CueID, r.Fade); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Pause pauses a playing cue.
func (s *RemoteService) Pause(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	return s.withCue(req.Msg, func(e *playback.Engine, id string) error {
		return e.Pause(id)
	})
}

// StopAll stops everything, fading out unless fade is false.
func (s *RemoteService) StopAll(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var r stopAllRequest
	if err := decodeRequest(req.Msg, &r); err != nil {
		return nil, err
	}
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	engine.StopAll(*r.Fade)
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Seek moves a cue to a position relative to its trim start.
func (s *RemoteService) Seek(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var r seekRequest
	if err := decodeRequest(req.Msg, &r); err != nil {
		return nil, err
	}
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	pos := time.Duration(r.PositionMs * float64(time.Millisecond))
	if err := engine.Seek(r.CueID, pos); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Next moves a playlist to its next item.
func (s *RemoteService) Next(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	return s.withCue(req.Msg, func(e *playback.Engine, id string) error {
		return e.Next(id)
	})
}

// Previous moves a playlist to its previous item.
func (s *RemoteService) Previous(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	return s.withCue(req.Msg, func(e *playback.Engine, id string) error {
		return e.Previous(id)
	})
}

// GetPlaybackState returns the state of one cue, or of every active cue
// when the cue ID is empty.
func (s *RemoteService) GetPlaybackState(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}

	var snaps []playback.Snapshot
	if id := req.Msg.GetValue(); id != "" {
		snap, ok := engine.GetPlaybackState(id)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, playback.ErrNotActive)
		}
		snaps = append(snaps, snap)
	} else {
		snaps = engine.ActiveCues()
	}

	msg, err := structpb.NewStruct(map[string]any{
		"workspace": s.workspace.Path(),
		"cues":      encodeSnapshots(snaps),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// OpenWorkspace switches to another cue file and returns its path.
func (s *RemoteService) OpenWorkspace(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	path := req.Msg.GetValue()
	if path == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errInvalidPath)
	}
	if err := s.workspace.Open(path); err != nil {
		if errors.Is(err, workspace.ErrClosed) {
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}
	zlog.Info().Msgf("remote: workspace opened: path=%s", path)
	return connect.NewResponse(wrapperspb.String(s.workspace.Path())), nil
}

// WatchStatus streams the active cues once, then every playback event.
func (s *RemoteService) WatchStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	notifManager := s.workspace.GetNotificationManager()
	sequenceNo := notifManager.NextSequenceNo()

	var snaps []playback.Snapshot
	if engine, err := s.workspace.Engine(); err == nil {
		snaps = engine.ActiveCues()
	}
	initial, err := structpb.NewStruct(map[string]any{
		"sequence_no": sequenceNo,
		"type":        "initial_state",
		"workspace":   s.workspace.Path(),
		"cues":        encodeSnapshots(snaps),
	})
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	if err := stream.Send(initial); err != nil {
		return err
	}

	adapter := &notificationStreamAdapter{stream: stream}
	subscriptionID := notifManager.Subscribe(adapter)
	defer notifManager.Unsubscribe(subscriptionID)
	// connect closes the stream once this handler returns.
	defer adapter.close()

	select {
	case <-ctx.Done():
	case <-s.workspace.Done():
	}
	return nil
}

var errStreamClosed = errors.New("watch stream closed")

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// A send that timed out may still be running when the next one starts, or
// when WatchStatus returns.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	closed bool
	stream *connect.ServerStream[structpb.Struct]
}

var _ notification.Stream = (*notificationStreamAdapter)(nil)

func (a *notificationStreamAdapter) Send(msg *structpb.Struct) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errStreamClosed
	}
	return a.stream.Send(msg)
}

// close waits for an in-flight send and rejects later ones.
func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}
