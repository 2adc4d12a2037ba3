package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuedeck/internal/app/playback"
	"github.com/osa030/cuedeck/internal/app/workspace"
	"github.com/osa030/cuedeck/internal/domain/cue"
)

// Request payloads carried in a structpb.Struct.

type cueRequest struct {
	CueID string `mapstructure:"cue_id" validate:"required"`
}

type toggleRequest struct {
	CueID     string `mapstructure:"cue_id" validate:"required"`
	Retrigger string `mapstructure:"retrigger" validate:"omitempty,oneof=restart stop fade_out_and_stop fade_stop_restart toggle_pause play_new_instance do_nothing"`
}

type stopRequest struct {
	CueID string `mapstructure:"cue_id" validate:"required"`
	Fade  bool   `mapstructure:"fade"`
}

type stopAllRequest struct {
	Fade *bool `mapstructure:"fade" default:"true"`
}

type seekRequest struct {
	CueID      string  `mapstructure:"cue_id" validate:"required"`
	PositionMs float64 `mapstructure:"position_ms" validate:"gte=0"`
}

var validate = validator.New()

var errInvalidPath = errors.New("workspace path is required")

// decodeRequest decodes msg into out: mapstructure, then defaults, then
// validation. Failures are InvalidArgument errors.
func decodeRequest(msg *structpb.Struct, out any) error {
	if err := mapstructure.Decode(msg.AsMap(), out); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.Wrap(err, "failed to decode request"))
	}
	if err := defaults.Set(out); err != nil {
		return connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to set request defaults"))
	}
	if err := validate.Struct(out); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.Wrap(err, "invalid request"))
	}
	return nil
}

// toConnectError maps engine and workspace errors to RPC codes.
func toConnectError(err error) error {
	var invalid *cue.InvalidError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playback.ErrCueNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &invalid):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, playback.ErrNotActive),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNotPaused),
		errors.Is(err, playback.ErrNoHandle),
		errors.Is(err, playback.ErrNotPlaylist):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, playback.ErrClosed),
		errors.Is(err, workspace.ErrClosed),
		errors.Is(err, workspace.ErrNotOpen):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// encodeSnapshot converts a playback snapshot to its wire form.
func encodeSnapshot(s playback.Snapshot) map[string]any {
	return map[string]any{
		"cue_id":            s.CueID,
		"cue_name":          s.CueName,
		"phase":             s.Phase.String(),
		"fade":              s.Fade.String(),
		"is_playing":        s.IsPlaying,
		"is_paused":         s.IsPaused,
		"is_cued_next":      s.IsCuedNext,
		"is_fading_in":      s.IsFadingIn,
		"is_fading_out":     s.IsFadingOut,
		"position_ms":       s.Position.Milliseconds(),
		"duration_ms":       s.Duration.Milliseconds(),
		"remaining_ms":      s.Remaining.Milliseconds(),
		"item_index":        s.ItemIndex,
		"item_count":        s.ItemCount,
		"is_shuffled":       s.IsShuffled,
		"current_item_name": s.CurrentItemName,
		"next_item_name":    s.NextItemName,
		"is_ducked":         s.IsDucked,
		"ducked_by":         s.DuckedBy,
		"instances":         s.Instances,
	}
}

func encodeSnapshots(snaps []playback.Snapshot) []any {
	list := make([]any, 0, len(snaps))
	for _, s := range snaps {
		list = append(list, encodeSnapshot(s))
	}
	return list
}
