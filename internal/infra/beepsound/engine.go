// Package beepsound implements the sound engine on top of faiface/beep.
package beepsound

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/domain/sound"
)

// ErrUnsupportedFormat is returned for files no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Config represents speaker configuration.
type Config struct {
	SampleRate int
	Buffer     time.Duration
}

// output is where attached streamers are mixed. The speaker in production.
type output interface {
	Lock()
	Unlock()
	Play(s ...beep.Streamer)
	Clear()
}

type speakerOutput struct{}

func (speakerOutput) Lock()                   { speaker.Lock() }
func (speakerOutput) Unlock()                 { speaker.Unlock() }
func (speakerOutput) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerOutput) Clear()                  { speaker.Clear() }

// Engine plays sounds through the default speaker.
type Engine struct {
	out      output
	rate     beep.SampleRate
	quality  int
	fadeStep time.Duration
	decode   func(path string) (beep.StreamSeekCloser, beep.Format, error)
}

// New initializes the speaker and returns an engine writing to it.
func New(cfg Config) (*Engine, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100 * time.Millisecond
	}
	rate := beep.SampleRate(cfg.SampleRate)
	if err := speaker.Init(rate, rate.N(cfg.Buffer)); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}
	zlog.Info().Msgf("beepsound: speaker ready: rate=%d buffer=%s", cfg.SampleRate, cfg.Buffer)
	return &Engine{
		out:      speakerOutput{},
		rate:     rate,
		quality:  4,
		fadeStep: 20 * time.Millisecond,
		decode:   decodeFile,
	}, nil
}

// Close stops all output.
func (e *Engine) Close() {
	e.out.Clear()
}

// Open starts decoding path in the background. The listener receives
// EventLoaded or EventLoadError once decoding finishes.
func (e *Engine) Open(path string, opts sound.Options, listener sound.Listener) sound.Handle {
	if opts.Device != "" {
		zlog.Warn().Msgf("beepsound: output device selection is not supported, using default: device=%s", opts.Device)
	}
	h := newHandle(e, path, opts, listener)
	go h.load()
	return h
}

func decodeFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(err, "failed to open %s", path)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav", ".wave":
		s, format, err = wav.Decode(f)
	case ".ogg", ".oga":
		s, format, err = vorbis.Decode(f)
	default:
		err = errors.Wrapf(ErrUnsupportedFormat, "%s", filepath.Ext(path))
	}
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, errors.Wrapf(err, "failed to decode %s", path)
	}
	return closeBoth{s, f}, format, nil
}

// closeBoth closes the decoder and the file underneath it.
type closeBoth struct {
	beep.StreamSeekCloser
	file io.Closer
}

func (c closeBoth) Close() error {
	err := c.StreamSeekCloser.Close()
	if ferr := c.file.Close(); ferr != nil && err == nil && !errors.Is(ferr, os.ErrClosed) {
		err = ferr
	}
	return err
}
