package sequencer

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuedeck/internal/domain/cue"
)

func newTestSequencer() *Sequencer {
	return New(rand.New(rand.NewPCG(7, 11)))
}

func TestSequencer_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		logical    int
		settings   Settings
		wantAction Action
		wantIndex  int
	}{
		{
			name:       "continue advances",
			logical:    0,
			settings:   Settings{Mode: cue.PlayModeContinue},
			wantAction: ActionAdvance,
			wantIndex:  1,
		},
		{
			name:       "continue at end without loop stops",
			logical:    2,
			settings:   Settings{Mode: cue.PlayModeContinue},
			wantAction: ActionStop,
			wantIndex:  -1,
		},
		{
			name:       "continue at end with loop wraps",
			logical:    2,
			settings:   Settings{Mode: cue.PlayModeContinue, Loop: true},
			wantAction: ActionLoopFromStart,
			wantIndex:  0,
		},
		{
			name:       "cue next stages following item",
			logical:    0,
			settings:   Settings{Mode: cue.PlayModeStopAndCueNext},
			wantAction: ActionCueNext,
			wantIndex:  1,
		},
		{
			name:       "cue next at end without loop stops",
			logical:    2,
			settings:   Settings{Mode: cue.PlayModeStopAndCueNext},
			wantAction: ActionStop,
			wantIndex:  -1,
		},
		{
			name:       "cue next at end with loop stages first",
			logical:    2,
			settings:   Settings{Mode: cue.PlayModeStopAndCueNext, Loop: true},
			wantAction: ActionCueNext,
			wantIndex:  0,
		},
		{
			name:       "repeat one re-cues same index",
			logical:    1,
			settings:   Settings{Mode: cue.PlayModeContinue, RepeatOne: true},
			wantAction: ActionCueNext,
			wantIndex:  1,
		},
		{
			name:       "repeat one wins over loop at end",
			logical:    2,
			settings:   Settings{Mode: cue.PlayModeContinue, RepeatOne: true, Loop: true},
			wantAction: ActionCueNext,
			wantIndex:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestSequencer().Resolve(nil, tt.logical, 3, tt.settings)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantIndex, d.Index)
		})
	}
}

func TestSequencer_ShuffleRegeneratedOnlyOnWrap(t *testing.T) {
	s := newTestSequencer()
	set := Settings{Mode: cue.PlayModeContinue, Loop: true, Shuffle: true}
	order := s.NewOrder(5, true)
	require.True(t, order.IsPermutation(5))

	mid := s.Resolve(order, 1, 5, set)
	assert.Equal(t, order, mid.Order, "mid-sequence must keep the order")

	wrapped := s.Resolve(order, 4, 5, set)
	assert.Equal(t, ActionLoopFromStart, wrapped.Action)
	assert.True(t, wrapped.Order.IsPermutation(5))
}

func TestSequencer_NewOrder(t *testing.T) {
	s := newTestSequencer()
	assert.Nil(t, s.NewOrder(4, false))
	assert.True(t, s.NewOrder(4, true).IsPermutation(4))
}

func TestPeek(t *testing.T) {
	set := Settings{Mode: cue.PlayModeContinue}
	idx, ok := Peek(0, 3, set)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = Peek(2, 3, set)
	assert.False(t, ok)

	set.Loop = true
	idx, ok = Peek(2, 3, set)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	set.RepeatOne = true
	idx, _ = Peek(1, 3, set)
	assert.Equal(t, 1, idx)

	_, ok = Peek(0, 0, set)
	assert.False(t, ok)
}

func TestSettingsFor(t *testing.T) {
	c := &cue.Cue{Loop: true, Shuffle: true}
	set := SettingsFor(c, cue.PlayModeStopAndCueNext)
	assert.Equal(t, cue.PlayModeStopAndCueNext, set.Mode)
	assert.True(t, set.Loop)
	assert.True(t, set.Shuffle)

	c.PlayMode = cue.PlayModeContinue
	assert.Equal(t, cue.PlayModeContinue, SettingsFor(c, cue.PlayModeStopAndCueNext).Mode)

	assert.Equal(t, cue.PlayModeContinue, SettingsFor(&cue.Cue{}, "").Mode)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "cue_next", ActionCueNext.String())
	assert.True(t, ActionLoopFromStart.Plays())
	assert.False(t, ActionStop.Plays())
}
