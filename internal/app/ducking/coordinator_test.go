package ducking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fadeCall struct {
	cueID string
	to    float64
}

type fakeMixer struct {
	targets []Target
	volumes map[string]float64
	fades   []fadeCall
}

func newFakeMixer(targets ...Target) *fakeMixer {
	m := &fakeMixer{targets: targets, volumes: make(map[string]float64)}
	for _, t := range targets {
		m.volumes[t.CueID] = t.Volume
	}
	return m
}

func (m *fakeMixer) Targets() []Target { return m.targets }

func (m *fakeMixer) FadeVolume(cueID string, to float64, d time.Duration) {
	m.fades = append(m.fades, fadeCall{cueID: cueID, to: to})
	m.volumes[cueID] = to
}

func TestCoordinator_ApplyDucksEnabledTargetsOnly(t *testing.T) {
	m := newFakeMixer(
		Target{CueID: "bed", Volume: 0.8, Enabled: true},
		Target{CueID: "sfx", Volume: 1, Enabled: false},
		Target{CueID: "voice", Volume: 1, Enabled: true},
	)
	c := New(m, time.Second)

	c.Apply("voice", 50)

	assert.InDelta(t, 0.4, m.volumes["bed"], 1e-9)
	assert.Equal(t, 1.0, m.volumes["sfx"])
	assert.Equal(t, 1.0, m.volumes["voice"], "a trigger never ducks itself")

	ducked, by, before := c.State("bed")
	assert.True(t, ducked)
	assert.Equal(t, "voice", by)
	assert.Equal(t, 0.8, before)
}

func TestCoordinator_ApplyIsIdempotent(t *testing.T) {
	m := newFakeMixer(Target{CueID: "bed", Volume: 1, Enabled: true})
	c := New(m, time.Second)

	c.Apply("voice", 70)
	once := m.volumes["bed"]
	c.Apply("voice", 70)

	assert.InDelta(t, once, m.volumes["bed"], 1e-9)
	assert.InDelta(t, 0.3, m.volumes["bed"], 1e-9)
	assert.Len(t, m.fades, 1)
}

func TestCoordinator_RevertWithoutDuckIsNoop(t *testing.T) {
	m := newFakeMixer(Target{CueID: "bed", Volume: 1, Enabled: true})
	c := New(m, time.Second)

	c.Revert("voice")

	assert.Empty(t, m.fades)
	assert.Equal(t, 1.0, c.Factor("bed"))
}

func TestCoordinator_RevertRestoresOwnVolume(t *testing.T) {
	m := newFakeMixer(Target{CueID: "bed", Volume: 0.6, Enabled: true})
	c := New(m, time.Second)

	c.Apply("voice", 50)
	c.Revert("voice")

	assert.InDelta(t, 0.6, m.volumes["bed"], 1e-9)
	ducked, _, _ := c.State("bed")
	assert.False(t, ducked)
	assert.False(t, c.IsActiveTrigger("voice"))
}

func TestCoordinator_MultipleTriggers(t *testing.T) {
	tests := []struct {
		name        string
		revertOrder []string
		afterFirst  float64
	}{
		{name: "latest stops first", revertOrder: []string{"b", "a"}, afterFirst: 0.5},
		{name: "earliest stops first", revertOrder: []string{"a", "b"}, afterFirst: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMixer(Target{CueID: "bed", Volume: 1, Enabled: true})
			c := New(m, time.Second)

			c.Apply("a", 50)
			c.Apply("b", 80)
			assert.InDelta(t, 0.2, m.volumes["bed"], 1e-9)

			c.Revert(tt.revertOrder[0])
			assert.InDelta(t, tt.afterFirst, m.volumes["bed"], 1e-9)
			assert.InDelta(t, tt.afterFirst, c.Factor("bed"), 1e-9)

			c.Revert(tt.revertOrder[1])
			assert.InDelta(t, 1.0, m.volumes["bed"], 1e-9)
			assert.Equal(t, 1.0, c.Factor("bed"))
		})
	}
}

func TestCoordinator_JoinInheritsActiveTrigger(t *testing.T) {
	m := newFakeMixer()
	c := New(m, time.Second)
	c.Apply("voice", 25)

	assert.InDelta(t, 0.75, c.Join("bed", 1, true), 1e-9)
	assert.Equal(t, 1.0, c.Join("sfx", 1, false))
	assert.Equal(t, 1.0, c.Join("voice", 1, true), "trigger joining itself is not ducked")

	c.Revert("voice")
	assert.InDelta(t, 1.0, m.volumes["bed"], 1e-9)
}

func TestCoordinator_LeaveRevertsActiveTrigger(t *testing.T) {
	m := newFakeMixer(Target{CueID: "bed", Volume: 1, Enabled: true})
	c := New(m, time.Second)

	c.Apply("voice", 50)
	c.Leave("voice")

	assert.InDelta(t, 1.0, m.volumes["bed"], 1e-9)
	assert.False(t, c.IsActiveTrigger("voice"))

	c.Apply("voice", 50)
	c.Leave("bed")
	ducked, _, _ := c.State("bed")
	assert.False(t, ducked)
}

func TestCoordinator_LevelIsClamped(t *testing.T) {
	m := newFakeMixer(Target{CueID: "bed", Volume: 1, Enabled: true})
	c := New(m, time.Second)

	c.Apply("voice", 150)
	assert.InDelta(t, 0.0, m.volumes["bed"], 1e-9)

	c.Reset()
	assert.Equal(t, 1.0, c.Factor("bed"))
}
