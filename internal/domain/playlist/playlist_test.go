package playlist

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/cuedeck/internal/domain/cue"
)

func TestShuffled_IsPermutation(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for n := 0; n <= 25; n++ {
		for round := 0; round < 20; round++ {
			o := Shuffled(n, rng)
			assert.True(t, o.IsPermutation(n), "n=%d order=%v", n, o)
		}
	}
}

func TestOrder_IsPermutation(t *testing.T) {
	tests := []struct {
		name     string
		order    Order
		n        int
		expected bool
	}{
		{name: "identity", order: Order{0, 1, 2}, n: 3, expected: true},
		{name: "shuffled", order: Order{2, 0, 1}, n: 3, expected: true},
		{name: "duplicate", order: Order{0, 0, 2}, n: 3, expected: false},
		{name: "omission", order: Order{0, 1}, n: 3, expected: false},
		{name: "out of range", order: Order{0, 1, 3}, n: 3, expected: false},
		{name: "negative", order: Order{-1, 1, 2}, n: 3, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.order.IsPermutation(tt.n))
		})
	}
}

func TestOrder_Item(t *testing.T) {
	var seq Order
	assert.False(t, seq.IsShuffled())
	assert.Equal(t, 2, seq.Item(2))

	o := Order{2, 0, 1}
	assert.True(t, o.IsShuffled())
	assert.Equal(t, 2, o.Item(0))
	assert.Equal(t, 1, o.Item(2))
	assert.Equal(t, -1, o.Item(3))
}

func TestItemHelpers(t *testing.T) {
	items := []cue.PlaylistItem{
		{ID: "a", KnownDuration: 2 * time.Minute},
		{ID: "b"},
		{ID: "c", KnownDuration: 90 * time.Second},
	}

	assert.Equal(t, []string{"a", "b", "c"}, ItemIDs(items))
	assert.Equal(t, 3*time.Minute+30*time.Second, TotalDuration(items))
	assert.Equal(t, []string{}, ItemIDs(nil))
}
