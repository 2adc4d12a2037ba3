// Package playlist provides playlist ordering for playlist cues.
package playlist

import (
	"math/rand/v2"
	"time"

	"github.com/osa030/cuedeck/internal/domain/cue"
)

// Order maps logical playback positions to item indices.
// A nil Order is the identity (sequential) order.
type Order []int

// Shuffled returns a Fisher-Yates permutation of [0, n).
func Shuffled(n int, rng *rand.Rand) Order {
	o := make(Order, n)
	for i := range o {
		o[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		o[i], o[j] = o[j], o[i]
	}
	return o
}

// IsShuffled reports whether the order is a shuffle permutation.
func (o Order) IsShuffled() bool {
	return o != nil
}

// Item resolves a logical position to an item index.
func (o Order) Item(logical int) int {
	if o == nil {
		return logical
	}
	if logical < 0 || logical >= len(o) {
		return -1
	}
	return o[logical]
}

// IsPermutation reports whether o is exactly a permutation of [0, n).
func (o Order) IsPermutation(n int) bool {
	if len(o) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range o {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// ItemIDs returns all item IDs in the playlist.
func ItemIDs(items []cue.PlaylistItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// TotalDuration returns the sum of known item durations.
func TotalDuration(items []cue.PlaylistItem) time.Duration {
	var total time.Duration
	for _, it := range items {
		total += it.KnownDuration
	}
	return total
}
