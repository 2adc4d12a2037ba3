package sequencer

// Step moves delta positions from `from` in a list of n entries.
// Past either end it wraps when loop is set and clamps otherwise.
func Step(from, delta, n int, loop bool) int {
	if n <= 0 {
		return 0
	}
	target := from + delta
	switch {
	case target >= n:
		if loop {
			return 0
		}
		return n - 1
	case target < 0:
		if loop {
			return n - 1
		}
		return 0
	default:
		return target
	}
}

// Navigator remembers the last cued logical position per cue for manual
// next/previous while a playlist is idle. It is not safe for concurrent use.
type Navigator struct {
	last map[string]int
}

// NewNavigator creates an empty navigator.
func NewNavigator() *Navigator {
	return &Navigator{last: make(map[string]int)}
}

// Remember stores the position for a cue.
func (n *Navigator) Remember(cueID string, logical int) {
	n.last[cueID] = logical
}

// Next advances the remembered position and returns it.
func (n *Navigator) Next(cueID string, count int, loop bool) int {
	pos := Step(n.clamped(cueID, count), 1, count, loop)
	n.last[cueID] = pos
	return pos
}

// Previous moves the remembered position back and returns it.
func (n *Navigator) Previous(cueID string, count int, loop bool) int {
	pos := Step(n.clamped(cueID, count), -1, count, loop)
	n.last[cueID] = pos
	return pos
}

// clamped guards against memory left over from a longer playlist.
func (n *Navigator) clamped(cueID string, count int) int {
	pos := n.last[cueID]
	if pos >= count {
		pos = count - 1
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}
