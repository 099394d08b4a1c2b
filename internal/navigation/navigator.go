// Package navigation holds the tile-by-tile scan state machine.
package navigation

import "fmt"

// Direction is the scan direction through the tile sequence.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Outcome is the result of a Step. StartReached and EndReached are normal
// terminal outcomes, not errors.
type Outcome int

const (
	Moved Outcome = iota
	StartReached
	EndReached
)

func (o Outcome) String() string {
	switch o {
	case StartReached:
		return "start reached"
	case EndReached:
		return "end reached"
	default:
		return "moved"
	}
}

// Boundary reports whether o ended the scan in its direction.
func (o Outcome) Boundary() bool {
	return o != Moved
}

// Next computes the index a step from current would land on, clamped to
// [0, count), and the outcome of that step.
func Next(current, count int, dir Direction) (int, Outcome) {
	next := current + 1
	if dir == Backward {
		next = current - 1
	}
	switch {
	case next >= count:
		return count - 1, EndReached
	case next < 0:
		return 0, StartReached
	default:
		return next, Moved
	}
}

// Navigator tracks the current tile, scan direction and auto-advance mode.
type Navigator struct {
	count       int
	current     int
	direction   Direction
	autoAdvance bool
}

// New positions a navigator on tile 0 of count tiles, scanning forward.
func New(count int, autoAdvance bool) (*Navigator, error) {
	if count <= 0 {
		return nil, fmt.Errorf("navigator needs at least one tile, got %d", count)
	}
	return &Navigator{count: count, direction: Forward, autoAdvance: autoAdvance}, nil
}

func (n *Navigator) Current() int         { return n.current }
func (n *Navigator) Count() int           { return n.count }
func (n *Navigator) Direction() Direction { return n.direction }
func (n *Navigator) AutoAdvance() bool    { return n.autoAdvance }

// SetAutoAdvance toggles continuous scanning past empty tiles.
func (n *Navigator) SetAutoAdvance(on bool) {
	n.autoAdvance = on
}

// Step moves one tile in dir. On a boundary the index is clamped and the
// boundary outcome returned.
func (n *Navigator) Step(dir Direction) Outcome {
	next, outcome := Next(n.current, n.count, dir)
	n.current = next
	return outcome
}

// Advance steps in the current direction.
func (n *Navigator) Advance() Outcome {
	return n.Step(n.direction)
}

// Scan sets the direction, engages auto-advance and takes one step. It is
// what the scan-forward and scan-backward keys do.
func (n *Navigator) Scan(dir Direction) Outcome {
	n.direction = dir
	n.autoAdvance = true
	return n.Step(dir)
}
