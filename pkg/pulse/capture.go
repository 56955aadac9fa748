// Package pulse captures the timing of edges on a digital input line.
//
// A Capture stores the time between consecutive edges, in microseconds, in a
// bounded buffer. Once the buffer is full further edges are dropped until it
// is cleared; existing values are never overwritten.
//
// A Capture has one producer (the edge source) and is meant to be drained by
// a single consumer. Every method is atomic on its own, a Pause/Clear/Resume
// sequence as a whole is not.
package pulse

import "errors"

// ErrPinNotFound is returned by GPIOOpener for an unknown line name.
var ErrPinNotFound = errors.New("pin not found")

// Capture is an edge-timestamping input handle.
type Capture interface {
	// Pause stops accepting edges, keeping what is buffered. Idempotent.
	Pause()
	// Resume re-arms capture; the next edge only starts timing.
	Resume()
	// Clear discards all buffered durations without touching the paused state.
	Clear()
	// Len is the number of buffered durations, 0..capacity.
	Len() int
	// At returns the i-th buffered duration in microseconds, oldest first.
	At(i int) uint32
	Close() error
}

// Opener resolves a line identifier into an armed Capture holding at most
// capacity durations.
type Opener func(line string, capacity int) (Capture, error)
