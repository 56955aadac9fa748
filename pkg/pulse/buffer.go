package pulse

import (
	"sync"
	"time"
)

var _ Capture = (*Buffer)(nil)

// Buffer is a fill-and-stall store of inter-edge durations. It is a Capture on
// its own, fed either with Edge timestamps or with raw durations via Push.
type Buffer struct {
	mu        sync.Mutex
	durations []uint32
	paused    bool
	haveEdge  bool
	lastEdge  time.Time
	maxDur    uint32
}

// NewBuffer returns an armed, empty buffer. capacity below 1 is raised to 1.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{durations: make([]uint32, 0, capacity)}
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return cap(b.durations) }

// Push appends a duration in microseconds. It reports false when the value
// was dropped because the buffer is paused or full.
func (b *Buffer) Push(d uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.push(d)
}

func (b *Buffer) push(d uint32) bool {
	if b.paused || len(b.durations) == cap(b.durations) {
		return false
	}
	if b.maxDur > 0 && d > b.maxDur {
		d = b.maxDur
	}
	b.durations = append(b.durations, d)
	return true
}

// Edge records an edge seen at t. The first edge after construction or Resume
// only sets the reference point.
func (b *Buffer) Edge(t time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.paused {
		return false
	}
	if !b.haveEdge {
		b.haveEdge = true
		b.lastEdge = t
		return false
	}
	us := t.Sub(b.lastEdge).Microseconds()
	b.lastEdge = t
	if us < 0 {
		us = 0
	}
	if us > int64(^uint32(0)) {
		us = int64(^uint32(0))
	}
	return b.push(uint32(us))
}

func (b *Buffer) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

func (b *Buffer) Resume() {
	b.mu.Lock()
	b.paused = false
	b.haveEdge = false
	b.mu.Unlock()
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	b.durations = b.durations[:0]
	b.mu.Unlock()
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.durations)
}

// At panics if i is out of range, like a slice index.
func (b *Buffer) At(i int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.durations[i]
}

// Paused reports whether capture is currently stopped.
func (b *Buffer) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

func (b *Buffer) Close() error { return nil }
