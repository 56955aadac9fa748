package sensor

import (
	"errors"
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/clock"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/pulse"
)

var t0 = time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)

// bufferOpener hands out plain buffers and remembers them by line so tests
// can inject durations.
func bufferOpener(bufs map[string]*pulse.Buffer) pulse.Opener {
	return func(line string, capacity int) (pulse.Capture, error) {
		b := pulse.NewBuffer(capacity)
		bufs[line] = b
		return b, nil
	}
}

func failingOpener(fail string) pulse.Opener {
	return func(line string, capacity int) (pulse.Capture, error) {
		if line == fail {
			return nil, errors.New("no free edge detector")
		}
		return &trackingCapture{Buffer: pulse.NewBuffer(capacity)}, nil
	}
}

// trackingCapture records the order of calls made on it and can run a hook on
// Resume, e.g. to move a mock clock forward between the two channel drains.
type trackingCapture struct {
	*pulse.Buffer
	calls    []string
	onResume func()
	closed   bool
}

func (c *trackingCapture) Pause()  { c.calls = append(c.calls, "pause"); c.Buffer.Pause() }
func (c *trackingCapture) Clear()  { c.calls = append(c.calls, "clear"); c.Buffer.Clear() }
func (c *trackingCapture) Len() int {
	c.calls = append(c.calls, "len")
	return c.Buffer.Len()
}
func (c *trackingCapture) Resume() {
	c.calls = append(c.calls, "resume")
	c.Buffer.Resume()
	if c.onResume != nil {
		c.onResume()
	}
}
func (c *trackingCapture) Close() error { c.closed = true; return nil }

func newTestDriver(capacity int, clk clock.Clock) (*Driver, map[string]*pulse.Buffer, error) {
	bufs := map[string]*pulse.Buffer{}
	d, err := NewDriver(bufferOpener(bufs), "out1", "out2", WithCapacity(capacity), WithClock(clk))
	return d, bufs, err
}

func push(b *pulse.Buffer, n int, d uint32) {
	for i := 0; i < n; i++ {
		b.Push(d)
	}
}
