package sensor

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/analog"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/clock"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/pulse"
)

// DefaultCapacity is the number of pulse durations buffered per channel.
const DefaultCapacity = 500

type channel struct {
	line     string
	capture  pulse.Capture
	lastRead time.Time
}

// Driver polls the two pulse outputs of a B5W-LD0101 style sensor.
//
// A Driver is not safe for concurrent use: Read must be called from a single
// goroutine. The captures keep running between calls.
type Driver struct {
	channels  [2]channel
	capacity  int
	vth       analog.Input
	clk       clock.Clock
	overflows uint64
	reading   Reading
}

type Option func(*Driver)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(d *Driver) { d.capacity = n }
}

// WithThreshold attaches the sensor's Vth line. It is only held, Read does not use it.
func WithThreshold(in analog.Input) Option {
	return func(d *Driver) { d.vth = in }
}

func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clk = c }
}

// NewDriver opens both output lines through open. The two read windows start now.
func NewDriver(open pulse.Opener, out1, out2 string, opts ...Option) (*Driver, error) {
	d := &Driver{capacity: DefaultCapacity, clk: clock.RealClock{}}
	for _, o := range opts {
		o(d)
	}
	if d.capacity < 1 {
		return nil, fmt.Errorf("capacity must be > 0, got %d", d.capacity)
	}
	c1, err := open(out1, d.capacity)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", out1, err)
	}
	c2, err := open(out2, d.capacity)
	if err != nil {
		c1.Close()
		return nil, fmt.Errorf("open %s: %w", out2, err)
	}
	now := d.clk.Now()
	d.channels[0] = channel{line: out1, capture: c1, lastRead: now}
	d.channels[1] = channel{line: out2, capture: c2, lastRead: now}
	return d, nil
}

// Read drains OUT1 then OUT2 and returns their particle rates. Each channel
// keeps its own window, so OUT2's window is shifted by the time spent on OUT1.
//
// A rate of 0 means no particles were counted; it does not distinguish an
// idle line from one that has not produced anything yet.
func (d *Driver) Read() Reading {
	var rates [2]float64
	for i := range d.channels {
		ch := &d.channels[i]
		t := d.clk.Now()
		particles, _ := d.measure(ch)
		rates[i] = Rate(particles, t.Sub(ch.lastRead))
		ch.lastRead = t
	}
	d.reading.RawOut1 = Float(rates[0])
	d.reading.RawOut2 = Float(rates[1])
	d.reading.Overflows = d.overflows
	d.reading.Timestamp = d.clk.Now()
	return d.reading.Clone()
}

// Overflows counts channel reads that found a full pulse buffer.
func (d *Driver) Overflows() uint64 { return d.overflows }

func (d *Driver) ResetOverflows() { d.overflows = 0 }

// Threshold returns the Vth input, nil when none was configured.
func (d *Driver) Threshold() analog.Input { return d.vth }

// Capacity returns the per-channel buffer size.
func (d *Driver) Capacity() int { return d.capacity }

// Close releases both captures and the Vth input when it is closable.
func (d *Driver) Close() error {
	var errs []error
	for _, ch := range d.channels {
		if ch.capture != nil {
			errs = append(errs, ch.capture.Close())
		}
	}
	if c, ok := d.vth.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
