package pulse

import (
	"fmt"
	"sync"
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/clock"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// MaxGPIODuration is the longest inter-edge time GPIOCapture reports, in
// microseconds. Longer gaps saturate like a 16-bit pulse timer does, so an
// idle line between two pulses shows up as 65535.
const MaxGPIODuration = 0xFFFF

// edgePoll bounds how long the watcher blocks before checking for Close.
const edgePoll = 100 * time.Millisecond

// GPIOCapture timestamps both edges of a periph.io input pin from a
// background goroutine.
type GPIOCapture struct {
	*Buffer
	pin  gpio.PinIn
	clk  clock.Clock
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewGPIOCapture configures pin for edge detection and starts capturing.
func NewGPIOCapture(pin gpio.PinIn, capacity int, clk clock.Clock) (*GPIOCapture, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if err := pin.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure %s: %w", pin, err)
	}
	buf := NewBuffer(capacity)
	buf.maxDur = MaxGPIODuration
	c := &GPIOCapture{Buffer: buf, pin: pin, clk: clk, done: make(chan struct{})}
	c.wg.Add(1)
	go c.watch()
	return c, nil
}

func (c *GPIOCapture) watch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		default:
		}
		if c.pin.WaitForEdge(edgePoll) {
			c.Buffer.Edge(c.clk.Now())
		}
	}
}

// Close stops the watcher and halts the pin.
func (c *GPIOCapture) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.pin.Halt()
		c.wg.Wait()
	})
	return err
}

// GPIOOpener resolves line names through the periph.io pin registry. host.Init
// must have been called first.
func GPIOOpener(clk clock.Clock) Opener {
	return func(line string, capacity int) (Capture, error) {
		p := gpioreg.ByName(line)
		if p == nil {
			return nil, fmt.Errorf("%w: %s", ErrPinNotFound, line)
		}
		c, err := NewGPIOCapture(p, capacity, clk)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
