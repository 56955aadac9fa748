package sensor

import (
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/logger"
)

// MinInterval is the smallest window a rate is computed over, so reads in
// quick succession do not divide by (nearly) zero.
const MinInterval = 5 * time.Millisecond

// measure drains one channel and re-arms it for the next window. It returns
// the particle count and the summed pulse time in seconds.
//
// The capture is paused while it is read so the length and the values agree.
// A full buffer bumps the overflow counter: the window's count is then a
// lower bound.
func (d *Driver) measure(ch *channel) (particles int, seconds float64) {
	c := ch.capture
	c.Pause()
	n := c.Len()
	var total uint64
	for i := 0; i < n; i++ {
		total += uint64(c.At(i))
	}
	c.Clear()
	c.Resume()

	if n >= d.capacity {
		d.overflows++
		logger.Debug().Str("line", ch.line).Int("pulses", n).Uint64("overflows", d.overflows).
			Msg("pulse buffer saturated")
	}
	if total == 0 {
		return 0, 0.0
	}
	// Every particle produces a high and a low duration. A window boundary
	// can split a pair, and the sensor's periodic 1ms self-test pulse shows
	// up as an odd count, so odd counts round up.
	particles = (n + 1) / 2
	return particles, float64(total) * 1e-6
}

// Rate converts a particle count seen over elapsed into particles per second.
func Rate(particles int, elapsed time.Duration) float64 {
	if elapsed < MinInterval {
		elapsed = MinInterval
	}
	return float64(particles) / elapsed.Seconds()
}
