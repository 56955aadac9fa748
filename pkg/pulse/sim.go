package pulse

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	simTick         = 10 * time.Millisecond
	defaultPulseUs  = 1000
	minSimGapMicros = 1
)

// SignalModel describes a simulated particle rate in particles per second:
// Offset, plus a sine of the given Amplitude and Period, plus uniform Noise.
type SignalModel struct {
	Offset    float64
	Amplitude float64
	Period    time.Duration
	Noise     float64
	// PulseWidth is the high time of one particle pulse; 1ms when zero.
	PulseWidth time.Duration
}

// RateAt returns the particle rate at the given time since start. Never negative.
func (m SignalModel) RateAt(elapsed time.Duration, rnd *rand.Rand) float64 {
	r := m.Offset
	if m.Period > 0 && m.Amplitude != 0 {
		r += m.Amplitude * math.Sin(2*math.Pi*elapsed.Seconds()/m.Period.Seconds())
	}
	if m.Noise > 0 && rnd != nil {
		r += (rnd.Float64()*2 - 1) * m.Noise
	}
	if r < 0 {
		return 0
	}
	return r
}

// SimCapture generates particle pulses from a SignalModel instead of a pin.
// Each particle is one high/low pair of durations.
type SimCapture struct {
	*Buffer
	model SignalModel
	rnd   *rand.Rand
	carry float64
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewSimCapture starts generating pulses right away.
func NewSimCapture(model SignalModel, capacity int, seed int64) *SimCapture {
	s := newSimCapture(model, capacity, seed)
	s.wg.Add(1)
	go s.run()
	return s
}

func newSimCapture(model SignalModel, capacity int, seed int64) *SimCapture {
	return &SimCapture{
		Buffer: NewBuffer(capacity),
		model:  model,
		rnd:    rand.New(rand.NewSource(seed)),
		done:   make(chan struct{}),
	}
}

func (s *SimCapture) run() {
	defer s.wg.Done()
	start := time.Now()
	ticker := time.NewTicker(simTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.step(simTick, time.Since(start))
		}
	}
}

// step emits the particles expected over dt and returns how many it produced.
func (s *SimCapture) step(dt, elapsed time.Duration) int {
	s.carry += s.model.RateAt(elapsed, s.rnd) * dt.Seconds()
	n := int(s.carry)
	s.carry -= float64(n)
	if n == 0 {
		return 0
	}
	width := uint32(s.model.PulseWidth.Microseconds())
	if width == 0 {
		width = defaultPulseUs
	}
	gap := int64(minSimGapMicros)
	if per := dt.Microseconds()/int64(n) - int64(width); per > gap {
		gap = per
	}
	for i := 0; i < n; i++ {
		s.Push(width)
		s.Push(uint32(gap))
	}
	return n
}

func (s *SimCapture) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// SimOpener opens simulated captures, one SignalModel per line name.
// Unknown lines get a silent model.
func SimOpener(models map[string]SignalModel) Opener {
	var seed int64
	return func(line string, capacity int) (Capture, error) {
		seed++
		return NewSimCapture(models[line], capacity, time.Now().UnixNano()+seed), nil
	}
}
