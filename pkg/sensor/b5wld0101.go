package sensor

import (
	"fmt"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/analog"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/clock"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/pulse"
	"periph.io/x/host/v3"
)

// NewB5WLD0101Sensor opens the real sensor: OUT1/OUT2 on GPIO lines and, when
// configured, Vth through an ADS1115.
func NewB5WLD0101Sensor(cfg config.Config) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	opts := []Option{WithCapacity(cfg.MaxPulses)}
	var vth *analog.ADS1115
	if cfg.Vth != nil {
		a, err := analog.OpenADS1115(*cfg.Vth)
		if err != nil {
			return nil, fmt.Errorf("vth: %w", err)
		}
		vth = a
		opts = append(opts, WithThreshold(a))
	}
	d, err := NewDriver(pulse.GPIOOpener(clock.RealClock{}), cfg.Out1Pin, cfg.Out2Pin, opts...)
	if err != nil {
		if vth != nil {
			vth.Close()
		}
		return nil, err
	}
	return d, nil
}
