package sensor

import (
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/analog"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/pulse"
)

// NewFakeSensor returns a Driver fed by simulated pulse trains, for running
// without hardware.
func NewFakeSensor(cfg config.Config) (*Driver, error) {
	return NewDriver(pulse.SimOpener(buildSignalModels(cfg)), cfg.Out1Pin, cfg.Out2Pin,
		WithCapacity(cfg.MaxPulses),
		WithThreshold(analog.Fixed(cfg.Simulation.Vth)))
}
