package sensor

import (
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/pulse"
)

// buildSignalModels maps each configured output line to its simulated signal.
func buildSignalModels(cfg config.Config) map[string]pulse.SignalModel {
	return map[string]pulse.SignalModel{
		cfg.Out1Pin: signalModel(cfg.Simulation.Out1),
		cfg.Out2Pin: signalModel(cfg.Simulation.Out2),
	}
}

func signalModel(s config.SignalConfig) pulse.SignalModel {
	return pulse.SignalModel{
		Offset:     s.Offset,
		Amplitude:  s.Amplitude,
		Period:     time.Duration(s.PeriodMs) * time.Millisecond,
		Noise:      s.Noise,
		PulseWidth: time.Duration(s.PulseWidthUs) * time.Microsecond,
	}
}
