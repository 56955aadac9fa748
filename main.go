package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/logger"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/output"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/output/console"
	mqttout "github.com/ericogr/b5wld0101-to-mqtt/pkg/output/mqtt"
	promout "github.com/ericogr/b5wld0101-to-mqtt/pkg/output/prometheus"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/sensor"
	"github.com/spf13/pflag"
)

const defaultIntervalMs = 1000

type outputEntry struct {
	Type       string
	Out        output.Output
	IntervalMs int
	last       time.Time
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	s, err := newSensor(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("type", cfg.SensorType).Msg("sensor init failed")
	}
	defer s.Close()

	interval := computeSensorInterval(cfg)
	entries, err := initOutputs(&cfg, interval)
	if err != nil {
		s.Close()
		logger.Fatal().Err(err).Msg("output init failed")
	}
	defer closeOutputs(entries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("sensor", cfg.SensorType).
		Str("out1", cfg.Out1Pin).
		Str("out2", cfg.Out2Pin).
		Int("interval_ms", interval).
		Int("outputs", len(entries)).
		Msg("starting")
	run(ctx, s, entries, time.Duration(interval)*time.Millisecond)
	logger.Info().Msg("stopped")
}

func newSensor(cfg config.Config) (sensor.Sensor, error) {
	var (
		d   *sensor.Driver
		err error
	)
	switch cfg.SensorType {
	case config.SensorSimulation:
		d, err = sensor.NewFakeSensor(cfg)
	default:
		d, err = sensor.NewB5WLD0101Sensor(cfg)
	}
	if err != nil {
		return nil, err
	}
	if vth := d.Threshold(); vth != nil {
		if v, err := vth.Read(); err != nil {
			logger.Warn().Err(err).Msg("vth read failed")
		} else {
			logger.Info().Float64("volts", v).Msg("vth")
		}
	}
	return d, nil
}

// computeSensorInterval returns the global interval, or the fastest output
// interval when the global one is unset.
func computeSensorInterval(cfg config.Config) int {
	if cfg.IntervalMs > 0 {
		return cfg.IntervalMs
	}
	fastest := 0
	for _, o := range cfg.Outputs {
		if o.IntervalMs > 0 && (fastest == 0 || o.IntervalMs < fastest) {
			fastest = o.IntervalMs
		}
	}
	if fastest == 0 {
		return defaultIntervalMs
	}
	return fastest
}

func initOutputs(cfg *config.Config, defaultInterval int) ([]outputEntry, error) {
	var entries []outputEntry
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs <= 0 {
			oc.IntervalMs = defaultInterval
		}
		var (
			o   output.Output
			err error
		)
		switch strings.ToLower(oc.Type) {
		case "console":
			o = console.NewConsole()
		case "mqtt":
			var mc config.MQTTConfig
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err = mqttout.NewMQTT(mc)
		case "prometheus":
			var pc config.PrometheusConfig
			if oc.Prometheus != nil {
				pc = *oc.Prometheus
			}
			o, err = promout.NewPrometheus(pc)
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			closeOutputs(entries)
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		entries = append(entries, outputEntry{Type: oc.Type, Out: o, IntervalMs: oc.IntervalMs})
	}
	return entries, nil
}

func closeOutputs(entries []outputEntry) {
	for _, e := range entries {
		if err := e.Out.Close(); err != nil {
			logger.Warn().Err(err).Str("output", e.Type).Msg("output close failed")
		}
	}
}

func run(ctx context.Context, s sensor.Sensor, entries []outputEntry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			publishDue(entries, s.Read(), now)
		}
	}
}

// publishDue sends r to every output whose own interval has elapsed.
func publishDue(entries []outputEntry, r sensor.Reading, now time.Time) {
	for i := range entries {
		e := &entries[i]
		if !e.last.IsZero() && now.Sub(e.last) < time.Duration(e.IntervalMs)*time.Millisecond {
			continue
		}
		e.last = now
		if err := e.Out.Publish(r); err != nil {
			logger.Error().Err(err).Str("output", e.Type).Msg("publish failed")
		}
	}
}
