package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyIntMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]int
		ok   bool
	}{
		{"", map[string]int{}, true},
		{"console=1000,mqtt=5000", map[string]int{"console": 1000, "mqtt": 5000}, true},
		{" console = 250 , prometheus=10", map[string]int{"console": 250, "prometheus": 10}, true},
		{"bad", nil, false},
		{"mqtt=x", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyIntMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseKeyIntMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseKeyIntMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseIntOrHex(t *testing.T) {
	v, err := parseIntOrHex("0x48")
	require.NoError(t, err)
	assert.Equal(t, 72, v)
	v, err = parseIntOrHex("73")
	require.NoError(t, err)
	assert.Equal(t, 73, v)
	_, err = parseIntOrHex("0xZZ")
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigEnv, "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 500, cfg.MaxPulses)
	assert.Nil(t, cfg.Vth)
}

func TestLoadFlags(t *testing.T) {
	t.Setenv(ConfigEnv, "")

	cfg, err := Load([]string{
		"--sensor-type", "simulation",
		"--out1-pin", "GPIO5",
		"--out2-pin", "GPIO6",
		"--max-pulses", "64",
		"--interval-ms", "2000",
		"--outputs", "console,mqtt",
		"--output-intervals", "mqtt=5000",
		"--mqtt-server", "tcp://broker:1883",
		"--mqtt-topic", "home/air",
		"--prometheus-listen", ":9108",
		"--vth-i2c-address", "0x49",
	})
	require.NoError(t, err)

	assert.Equal(t, SensorSimulation, cfg.SensorType)
	assert.Equal(t, "GPIO5", cfg.Out1Pin)
	assert.Equal(t, "GPIO6", cfg.Out2Pin)
	assert.Equal(t, 64, cfg.MaxPulses)
	assert.Equal(t, 2000, cfg.IntervalMs)

	require.Len(t, cfg.Outputs, 3)
	assert.Equal(t, OutputConfig{Type: "console", IntervalMs: 2000}, cfg.Outputs[0])
	assert.Equal(t, "mqtt", cfg.Outputs[1].Type)
	assert.Equal(t, 5000, cfg.Outputs[1].IntervalMs)
	require.NotNil(t, cfg.Outputs[1].MQTT)
	assert.Equal(t, "tcp://broker:1883", cfg.Outputs[1].MQTT.Server)
	assert.Equal(t, "home/air", cfg.Outputs[1].MQTT.StateTopic)
	assert.Equal(t, "prometheus", cfg.Outputs[2].Type)
	assert.Equal(t, ":9108", cfg.Outputs[2].Prometheus.Listen)

	require.NotNil(t, cfg.Vth)
	assert.Equal(t, 0x49, cfg.Vth.I2CAddress)
	assert.Equal(t, "1", cfg.Vth.I2CBus)
}

func TestLoadFileThenFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b5w.toml")
	content := []byte(`
sensor_type = "simulation"
out1_pin = "GPIO22"
max_pulses = 128
log_level = "debug"

[vth]
i2c_bus = "2"
i2c_address = 72
channel = 1

[[outputs]]
type = "prometheus"
[outputs.prometheus]
listen = ":9100"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load([]string{"--config", path, "--max-pulses", "256"})
	require.NoError(t, err)

	assert.Equal(t, SensorSimulation, cfg.SensorType)
	assert.Equal(t, "GPIO22", cfg.Out1Pin)
	assert.Equal(t, "GPIO27", cfg.Out2Pin, "unset keys keep defaults")
	assert.Equal(t, 256, cfg.MaxPulses)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NotNil(t, cfg.Vth)
	assert.Equal(t, 1, cfg.Vth.Channel)
	assert.Equal(t, 1.0, cfg.Vth.CalibrationScale)
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, 1000, cfg.Outputs[0].IntervalMs)
	assert.Equal(t, ":9100", cfg.Outputs[0].Prometheus.Listen)
}

func TestLoadConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b5w.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval_ms: 250\n"), 0o600))
	t.Setenv(ConfigEnv, path)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.IntervalMs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "nope.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sensor type", func(c *Config) { c.SensorType = "laser" }},
		{"missing pin", func(c *Config) { c.Out2Pin = "" }},
		{"same pins", func(c *Config) { c.Out2Pin = c.Out1Pin }},
		{"capacity", func(c *Config) { c.MaxPulses = -1 }},
		{"vth channel", func(c *Config) { c.Vth = &VthConfig{Channel: 7} }},
		{"output type", func(c *Config) { c.Outputs = []OutputConfig{{Type: "influx"}} }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if assert.Error(t, err, tt.name) {
			assert.True(t, errors.Is(err, ErrInvalidConfig), tt.name)
		}
	}
	assert.NoError(t, DefaultConfig().Validate())
}
