package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ConfigEnv names the environment variable consulted when --config is absent.
const ConfigEnv = "B5W_CONFIG"

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"

	DefaultMaxPulses = 500
)

type MQTTConfig struct {
	Server            string `json:"server" mapstructure:"server"`
	Username          string `json:"username" mapstructure:"username"`
	Password          string `json:"password" mapstructure:"password"`
	ClientID          string `json:"client_id" mapstructure:"client_id"`
	StateTopic        string `json:"state_topic" mapstructure:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" mapstructure:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" mapstructure:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" mapstructure:"discovery_unique_id"`
}

type PrometheusConfig struct {
	Listen string `json:"listen" mapstructure:"listen"`
}

type OutputConfig struct {
	Type       string            `json:"type" mapstructure:"type"`
	IntervalMs int               `json:"interval_ms,omitempty" mapstructure:"interval_ms"`
	MQTT       *MQTTConfig       `json:"mqtt,omitempty" mapstructure:"mqtt"`
	Prometheus *PrometheusConfig `json:"prometheus,omitempty" mapstructure:"prometheus"`
}

// VthConfig locates the ADS1115 channel wired to the sensor's Vth pin.
type VthConfig struct {
	I2CBus            string  `json:"i2c_bus" mapstructure:"i2c_bus"`
	I2CAddress        int     `json:"i2c_address" mapstructure:"i2c_address"`
	Channel           int     `json:"channel" mapstructure:"channel"`
	SampleRate        int     `json:"sample_rate" mapstructure:"sample_rate"`
	CalibrationScale  float64 `json:"calibration_scale" mapstructure:"calibration_scale"`
	CalibrationOffset float64 `json:"calibration_offset" mapstructure:"calibration_offset"`
}

// SignalConfig drives one simulated output line, in particles per second.
type SignalConfig struct {
	Offset       float64 `json:"offset" mapstructure:"offset"`
	Amplitude    float64 `json:"amplitude" mapstructure:"amplitude"`
	PeriodMs     int     `json:"period_ms" mapstructure:"period_ms"`
	Noise        float64 `json:"noise" mapstructure:"noise"`
	PulseWidthUs int     `json:"pulse_width_us" mapstructure:"pulse_width_us"`
}

type SimulationConfig struct {
	Out1 SignalConfig `json:"out1" mapstructure:"out1"`
	Out2 SignalConfig `json:"out2" mapstructure:"out2"`
	Vth  float64      `json:"vth" mapstructure:"vth"`
}

type Config struct {
	SensorType string           `json:"sensor_type" mapstructure:"sensor_type"`
	Out1Pin    string           `json:"out1_pin" mapstructure:"out1_pin"`
	Out2Pin    string           `json:"out2_pin" mapstructure:"out2_pin"`
	MaxPulses  int              `json:"max_pulses" mapstructure:"max_pulses"`
	IntervalMs int              `json:"interval_ms" mapstructure:"interval_ms"`
	LogLevel   string           `json:"log_level" mapstructure:"log_level"`
	Vth        *VthConfig       `json:"vth,omitempty" mapstructure:"vth"`
	Simulation SimulationConfig `json:"simulation" mapstructure:"simulation"`
	Outputs    []OutputConfig   `json:"outputs" mapstructure:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		SensorType: SensorReal,
		Out1Pin:    "GPIO17",
		Out2Pin:    "GPIO27",
		MaxPulses:  DefaultMaxPulses,
		IntervalMs: 1000,
		LogLevel:   "info",
		Simulation: SimulationConfig{
			Out1: SignalConfig{Offset: 40, Amplitude: 15, PeriodMs: 60000, Noise: 5},
			Out2: SignalConfig{Offset: 8, Amplitude: 3, PeriodMs: 60000, Noise: 1},
			Vth:  0.7,
		},
		Outputs: []OutputConfig{{Type: "console", IntervalMs: 1000}},
	}
}

func defaultVth() *VthConfig {
	return &VthConfig{I2CBus: "1", I2CAddress: 0x48, Channel: 0, SampleRate: 128, CalibrationScale: 1.0}
}

// Load builds the configuration from defaults, an optional config file (any
// format viper understands) and command-line flags. Flags win over the file.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("b5wld0101-to-mqtt", pflag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to config file (json, toml or yaml)")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagOut1 := fs.String("out1-pin", "", "GPIO line of OUT1 (PM2.5)")
	flagOut2 := fs.String("out2-pin", "", "GPIO line of OUT2 (PM10)")
	flagMaxPulses := fs.Int("max-pulses", 0, "Pulse buffer capacity per channel")
	flagInterval := fs.Int("interval-ms", 0, "Sensor read interval in ms")
	flagLogLevel := fs.String("log-level", "", "debug|info|warn|error")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt,prometheus)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagDiscovery := fs.String("mqtt-discovery-topic", "", "Home Assistant discovery topic, %s is replaced by the field key")
	flagPromListen := fs.String("prometheus-listen", "", "Listen address of the /metrics endpoint")
	flagVthBus := fs.String("vth-i2c-bus", "", "I2C bus of the ADS1115 reading Vth (enables Vth)")
	flagVthAddr := fs.String("vth-i2c-address", "", "I2C address of the ADS1115 (decimal or 0x hex)")
	flagVthChannel := fs.Int("vth-channel", -1, "ADS1115 channel wired to Vth")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	path := *cfgPath
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		// the file's list replaces the defaults instead of merging into them
		if v.IsSet("outputs") {
			cfg.Outputs = nil
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagOut1 != "" {
		cfg.Out1Pin = *flagOut1
	}
	if *flagOut2 != "" {
		cfg.Out2Pin = *flagOut2
	}
	if fs.Changed("max-pulses") {
		cfg.MaxPulses = *flagMaxPulses
	}
	if fs.Changed("interval-ms") {
		cfg.IntervalMs = *flagInterval
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p, IntervalMs: cfg.IntervalMs})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		intervals, err := parseKeyIntMap(*flagOutputIntervals)
		if err != nil {
			return cfg, fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := intervals[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" || *flagDiscovery != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.StateTopic = *flagTopic
			}
			if *flagDiscovery != "" {
				m.DiscoveryTopic = *flagDiscovery
			}
		}
		if !forEachOutput(cfg.Outputs, "mqtt", func(o *OutputConfig) {
			if o.MQTT == nil {
				o.MQTT = &MQTTConfig{}
			}
			apply(o.MQTT)
		}) {
			out := OutputConfig{Type: "mqtt", IntervalMs: cfg.IntervalMs, MQTT: &MQTTConfig{}}
			apply(out.MQTT)
			cfg.Outputs = append(cfg.Outputs, out)
		}
	}
	if *flagPromListen != "" {
		if !forEachOutput(cfg.Outputs, "prometheus", func(o *OutputConfig) {
			o.Prometheus = &PrometheusConfig{Listen: *flagPromListen}
		}) {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "prometheus", IntervalMs: cfg.IntervalMs,
				Prometheus: &PrometheusConfig{Listen: *flagPromListen}})
		}
	}
	if *flagVthBus != "" || *flagVthAddr != "" || *flagVthChannel != -1 {
		if cfg.Vth == nil {
			cfg.Vth = defaultVth()
		}
		if *flagVthBus != "" {
			cfg.Vth.I2CBus = *flagVthBus
		}
		if *flagVthAddr != "" {
			v, err := parseIntOrHex(*flagVthAddr)
			if err != nil {
				return cfg, fmt.Errorf("vth-i2c-address: %w", err)
			}
			cfg.Vth.I2CAddress = v
		}
		if *flagVthChannel != -1 {
			cfg.Vth.Channel = *flagVthChannel
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxPulses == 0 {
		c.MaxPulses = DefaultMaxPulses
	}
	for i := range c.Outputs {
		if c.Outputs[i].IntervalMs == 0 {
			c.Outputs[i].IntervalMs = c.IntervalMs
		}
	}
	if c.Vth != nil && c.Vth.CalibrationScale == 0 {
		c.Vth.CalibrationScale = 1.0
	}
}

// Validate reports the first problem found, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		return fmt.Errorf("%w: sensor_type must be %s or %s, got %q", ErrInvalidConfig, SensorReal, SensorSimulation, c.SensorType)
	}
	if c.Out1Pin == "" || c.Out2Pin == "" {
		return fmt.Errorf("%w: out1_pin and out2_pin are required", ErrInvalidConfig)
	}
	if c.Out1Pin == c.Out2Pin {
		return fmt.Errorf("%w: out1_pin and out2_pin must differ", ErrInvalidConfig)
	}
	if c.MaxPulses < 1 {
		return fmt.Errorf("%w: max_pulses must be > 0", ErrInvalidConfig)
	}
	if c.IntervalMs < 0 {
		return fmt.Errorf("%w: interval_ms must be >= 0", ErrInvalidConfig)
	}
	if c.Vth != nil && (c.Vth.Channel < 0 || c.Vth.Channel > 3) {
		return fmt.Errorf("%w: vth channel must be 0..3", ErrInvalidConfig)
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console", "mqtt", "prometheus":
		default:
			return fmt.Errorf("%w: unknown output type %q", ErrInvalidConfig, o.Type)
		}
	}
	return nil
}

func forEachOutput(outs []OutputConfig, typ string, fn func(*OutputConfig)) bool {
	found := false
	for i := range outs {
		if strings.EqualFold(outs[i].Type, typ) {
			fn(&outs[i])
			found = true
		}
	}
	return found
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	return strconv.Atoi(s)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseKeyIntMap parses "a=1,b=2".
func parseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry '%s'", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value in '%s': %w", p, err)
		}
		out[strings.TrimSpace(kv[0])] = v
	}
	return out, nil
}
