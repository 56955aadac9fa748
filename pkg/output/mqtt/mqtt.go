package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/logger"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/output"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/sensor"
	"github.com/sony/gobreaker"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "b5wld0101-client"
	DefaultStateTopic = "b5wld0101/state"

	connectRetries   = 5
	breakerFailures  = 3
	breakerOpenFor   = 30 * time.Second
	disconnectQuiesc = 250

	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	keyIcon                = "icon"
	unitParticleRate       = "particles/s"
	stateClassMeasurement  = "measurement"
	iconParticles          = "mdi:blur"
	valueTemplateFmt       = "{{ value_json.%s }}"
)

// discoveryFields are the Reading fields announced to Home Assistant, with the
// label appended to the entity name.
var discoveryFields = []struct {
	name  string
	label string
}{
	{sensor.FieldRawOut1, "OUT1"},
	{sensor.FieldRawOut2, "OUT2"},
}

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
	breaker    *gobreaker.CircuitBreaker
}

// NewMQTT connects to the broker, retrying with exponential backoff, and
// publishes Home Assistant discovery payloads when a discovery topic is set.
func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID).SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	var client mqtt.Client
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		token := client.Connect()
		if token.Wait() && token.Error() != nil {
			logger.Warn().Err(token.Error()).Str("server", cfg.Server).Msg("mqtt connect failed")
			return token.Error()
		}
		return nil
	}, backoff.WithMaxRetries(bo, connectRetries-1))
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	logger.Info().Str("server", cfg.Server).Str("topic", cfg.StateTopic).Msg("mqtt connected")

	return newMQTTOutput(client, cfg), nil
}

func newMQTTOutput(client mqtt.Client, cfg config.MQTTConfig) *MQTTOutput {
	m := &MQTTOutput{
		client:     client,
		stateTopic: cfg.StateTopic,
		breaker:    newBreaker(cfg.ClientID),
	}
	if cfg.DiscoveryTopic != "" {
		m.publishDiscovery(cfg)
	}
	return m
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-" + name,
		MaxRequests: 1,
		Timeout:     breakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("mqtt publish breaker changed state")
		},
	})
}

func (m *MQTTOutput) publishDiscovery(cfg config.MQTTConfig) {
	// per-field discovery when discoveryTopic contains a formatter
	if strings.Contains(cfg.DiscoveryTopic, "%s") {
		for _, f := range discoveryFields {
			key := sensor.FieldKey(f.name)
			payload := baseDiscoveryPayload(discoveryName(cfg, f.label), m.stateTopic, discoveryUniqueID(cfg, key), key)
			if err := publishJSON(m.client, fmt.Sprintf(cfg.DiscoveryTopic, key), true, payload); err != nil {
				logger.Error().Err(err).Str("field", key).Msg("mqtt discovery publish error")
			}
		}
		return
	}
	key := sensor.FieldKey(sensor.FieldRawOut1)
	payload := baseDiscoveryPayload(discoveryName(cfg, ""), m.stateTopic, discoveryUniqueID(cfg, ""), key)
	if err := publishJSON(m.client, cfg.DiscoveryTopic, true, payload); err != nil {
		logger.Error().Err(err).Msg("mqtt discovery publish error")
	}
}

// Publish sends the reading as JSON to the state topic. After repeated
// failures the breaker opens and publishes fail fast until it half-opens.
func (m *MQTTOutput) Publish(r sensor.Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = m.breaker.Execute(func() (interface{}, error) {
		return nil, m.PublishRaw(m.stateTopic, b, false)
	})
	return err
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesc)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

// helper: build a human-friendly discovery name; label is appended when set
func discoveryName(cfg config.MQTTConfig, label string) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("B5W-LD0101 %s", cfg.ClientID)
	}
	if label != "" {
		name = fmt.Sprintf("%s %s", name, label)
	}
	return name
}

// helper: build a unique id for discovery; key is appended when set
func discoveryUniqueID(cfg config.MQTTConfig, key string) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid != "" && key != "" {
		uid = fmt.Sprintf("%s_%s", uid, key)
	}
	return uid
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID, key string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitParticleRate,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       fmt.Sprintf(valueTemplateFmt, key),
		keyJSONAttributesTopic: stateTopic,
		keyIcon:                iconParticles,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
