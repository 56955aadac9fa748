package sensor

import (
	"encoding/json"
	"testing"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingFields(t *testing.T) {
	r := Reading{RawOut1: Float(12.5), RawOut2: Float(0)}

	got := r.Fields()
	require.Len(t, got, len(FieldNames))
	for _, name := range []string{FieldPM25Standard, FieldPM100Standard, FieldParticles25um, FieldParticles100um} {
		v, ok := got[name]
		assert.True(t, ok, name)
		assert.Nil(t, v, name)
	}
	assert.Equal(t, 12.5, *got[FieldRawOut1])
	assert.Equal(t, 0.0, *got[FieldRawOut2])

	_, ok := r.Field("pm1 standard")
	assert.False(t, ok)
}

func TestReadingCloneSharesNothing(t *testing.T) {
	r := Reading{RawOut1: Float(1), RawOut2: Float(2), Overflows: 3}
	c := r.Clone()
	if diff := cmp.Diff(r, c); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}
	*c.RawOut1 = 99
	assert.Equal(t, 1.0, *r.RawOut1)
}

func TestReadingJSONKeepsReservedFieldsAsNull(t *testing.T) {
	b, err := json.Marshal(Reading{RawOut1: Float(800)})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Contains(t, m, "pm25_standard")
	assert.Nil(t, m["pm25_standard"])
	assert.Equal(t, 800.0, m["raw_out1"])
}

func TestNewFakeSensor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	cfg.MaxPulses = 64

	d, err := NewFakeSensor(cfg)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 64, d.Capacity())
	v, err := d.Threshold().Read()
	require.NoError(t, err)
	assert.Equal(t, cfg.Simulation.Vth, v)

	r := d.Read()
	assert.NotNil(t, r.RawOut1)
	assert.NotNil(t, r.RawOut2)
}

func TestBuildSignalModels(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Simulation.Out1 = config.SignalConfig{Offset: 3, PeriodMs: 1500, PulseWidthUs: 800}
	models := buildSignalModels(cfg)
	require.Len(t, models, 2)
	m := models[cfg.Out1Pin]
	assert.Equal(t, 3.0, m.Offset)
	assert.Equal(t, "1.5s", m.Period.String())
	assert.Equal(t, "800µs", m.PulseWidth.String())
}

func TestFieldKeyMatchesJSONTags(t *testing.T) {
	b, err := json.Marshal(Reading{})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, name := range FieldNames {
		assert.Contains(t, m, FieldKey(name))
	}
}
