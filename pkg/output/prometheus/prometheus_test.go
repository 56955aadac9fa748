package prometheus

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSetsGauges(t *testing.T) {
	p := newPrometheusOutput()
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)

	require.NoError(t, p.Publish(sensor.Reading{
		RawOut1:   sensor.Float(800),
		RawOut2:   sensor.Float(12.5),
		Overflows: 3,
		Timestamp: ts,
	}))

	assert.Equal(t, 800.0, testutil.ToFloat64(p.rate.WithLabelValues("raw_out1")))
	assert.Equal(t, 12.5, testutil.ToFloat64(p.rate.WithLabelValues("raw_out2")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.overflows))
	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(p.updated))
}

func TestPublishSkipsUnsetFields(t *testing.T) {
	p := newPrometheusOutput()
	require.NoError(t, p.Publish(sensor.Reading{RawOut1: sensor.Float(1)}))
	assert.Equal(t, 1, testutil.CollectAndCount(p.rate))

	require.NoError(t, p.Publish(sensor.Reading{RawOut2: sensor.Float(2)}))
	assert.Equal(t, 2, testutil.CollectAndCount(p.rate))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rate.WithLabelValues("raw_out1")), "previous value kept")
}

func TestWithoutListen(t *testing.T) {
	out, err := NewPrometheus(config.PrometheusConfig{})
	require.NoError(t, err)
	p := out.(*PrometheusOutput)
	assert.Empty(t, p.Addr())
	assert.NoError(t, p.Close())
}

func TestServesMetrics(t *testing.T) {
	out, err := NewPrometheus(config.PrometheusConfig{Listen: "127.0.0.1:0"})
	require.NoError(t, err)
	p := out.(*PrometheusOutput)
	defer p.Close()

	require.NoError(t, p.Publish(sensor.Reading{RawOut1: sensor.Float(42), RawOut2: sensor.Float(0)}))

	resp, err := http.Get("http://" + p.Addr() + metricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `b5wld0101_raw_rate{channel="raw_out1"} 42`)
	assert.Contains(t, string(body), `b5wld0101_raw_rate{channel="raw_out2"} 0`)
	assert.Contains(t, string(body), "b5wld0101_pulse_overflows 0")
}

func TestListenError(t *testing.T) {
	_, err := NewPrometheus(config.PrometheusConfig{Listen: "256.0.0.1:bad"})
	assert.Error(t, err)
}
