package prometheus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/logger"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/output"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace       = "b5wld0101"
	metricsPath     = "/metrics"
	shutdownTimeout = 2 * time.Second
)

type PrometheusOutput struct {
	registry  *prometheus.Registry
	rate      *prometheus.GaugeVec
	overflows prometheus.Gauge
	updated   prometheus.Gauge

	server   *http.Server
	listener net.Listener
}

// NewPrometheus registers the reading gauges on a private registry and, when
// cfg.Listen is set, serves them on /metrics.
func NewPrometheus(cfg config.PrometheusConfig) (output.Output, error) {
	p := newPrometheusOutput()
	if cfg.Listen == "" {
		return p, nil
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("prometheus listen %s: %w", cfg.Listen, err)
	}
	p.serve(ln)
	logger.Info().Str("addr", ln.Addr().String()).Msg("prometheus metrics endpoint started")
	return p, nil
}

func newPrometheusOutput() *PrometheusOutput {
	p := &PrometheusOutput{
		registry: prometheus.NewRegistry(),
		rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "raw_rate",
			Help:      "Particle pulse rate per output line, in particles per second.",
		}, []string{"channel"}),
		overflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pulse_overflows",
			Help:      "Channel reads that found the pulse buffer full.",
		}),
		updated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading_timestamp_seconds",
			Help:      "Unix time of the last published reading.",
		}),
	}
	p.registry.MustRegister(p.rate, p.overflows, p.updated)
	return p
}

func (p *PrometheusOutput) serve(ln net.Listener) {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry}))
	p.listener = ln
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("prometheus server stopped")
		}
	}()
}

// Addr is the bound address of the metrics endpoint, or "" when not serving.
func (p *PrometheusOutput) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Publish updates the gauges. Unset fields leave their series untouched.
func (p *PrometheusOutput) Publish(r sensor.Reading) error {
	for _, name := range []string{sensor.FieldRawOut1, sensor.FieldRawOut2} {
		if v, _ := r.Field(name); v != nil {
			p.rate.WithLabelValues(sensor.FieldKey(name)).Set(*v)
		}
	}
	p.overflows.Set(float64(r.Overflows))
	if !r.Timestamp.IsZero() {
		p.updated.Set(float64(r.Timestamp.Unix()) + float64(r.Timestamp.Nanosecond())/1e9)
	}
	return nil
}

func (p *PrometheusOutput) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return p.server.Shutdown(ctx)
}
