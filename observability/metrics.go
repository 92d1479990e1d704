// Package observability exports invocation metrics to Prometheus.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/tck-bridge/invoke"
)

const metricsNamespace = "tckbridge"

// Metrics counts invocations by symbol and status. It implements
// invoke.Observer, so passing it to invoke.WithObserver is all the wiring
// it needs.
type Metrics struct {
	// InvocationsTotal counts finished invocations, including those rejected
	// before a worker started.
	InvocationsTotal *prometheus.CounterVec

	// InvocationDuration observes wall time of invocations that ran a worker.
	InvocationDuration *prometheus.HistogramVec

	// ActiveWorkers is the number of invocations in flight.
	ActiveWorkers prometheus.Gauge
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates the bridge metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "invocations_total",
				Help:      "Total native invocations by symbol and terminal status",
			},
			[]string{"symbol", "status"},
		),

		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall time of a native invocation including worker start-up",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"symbol"},
		),

		ActiveWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_workers",
				Help:      "Number of invocations currently in flight",
			},
		),
	}
}

// Started implements invoke.Observer.
func (m *Metrics) Started(string) {
	m.ActiveWorkers.Inc()
}

// Finished implements invoke.Observer. Rejections never had a matching
// Started call and arrive with zero elapsed time.
func (m *Metrics) Finished(symbol string, status invoke.Status, elapsed time.Duration) {
	m.InvocationsTotal.WithLabelValues(symbol, string(status)).Inc()
	if elapsed > 0 {
		m.ActiveWorkers.Dec()
		m.InvocationDuration.WithLabelValues(symbol).Observe(elapsed.Seconds())
	}
}

var _ invoke.Observer = (*Metrics)(nil)
