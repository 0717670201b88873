// Package telemetry exposes Prometheus metrics of the control loop.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/floats"
)

// Metrics holds the loop collectors. A nil *Metrics records nothing.
type Metrics struct {
	ticks         prometheus.Counter
	updateSeconds *prometheus.HistogramVec
	estimateNorm  *prometheus.GaugeVec
	residual      prometheus.Gauge
}

// New registers the loop collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "gmtns_loop_ticks_total",
			Help: "Total control loop ticks",
		}),
		updateSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gmtns_update_duration_seconds",
			Help:    "Component update duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10), // 1us to ~0.26s
		}, []string{"component"}),
		estimateNorm: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gmtns_estimate_norm",
			Help: "Euclidean norm of the latest split estimate",
		}, []string{"space"}),
		residual: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gmtns_reconstruction_residual",
			Help: "Relative reconstruction residual of the latest tick",
		}),
	}
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Tick counts one loop tick.
func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

// ObserveUpdate records the update duration of component.
func (m *Metrics) ObserveUpdate(component string, d time.Duration) {
	if m == nil {
		return
	}
	m.updateSeconds.WithLabelValues(component).Observe(d.Seconds())
}

// SetEstimate records the norm of the estimate of space.
func (m *Metrics) SetEstimate(space string, estimate []float64) {
	if m == nil {
		return
	}
	m.estimateNorm.WithLabelValues(space).Set(floats.Norm(estimate, 2))
}

// SetResidual records the latest reconstruction residual.
func (m *Metrics) SetResidual(v float64) {
	if m == nil {
		return
	}
	m.residual.Set(v)
}
