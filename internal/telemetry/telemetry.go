// Package telemetry exposes integrator activity as prometheus collectors.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "becsim"

// Metrics is safe to use from a nil pointer; every method is then a no-op.
type Metrics struct {
	stepsAccepted prometheus.Counter
	stepsRejected prometheus.Counter
	stepSize      prometheus.Gauge
	simTime       prometheus.Gauge
	stepDuration  prometheus.Histogram
	integrations  *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stepsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_accepted_total",
			Help:      "Integration steps committed to the state",
		}),
		stepsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_rejected_total",
			Help:      "Adaptive step attempts rejected by the error estimate",
		}),
		stepSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_size",
			Help:      "Current integration step size",
		}),
		simTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_time",
			Help:      "Simulated time of the last committed step",
		}),
		stepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time per committed step",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		integrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrations_total",
			Help:      "Finished integrations by terminal status",
		}, []string{"status"}),
	}
}

func (m *Metrics) Accepted(t, dt float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepsAccepted.Inc()
	m.stepSize.Set(dt)
	m.simTime.Set(t)
	m.stepDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.stepsRejected.Inc()
}

func (m *Metrics) Finished(status string) {
	if m == nil {
		return
	}
	m.integrations.WithLabelValues(status).Inc()
}
