package photoactivation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors updated by a Sequencer
type Metrics struct {
	// Runs counts finished runs by the state they ended in
	Runs *prometheus.CounterVec

	// Warnings counts waveform writes that failed
	Warnings prometheus.Counter

	// Duration observes the time from Prepare to the end of Cleanup
	Duration prometheus.Histogram

	// Active is 1 while a run holds the hardware
	Active prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg, which may
// be nil to leave them unregistered
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lab",
			Subsystem: "photoactivation",
			Name:      "runs_total",
			Help:      "Photoactivation runs, by final state.",
		}, []string{"state"}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lab",
			Subsystem: "photoactivation",
			Name:      "waveform_warnings_total",
			Help:      "Galvo waveform writes that failed without aborting the run.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lab",
			Subsystem: "photoactivation",
			Name:      "run_duration_seconds",
			Help:      "Time from prepare to the end of cleanup.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lab",
			Subsystem: "photoactivation",
			Name:      "active",
			Help:      "1 while a run holds the hardware.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Warnings, m.Duration, m.Active)
	}
	return m
}

func (m *Metrics) begin() {
	if m == nil {
		return
	}
	m.Active.Set(1)
}

func (m *Metrics) warn() {
	if m == nil {
		return
	}
	m.Warnings.Inc()
}

func (m *Metrics) observe(r Report) {
	if m == nil {
		return
	}
	m.Active.Set(0)
	m.Runs.WithLabelValues(r.State).Inc()
	m.Duration.Observe(r.ElapsedMs / 1000)
}
