package setup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Step results recorded by Metrics.
const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultSkipped = "skipped"
	resultBlocked = "blocked"
)

// Metrics holds the Prometheus collectors of a Center. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	steps             *prometheus.CounterVec
	versionsCommitted prometheus.Counter
	phaseDuration     *prometheus.HistogramVec
	sortFatal         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setupgrid_driver_steps_total",
				Help: "Number of driver steps by step and result.",
			},
			[]string{"step", "result"},
		),
		versionsCommitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "setupgrid_versions_committed_total",
				Help: "Number of item versions written to the version repository.",
			},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "setupgrid_phase_duration_seconds",
				Help:    "Time taken to run a phase across all items.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		sortFatal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "setupgrid_sort_fatal_diagnostics",
				Help: "Number of fatal diagnostics found by the last registration.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.steps, m.versionsCommitted, m.phaseDuration, m.sortFatal)
	}
	return m
}

func (m *Metrics) step(step, result string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(step, result).Inc()
}

func (m *Metrics) committed() {
	if m == nil {
		return
	}
	m.versionsCommitted.Inc()
}

func (m *Metrics) phase(name string, start time.Time) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (m *Metrics) sorted(fatal int) {
	if m == nil {
		return
	}
	m.sortFatal.Set(float64(fatal))
}
