// Package metrics exposes Prometheus collectors for the spread monitors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spreadwatch"

// Tick results.
const (
	ResultOK      = "ok"
	ResultAbsent  = "absent"
	ResultPanic   = "panic"
	ResultLocked  = "locked"
	ResultSkipped = "skipped"
)

// Metrics groups the monitor collectors. A nil *Metrics is a no-op.
type Metrics struct {
	ticks         *prometheus.CounterVec
	opportunities *prometheus.GaugeVec
	tiers         *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	tones         *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Polling ticks by instrument and result.",
		}, []string{"instrument", "result"}),
		opportunities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "opportunity_value",
			Help:      "Latest opportunity value by instrument and direction.",
		}, []string{"instrument", "direction"}),
		tiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_events_total",
			Help:      "Classified opportunity events by tier.",
		}, []string{"instrument", "direction", "tier"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Venue fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instrument", "venue"}),
		tones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tone_requests_total",
			Help:      "Alert tones requested.",
		}, []string{"instrument"}),
	}
	reg.MustRegister(m.ticks, m.opportunities, m.tiers, m.fetchDuration, m.tones)
	return m
}

// Tick counts a tick outcome.
func (m *Metrics) Tick(instrument, result string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(instrument, result).Inc()
}

// Opportunity records a classified value.
func (m *Metrics) Opportunity(instrument, direction, tierName string, value float64) {
	if m == nil {
		return
	}
	m.opportunities.WithLabelValues(instrument, direction).Set(value)
	m.tiers.WithLabelValues(instrument, direction, tierName).Inc()
}

// Fetch observes a venue call duration.
func (m *Metrics) Fetch(instrument, venue string, took time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(instrument, venue).Observe(took.Seconds())
}

// Tone counts a dispatched tone request.
func (m *Metrics) Tone(instrument string) {
	if m == nil {
		return
	}
	m.tones.WithLabelValues(instrument).Inc()
}
