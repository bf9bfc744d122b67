package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Tick("sol", ResultOK)
	m.Tick("sol", ResultOK)
	m.Tick("sol", ResultSkipped)
	m.Opportunity("sol", "up", "strong-up", 0.01)
	m.Fetch("sol", "primary", 20*time.Millisecond)
	m.Tone("sol")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks.WithLabelValues("sol", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks.WithLabelValues("sol", ResultSkipped)))
	assert.Equal(t, 0.01, testutil.ToFloat64(m.opportunities.WithLabelValues("sol", "up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tiers.WithLabelValues("sol", "up", "strong-up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tones.WithLabelValues("sol")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Tick("sol", ResultOK)
	m.Opportunity("sol", "up", "x", 1)
	m.Fetch("sol", "primary", time.Second)
	m.Tone("sol")
}
