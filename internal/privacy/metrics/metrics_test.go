package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementQuery("count", "success")
	m.IncrementQuery("count", "success")
	m.IncrementQuery("sum", "insufficient_budget")
	m.AddNoiseDraws("laplace", 3)
	m.IncrementConsumeConflict()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("count", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("sum", "insufficient_budget")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NoiseDrawsTotal.WithLabelValues("laplace")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsumeConflictsTotal))
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementQuery("count", "success")
		m.AddNoiseDraws("gaussian", 1)
		m.ObserveEpsilon(0.5)
		m.IncrementRenewal()
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
