package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ledgerOpDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "healthcommons_privacy_ledger_op_duration_ms",
	Help:    "Latency of privacy ledger store operations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
}, []string{"backend", "op"})

func observeLedgerOp(backend, op string, start time.Time) {
	ledgerOpDurationMs.WithLabelValues(backend, op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
