package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the privacy engine. All methods are
// safe on a nil receiver so services can run without metrics.
type Metrics struct {
	QueriesTotal          *prometheus.CounterVec
	QueryDuration         prometheus.Histogram
	NoiseDrawsTotal       *prometheus.CounterVec
	EpsilonConsumed       prometheus.Histogram
	ConsumeConflictsTotal prometheus.Counter
	QueryRetriesTotal     prometheus.Counter
	RandomnessFailures    prometheus.Counter
	BudgetRenewalsTotal   prometheus.Counter
	BudgetsCreatedTotal   prometheus.Counter
	WeakEpsilonQueries    prometheus.Counter
	KAnonymityShortfalls  prometheus.Counter
}

// New registers the privacy metrics with reg. Pass prometheus.DefaultRegisterer
// in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcommons_privacy_queries_total",
			Help: "Differentially private queries by type and outcome",
		}, []string{"type", "outcome"}),
		QueryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthcommons_privacy_query_duration_seconds",
			Help:    "Duration of ExecuteQuery including ledger I/O",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		NoiseDrawsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcommons_privacy_noise_draws_total",
			Help: "Released values perturbed, by mechanism",
		}, []string{"mechanism"}),
		EpsilonConsumed: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthcommons_privacy_epsilon_per_query",
			Help:    "Epsilon charged to each contributor per successful query",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		ConsumeConflictsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_privacy_consume_conflicts_total",
			Help: "Ledger appends rejected because another writer extended the lineage first",
		}),
		QueryRetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_privacy_query_retries_total",
			Help: "Full query re-evaluations after a consume-time conflict",
		}),
		RandomnessFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_privacy_randomness_failures_total",
			Help: "Queries aborted because secure randomness was unavailable",
		}),
		BudgetRenewalsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_privacy_budget_renewals_total",
			Help: "Ledger lineages renewed into a new period",
		}),
		BudgetsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_privacy_budgets_created_total",
			Help: "Ledger lineages created with the default allocation",
		}),
		WeakEpsilonQueries: f.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_privacy_weak_epsilon_queries_total",
			Help: "Queries run with epsilon above the weak-privacy threshold",
		}),
		KAnonymityShortfalls: f.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_privacy_k_anonymity_unmet_total",
			Help: "Released results whose contributor count was below min_aggregation",
		}),
	}
}

func (m *Metrics) IncrementQuery(queryType, outcome string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(queryType, outcome).Inc()
}

// ObserveQuery records ExecuteQuery duration. Call with time.Now() at the start.
func (m *Metrics) ObserveQuery(start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddNoiseDraws(mechanism string, n int) {
	if m == nil {
		return
	}
	m.NoiseDrawsTotal.WithLabelValues(mechanism).Add(float64(n))
}

func (m *Metrics) ObserveEpsilon(epsilon float64) {
	if m == nil {
		return
	}
	m.EpsilonConsumed.Observe(epsilon)
}

func (m *Metrics) IncrementConsumeConflict() {
	if m == nil {
		return
	}
	m.ConsumeConflictsTotal.Inc()
}

func (m *Metrics) IncrementQueryRetry() {
	if m == nil {
		return
	}
	m.QueryRetriesTotal.Inc()
}

func (m *Metrics) IncrementRandomnessFailure() {
	if m == nil {
		return
	}
	m.RandomnessFailures.Inc()
}

func (m *Metrics) IncrementRenewal() {
	if m == nil {
		return
	}
	m.BudgetRenewalsTotal.Inc()
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.BudgetsCreatedTotal.Inc()
}

func (m *Metrics) IncrementWeakEpsilon() {
	if m == nil {
		return
	}
	m.WeakEpsilonQueries.Inc()
}

func (m *Metrics) IncrementKAnonymityUnmet() {
	if m == nil {
		return
	}
	m.KAnonymityShortfalls.Inc()
}
