package models

import (
	"fmt"
	"time"

	id "healthcommons/pkg/domain"
)

type QueryType string

const (
	QueryCount       QueryType = "count"
	QuerySum         QueryType = "sum"
	QueryAverage     QueryType = "average"
	QueryPercentile  QueryType = "percentile"
	QueryHistogram   QueryType = "histogram"
	QueryCorrelation QueryType = "correlation"
	QueryTrend       QueryType = "trend"
)

func ParseQueryType(s string) (QueryType, error) {
	switch q := QueryType(s); q {
	case QueryCount, QuerySum, QueryAverage, QueryPercentile, QueryHistogram, QueryCorrelation, QueryTrend:
		return q, nil
	}
	return "", NewInvalidParameter("query_type", fmt.Sprintf("unknown query type %q", s))
}

// Supports reports whether mechanism m can answer query type q.
func (q QueryType) Supports(m NoiseMechanism) bool {
	switch m {
	case MechanismLaplace, MechanismGaussian:
		return q != QueryPercentile
	case MechanismExponential:
		return q == QueryPercentile
	case MechanismRandomizedResponse:
		return q == QueryCount
	}
	return false
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains is half-open: [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// QuerySpecification describes one aggregate request against a pool.
type QuerySpecification struct {
	ID         id.QueryID        `json:"id"`
	Type       QueryType         `json:"type"`
	Categories []id.DataCategory `json:"categories"`
	Filters    map[string]string `json:"filters,omitempty"`
	GroupBy    string            `json:"group_by,omitempty"`
	TimeRange  *TimeRange        `json:"time_range,omitempty"`
	PoolID     id.PoolID         `json:"pool_id"`
	// Percentile is the rank in [0, 100] for percentile queries.
	Percentile float64 `json:"percentile,omitempty"`
	// Buckets is the public label domain for histogram queries. Labels outside
	// it are not released.
	Buckets []string `json:"buckets,omitempty"`
	// Bounds clamps contributed values for sum, average and percentile.
	Bounds *ValueBounds `json:"bounds,omitempty"`
}

// ValueBounds is the public range contributed values are clamped into.
type ValueBounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contribution is one contributor's pre-filtered record for a query.
type Contribution struct {
	PatientID      id.PatientID `json:"patient_id"`
	Value          float64      `json:"value"`
	SecondaryValue float64      `json:"secondary_value,omitempty"`
	Group          string       `json:"group,omitempty"`
	ObservedAt     time.Time    `json:"observed_at,omitempty"`
}
