package query

import (
	"fmt"
	"math"
	"time"

	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/validate"
	id "healthcommons/pkg/domain"
)

// maxTrendBuckets caps the number of daily buckets a trend query releases.
const maxTrendBuckets = 366

const day = 24 * time.Hour

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validateRequest runs every check that must pass before any ledger read.
func validateRequest(spec models.QuerySpecification, contributions []models.Contribution, params models.PrivacyParameters, poolID id.PoolID) error {
	if err := validate.Parameters(params); err != nil {
		return err
	}
	if _, err := id.ParsePoolID(poolID.String()); err != nil {
		return models.NewInvalidParameter("pool_id", "must be a valid pool key")
	}
	if spec.PoolID != "" && spec.PoolID != poolID {
		return models.NewInvalidParameter("pool_id", "query targets a different pool")
	}
	if _, err := models.ParseQueryType(string(spec.Type)); err != nil {
		return err
	}
	if !spec.Type.Supports(params.NoiseMechanism) {
		return models.NewInvalidParameter("noise_mechanism",
			fmt.Sprintf("%s cannot answer %s queries", params.NoiseMechanism, spec.Type))
	}
	for _, c := range spec.Categories {
		if !c.IsValid() {
			return models.NewInvalidParameter("categories", fmt.Sprintf("unknown category %q", c))
		}
	}
	if len(contributions) == 0 {
		return models.NewInvalidParameter("contributions", "at least one contribution is required")
	}
	// Sensitivity is calibrated to one record per contributor.
	seen := make(map[id.PatientID]struct{}, len(contributions))
	for _, c := range contributions {
		if _, err := id.ParsePatientID(c.PatientID.String()); err != nil {
			return models.NewInvalidParameter("contributions", "every contribution needs a valid patient_id")
		}
		if _, dup := seen[c.PatientID]; dup {
			return models.NewInvalidParameter("contributions", "each patient may contribute at most one record")
		}
		seen[c.PatientID] = struct{}{}
		if !finite(c.Value) || !finite(c.SecondaryValue) {
			return models.NewInvalidParameter("contributions", "values must be finite")
		}
	}
	if spec.Bounds != nil {
		if !finite(spec.Bounds.Lower) || !finite(spec.Bounds.Upper) || spec.Bounds.Lower >= spec.Bounds.Upper {
			return models.NewInvalidParameter("bounds", "lower must be below upper")
		}
	}

	switch spec.Type {
	case models.QueryPercentile:
		if !finite(spec.Percentile) || spec.Percentile < 0 || spec.Percentile > 100 {
			return models.NewInvalidParameter("percentile", "must be in [0, 100]")
		}
		if spec.Bounds == nil {
			return models.NewInvalidParameter("bounds", "percentile queries need public bounds")
		}
	case models.QueryHistogram:
		if len(spec.Buckets) == 0 {
			return models.NewInvalidParameter("buckets", "histogram queries need a bucket domain")
		}
		seen := make(map[string]struct{}, len(spec.Buckets))
		for _, b := range spec.Buckets {
			if _, dup := seen[b]; dup {
				return models.NewInvalidParameter("buckets", fmt.Sprintf("duplicate bucket %q", b))
			}
			seen[b] = struct{}{}
		}
	case models.QueryTrend:
		if spec.TimeRange == nil || !spec.TimeRange.End.After(spec.TimeRange.Start) {
			return models.NewInvalidParameter("time_range", "trend queries need a non-empty time range")
		}
		if len(trendDays(*spec.TimeRange)) > maxTrendBuckets {
			return models.NewInvalidParameter("time_range", fmt.Sprintf("spans more than %d days", maxTrendBuckets))
		}
	case models.QueryCorrelation:
		if len(contributions) < 2 {
			return models.NewInvalidParameter("contributions", "correlation needs at least two contributions")
		}
	}
	return nil
}

// trendDays lists the UTC day starts overlapping r, stopping one past the cap.
func trendDays(r models.TimeRange) []time.Time {
	start := r.Start.UTC().Truncate(day)
	var out []time.Time
	for d := start; d.Before(r.End); d = d.Add(day) {
		out = append(out, d)
		if len(out) > maxTrendBuckets {
			break
		}
	}
	return out
}
