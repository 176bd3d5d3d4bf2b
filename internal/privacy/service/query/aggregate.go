package query

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
)

// rawValue is one pre-noise statistic. It never leaves this package.
type rawValue struct {
	label       string
	value       float64
	sensitivity float64
	// lower and upper bound the released value when set.
	lower, upper *float64
}

// contributors returns the distinct patient IDs, sorted.
func contributors(contributions []models.Contribution) []id.PatientID {
	seen := make(map[id.PatientID]struct{}, len(contributions))
	out := make([]id.PatientID, 0, len(contributions))
	for _, c := range contributions {
		if _, ok := seen[c.PatientID]; ok {
			continue
		}
		seen[c.PatientID] = struct{}{}
		out = append(out, c.PatientID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func clamp(v float64, b *models.ValueBounds) float64 {
	if b == nil {
		return v
	}
	return math.Min(math.Max(v, b.Lower), b.Upper)
}

// indicator counts a contribution when its value is non-zero.
func indicator(c models.Contribution) bool {
	return c.Value != 0
}

// aggregate computes the released statistics for additive mechanisms.
// Disjoint buckets (histogram, trend) each carry the full sensitivity.
func aggregate(spec models.QuerySpecification, contributions []models.Contribution, sensitivity float64) []rawValue {
	switch spec.Type {
	case models.QueryCount:
		var n float64
		for _, c := range contributions {
			if indicator(c) {
				n++
			}
		}
		return []rawValue{{label: string(models.QueryCount), value: n, sensitivity: sensitivity}}

	case models.QuerySum:
		var sum float64
		for _, c := range contributions {
			sum += clamp(c.Value, spec.Bounds)
		}
		return []rawValue{{label: string(models.QuerySum), value: sum, sensitivity: sensitivity}}

	case models.QueryAverage:
		var sum float64
		for _, c := range contributions {
			sum += clamp(c.Value, spec.Bounds)
		}
		n := float64(len(contributions))
		rv := rawValue{label: string(models.QueryAverage), value: sum / n, sensitivity: sensitivity / n}
		if spec.Bounds != nil {
			rv.lower, rv.upper = &spec.Bounds.Lower, &spec.Bounds.Upper
		}
		return []rawValue{rv}

	case models.QueryHistogram:
		counts := make(map[string]float64, len(spec.Buckets))
		for _, c := range contributions {
			counts[c.Group]++
		}
		out := make([]rawValue, 0, len(spec.Buckets))
		for _, b := range spec.Buckets {
			out = append(out, rawValue{label: b, value: counts[b], sensitivity: sensitivity})
		}
		return out

	case models.QueryTrend:
		days := trendDays(*spec.TimeRange)
		counts := make([]float64, len(days))
		for _, c := range contributions {
			if !spec.TimeRange.Contains(c.ObservedAt) {
				continue
			}
			i := int(c.ObservedAt.UTC().Sub(days[0]) / day)
			if i >= 0 && i < len(counts) {
				counts[i]++
			}
		}
		out := make([]rawValue, 0, len(days))
		for i, d := range days {
			out = append(out, rawValue{label: d.Format("2006-01-02"), value: counts[i], sensitivity: sensitivity})
		}
		return out

	case models.QueryCorrelation:
		lo, hi := -1.0, 1.0
		return []rawValue{{
			label:       string(models.QueryCorrelation),
			value:       pearson(contributions),
			sensitivity: sensitivity,
			lower:       &lo,
			upper:       &hi,
		}}
	}
	return nil
}

// pearson is the sample correlation of Value and SecondaryValue. Zero
// variance on either side yields 0.
func pearson(contributions []models.Contribution) float64 {
	xs := make([]float64, len(contributions))
	ys := make([]float64, len(contributions))
	for i, c := range contributions {
		xs[i], ys[i] = c.Value, c.SecondaryValue
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// percentileIntervals splits [lower, upper] at the sorted, clamped values
// and scores each gap by its distance from the target rank.
func percentileIntervals(contributions []models.Contribution, p float64, b models.ValueBounds) (edges, scores, logWeights []float64) {
	vals := make([]float64, 0, len(contributions))
	for _, c := range contributions {
		vals = append(vals, clamp(c.Value, &b))
	}
	sort.Float64s(vals)

	edges = make([]float64, 0, len(vals)+2)
	edges = append(edges, b.Lower)
	edges = append(edges, vals...)
	edges = append(edges, b.Upper)

	rank := p / 100 * float64(len(vals))
	scores = make([]float64, len(edges)-1)
	logWeights = make([]float64, len(edges)-1)
	for i := range scores {
		scores[i] = -math.Abs(float64(i) - rank)
		logWeights[i] = math.Log(edges[i+1] - edges[i])
	}
	return edges, scores, logWeights
}
