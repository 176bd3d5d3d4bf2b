package query

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
)

func TestContributorsAreDistinctAndSorted(t *testing.T) {
	got := contributors([]models.Contribution{{PatientID: "b"}, {PatientID: "a"}, {PatientID: "b"}})
	assert.Equal(t, []id.PatientID{"a", "b"}, got)
}

func TestAggregate(t *testing.T) {
	bounds := &models.ValueBounds{Lower: 0, Upper: 10}
	values := []models.Contribution{
		{PatientID: "a", Value: 4},
		{PatientID: "b", Value: 0},
		{PatientID: "c", Value: 25},
	}

	tests := []struct {
		name            string
		spec            models.QuerySpecification
		wantValue       float64
		wantSensitivity float64
	}{
		{"count uses indicators", models.QuerySpecification{Type: models.QueryCount}, 2, 1},
		{"sum clamps to bounds", models.QuerySpecification{Type: models.QuerySum, Bounds: bounds}, 14, 1},
		{"sum without bounds", models.QuerySpecification{Type: models.QuerySum}, 29, 1},
		{"average divides sensitivity", models.QuerySpecification{Type: models.QueryAverage, Bounds: bounds}, 14.0 / 3, 1.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := aggregate(tt.spec, values, 1)
			require.Len(t, raw, 1)
			assert.InDelta(t, tt.wantValue, raw[0].value, 1e-12)
			assert.InDelta(t, tt.wantSensitivity, raw[0].sensitivity, 1e-12)
		})
	}
}

func TestAggregate_TrendBucketsByUTCDay(t *testing.T) {
	start := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	spec := models.QuerySpecification{
		Type:      models.QueryTrend,
		TimeRange: &models.TimeRange{Start: start, End: start.Add(48 * time.Hour)},
	}
	raw := aggregate(spec, []models.Contribution{
		{PatientID: "a", ObservedAt: start.Add(time.Hour)},
		{PatientID: "b", ObservedAt: start.Add(20 * time.Hour)},
		{PatientID: "c", ObservedAt: start.Add(-time.Hour)},
	}, 1)

	require.Len(t, raw, 3)
	assert.Equal(t, "2026-01-01", raw[0].label)
	assert.Equal(t, 1.0, raw[0].value)
	assert.Equal(t, 1.0, raw[1].value)
	assert.Zero(t, raw[2].value)
}

func TestPearson(t *testing.T) {
	perfect := []models.Contribution{{Value: 1, SecondaryValue: 3}, {Value: 2, SecondaryValue: 5}, {Value: 3, SecondaryValue: 7}}
	assert.InDelta(t, 1, pearson(perfect), 1e-12)

	inverse := []models.Contribution{{Value: 1, SecondaryValue: 3}, {Value: 2, SecondaryValue: 2}, {Value: 3, SecondaryValue: 1}}
	assert.InDelta(t, -1, pearson(inverse), 1e-12)

	flat := []models.Contribution{{Value: 1, SecondaryValue: 3}, {Value: 1, SecondaryValue: 4}}
	assert.Zero(t, pearson(flat))
}

func TestPercentileIntervals(t *testing.T) {
	contributions := []models.Contribution{{Value: 30}, {Value: 10}, {Value: 200}}
	edges, scores, logWeights := percentileIntervals(contributions, 50, models.ValueBounds{Lower: 0, Upper: 100})

	assert.Equal(t, []float64{0, 10, 30, 100, 100}, edges)
	assert.Equal(t, []float64{-1.5, -0.5, -0.5, -1.5}, scores)
	assert.True(t, math.IsInf(logWeights[3], -1), "empty gap is excluded")
	assert.InDelta(t, math.Log(20), logWeights[1], 1e-12)
}
