package handler

import (
	"fmt"
	"strings"
	"time"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

const maxContributions = 100_000

// ExecuteQueryRequest is the HTTP request body for POST /privacy/pools/{poolID}/queries.
type ExecuteQueryRequest struct {
	Query         QueryRequest          `json:"query"`
	Contributions []ContributionRequest `json:"contributions"`
	Params        ParamsRequest         `json:"params"`

	// Parsed values (populated by Validate)
	parsedSpec          models.QuerySpecification
	parsedContributions []models.Contribution
	parsedParams        models.PrivacyParameters
}

type QueryRequest struct {
	ID         string              `json:"id,omitempty"`
	Type       string              `json:"type"`
	Categories []string            `json:"categories,omitempty"`
	Filters    map[string]string   `json:"filters,omitempty"`
	GroupBy    string              `json:"group_by,omitempty"`
	TimeRange  *models.TimeRange   `json:"time_range,omitempty"`
	Percentile float64             `json:"percentile,omitempty"`
	Buckets    []string            `json:"buckets,omitempty"`
	Bounds     *models.ValueBounds `json:"bounds,omitempty"`
}

type ContributionRequest struct {
	PatientID      string    `json:"patient_id"`
	Value          float64   `json:"value"`
	SecondaryValue float64   `json:"secondary_value,omitempty"`
	Group          string    `json:"group,omitempty"`
	ObservedAt     time.Time `json:"observed_at,omitempty"`
}

type ParamsRequest struct {
	Epsilon          float64 `json:"epsilon"`
	Delta            float64 `json:"delta"`
	NoiseMechanism   string  `json:"noise_mechanism"`
	SensitivityBound float64 `json:"sensitivity_bound"`
	MinAggregation   uint32  `json:"min_aggregation"`
}

// Validate parses enums and identifiers. Numeric ranges are left to the
// executor so the rules live in one place.
func (r *ExecuteQueryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Contributions) > maxContributions {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("at most %d contributions per query", maxContributions))
	}

	queryType, err := models.ParseQueryType(strings.TrimSpace(r.Query.Type))
	if err != nil {
		return err
	}
	spec := models.QuerySpecification{
		Type:       queryType,
		Filters:    r.Query.Filters,
		GroupBy:    r.Query.GroupBy,
		TimeRange:  r.Query.TimeRange,
		Percentile: r.Query.Percentile,
		Buckets:    r.Query.Buckets,
		Bounds:     r.Query.Bounds,
	}
	if r.Query.ID != "" {
		if spec.ID, err = id.ParseQueryID(r.Query.ID); err != nil {
			return err
		}
	}
	for _, raw := range r.Query.Categories {
		category, err := id.ParseDataCategory(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		spec.Categories = append(spec.Categories, category)
	}
	r.parsedSpec = spec

	mechanism, err := models.ParseNoiseMechanism(strings.TrimSpace(r.Params.NoiseMechanism))
	if err != nil {
		return err
	}
	r.parsedParams = models.PrivacyParameters{
		Epsilon:          r.Params.Epsilon,
		Delta:            r.Params.Delta,
		NoiseMechanism:   mechanism,
		SensitivityBound: r.Params.SensitivityBound,
		MinAggregation:   r.Params.MinAggregation,
	}

	r.parsedContributions = make([]models.Contribution, 0, len(r.Contributions))
	for i, c := range r.Contributions {
		patientID, err := id.ParsePatientID(c.PatientID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, fmt.Sprintf("contributions[%d]: invalid patient_id", i))
		}
		r.parsedContributions = append(r.parsedContributions, models.Contribution{
			PatientID:      patientID,
			Value:          c.Value,
			SecondaryValue: c.SecondaryValue,
			Group:          c.Group,
			ObservedAt:     c.ObservedAt,
		})
	}
	return nil
}

// Spec returns the parsed query bound to poolID.
func (r *ExecuteQueryRequest) Spec(poolID id.PoolID) models.QuerySpecification {
	spec := r.parsedSpec
	spec.PoolID = poolID
	return spec
}

func (r *ExecuteQueryRequest) ParsedContributions() []models.Contribution {
	return r.parsedContributions
}

func (r *ExecuteQueryRequest) ParsedParams() models.PrivacyParameters {
	return r.parsedParams
}
