package models

import (
	"time"

	id "healthcommons/pkg/domain"
)

// NoisyValue is one released statistic with its noise scale.
type NoisyValue struct {
	Label          string  `json:"label"`
	Value          float64 `json:"value"`
	StandardError  float64 `json:"standard_error"`
	ConfidenceLow  float64 `json:"confidence_low"`
	ConfidenceHigh float64 `json:"confidence_high"`
}

// DifferentiallyPrivateResult is the only artefact released to callers. It
// never carries per-contributor values or the pre-noise aggregate.
type DifferentiallyPrivateResult struct {
	QueryID             id.QueryID     `json:"query_id"`
	PoolID              id.PoolID      `json:"pool_id"`
	ResultType          QueryType      `json:"result_type"`
	Values              []NoisyValue   `json:"values"`
	TotalNoiseMagnitude float64        `json:"total_noise_magnitude"`
	KAnonymityMet       bool           `json:"k_anonymity_met"`
	EpsilonSpent        float64        `json:"epsilon_spent"`
	DeltaSpent          float64        `json:"delta_spent"`
	Mechanism           NoiseMechanism `json:"mechanism"`
	ComputedAt          time.Time      `json:"computed_at"`
}

type BudgetStatusView struct {
	PatientID        id.PatientID `json:"patient_id"`
	PoolID           id.PoolID    `json:"pool_id"`
	TotalEpsilon     float64      `json:"total_epsilon"`
	ConsumedEpsilon  float64      `json:"consumed_epsilon"`
	RemainingEpsilon float64      `json:"remaining_epsilon"`
	TotalDelta       float64      `json:"total_delta"`
	ConsumedDelta    float64      `json:"consumed_delta"`
	RemainingDelta   float64      `json:"remaining_delta"`
	QueryCount       uint32       `json:"query_count"`
	IsExhausted      bool         `json:"is_exhausted"`
	IsExpired        bool         `json:"is_expired"`
	PeriodEnd        *time.Time   `json:"period_end,omitempty"`
	Composition      Composition  `json:"composition"`
	Version          uint64       `json:"version"`
}

type BudgetCheck struct {
	CanExecute       bool    `json:"can_execute"`
	ShortfallEpsilon float64 `json:"shortfall_epsilon"`
	ShortfallDelta   float64 `json:"shortfall_delta"`
}
