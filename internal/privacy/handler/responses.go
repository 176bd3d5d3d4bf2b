package handler

import (
	"time"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
)

// QueryResponse is the HTTP response for a released query.
type QueryResponse struct {
	QueryID             string              `json:"query_id"`
	PoolID              string              `json:"pool_id"`
	ResultType          string              `json:"result_type"`
	Values              []models.NoisyValue `json:"values"`
	TotalNoiseMagnitude float64             `json:"total_noise_magnitude"`
	KAnonymityMet       bool                `json:"k_anonymity_met"`
	EpsilonSpent        float64             `json:"epsilon_spent"`
	DeltaSpent          float64             `json:"delta_spent"`
	Mechanism           string              `json:"mechanism"`
	ComputedAt          time.Time           `json:"computed_at"`
}

func FromResult(result *models.DifferentiallyPrivateResult) *QueryResponse {
	return &QueryResponse{
		QueryID:             result.QueryID.String(),
		PoolID:              result.PoolID.String(),
		ResultType:          string(result.ResultType),
		Values:              result.Values,
		TotalNoiseMagnitude: result.TotalNoiseMagnitude,
		KAnonymityMet:       result.KAnonymityMet,
		EpsilonSpent:        result.EpsilonSpent,
		DeltaSpent:          result.DeltaSpent,
		Mechanism:           result.Mechanism.String(),
		ComputedAt:          result.ComputedAt,
	}
}

// HistoryResponse lists a lineage oldest first.
type HistoryResponse struct {
	PatientID string                `json:"patient_id"`
	PoolID    string                `json:"pool_id"`
	Entries   []LedgerEntryResponse `json:"entries"`
}

type LedgerEntryResponse struct {
	Version         uint64     `json:"version"`
	TotalEpsilon    float64    `json:"total_epsilon"`
	ConsumedEpsilon float64    `json:"consumed_epsilon"`
	TotalDelta      float64    `json:"total_delta"`
	ConsumedDelta   float64    `json:"consumed_delta"`
	QueryCount      uint32     `json:"query_count"`
	Composition     string     `json:"composition"`
	PeriodStart     time.Time  `json:"period_start"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`
	LastUpdated     time.Time  `json:"last_updated"`
}

func FromHistory(patientID id.PatientID, poolID id.PoolID, entries []*models.LedgerEntry) *HistoryResponse {
	resp := &HistoryResponse{
		PatientID: patientID.String(),
		PoolID:    poolID.String(),
		Entries:   make([]LedgerEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, LedgerEntryResponse{
			Version:         e.Version,
			TotalEpsilon:    e.TotalEpsilon,
			ConsumedEpsilon: e.ConsumedEpsilon,
			TotalDelta:      e.TotalDelta,
			ConsumedDelta:   e.ConsumedDelta,
			QueryCount:      e.QueryCount,
			Composition:     string(e.Composition.Kind),
			PeriodStart:     e.PeriodStart,
			PeriodEnd:       e.PeriodEnd,
			LastUpdated:     e.LastUpdated,
		})
	}
	return resp
}
