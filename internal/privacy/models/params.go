package models

import "fmt"

type NoiseMechanism string

const (
	MechanismLaplace            NoiseMechanism = "laplace"
	MechanismGaussian           NoiseMechanism = "gaussian"
	MechanismExponential        NoiseMechanism = "exponential"
	MechanismRandomizedResponse NoiseMechanism = "randomized_response"
)

// ParseNoiseMechanism rejects unknown names instead of defaulting.
func ParseNoiseMechanism(s string) (NoiseMechanism, error) {
	m := NoiseMechanism(s)
	if !m.IsValid() {
		return "", NewInvalidParameter("noise_mechanism", fmt.Sprintf("unknown mechanism %q", s))
	}
	return m, nil
}

func (m NoiseMechanism) IsValid() bool {
	switch m {
	case MechanismLaplace, MechanismGaussian, MechanismExponential, MechanismRandomizedResponse:
		return true
	}
	return false
}

func (m NoiseMechanism) String() string { return string(m) }

// PrivacyParameters is the configuration a pool attaches to its queries.
// Values are validated, never clamped.
type PrivacyParameters struct {
	Epsilon          float64        `json:"epsilon"`
	Delta            float64        `json:"delta"`
	NoiseMechanism   NoiseMechanism `json:"noise_mechanism"`
	SensitivityBound float64        `json:"sensitivity_bound"`
	MinAggregation   uint32         `json:"min_aggregation"`
}

// Cost is the (epsilon, delta) charged to every contributor of one query.
// Only the Gaussian mechanism spends delta.
func (p PrivacyParameters) Cost() (epsilon, delta float64) {
	if p.NoiseMechanism == MechanismGaussian {
		return p.Epsilon, p.Delta
	}
	return p.Epsilon, 0
}
