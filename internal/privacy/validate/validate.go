// Package validate holds the pure range checks that run before any noise is
// drawn. A failure here stops the query.
package validate

import (
	"fmt"
	"math"

	"healthcommons/internal/privacy/models"
)

// WeakEpsilonThreshold is the epsilon above which privacy is considered weak.
// It is advisory: callers log, they do not reject.
const WeakEpsilonThreshold = 10.0

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func Epsilon(e float64) error {
	if !finite(e) {
		return models.NewInvalidParameter("epsilon", "must be finite")
	}
	if e <= 0 {
		return models.NewInvalidParameter("epsilon", "must be greater than 0")
	}
	return nil
}

// Delta accepts [0, 1).
func Delta(d float64) error {
	if !finite(d) {
		return models.NewInvalidParameter("delta", "must be finite")
	}
	if d < 0 || d >= 1 {
		return models.NewInvalidParameter("delta", "must be in [0, 1)")
	}
	return nil
}

// DeltaStrict accepts (0, 1). The Gaussian mechanism is undefined at 0.
func DeltaStrict(d float64) error {
	if err := Delta(d); err != nil {
		return err
	}
	if d == 0 {
		return models.NewInvalidParameter("delta", "must be greater than 0 for the gaussian mechanism")
	}
	return nil
}

func Sensitivity(s float64) error {
	if !finite(s) {
		return models.NewInvalidParameter("sensitivity_bound", "must be finite")
	}
	if s <= 0 {
		return models.NewInvalidParameter("sensitivity_bound", "must be greater than 0")
	}
	return nil
}

func IsWeakEpsilon(e float64) bool {
	return e > WeakEpsilonThreshold
}

// Parameters checks a pool's configuration, including the mechanism-specific
// delta rule.
func Parameters(p models.PrivacyParameters) error {
	if !p.NoiseMechanism.IsValid() {
		return models.NewInvalidParameter("noise_mechanism", fmt.Sprintf("unknown mechanism %q", p.NoiseMechanism))
	}
	if err := Epsilon(p.Epsilon); err != nil {
		return err
	}
	if p.NoiseMechanism == models.MechanismGaussian {
		if err := DeltaStrict(p.Delta); err != nil {
			return err
		}
	} else if err := Delta(p.Delta); err != nil {
		return err
	}
	return Sensitivity(p.SensitivityBound)
}
