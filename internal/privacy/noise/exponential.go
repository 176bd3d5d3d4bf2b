package noise

import (
	"errors"
	"math"

	"healthcommons/internal/privacy/randomness"
	"healthcommons/internal/privacy/validate"
)

// Exponential selects a candidate with probability proportional to
// exp(ε·score/(2·sensitivity)).
type Exponential struct {
	base
}

func NewExponential(src randomness.Source, opts ...Option) *Exponential {
	return &Exponential{base: newBase("exponential", src, opts)}
}

// Select picks an index of scores.
func (e *Exponential) Select(scores []float64, sensitivity, epsilon float64) (int, error) {
	return e.SelectWeighted(scores, nil, sensitivity, epsilon)
}

// SelectWeighted adds a per-candidate log base measure, e.g. the log length
// of an interval. A -Inf weight excludes the candidate.
func (e *Exponential) SelectWeighted(scores, logWeights []float64, sensitivity, epsilon float64) (int, error) {
	if err := validate.Sensitivity(sensitivity); err != nil {
		return 0, e.reject(err)
	}
	if err := validate.Epsilon(epsilon); err != nil {
		return 0, e.reject(err)
	}
	if len(scores) == 0 {
		return 0, e.reject(errors.New("no candidates"))
	}
	if logWeights != nil && len(logWeights) != len(scores) {
		return 0, e.reject(errors.New("weights and scores differ in length"))
	}

	logits := make([]float64, len(scores))
	maxLogit := math.Inf(-1)
	for i, s := range scores {
		logits[i] = epsilon * s / (2 * sensitivity)
		if logWeights != nil {
			logits[i] += logWeights[i]
		}
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	if math.IsInf(maxLogit, -1) || math.IsNaN(maxLogit) {
		return 0, e.reject(errors.New("every candidate has zero weight"))
	}

	var total float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		total += logits[i]
	}

	u, err := e.src.UniformOpenUnit()
	if err != nil {
		return 0, err
	}
	target := u * total
	last := 0
	for i, w := range logits {
		if w == 0 {
			continue
		}
		last = i
		target -= w
		if target < 0 {
			return i, nil
		}
	}
	return last, nil
}

// Uniform draws from (low, high); used to place a value inside a selected interval.
func (e *Exponential) Uniform(low, high float64) (float64, error) {
	u, err := e.src.UniformOpenUnit()
	if err != nil {
		return 0, err
	}
	return low + u*(high-low), nil
}
