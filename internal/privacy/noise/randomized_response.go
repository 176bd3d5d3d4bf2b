package noise

import (
	"math"

	"healthcommons/internal/privacy/randomness"
	"healthcommons/internal/privacy/validate"
)

// RandomizedResponse perturbs yes/no answers: the truth is kept with
// p = e^ε/(1+e^ε) and flipped otherwise.
type RandomizedResponse struct {
	base
}

func NewRandomizedResponse(src randomness.Source, opts ...Option) *RandomizedResponse {
	return &RandomizedResponse{base: newBase("randomized_response", src, opts)}
}

func (r *RandomizedResponse) KeepProbability(epsilon float64) (float64, error) {
	if err := validate.Epsilon(epsilon); err != nil {
		return 0, r.reject(err)
	}
	// e^ε/(1+e^ε) written to stay finite for large ε.
	return 1 / (1 + math.Exp(-epsilon)), nil
}

func (r *RandomizedResponse) Respond(truth bool, epsilon float64) (bool, error) {
	p, err := r.KeepProbability(epsilon)
	if err != nil {
		return false, err
	}
	u, err := r.src.UniformOpenUnit()
	if err != nil {
		return false, err
	}
	if u < p {
		return truth, nil
	}
	return !truth, nil
}

// Debias turns an observed count of "yes" among n responses into an unbiased
// estimate of the true count.
func (r *RandomizedResponse) Debias(observed float64, n int, epsilon float64) (float64, error) {
	p, err := r.KeepProbability(epsilon)
	if err != nil {
		return 0, err
	}
	return (observed - float64(n)*(1-p)) / (2*p - 1), nil
}

// StdErr is the standard error of Debias for n responses.
func (r *RandomizedResponse) StdErr(n int, epsilon float64) (float64, error) {
	p, err := r.KeepProbability(epsilon)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(float64(n)*p*(1-p)) / (2*p - 1), nil
}
