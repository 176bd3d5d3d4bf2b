package noise

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"healthcommons/internal/privacy/randomness"
	"healthcommons/internal/privacy/validate"
)

// Gaussian gives (ε, δ)-differential privacy. δ must be strictly positive.
type Gaussian struct {
	base
}

func NewGaussian(src randomness.Source, opts ...Option) *Gaussian {
	return &Gaussian{base: newBase("gaussian", src, opts)}
}

// ComputeSigma is sensitivity·√(2·ln(1.25/δ))/ε.
func (g *Gaussian) ComputeSigma(sensitivity, epsilon, delta float64) (float64, error) {
	if err := validate.Sensitivity(sensitivity); err != nil {
		return 0, g.reject(err)
	}
	if err := validate.Epsilon(epsilon); err != nil {
		return 0, g.reject(err)
	}
	if err := validate.DeltaStrict(delta); err != nil {
		return 0, g.reject(err)
	}
	return sensitivity * math.Sqrt(2*math.Log(1.25/delta)) / epsilon, nil
}

// AddNoise uses Box–Muller over two independent open-interval draws.
func (g *Gaussian) AddNoise(x, sensitivity, epsilon, delta float64) (float64, error) {
	sigma, err := g.ComputeSigma(sensitivity, epsilon, delta)
	if err != nil {
		return 0, err
	}
	z, err := g.standardNormal()
	if err != nil {
		return 0, err
	}
	return x + sigma*z, nil
}

func (g *Gaussian) standardNormal() (float64, error) {
	u1, err := g.src.UniformOpenUnit()
	if err != nil {
		return 0, err
	}
	u2, err := g.src.UniformOpenUnit()
	if err != nil {
		return 0, err
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2), nil
}

func (g *Gaussian) ConfidenceInterval(x, sensitivity, epsilon, delta, level float64) (low, high float64, err error) {
	sigma, err := g.ComputeSigma(sensitivity, epsilon, delta)
	if err != nil {
		return 0, 0, err
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma}
	q, err := twoSided(dist.Quantile, level)
	if err != nil {
		return 0, 0, err
	}
	return x - q, x + q, nil
}
