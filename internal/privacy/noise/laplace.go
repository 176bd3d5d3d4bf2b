package noise

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"healthcommons/internal/privacy/randomness"
	"healthcommons/internal/privacy/validate"
)

// Laplace gives (ε, 0)-differential privacy with scale b = sensitivity/ε.
type Laplace struct {
	base
}

func NewLaplace(src randomness.Source, opts ...Option) *Laplace {
	return &Laplace{base: newBase("laplace", src, opts)}
}

func (l *Laplace) check(sensitivity, epsilon float64) error {
	if err := validate.Sensitivity(sensitivity); err != nil {
		return l.reject(err)
	}
	return l.reject(validate.Epsilon(epsilon))
}

func (l *Laplace) Scale(sensitivity, epsilon float64) (float64, error) {
	if err := l.check(sensitivity, epsilon); err != nil {
		return 0, err
	}
	return sensitivity / epsilon, nil
}

// AddNoise samples by inverse CDF: -b·sign(u-½)·ln(1-2|u-½|) with u in (0,1).
func (l *Laplace) AddNoise(x, sensitivity, epsilon float64) (float64, error) {
	b, err := l.Scale(sensitivity, epsilon)
	if err != nil {
		return 0, err
	}
	u, err := l.src.UniformOpenUnit()
	if err != nil {
		return 0, err
	}
	d := u - 0.5
	sign := 1.0
	if d < 0 {
		sign = -1.0
	}
	return x - b*sign*math.Log(1-2*math.Abs(d)), nil
}

// StdDev is b·√2.
func (l *Laplace) StdDev(sensitivity, epsilon float64) (float64, error) {
	b, err := l.Scale(sensitivity, epsilon)
	if err != nil {
		return 0, err
	}
	return b * math.Sqrt2, nil
}

// ConfidenceInterval brackets the true value around a released x.
func (l *Laplace) ConfidenceInterval(x, sensitivity, epsilon, level float64) (low, high float64, err error) {
	b, err := l.Scale(sensitivity, epsilon)
	if err != nil {
		return 0, 0, err
	}
	dist := distuv.Laplace{Mu: 0, Scale: b}
	q, err := twoSided(dist.Quantile, level)
	if err != nil {
		return 0, 0, err
	}
	return x - q, x + q, nil
}
