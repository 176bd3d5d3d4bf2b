package query

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/noise"
)

// mechanisms bundles one instance of each noise mechanism over a shared
// randomness source.
type mechanisms struct {
	laplace     *noise.Laplace
	gaussian    *noise.Gaussian
	exponential *noise.Exponential
	rr          *noise.RandomizedResponse
}

// release turns the raw statistics of one query into noisy values. Every
// released value receives exactly one draw from its mechanism.
func (e *Executor) release(spec models.QuerySpecification, contributions []models.Contribution, params models.PrivacyParameters) ([]models.NoisyValue, error) {
	switch params.NoiseMechanism {
	case models.MechanismExponential:
		v, err := e.releasePercentile(spec, contributions, params)
		if err != nil {
			return nil, err
		}
		return []models.NoisyValue{v}, nil
	case models.MechanismRandomizedResponse:
		v, err := e.releaseRandomizedCount(contributions, params)
		if err != nil {
			return nil, err
		}
		return []models.NoisyValue{v}, nil
	}

	raw := aggregate(spec, contributions, params.SensitivityBound)
	out := make([]models.NoisyValue, 0, len(raw))
	for _, rv := range raw {
		v, err := e.perturb(rv, params)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Executor) perturb(rv rawValue, params models.PrivacyParameters) (models.NoisyValue, error) {
	var (
		v         models.NoisyValue
		err       error
		low, high float64
	)
	v.Label = rv.label

	switch params.NoiseMechanism {
	case models.MechanismLaplace:
		if v.Value, err = e.mech.laplace.AddNoise(rv.value, rv.sensitivity, params.Epsilon); err != nil {
			return v, err
		}
		if v.StandardError, err = e.mech.laplace.StdDev(rv.sensitivity, params.Epsilon); err != nil {
			return v, err
		}
		low, high, err = e.mech.laplace.ConfidenceInterval(v.Value, rv.sensitivity, params.Epsilon, e.confidenceLevel)
	case models.MechanismGaussian:
		if v.Value, err = e.mech.gaussian.AddNoise(rv.value, rv.sensitivity, params.Epsilon, params.Delta); err != nil {
			return v, err
		}
		if v.StandardError, err = e.mech.gaussian.ComputeSigma(rv.sensitivity, params.Epsilon, params.Delta); err != nil {
			return v, err
		}
		low, high, err = e.mech.gaussian.ConfidenceInterval(v.Value, rv.sensitivity, params.Epsilon, params.Delta, e.confidenceLevel)
	default:
		return v, models.NewInvalidParameter("noise_mechanism", "not an additive mechanism")
	}
	if err != nil {
		return v, err
	}

	if rv.lower != nil {
		v.Value = math.Max(v.Value, *rv.lower)
		low = math.Max(low, *rv.lower)
	}
	if rv.upper != nil {
		v.Value = math.Min(v.Value, *rv.upper)
		high = math.Min(high, *rv.upper)
	}
	v.ConfidenceLow, v.ConfidenceHigh = low, high
	return v, nil
}

// releasePercentile picks a gap between sorted values with the exponential
// mechanism and a point inside it uniformly.
func (e *Executor) releasePercentile(spec models.QuerySpecification, contributions []models.Contribution, params models.PrivacyParameters) (models.NoisyValue, error) {
	b := *spec.Bounds
	edges, scores, logWeights := percentileIntervals(contributions, spec.Percentile, b)

	// Rank scores change by at most one per contributor.
	i, err := e.mech.exponential.SelectWeighted(scores, logWeights, 1, params.Epsilon)
	if err != nil {
		return models.NoisyValue{}, err
	}
	value, err := e.mech.exponential.Uniform(edges[i], edges[i+1])
	if err != nil {
		return models.NoisyValue{}, err
	}

	n := float64(len(contributions))
	se := math.Sqrt2 * (2 / params.Epsilon) * (b.Upper - b.Lower) / (n + 1)
	q := distuv.UnitNormal.Quantile((1 + e.confidenceLevel) / 2)
	return models.NoisyValue{
		Label:          string(models.QueryPercentile),
		Value:          value,
		StandardError:  se,
		ConfidenceLow:  math.Max(b.Lower, value-q*se),
		ConfidenceHigh: math.Min(b.Upper, value+q*se),
	}, nil
}

// releaseRandomizedCount randomises each contributor's indicator and
// debiases the observed total.
func (e *Executor) releaseRandomizedCount(contributions []models.Contribution, params models.PrivacyParameters) (models.NoisyValue, error) {
	var observed float64
	for _, c := range contributions {
		answer, err := e.mech.rr.Respond(indicator(c), params.Epsilon)
		if err != nil {
			return models.NoisyValue{}, err
		}
		if answer {
			observed++
		}
	}
	n := len(contributions)
	value, err := e.mech.rr.Debias(observed, n, params.Epsilon)
	if err != nil {
		return models.NoisyValue{}, err
	}
	se, err := e.mech.rr.StdErr(n, params.Epsilon)
	if err != nil {
		return models.NoisyValue{}, err
	}
	q := distuv.UnitNormal.Quantile((1 + e.confidenceLevel) / 2)
	return models.NoisyValue{
		Label:          string(models.QueryCount),
		Value:          value,
		StandardError:  se,
		ConfidenceLow:  value - q*se,
		ConfidenceHigh: value + q*se,
	}, nil
}
