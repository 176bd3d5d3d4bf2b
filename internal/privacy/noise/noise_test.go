package noise

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/randomness"
)

// countingSource records how many draws were made.
type countingSource struct {
	inner randomness.Source
	draws atomic.Int64
}

func newCountingSource() *countingSource {
	return &countingSource{inner: randomness.NewCrypto()}
}

func (c *countingSource) UniformOpenUnit() (float64, error) {
	c.draws.Add(1)
	return c.inner.UniformOpenUnit()
}

func (c *countingSource) Bytes(n int) ([]byte, error) {
	c.draws.Add(1)
	return c.inner.Bytes(n)
}

type brokenSource struct{}

func (brokenSource) UniformOpenUnit() (float64, error) { return 0, randomness.ErrUnavailable }
func (brokenSource) Bytes(int) ([]byte, error)         { return nil, randomness.ErrUnavailable }

// fixedSource returns a constant draw.
type fixedSource float64

func (f fixedSource) UniformOpenUnit() (float64, error) { return float64(f), nil }
func (f fixedSource) Bytes(n int) ([]byte, error)       { return make([]byte, n), nil }

// =============================================================================
// Laplace
// =============================================================================

func TestLaplace_TwoDrawsDiffer(t *testing.T) {
	l := NewLaplace(randomness.NewCrypto())
	a, err := l.AddNoise(100, 1, 0.5)
	require.NoError(t, err)
	b, err := l.AddNoise(100, 1, 0.5)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLaplace_EmpiricalStdDevMatches(t *testing.T) {
	const n = 100_000
	l := NewLaplace(randomness.NewCrypto())

	samples := make([]float64, n)
	for i := range samples {
		v, err := l.AddNoise(0, 1, 0.5)
		require.NoError(t, err)
		samples[i] = v
	}

	want, err := l.StdDev(1, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Sqrt2, want, 1e-12)

	got := stat.StdDev(samples, nil)
	assert.InEpsilon(t, want, got, 0.05)
	assert.InDelta(t, 0, stat.Mean(samples, nil), 0.1)
}

func TestLaplace_InverseCDFAtKnownPoint(t *testing.T) {
	// u = 0.75 gives -b·ln(0.5) = b·ln 2.
	l := NewLaplace(fixedSource(0.75))
	v, err := l.AddNoise(10, 2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 10+2*math.Ln2, v, 1e-12)
}

func TestLaplace_RejectsBadParametersWithoutDrawing(t *testing.T) {
	src := newCountingSource()
	l := NewLaplace(src)

	_, err := l.AddNoise(1, 0, 1)
	require.ErrorIs(t, err, ErrInvalidParameters)
	var invalid *models.InvalidParameterError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "sensitivity_bound", invalid.Field)

	_, err = l.AddNoise(1, 1, math.NaN())
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = l.StdDev(1, -1)
	require.ErrorIs(t, err, ErrInvalidParameters)

	assert.Zero(t, src.draws.Load())
}

func TestLaplace_PropagatesUnavailable(t *testing.T) {
	_, err := NewLaplace(brokenSource{}).AddNoise(1, 1, 1)
	assert.ErrorIs(t, err, randomness.ErrUnavailable)
}

func TestLaplace_ConfidenceInterval(t *testing.T) {
	l := NewLaplace(randomness.NewCrypto())
	low, high, err := l.ConfidenceInterval(50, 1, 1, 0.95)
	require.NoError(t, err)
	// For Laplace(0, 1), P(|X| <= q) = 1 - e^-q, so q = ln(20).
	assert.InDelta(t, 50-math.Log(20), low, 1e-9)
	assert.InDelta(t, 50+math.Log(20), high, 1e-9)

	_, _, err = l.ConfidenceInterval(50, 1, 1, 1)
	assert.Error(t, err)
}

// =============================================================================
// Gaussian
// =============================================================================

func TestGaussian_ComputeSigma(t *testing.T) {
	g := NewGaussian(randomness.NewCrypto())
	sigma, err := g.ComputeSigma(1, 1, 1e-5)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(2*math.Log(1.25e5)), sigma, 1e-12)
}

func TestGaussian_ZeroDeltaFailsBeforeAnyDraw(t *testing.T) {
	src := newCountingSource()
	g := NewGaussian(src)

	_, err := g.AddNoise(10, 1, 1, 0)
	require.Error(t, err)
	var invalid *models.InvalidParameterError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "delta", invalid.Field)
	assert.Zero(t, src.draws.Load())
}

func TestGaussian_EmpiricalStdDevMatches(t *testing.T) {
	const n = 50_000
	g := NewGaussian(randomness.NewCrypto())
	sigma, err := g.ComputeSigma(1, 1, 1e-5)
	require.NoError(t, err)

	samples := make([]float64, n)
	for i := range samples {
		v, err := g.AddNoise(0, 1, 1, 1e-5)
		require.NoError(t, err)
		samples[i] = v
	}
	assert.InEpsilon(t, sigma, stat.StdDev(samples, nil), 0.05)
}

func TestGaussian_TwoDrawsDiffer(t *testing.T) {
	g := NewGaussian(randomness.NewCrypto())
	a, err := g.AddNoise(0, 1, 1, 1e-6)
	require.NoError(t, err)
	b, err := g.AddNoise(0, 1, 1, 1e-6)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGaussian_ConfidenceInterval(t *testing.T) {
	g := NewGaussian(randomness.NewCrypto())
	sigma, err := g.ComputeSigma(1, 1, 1e-5)
	require.NoError(t, err)
	low, high, err := g.ConfidenceInterval(0, 1, 1, 1e-5, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, -1.959964*sigma, low, 1e-4)
	assert.InDelta(t, 1.959964*sigma, high, 1e-4)
}

// =============================================================================
// Exponential
// =============================================================================

func TestExponential_FavoursHighScores(t *testing.T) {
	e := NewExponential(randomness.NewCrypto())
	counts := make([]int, 3)
	for i := 0; i < 5000; i++ {
		idx, err := e.Select([]float64{0, 0, 10}, 1, 2)
		require.NoError(t, err)
		counts[idx]++
	}
	// exp(10) dominates exp(0) twice over.
	assert.Greater(t, counts[2], 4900)
}

func TestExponential_ExcludesZeroWeight(t *testing.T) {
	e := NewExponential(randomness.NewCrypto())
	for i := 0; i < 200; i++ {
		idx, err := e.SelectWeighted([]float64{100, 0}, []float64{math.Inf(-1), 0}, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, idx)
	}
}

func TestExponential_RejectsEmpty(t *testing.T) {
	e := NewExponential(randomness.NewCrypto())
	_, err := e.Select(nil, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = e.SelectWeighted([]float64{1}, []float64{math.Inf(-1)}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

// =============================================================================
// Randomized response
// =============================================================================

func TestRandomizedResponse_DebiasRecoversCount(t *testing.T) {
	rr := NewRandomizedResponse(randomness.NewCrypto())
	const n, yes = 20_000, 6_000
	eps := 1.0

	var observed float64
	for i := 0; i < n; i++ {
		got, err := rr.Respond(i < yes, eps)
		require.NoError(t, err)
		if got {
			observed++
		}
	}
	est, err := rr.Debias(observed, n, eps)
	require.NoError(t, err)
	se, err := rr.StdErr(n, eps)
	require.NoError(t, err)
	assert.InDelta(t, yes, est, 5*se)
}

func TestRandomizedResponse_KeepProbability(t *testing.T) {
	rr := NewRandomizedResponse(randomness.NewCrypto())
	p, err := rr.KeepProbability(math.Log(3))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, p, 1e-12)

	p, err = rr.KeepProbability(1000)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	_, err = rr.KeepProbability(0)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
