package validate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/internal/privacy/models"
)

func TestEpsilon(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"zero", 0.0, true},
		{"negative", -1.0, true},
		{"nan", math.NaN(), true},
		{"positive infinity", math.Inf(1), true},
		{"one", 1.0, false},
		{"tiny", 1e-9, false},
		{"weak but legal", 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Epsilon(tt.value)
			if tt.wantErr {
				assertInvalid(t, err, "epsilon")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"zero", 0.0, false},
		{"one", 1.0, true},
		{"above one", 1.5, true},
		{"nan", math.NaN(), true},
		{"negative", -1e-9, true},
		{"mid range", 1e-5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Delta(tt.value)
			if tt.wantErr {
				assertInvalid(t, err, "delta")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDeltaStrict(t *testing.T) {
	assertInvalid(t, DeltaStrict(0), "delta")
	assertInvalid(t, DeltaStrict(1), "delta")
	assert.NoError(t, DeltaStrict(1e-6))
}

func TestSensitivity(t *testing.T) {
	assertInvalid(t, Sensitivity(0), "sensitivity_bound")
	assertInvalid(t, Sensitivity(-2), "sensitivity_bound")
	assertInvalid(t, Sensitivity(math.Inf(-1)), "sensitivity_bound")
	assert.NoError(t, Sensitivity(0.5))
}

func TestIsWeakEpsilon(t *testing.T) {
	assert.False(t, IsWeakEpsilon(10))
	assert.True(t, IsWeakEpsilon(10.01))
}

func TestParameters(t *testing.T) {
	valid := models.PrivacyParameters{
		Epsilon:          0.5,
		Delta:            0,
		NoiseMechanism:   models.MechanismLaplace,
		SensitivityBound: 1,
		MinAggregation:   10,
	}
	require.NoError(t, Parameters(valid))

	t.Run("gaussian requires positive delta", func(t *testing.T) {
		p := valid
		p.NoiseMechanism = models.MechanismGaussian
		assertInvalid(t, Parameters(p), "delta")

		p.Delta = 1e-6
		assert.NoError(t, Parameters(p))
	})

	t.Run("unknown mechanism", func(t *testing.T) {
		p := valid
		p.NoiseMechanism = "cauchy"
		assertInvalid(t, Parameters(p), "noise_mechanism")
	})

	t.Run("bad sensitivity", func(t *testing.T) {
		p := valid
		p.SensitivityBound = 0
		assertInvalid(t, Parameters(p), "sensitivity_bound")
	})
}

func assertInvalid(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var invalid *models.InvalidParameterError
	require.True(t, errors.As(err, &invalid), "expected InvalidParameterError, got %T", err)
	assert.Equal(t, field, invalid.Field)
}
