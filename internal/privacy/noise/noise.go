// Package noise implements the calibrated mechanisms used to release
// aggregates. Every mechanism draws from a randomness.Source and re-checks
// its parameters before drawing; a failed re-check means a caller skipped
// validation.
package noise

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"healthcommons/internal/privacy/randomness"
)

// ErrInvalidParameters wraps the validator error when bad parameters reach a
// mechanism directly.
var ErrInvalidParameters = errors.New("mechanism received invalid parameters")

type Option func(*base)

func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

type base struct {
	src    randomness.Source
	logger *slog.Logger
	name   string
}

func newBase(name string, src randomness.Source, opts []Option) base {
	b := base{
		src:    src,
		name:   name,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) reject(err error) error {
	if err == nil {
		return nil
	}
	b.logger.Error("mechanism called with unvalidated parameters",
		"mechanism", b.name,
		"error", err,
	)
	return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
}

// twoSided returns the half-width q with P(|X| <= q) = level for a symmetric
// distribution given its quantile function.
func twoSided(quantile func(float64) float64, level float64) (float64, error) {
	if math.IsNaN(level) || level <= 0 || level >= 1 {
		return 0, fmt.Errorf("confidence level %v not in (0, 1)", level)
	}
	return quantile((1 + level) / 2), nil
}
