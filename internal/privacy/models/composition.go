package models

import (
	"fmt"
	"math"
)

type CompositionKind string

const (
	CompositionBasic    CompositionKind = "basic"
	CompositionAdvanced CompositionKind = "advanced"
)

func ParseCompositionKind(s string) (CompositionKind, error) {
	switch k := CompositionKind(s); k {
	case CompositionBasic, CompositionAdvanced:
		return k, nil
	}
	return "", NewInvalidParameter("composition", fmt.Sprintf("unknown composition %q", s))
}

// Composition is fixed for a ledger lineage: it is copied onto every
// appended entry and onto renewals, never changed.
type Composition struct {
	Kind       CompositionKind `json:"kind"`
	DeltaPrime float64         `json:"delta_prime,omitempty"`
}

func BasicComposition() Composition {
	return Composition{Kind: CompositionBasic}
}

func AdvancedComposition(deltaPrime float64) Composition {
	return Composition{Kind: CompositionAdvanced, DeltaPrime: deltaPrime}
}

func (c Composition) Validate() error {
	switch c.Kind {
	case CompositionBasic:
		return nil
	case CompositionAdvanced:
		if math.IsNaN(c.DeltaPrime) || c.DeltaPrime <= 0 || c.DeltaPrime >= 1 {
			return NewInvalidParameter("delta_prime", "must be in (0, 1)")
		}
		return nil
	default:
		return NewInvalidParameter("composition", fmt.Sprintf("unknown composition %q", c.Kind))
	}
}

// Total returns the cumulative privacy loss of the given per-query costs.
//
// Basic is the plain sum. Advanced takes
// min(Σε, √(2k·ln(1/δ'))·ε̄ + k·ε̄·(e^ε̄ − 1)) and, when the advanced bound is
// the one used, charges δ' on top of Σδ. The advanced bound is only used
// while Σδ + δ' still fits deltaBudget; otherwise the plain sum applies.
func (c Composition) Total(epsilons, deltas []float64, deltaBudget float64) (epsilon, delta float64) {
	for _, e := range epsilons {
		epsilon += e
	}
	for _, d := range deltas {
		delta += d
	}
	if c.Kind != CompositionAdvanced || len(epsilons) == 0 {
		return epsilon, delta
	}

	k := float64(len(epsilons))
	avg := epsilon / k
	advanced := math.Sqrt(2*k*math.Log(1/c.DeltaPrime))*avg + k*avg*math.Expm1(avg)
	if advanced < epsilon && !Exceeds(delta+c.DeltaPrime, deltaBudget) {
		return advanced, delta + c.DeltaPrime
	}
	return epsilon, delta
}

// budgetTolerance absorbs floating-point drift when summing many costs, so
// that e.g. one hundred charges of 0.01 fit a budget of 1.
const budgetTolerance = 1e-12

// Exceeds reports whether consumed is over total beyond rounding error.
func Exceeds(consumed, total float64) bool {
	return consumed > total*(1+budgetTolerance)
}
