package models

import (
	"math"
	"time"

	"github.com/google/uuid"

	id "healthcommons/pkg/domain"
)

// Allocation is the budget a new ledger lineage starts with.
type Allocation struct {
	TotalEpsilon float64
	TotalDelta   float64
	Validity     time.Duration
	AutoRenew    bool
	Composition  Composition
}

func DefaultAllocation() Allocation {
	return Allocation{
		TotalEpsilon: 1.0,
		TotalDelta:   1e-6,
		Validity:     365 * 24 * time.Hour,
		AutoRenew:    true,
		Composition:  BasicComposition(),
	}
}

// LedgerEntry is one immutable version of a contributor's budget in a pool.
// Every consumption or renewal produces a new entry with Version+1.
type LedgerEntry struct {
	ID              uuid.UUID    `json:"id"`
	PatientID       id.PatientID `json:"patient_id"`
	PoolID          id.PoolID    `json:"pool_id"`
	Version         uint64       `json:"version"`
	TotalEpsilon    float64      `json:"total_epsilon"`
	ConsumedEpsilon float64      `json:"consumed_epsilon"`
	TotalDelta      float64      `json:"total_delta"`
	ConsumedDelta   float64      `json:"consumed_delta"`
	QueryCount      uint32       `json:"query_count"`
	EpsilonHistory  []float64    `json:"epsilon_history"`
	DeltaHistory    []float64    `json:"delta_history"`
	Composition     Composition  `json:"composition"`
	CreatedAt       time.Time    `json:"created_at"`
	LastUpdated     time.Time    `json:"last_updated"`
	PeriodStart     time.Time    `json:"period_start"`
	PeriodEnd       *time.Time   `json:"period_end,omitempty"`
	AutoRenew       bool         `json:"auto_renew"`
}

// NewLedgerEntry builds version 1 of a lineage. A zero Validity means the
// budget never expires.
func NewLedgerEntry(patientID id.PatientID, poolID id.PoolID, alloc Allocation, now time.Time) *LedgerEntry {
	e := &LedgerEntry{
		ID:             uuid.New(),
		PatientID:      patientID,
		PoolID:         poolID,
		Version:        1,
		TotalEpsilon:   alloc.TotalEpsilon,
		TotalDelta:     alloc.TotalDelta,
		EpsilonHistory: []float64{},
		DeltaHistory:   []float64{},
		Composition:    alloc.Composition,
		CreatedAt:      now,
		LastUpdated:    now,
		PeriodStart:    now,
		AutoRenew:      alloc.AutoRenew,
	}
	if alloc.Validity > 0 {
		end := now.Add(alloc.Validity)
		e.PeriodEnd = &end
	}
	return e
}

func (e *LedgerEntry) Clone() *LedgerEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.EpsilonHistory = append([]float64{}, e.EpsilonHistory...)
	c.DeltaHistory = append([]float64{}, e.DeltaHistory...)
	if e.PeriodEnd != nil {
		end := *e.PeriodEnd
		c.PeriodEnd = &end
	}
	return &c
}

// IsExpired reports whether the budget period has ended at now.
func (e *LedgerEntry) IsExpired(now time.Time) bool {
	return e.PeriodEnd != nil && !now.Before(*e.PeriodEnd)
}

// NeedsRenewal reports whether reading at now should start a fresh period.
func (e *LedgerEntry) NeedsRenewal(now time.Time) bool {
	return e.AutoRenew && e.IsExpired(now)
}

// Remaining is total minus consumed. An expired entry that does not renew
// has nothing left.
func (e *LedgerEntry) Remaining(now time.Time) (epsilon, delta float64) {
	if e.IsExpired(now) && !e.AutoRenew {
		return 0, 0
	}
	return math.Max(0, e.TotalEpsilon-e.ConsumedEpsilon), math.Max(0, e.TotalDelta-e.ConsumedDelta)
}

func (e *LedgerEntry) IsExhausted() bool {
	return e.ConsumedEpsilon >= e.TotalEpsilon
}

// Project returns the consumed totals after charging one more query of
// (epsilon, delta) under the lineage's composition. Totals never decrease.
func (e *LedgerEntry) Project(epsilon, delta float64) (consumedEpsilon, consumedDelta float64) {
	eps := append(append([]float64{}, e.EpsilonHistory...), epsilon)
	dls := append(append([]float64{}, e.DeltaHistory...), delta)
	ce, cd := e.Composition.Total(eps, dls, e.TotalDelta)
	return math.Max(ce, e.ConsumedEpsilon), math.Max(cd, e.ConsumedDelta)
}

// Shortfall is how far one more query of (epsilon, delta) would overshoot
// the allocation at now. Both zero means the query is affordable.
func (e *LedgerEntry) Shortfall(epsilon, delta float64, now time.Time) (shortEpsilon, shortDelta float64) {
	if e.IsExpired(now) && !e.AutoRenew {
		return epsilon, delta
	}
	ce, cd := e.Project(epsilon, delta)
	if Exceeds(ce, e.TotalEpsilon) {
		shortEpsilon = ce - e.TotalEpsilon
	}
	if Exceeds(cd, e.TotalDelta) {
		shortDelta = cd - e.TotalDelta
	}
	return shortEpsilon, shortDelta
}

// Next is the successor entry after charging (epsilon, delta). The caller
// has checked Shortfall; Next does not.
func (e *LedgerEntry) Next(epsilon, delta float64, now time.Time) *LedgerEntry {
	n := e.Clone()
	n.ID = uuid.New()
	n.Version = e.Version + 1
	ce, cd := e.Project(epsilon, delta)
	n.ConsumedEpsilon, n.ConsumedDelta = withinTotal(ce, e.TotalEpsilon), withinTotal(cd, e.TotalDelta)
	n.QueryCount = e.QueryCount + 1
	n.EpsilonHistory = append(n.EpsilonHistory, epsilon)
	n.DeltaHistory = append(n.DeltaHistory, delta)
	n.LastUpdated = now
	return n
}

// withinTotal drops rounding overshoot so stored consumption never exceeds
// the allocation.
func withinTotal(consumed, total float64) float64 {
	if consumed > total && !Exceeds(consumed, total) {
		return total
	}
	return consumed
}

// Renewed starts a fresh period at now with the same allocation, period
// length and composition, and zero consumption.
func (e *LedgerEntry) Renewed(now time.Time) *LedgerEntry {
	n := e.Clone()
	n.ID = uuid.New()
	n.Version = e.Version + 1
	n.ConsumedEpsilon = 0
	n.ConsumedDelta = 0
	n.QueryCount = 0
	n.EpsilonHistory = []float64{}
	n.DeltaHistory = []float64{}
	n.LastUpdated = now
	n.PeriodStart = now
	if e.PeriodEnd != nil {
		end := now.Add(e.PeriodEnd.Sub(e.PeriodStart))
		n.PeriodEnd = &end
	}
	return n
}

// Status renders the read-only inspection view.
func (e *LedgerEntry) Status(now time.Time) BudgetStatusView {
	remEps, remDelta := e.Remaining(now)
	expired := e.IsExpired(now) && !e.AutoRenew
	return BudgetStatusView{
		PatientID:        e.PatientID,
		PoolID:           e.PoolID,
		TotalEpsilon:     e.TotalEpsilon,
		ConsumedEpsilon:  e.ConsumedEpsilon,
		RemainingEpsilon: remEps,
		TotalDelta:       e.TotalDelta,
		ConsumedDelta:    e.ConsumedDelta,
		RemainingDelta:   remDelta,
		QueryCount:       e.QueryCount,
		IsExhausted:      e.IsExhausted() || expired,
		IsExpired:        expired,
		PeriodEnd:        e.PeriodEnd,
		Composition:      e.Composition,
		Version:          e.Version,
	}
}
