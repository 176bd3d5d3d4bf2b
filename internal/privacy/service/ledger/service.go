// Package ledger is the sole authority over privacy-budget consumption.
//
// Reads never write: Current resolves a lineage's effective head, including
// a default allocation or a renewal that has not been stored yet. Those
// synthesised entries are persisted together with the consumption that
// needs them, in one atomic batch.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"healthcommons/internal/privacy/metrics"
	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/ports"
	"healthcommons/internal/privacy/validate"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/requestcontext"
)

// ErrBudgetExhausted means a consumption no longer fits the current ledger
// state, either because another writer got there first or because the
// budget ran out. The executor re-evaluates the whole query on it.
var ErrBudgetExhausted = errors.New("privacy budget exhausted")

const (
	snapshotConcurrency = 16
	createAttempts      = 3
)

// Head is the entry a consumption would extend.
type Head struct {
	Entry *models.LedgerEntry
	// Pending holds synthesised entries not yet stored: the default
	// allocation for a new lineage, or a renewal. Their last element is Entry.
	Pending []*models.LedgerEntry
}

// Virtual reports whether the head has not been stored yet.
func (h Head) Virtual() bool {
	return len(h.Pending) > 0
}

type Service struct {
	store          ports.LedgerStore
	defaultAlloc   models.Allocation
	poolAlloc      map[id.PoolID]models.Allocation
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDefaultAllocation sets the allocation for pools without their own.
func WithDefaultAllocation(alloc models.Allocation) Option {
	return func(s *Service) {
		s.defaultAlloc = alloc
	}
}

// WithPoolAllocation gives one pool its own allocation and composition.
func WithPoolAllocation(poolID id.PoolID, alloc models.Allocation) Option {
	return func(s *Service) {
		s.poolAlloc[poolID] = alloc
	}
}

func New(store ports.LedgerStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	s := &Service{
		store:        store,
		defaultAlloc: models.DefaultAllocation(),
		poolAlloc:    make(map[id.PoolID]models.Allocation),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := validateAllocation(s.defaultAlloc); err != nil {
		return nil, fmt.Errorf("default allocation: %w", err)
	}
	for poolID, alloc := range s.poolAlloc {
		if err := validateAllocation(alloc); err != nil {
			return nil, fmt.Errorf("allocation for pool %s: %w", poolID, err)
		}
	}
	return s, nil
}

func validateAllocation(a models.Allocation) error {
	if err := validate.Epsilon(a.TotalEpsilon); err != nil {
		return err
	}
	if err := validate.Delta(a.TotalDelta); err != nil {
		return err
	}
	if a.Validity < 0 {
		return models.NewInvalidParameter("validity", "must not be negative")
	}
	if err := a.Composition.Validate(); err != nil {
		return err
	}
	if a.Composition.Kind == models.CompositionAdvanced && a.Composition.DeltaPrime > a.TotalDelta {
		return models.NewInvalidParameter("delta_prime", "must not exceed the allocation's total delta")
	}
	return nil
}

// Allocation returns the allocation new lineages in poolID start with.
func (s *Service) Allocation(poolID id.PoolID) models.Allocation {
	if alloc, ok := s.poolAlloc[poolID]; ok {
		return alloc
	}
	return s.defaultAlloc
}

// Current resolves the effective head for (patient, pool) without writing.
func (s *Service) Current(ctx context.Context, patientID id.PatientID, poolID id.PoolID) (Head, error) {
	now := requestcontext.Now(ctx)

	latest, err := s.store.Latest(ctx, patientID, poolID)
	if errors.Is(err, sentinel.ErrNotFound) {
		entry := models.NewLedgerEntry(patientID, poolID, s.Allocation(poolID), now)
		return Head{Entry: entry, Pending: []*models.LedgerEntry{entry}}, nil
	}
	if err != nil {
		return Head{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read privacy ledger")
	}
	if latest.NeedsRenewal(now) {
		renewed := latest.Renewed(now)
		return Head{Entry: renewed, Pending: []*models.LedgerEntry{renewed}}, nil
	}
	return Head{Entry: latest}, nil
}

// Snapshot resolves the heads of every patient concurrently, one store read
// each.
func (s *Service) Snapshot(ctx context.Context, poolID id.PoolID, patientIDs []id.PatientID) (map[id.PatientID]Head, error) {
	heads := make([]Head, len(patientIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	for i, patientID := range patientIDs {
		g.Go(func() error {
			h, err := s.Current(gctx, patientID, poolID)
			if err != nil {
				return err
			}
			heads[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[id.PatientID]Head, len(patientIDs))
	for i, patientID := range patientIDs {
		out[patientID] = heads[i]
	}
	return out, nil
}

// GetOrCreate returns the stored head, persisting a default allocation or a
// renewal first when one is due.
func (s *Service) GetOrCreate(ctx context.Context, patientID id.PatientID, poolID id.PoolID) (*models.LedgerEntry, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		head, err := s.Current(ctx, patientID, poolID)
		if err != nil {
			return nil, err
		}
		if !head.Virtual() {
			return head.Entry, nil
		}
		err = s.store.AppendBatch(ctx, head.Pending)
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementConsumeConflict()
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write privacy ledger")
		}
		s.auditPending(ctx, head.Pending)
		return head.Entry, nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "privacy ledger is being modified concurrently")
}

// CheckAvailable reports whether (epsilon, delta) fits the current budget.
func (s *Service) CheckAvailable(ctx context.Context, patientID id.PatientID, poolID id.PoolID, epsilon, delta float64) (bool, error) {
	head, err := s.Current(ctx, patientID, poolID)
	if err != nil {
		return false, err
	}
	shortEps, shortDelta := head.Entry.Shortfall(epsilon, delta, requestcontext.Now(ctx))
	return shortEps == 0 && shortDelta == 0, nil
}

// Consume charges one query to one patient.
func (s *Service) Consume(ctx context.Context, patientID id.PatientID, poolID id.PoolID, epsilon, delta float64) (*models.LedgerEntry, error) {
	head, err := s.Current(ctx, patientID, poolID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ConsumeAll(ctx, []Head{head}, epsilon, delta)
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// ConsumeAll charges (epsilon, delta) to every head in one atomic append.
// Each head is re-checked, and the store rejects the batch if any lineage
// moved since the heads were read; both surface as ErrBudgetExhausted and
// nothing is written. The returned entries follow the order of heads.
func (s *Service) ConsumeAll(ctx context.Context, heads []Head, epsilon, delta float64) ([]*models.LedgerEntry, error) {
	if err := validate.Epsilon(epsilon); err != nil {
		return nil, err
	}
	if err := validate.Delta(delta); err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return nil, nil
	}
	now := requestcontext.Now(ctx)

	var (
		batch   []*models.LedgerEntry
		pending []*models.LedgerEntry
		next    = make([]*models.LedgerEntry, 0, len(heads))
	)
	for _, h := range heads {
		if h.Entry == nil {
			return nil, fmt.Errorf("ledger head without entry")
		}
		if shortEps, shortDelta := h.Entry.Shortfall(epsilon, delta, now); shortEps > 0 || shortDelta > 0 {
			return nil, fmt.Errorf("patient %s short epsilon=%g delta=%g: %w",
				h.Entry.PatientID, shortEps, shortDelta, ErrBudgetExhausted)
		}
		n := h.Entry.Next(epsilon, delta, now)
		batch = append(batch, h.Pending...)
		batch = append(batch, n)
		pending = append(pending, h.Pending...)
		next = append(next, n)
	}

	if err := s.store.AppendBatch(ctx, batch); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementConsumeConflict()
			return nil, fmt.Errorf("ledger moved during consumption: %w", ErrBudgetExhausted)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write privacy ledger")
	}

	s.auditPending(ctx, pending)
	for _, n := range next {
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Category:     audit.CategoryCompliance,
			Timestamp:    now,
			PatientID:    n.PatientID,
			PoolID:       n.PoolID,
			QueryID:      queryIDFrom(ctx),
			Action:       string(audit.EventBudgetConsumed),
			EpsilonSpent: epsilon,
			DeltaSpent:   delta,
			LedgerVer:    n.Version,
		})
	}
	return next, nil
}

func (s *Service) auditPending(ctx context.Context, pending []*models.LedgerEntry) {
	for _, e := range pending {
		action := audit.EventBudgetRenewed
		if e.Version == 1 {
			action = audit.EventBudgetCreated
			s.metrics.IncrementCreated()
		} else {
			s.metrics.IncrementRenewal()
		}
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Category:  audit.CategoryCompliance,
			Timestamp: e.LastUpdated,
			PatientID: e.PatientID,
			PoolID:    e.PoolID,
			Action:    string(action),
			LedgerVer: e.Version,
		})
	}
}

// Status is the read-only Budget Inspection view.
func (s *Service) Status(ctx context.Context, patientID id.PatientID, poolID id.PoolID) (models.BudgetStatusView, error) {
	head, err := s.Current(ctx, patientID, poolID)
	if err != nil {
		return models.BudgetStatusView{}, err
	}
	return head.Entry.Status(requestcontext.Now(ctx)), nil
}

// CheckQueryBudget is the read-only Pre-check view.
func (s *Service) CheckQueryBudget(ctx context.Context, patientID id.PatientID, poolID id.PoolID, epsilon, delta float64) (models.BudgetCheck, error) {
	if err := validate.Epsilon(epsilon); err != nil {
		return models.BudgetCheck{}, err
	}
	if err := validate.Delta(delta); err != nil {
		return models.BudgetCheck{}, err
	}
	head, err := s.Current(ctx, patientID, poolID)
	if err != nil {
		return models.BudgetCheck{}, err
	}
	shortEps, shortDelta := head.Entry.Shortfall(epsilon, delta, requestcontext.Now(ctx))
	check := models.BudgetCheck{
		CanExecute:       shortEps == 0 && shortDelta == 0,
		ShortfallEpsilon: shortEps,
		ShortfallDelta:   shortDelta,
	}
	decision := "allowed"
	if !check.CanExecute {
		decision = "would_reject"
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Category:  audit.CategoryOperations,
		Timestamp: requestcontext.Now(ctx),
		PatientID: patientID,
		PoolID:    poolID,
		Action:    string(audit.EventBudgetChecked),
		Decision:  decision,
	})
	return check, nil
}

// History returns every stored version of the lineage, oldest first.
func (s *Service) History(ctx context.Context, patientID id.PatientID, poolID id.PoolID) ([]*models.LedgerEntry, error) {
	entries, err := s.store.History(ctx, patientID, poolID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read privacy ledger history")
	}
	return entries, nil
}

type queryIDKey struct{}

// WithQueryID tags ledger audit events written under ctx with a query ID.
func WithQueryID(ctx context.Context, queryID id.QueryID) context.Context {
	return context.WithValue(ctx, queryIDKey{}, queryID)
}

func queryIDFrom(ctx context.Context) string {
	if q, ok := ctx.Value(queryIDKey{}).(id.QueryID); ok && !q.IsNil() {
		return q.String()
	}
	return ""
}
