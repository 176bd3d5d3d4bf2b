// Package query runs differentially private aggregate queries end to end:
// validate, gate every contributor's budget, release noisy values, and
// charge all contributors in one atomic ledger append.
package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"healthcommons/internal/privacy/metrics"
	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/noise"
	"healthcommons/internal/privacy/ports"
	"healthcommons/internal/privacy/randomness"
	"healthcommons/internal/privacy/service/ledger"
	"healthcommons/internal/privacy/validate"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/requestcontext"
)

const (
	defaultMaxRetries      = 3
	defaultConfidenceLevel = 0.95
)

const tracerName = "healthcommons/internal/privacy/service/query"

// Ledger is the budget authority the executor gates and charges through.
type Ledger interface {
	Snapshot(ctx context.Context, poolID id.PoolID, patientIDs []id.PatientID) (map[id.PatientID]ledger.Head, error)
	ConsumeAll(ctx context.Context, heads []ledger.Head, epsilon, delta float64) ([]*models.LedgerEntry, error)
}

type Executor struct {
	ledger          Ledger
	mech            mechanisms
	locks           *shardedLocks
	logger          *slog.Logger
	auditPublisher  ports.AuditPublisher
	metrics         *metrics.Metrics
	maxRetries      int
	confidenceLevel float64
	lockTimeout     time.Duration
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(e *Executor) {
		e.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithMaxRetries bounds full re-evaluations after a consume-time conflict.
func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithConfidenceLevel sets the two-sided level of reported intervals.
func WithConfidenceLevel(level float64) Option {
	return func(e *Executor) {
		e.confidenceLevel = level
	}
}

// WithLockTimeout bounds the wait for contributor locks when the caller's
// context has no deadline.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.lockTimeout = d
	}
}

func New(l Ledger, src randomness.Source, opts ...Option) (*Executor, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if src == nil {
		return nil, errors.New("randomness source is required")
	}
	e := &Executor{
		ledger:          l,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxRetries:      defaultMaxRetries,
		confidenceLevel: defaultConfidenceLevel,
		lockTimeout:     defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.confidenceLevel <= 0 || e.confidenceLevel >= 1 {
		return nil, fmt.Errorf("confidence level %v not in (0, 1)", e.confidenceLevel)
	}
	noiseOpts := []noise.Option{noise.WithLogger(e.logger)}
	e.mech = mechanisms{
		laplace:     noise.NewLaplace(src, noiseOpts...),
		gaussian:    noise.NewGaussian(src, noiseOpts...),
		exponential: noise.NewExponential(src, noiseOpts...),
		rr:          noise.NewRandomizedResponse(src, noiseOpts...),
	}
	e.locks = newShardedLocks(e.lockTimeout)
	return e, nil
}

// ExecuteQuery releases one differentially private result or nothing. On any
// error no contributor's budget has changed.
func (e *Executor) ExecuteQuery(ctx context.Context, spec models.QuerySpecification, contributions []models.Contribution, params models.PrivacyParameters, poolID id.PoolID) (*models.DifferentiallyPrivateResult, error) {
	start := time.Now()
	defer e.metrics.ObserveQuery(start)

	if spec.ID.IsNil() {
		spec.ID = id.NewQueryID()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "privacy.ExecuteQuery",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("privacy.query_id", spec.ID.String()),
			attribute.String("privacy.query_type", string(spec.Type)),
			attribute.String("privacy.mechanism", params.NoiseMechanism.String()),
			attribute.String("privacy.pool_id", poolID.String()),
		),
	)
	defer span.End()

	result, err := e.execute(ctx, spec, contributions, params, poolID)
	if err != nil {
		outcome := outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		e.metrics.IncrementQuery(string(spec.Type), outcome)
		e.logger.WarnContext(ctx, "privacy query declined",
			"query_id", spec.ID.String(),
			"pool_id", poolID.String(),
			"outcome", outcome,
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("privacy.values", len(result.Values)),
		attribute.Bool("privacy.k_anonymity_met", result.KAnonymityMet),
	)
	e.metrics.IncrementQuery(string(spec.Type), "released")
	return result, nil
}

func (e *Executor) execute(ctx context.Context, spec models.QuerySpecification, contributions []models.Contribution, params models.PrivacyParameters, poolID id.PoolID) (*models.DifferentiallyPrivateResult, error) {
	if err := validateRequest(spec, contributions, params, poolID); err != nil {
		e.auditRejected(ctx, spec, poolID, "", "invalid_parameters")
		return nil, err
	}
	if validate.IsWeakEpsilon(params.Epsilon) {
		e.metrics.IncrementWeakEpsilon()
		e.logger.WarnContext(ctx, "query epsilon gives weak privacy",
			"query_id", spec.ID.String(),
			"epsilon", params.Epsilon,
			"threshold", validate.WeakEpsilonThreshold,
		)
	}

	patients := contributors(contributions)
	ctx, release, err := e.locks.acquire(ctx, poolID, patients)
	if err != nil {
		return nil, err
	}
	defer release()

	epsilon, delta := params.Cost()
	ctx = ledger.WithQueryID(ctx, spec.ID)

	for attempt := 0; ; attempt++ {
		result, err := e.attempt(ctx, spec, contributions, params, poolID, patients, epsilon, delta)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ledger.ErrBudgetExhausted) {
			return nil, err
		}
		if attempt >= e.maxRetries {
			return nil, e.exhausted(ctx, spec, poolID, patients, epsilon, delta)
		}
		e.metrics.IncrementQueryRetry()
		e.logger.InfoContext(ctx, "ledger moved during query, re-evaluating",
			"query_id", spec.ID.String(),
			"attempt", attempt+1,
		)
	}
}

// attempt is one pass of gate, release and charge over fresh ledger state.
func (e *Executor) attempt(ctx context.Context, spec models.QuerySpecification, contributions []models.Contribution, params models.PrivacyParameters, poolID id.PoolID, patients []id.PatientID, epsilon, delta float64) (*models.DifferentiallyPrivateResult, error) {
	heads, err := e.ledger.Snapshot(ctx, poolID, patients)
	if err != nil {
		return nil, err
	}
	if insufficient := firstShort(ctx, heads, patients, epsilon, delta); insufficient != nil {
		e.auditRejected(ctx, spec, poolID, insufficient.PatientID, "insufficient_budget")
		return nil, insufficient
	}

	values, err := e.release(spec, contributions, params)
	if err != nil {
		if errors.Is(err, randomness.ErrUnavailable) {
			e.metrics.IncrementRandomnessFailure()
			e.logger.ErrorContext(ctx, "secure randomness unavailable", "query_id", spec.ID.String(), "error", err)
		}
		return nil, err
	}
	e.metrics.AddNoiseDraws(params.NoiseMechanism.String(), len(values))

	var totalNoise float64
	for _, v := range values {
		totalNoise += v.StandardError
	}
	kMet := uint32(len(patients)) >= params.MinAggregation
	if !kMet {
		e.metrics.IncrementKAnonymityUnmet()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query abandoned before consumption: %w", err)
	}
	ordered := make([]ledger.Head, 0, len(patients))
	for _, p := range patients {
		ordered = append(ordered, heads[p])
	}
	if _, err := e.ledger.ConsumeAll(ctx, ordered, epsilon, delta); err != nil {
		return nil, err
	}
	e.metrics.ObserveEpsilon(epsilon)

	now := requestcontext.Now(ctx)
	ports.LogAudit(ctx, e.logger, e.auditPublisher, audit.Event{
		Category:     audit.CategoryCompliance,
		Timestamp:    now,
		PoolID:       poolID,
		QueryID:      spec.ID.String(),
		Action:       string(audit.EventQueryExecuted),
		Decision:     "released",
		EpsilonSpent: epsilon,
		DeltaSpent:   delta,
	})

	return &models.DifferentiallyPrivateResult{
		QueryID:             spec.ID,
		PoolID:              poolID,
		ResultType:          spec.Type,
		Values:              values,
		TotalNoiseMagnitude: totalNoise,
		KAnonymityMet:       kMet,
		EpsilonSpent:        epsilon,
		DeltaSpent:          delta,
		Mechanism:           params.NoiseMechanism,
		ComputedAt:          now,
	}, nil
}

// firstShort returns the first contributor, in sorted order, who cannot
// afford the cost.
func firstShort(ctx context.Context, heads map[id.PatientID]ledger.Head, patients []id.PatientID, epsilon, delta float64) *models.InsufficientBudgetError {
	now := requestcontext.Now(ctx)
	for _, p := range patients {
		h, ok := heads[p]
		if !ok || h.Entry == nil {
			continue
		}
		shortEps, shortDelta := h.Entry.Shortfall(epsilon, delta, now)
		if shortEps > 0 || shortDelta > 0 {
			return &models.InsufficientBudgetError{
				PatientID:        p,
				ShortfallEpsilon: shortEps,
				ShortfallDelta:   shortDelta,
			}
		}
	}
	return nil
}

// exhausted converts a run of consume-time conflicts into an
// InsufficientBudgetError against the latest ledger state.
func (e *Executor) exhausted(ctx context.Context, spec models.QuerySpecification, poolID id.PoolID, patients []id.PatientID, epsilon, delta float64) error {
	insufficient := &models.InsufficientBudgetError{PatientID: patients[0]}
	if heads, err := e.ledger.Snapshot(ctx, poolID, patients); err == nil {
		if short := firstShort(ctx, heads, patients, epsilon, delta); short != nil {
			insufficient = short
		}
	}
	e.auditRejected(ctx, spec, poolID, insufficient.PatientID, "retries_exhausted")
	return insufficient
}

func (e *Executor) auditRejected(ctx context.Context, spec models.QuerySpecification, poolID id.PoolID, patientID id.PatientID, reason string) {
	ports.LogAudit(ctx, e.logger, e.auditPublisher, audit.Event{
		Category:  audit.CategorySecurity,
		Timestamp: requestcontext.Now(ctx),
		PatientID: patientID,
		PoolID:    poolID,
		QueryID:   spec.ID.String(),
		Action:    string(audit.EventQueryRejected),
		Decision:  "rejected",
		Reason:    reason,
	})
}

func outcomeOf(err error) string {
	var invalid *models.InvalidParameterError
	var insufficient *models.InsufficientBudgetError
	switch {
	case errors.As(err, &invalid), errors.Is(err, noise.ErrInvalidParameters):
		return "invalid_parameters"
	case errors.As(err, &insufficient):
		return "insufficient_budget"
	case errors.Is(err, randomness.ErrUnavailable):
		return "randomness_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
