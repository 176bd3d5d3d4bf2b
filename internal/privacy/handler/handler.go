package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/httputil"
	"healthcommons/pkg/requestcontext"
)

// QueryService executes differentially private queries.
type QueryService interface {
	ExecuteQuery(ctx context.Context, spec models.QuerySpecification, contributions []models.Contribution, params models.PrivacyParameters, poolID id.PoolID) (*models.DifferentiallyPrivateResult, error)
}

// BudgetService answers read-only budget questions.
type BudgetService interface {
	Status(ctx context.Context, patientID id.PatientID, poolID id.PoolID) (models.BudgetStatusView, error)
	CheckQueryBudget(ctx context.Context, patientID id.PatientID, poolID id.PoolID, epsilon, delta float64) (models.BudgetCheck, error)
	History(ctx context.Context, patientID id.PatientID, poolID id.PoolID) ([]*models.LedgerEntry, error)
}

// Handler wires the privacy endpoints to the executor and the ledger.
type Handler struct {
	queries QueryService
	budgets BudgetService
	logger  *slog.Logger
}

func New(queries QueryService, budgets BudgetService, logger *slog.Logger) *Handler {
	return &Handler{
		queries: queries,
		budgets: budgets,
		logger:  logger,
	}
}

// Register mounts the privacy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/privacy/pools/{poolID}", func(r chi.Router) {
		r.Post("/queries", h.HandleExecuteQuery)
		r.Get("/patients/{patientID}/budget", h.HandleBudgetStatus)
		r.Get("/patients/{patientID}/budget/check", h.HandleBudgetCheck)
		r.Get("/patients/{patientID}/budget/history", h.HandleBudgetHistory)
	})
}

// HandleExecuteQuery handles POST /privacy/pools/{poolID}/queries.
func (h *Handler) HandleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	poolID, err := id.ParsePoolID(chi.URLParam(r, "poolID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[ExecuteQueryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.queries.ExecuteQuery(ctx, req.Spec(poolID), req.ParsedContributions(), req.ParsedParams(), poolID)
	if err != nil {
		h.logger.WarnContext(ctx, "privacy query failed",
			"request_id", requestID,
			"pool_id", poolID.String(),
			"error", err,
		)
		writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "privacy query released",
		"request_id", requestID,
		"pool_id", poolID.String(),
		"query_id", result.QueryID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleBudgetStatus handles GET .../patients/{patientID}/budget.
func (h *Handler) HandleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID, poolID, ok := h.keys(w, r)
	if !ok {
		return
	}

	status, err := h.budgets.Status(ctx, patientID, poolID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read budget status",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleBudgetCheck handles GET .../budget/check?epsilon=&delta=.
func (h *Handler) HandleBudgetCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID, poolID, ok := h.keys(w, r)
	if !ok {
		return
	}

	epsilon, err := parseFloatParam(r, "epsilon", true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	delta, err := parseFloatParam(r, "delta", false)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	check, err := h.budgets.CheckQueryBudget(ctx, patientID, poolID, epsilon, delta)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, check)
}

// HandleBudgetHistory handles GET .../budget/history.
func (h *Handler) HandleBudgetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID, poolID, ok := h.keys(w, r)
	if !ok {
		return
	}

	entries, err := h.budgets.History(ctx, patientID, poolID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read budget history",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromHistory(patientID, poolID, entries))
}

func (h *Handler) keys(w http.ResponseWriter, r *http.Request) (id.PatientID, id.PoolID, bool) {
	poolID, err := id.ParsePoolID(chi.URLParam(r, "poolID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", "", false
	}
	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", "", false
	}
	return patientID, poolID, true
}

func parseFloatParam(r *http.Request, name string, required bool) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, dErrors.New(dErrors.CodeBadRequest, name+" is required")
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeBadRequest, name+" must be a number")
	}
	return v, nil
}
