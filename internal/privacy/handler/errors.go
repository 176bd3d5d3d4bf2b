package handler

import (
	"errors"
	"net/http"

	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/randomness"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/httputil"
)

// InsufficientBudgetResponse reports only the shortfall. The contributor is
// not named to the caller.
type InsufficientBudgetResponse struct {
	Error            string  `json:"error"`
	ErrorDescription string  `json:"error_description"`
	ShortfallEpsilon float64 `json:"shortfall_epsilon"`
	ShortfallDelta   float64 `json:"shortfall_delta"`
}

// writeError renders privacy errors, falling back to coded errors.
func writeError(w http.ResponseWriter, err error) {
	var insufficient *models.InsufficientBudgetError
	if errors.As(err, &insufficient) {
		httputil.WriteJSON(w, http.StatusForbidden, InsufficientBudgetResponse{
			Error:            string(dErrors.CodeInsufficientBudget),
			ErrorDescription: "a contributor lacks privacy budget for this query",
			ShortfallEpsilon: insufficient.ShortfallEpsilon,
			ShortfallDelta:   insufficient.ShortfallDelta,
		})
		return
	}
	httputil.WriteError(w, toCoded(err))
}

func toCoded(err error) error {
	var invalid *models.InvalidParameterError
	switch {
	case errors.As(err, &invalid):
		return dErrors.Wrap(err, dErrors.CodeBadRequest, invalid.Error())
	case errors.Is(err, randomness.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "secure randomness unavailable, retry later")
	default:
		return err
	}
}
