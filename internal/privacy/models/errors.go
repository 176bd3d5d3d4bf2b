package models

import (
	"fmt"

	id "healthcommons/pkg/domain"
)

// InvalidParameterError reports a configuration value outside its legal
// domain. It is never retried; the caller must fix the input.
type InvalidParameterError struct {
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewInvalidParameter(field, reason string) error {
	return &InvalidParameterError{Field: field, Reason: reason}
}

// InsufficientBudgetError is returned when a contributor cannot afford a
// query. Only the shortfall is reported, never the contributor's remaining
// budget.
type InsufficientBudgetError struct {
	PatientID        id.PatientID
	ShortfallEpsilon float64
	ShortfallDelta   float64
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("insufficient privacy budget for patient %s: short epsilon=%g delta=%g",
		e.PatientID, e.ShortfallEpsilon, e.ShortfallDelta)
}
