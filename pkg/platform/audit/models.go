package audit

import (
	"context"
	"time"

	id "healthcommons/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so that
// sinks can apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: every
	// privacy-budget mutation is one.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers refusals that may indicate probing, such as
	// queries rejected for insufficient budget.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine reads.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It is
// transport-agnostic so stores and sinks can fan out. It never carries raw
// contributed values or pre-noise aggregates.
type Event struct {
	Category     EventCategory `json:"category"`
	Timestamp    time.Time     `json:"timestamp"`
	PatientID    id.PatientID  `json:"patient_id,omitempty"`
	PoolID       id.PoolID     `json:"pool_id,omitempty"`
	QueryID      string        `json:"query_id,omitempty"`
	Action       string        `json:"action"`
	Decision     string        `json:"decision,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	EpsilonSpent float64       `json:"epsilon_spent,omitempty"`
	DeltaSpent   float64       `json:"delta_spent,omitempty"`
	LedgerVer    uint64        `json:"ledger_version,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventBudgetCreated  AuditEvent = "privacy_budget_created"
	EventBudgetRenewed  AuditEvent = "privacy_budget_renewed"
	EventBudgetConsumed AuditEvent = "privacy_budget_consumed"
	EventQueryExecuted  AuditEvent = "privacy_query_executed"
	EventQueryRejected  AuditEvent = "privacy_query_rejected"
	EventBudgetChecked  AuditEvent = "privacy_budget_checked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventBudgetCreated:  CategoryCompliance,
	EventBudgetRenewed:  CategoryCompliance,
	EventBudgetConsumed: CategoryCompliance,
	EventQueryExecuted:  CategoryCompliance,
	EventQueryRejected:  CategorySecurity,
	EventBudgetChecked:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
