// Package ports defines the interfaces the privacy services depend on.
package ports

import (
	"context"
	"log/slog"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/requestcontext"
)

// LedgerStore persists the append-only budget ledger.
type LedgerStore interface {
	// Latest returns the highest version for the key, or sentinel.ErrNotFound.
	Latest(ctx context.Context, patientID id.PatientID, poolID id.PoolID) (*models.LedgerEntry, error)

	// History returns every version for the key, ascending.
	History(ctx context.Context, patientID id.PatientID, poolID id.PoolID) ([]*models.LedgerEntry, error)

	// AppendBatch writes all entries or none. Each entry's Version must be
	// exactly one above the key's latest (including earlier entries in the
	// same batch); otherwise sentinel.ErrConflict.
	AppendBatch(ctx context.Context, entries []*models.LedgerEntry) error
}

// AuditPublisher emits audit events for budget mutations and rejections.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an audit event with log_type=audit and forwards it to the
// publisher when one is configured. Publisher failures are logged only.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if logger != nil {
		args := []any{"event", event.Action, "log_type", "audit"}
		if event.PatientID != "" {
			args = append(args, "patient_id", event.PatientID.String())
		}
		if event.PoolID != "" {
			args = append(args, "pool_id", event.PoolID.String())
		}
		if event.QueryID != "" {
			args = append(args, "query_id", event.QueryID)
		}
		if event.Decision != "" {
			args = append(args, "decision", event.Decision)
		}
		if event.Reason != "" {
			args = append(args, "reason", event.Reason)
		}
		if event.RequestID != "" {
			args = append(args, "request_id", event.RequestID)
		}
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
