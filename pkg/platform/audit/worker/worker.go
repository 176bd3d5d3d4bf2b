package worker

import (
	"context"
	"log/slog"

	audit "healthcommons/pkg/platform/audit"
)

// Worker drains an event channel into a store. It returns when the context is
// cancelled or the inbox is closed, after persisting everything still queued.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.persist(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.persist(context.Background(), event)
		default:
			return
		}
	}
}

// persist logs and drops events the store refuses; one bad event must not
// stall the queue.
func (w *Worker) persist(ctx context.Context, event audit.Event) {
	if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
		w.logger.WarnContext(ctx, "failed to persist audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
