// Package publisher emits audit events to a Store either synchronously or
// through a bounded asynchronous buffer.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	id "healthcommons/pkg/domain"
	audit "healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/audit/worker"
)

// ErrBufferFull is returned in async mode when the buffer cannot take more events.
var ErrBufferFull = errors.New("audit buffer full")

// Lister is implemented by stores that can be read back (in-memory, tests).
type Lister interface {
	ListByPatient(ctx context.Context, patientID id.PatientID) ([]audit.Event, error)
}

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	inbox      chan audit.Event
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous mode with a buffer
// of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		w := worker.NewWorker(p.store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(ctx)
		}()
	}
	return p
}

// Emit records an event. In sync mode the store error is returned; in async
// mode the event is queued and ErrBufferFull is returned when the queue is full.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		if err := p.store.Append(ctx, event); err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		return nil
	}

	select {
	case p.inbox <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// List reads a patient's events back when the store supports it.
func (p *Publisher) List(ctx context.Context, patientID id.PatientID) ([]audit.Event, error) {
	lister, ok := p.store.(Lister)
	if !ok {
		return nil, fmt.Errorf("audit store does not support listing")
	}
	return lister.ListByPatient(ctx, patientID)
}

// Close stops the async worker after flushing queued events.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
			<-p.done
		}
	})
	return nil
}
