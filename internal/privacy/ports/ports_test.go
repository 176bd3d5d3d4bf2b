package ports

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/requestcontext"
)

type recordingPublisher struct {
	events []audit.Event
	err    error
}

func (p *recordingPublisher) Emit(_ context.Context, e audit.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func TestLogAudit_AddsRequestIDAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pub := &recordingPublisher{}
	ctx := requestcontext.WithRequestID(context.Background(), "req-42")

	LogAudit(ctx, logger, pub, audit.Event{
		Action:    string(audit.EventBudgetConsumed),
		PatientID: "patient-1",
		PoolID:    "pool-a",
	})

	require.Len(t, pub.events, 1)
	assert.Equal(t, "req-42", pub.events[0].RequestID)
	assert.Contains(t, buf.String(), `"log_type":"audit"`)
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestLogAudit_PublisherFailureIsLoggedOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	pub := &recordingPublisher{err: errors.New("sink down")}

	assert.NotPanics(t, func() {
		LogAudit(context.Background(), logger, pub, audit.Event{Action: string(audit.EventQueryRejected)})
	})
	assert.Contains(t, buf.String(), "failed to emit audit event")
}

func TestLogAudit_NilPublisherAndLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogAudit(context.Background(), nil, nil, audit.Event{Action: "x"})
	})
}
