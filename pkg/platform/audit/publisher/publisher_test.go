package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "healthcommons/pkg/domain"
	audit "healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	patientID := id.PatientID("patient-sync")
	err := pub.Emit(context.Background(), audit.Event{
		PatientID: patientID,
		Action:    string(audit.EventBudgetConsumed),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), patientID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventBudgetConsumed), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	patientID := id.PatientID("patient-async")
	err := pub.Emit(context.Background(), audit.Event{
		PatientID: patientID,
		Action:    string(audit.EventQueryRejected),
	})
	require.NoError(t, err)

	// Close flushes the queue.
	require.NoError(t, pub.Close())

	events, err := store.ListByPatient(context.Background(), patientID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisher_RejectsEventWithoutAction(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	err := pub.Emit(context.Background(), audit.Event{PatientID: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires Action")
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("disk full")
}

func TestPublisher_SyncModeSurfacesStoreError(t *testing.T) {
	pub := NewPublisher(failingStore{})
	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventBudgetCreated)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

type blockingStore struct {
	release chan struct{}
}

func (s blockingStore) Append(context.Context, audit.Event) error {
	<-s.release
	return nil
}

func TestPublisher_AsyncBufferFull(t *testing.T) {
	store := blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1))

	event := audit.Event{Action: string(audit.EventBudgetChecked)}
	var full bool
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := pub.Emit(context.Background(), event); errors.Is(err, ErrBufferFull) {
			full = true
			break
		}
	}
	close(store.release)
	require.NoError(t, pub.Close())
	assert.True(t, full, "bounded buffer should eventually reject")
}
