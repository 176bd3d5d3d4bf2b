package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/circuit"
)

type fakeProducer struct {
	err     error
	records []*kgo.Record
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestStore_AppendProducesKeyedRecord(t *testing.T) {
	producer := &fakeProducer{}
	store := New(producer, "privacy-audit")

	err := store.Append(context.Background(), audit.Event{
		Category:     audit.CategoryCompliance,
		PatientID:    "patient-1",
		PoolID:       "pool-a",
		Action:       string(audit.EventBudgetConsumed),
		EpsilonSpent: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "privacy-audit", rec.Topic)
	assert.Equal(t, []byte("patient-1"), rec.Key)

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, 0.5, decoded.EpsilonSpent)
	assert.Equal(t, "privacy_budget_consumed", decoded.Action)
}

func TestStore_BreakerOpensAfterFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	store := New(producer, "privacy-audit",
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))),
	)
	event := audit.Event{Action: string(audit.EventBudgetConsumed)}

	require.Error(t, store.Append(context.Background(), event))
	require.Error(t, store.Append(context.Background(), event))

	err := store.Append(context.Background(), event)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
