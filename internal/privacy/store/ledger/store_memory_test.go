package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/ports"
)

type InMemoryStoreSuite struct {
	storeContractSuite
}

func TestInMemoryStoreSuite(t *testing.T) {
	s := new(InMemoryStoreSuite)
	s.newStore = func() ports.LedgerStore { return NewInMemoryStore() }
	suite.Run(t, s)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	v1 := models.NewLedgerEntry("p", "pool", models.DefaultAllocation(), time.Now())
	require.NoError(t, store.AppendBatch(ctx, []*models.LedgerEntry{v1}))

	// Mutating the caller's entry or a read copy must not reach the store.
	v1.ConsumedEpsilon = 0.9
	got, err := store.Latest(ctx, "p", "pool")
	require.NoError(t, err)
	assert.Zero(t, got.ConsumedEpsilon)

	got.EpsilonHistory = append(got.EpsilonHistory, 5)
	again, err := store.Latest(ctx, "p", "pool")
	require.NoError(t, err)
	assert.Empty(t, again.EpsilonHistory)
}

func TestInMemoryStore_EmptyBatchIsNoop(t *testing.T) {
	assert.NoError(t, NewInMemoryStore().AppendBatch(context.Background(), nil))
}
