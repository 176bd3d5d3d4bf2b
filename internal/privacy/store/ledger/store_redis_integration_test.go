//go:build integration

package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"healthcommons/internal/privacy/ports"
	"healthcommons/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	storeContractSuite
}

func TestRedisStoreSuite(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedisStore(rc.Client)

	s := new(RedisStoreSuite)
	s.newStore = func() ports.LedgerStore {
		require.NoError(t, rc.FlushAll(context.Background()))
		return store
	}
	suite.Run(t, s)
}
