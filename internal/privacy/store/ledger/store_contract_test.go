package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/suite"

	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/ports"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

// storeContractSuite runs the LedgerStore contract against any backend.
// Backends embed it and set newStore.
type storeContractSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	newStore func() ports.LedgerStore
	store    ports.LedgerStore
}

func (s *storeContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.store = s.newStore()
}

func (s *storeContractSuite) first(patient id.PatientID, pool id.PoolID) *models.LedgerEntry {
	return models.NewLedgerEntry(patient, pool, models.DefaultAllocation(), s.now)
}

// =============================================================================
// Reads
// =============================================================================

func (s *storeContractSuite) TestLatestNotFound() {
	_, err := s.store.Latest(s.ctx, "nobody", "pool-a")
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	history, err := s.store.History(s.ctx, "nobody", "pool-a")
	s.Require().NoError(err)
	s.Empty(history)
}

func (s *storeContractSuite) TestAppendThenRead() {
	v1 := s.first("patient-1", "pool-a")
	v2 := v1.Next(0.3, 0, s.now.Add(time.Minute))
	s.Require().NoError(s.store.AppendBatch(s.ctx, []*models.LedgerEntry{v1, v2}))

	latest, err := s.store.Latest(s.ctx, "patient-1", "pool-a")
	s.Require().NoError(err)
	s.Empty(cmp.Diff(v2, latest, timeCmp()))

	history, err := s.store.History(s.ctx, "patient-1", "pool-a")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(uint64(1), history[0].Version)
	s.Equal(uint64(2), history[1].Version)
	s.Empty(cmp.Diff(v1, history[0], timeCmp()))
}

func (s *storeContractSuite) TestKeysAreIsolated() {
	s.Require().NoError(s.store.AppendBatch(s.ctx, []*models.LedgerEntry{
		s.first("patient-1", "pool-a"),
		s.first("patient-1", "pool-b"),
		s.first("patient-2", "pool-a"),
	}))

	history, err := s.store.History(s.ctx, "patient-1", "pool-a")
	s.Require().NoError(err)
	s.Len(history, 1)
}

// =============================================================================
// Version checks
// =============================================================================

func (s *storeContractSuite) TestRejectsGap() {
	v1 := s.first("patient-1", "pool-a")
	v3 := v1.Next(0.1, 0, s.now).Next(0.1, 0, s.now)

	err := s.store.AppendBatch(s.ctx, []*models.LedgerEntry{v3})
	s.True(errors.Is(err, sentinel.ErrConflict))
}

func (s *storeContractSuite) TestRejectsStaleVersion() {
	v1 := s.first("patient-1", "pool-a")
	s.Require().NoError(s.store.AppendBatch(s.ctx, []*models.LedgerEntry{v1}))

	again := s.first("patient-1", "pool-a")
	err := s.store.AppendBatch(s.ctx, []*models.LedgerEntry{again})
	s.True(errors.Is(err, sentinel.ErrConflict))
}

func (s *storeContractSuite) TestBatchIsAllOrNothing() {
	a1 := s.first("patient-a", "pool-a")
	s.Require().NoError(s.store.AppendBatch(s.ctx, []*models.LedgerEntry{a1}))

	// patient-b is fine, patient-a is stale: nothing may land.
	b1 := s.first("patient-b", "pool-a")
	staleA := s.first("patient-a", "pool-a")
	err := s.store.AppendBatch(s.ctx, []*models.LedgerEntry{b1, staleA})
	s.True(errors.Is(err, sentinel.ErrConflict))

	_, err = s.store.Latest(s.ctx, "patient-b", "pool-a")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *storeContractSuite) TestConcurrentAppendsOnlyOneWins() {
	v1 := s.first("patient-1", "pool-a")
	s.Require().NoError(s.store.AppendBatch(s.ctx, []*models.LedgerEntry{v1}))

	const writers = 8
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.AppendBatch(s.ctx, []*models.LedgerEntry{v1.Next(0.1, 0, s.now)})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())
	history, err := s.store.History(s.ctx, "patient-1", "pool-a")
	s.Require().NoError(err)
	s.Len(history, 2)
}

// timeCmp compares instants, ignoring location and monotonic readings that
// do not survive storage.
func timeCmp() cmp.Option {
	return cmp.Options{
		cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
		cmpopts.EquateEmpty(),
	}
}
