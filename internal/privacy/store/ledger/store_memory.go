package ledger

import (
	"context"
	"fmt"
	"sync"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

// InMemoryStore keeps lineages in a map guarded by a RWMutex. Entries are
// cloned on the way in and out so callers cannot mutate stored history.
type InMemoryStore struct {
	mu       sync.RWMutex
	lineages map[lineageKey][]*models.LedgerEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{lineages: make(map[lineageKey][]*models.LedgerEntry)}
}

func (s *InMemoryStore) Latest(_ context.Context, patientID id.PatientID, poolID id.PoolID) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage := s.lineages[lineageKey{patientID, poolID}]
	if len(lineage) == 0 {
		return nil, fmt.Errorf("ledger %s/%s: %w", patientID, poolID, sentinel.ErrNotFound)
	}
	return lineage[len(lineage)-1].Clone(), nil
}

func (s *InMemoryStore) History(_ context.Context, patientID id.PatientID, poolID id.PoolID) ([]*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage := s.lineages[lineageKey{patientID, poolID}]
	out := make([]*models.LedgerEntry, 0, len(lineage))
	for _, e := range lineage {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) AppendBatch(_ context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := checkBatch(entries, func(k lineageKey) (uint64, error) {
		lineage := s.lineages[k]
		if len(lineage) == 0 {
			return 0, nil
		}
		return lineage[len(lineage)-1].Version, nil
	})
	if err != nil {
		return err
	}

	for _, e := range entries {
		k := keyOf(e)
		s.lineages[k] = append(s.lineages[k], e.Clone())
	}
	return nil
}
