// Package ledger holds the LedgerStore implementations. All of them enforce
// the same rule: an append must extend the key's latest version by exactly
// one, and a batch is written completely or not at all.
package ledger

import (
	"fmt"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

type lineageKey struct {
	patientID id.PatientID
	poolID    id.PoolID
}

func keyOf(e *models.LedgerEntry) lineageKey {
	return lineageKey{patientID: e.PatientID, poolID: e.PoolID}
}

// checkBatch validates version contiguity. latest returns the stored
// latest version for a key (0 when empty) and is called once per key.
func checkBatch(entries []*models.LedgerEntry, latest func(lineageKey) (uint64, error)) error {
	heads := make(map[lineageKey]uint64, len(entries))
	for _, e := range entries {
		if e == nil {
			return fmt.Errorf("nil ledger entry in batch")
		}
		k := keyOf(e)
		head, ok := heads[k]
		if !ok {
			v, err := latest(k)
			if err != nil {
				return err
			}
			head = v
		}
		if e.Version != head+1 {
			return fmt.Errorf("append %s/%s version %d onto %d: %w",
				e.PatientID, e.PoolID, e.Version, head, sentinel.ErrConflict)
		}
		heads[k] = e.Version
	}
	return nil
}

// batchKeys returns the distinct keys of a batch in first-seen order.
func batchKeys(entries []*models.LedgerEntry) []lineageKey {
	seen := make(map[lineageKey]struct{}, len(entries))
	keys := make([]lineageKey, 0, len(entries))
	for _, e := range entries {
		k := keyOf(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
