package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

// "|" cannot appear in patient or pool IDs, so keys are unambiguous.
const redisKeyPrefix = "privacy:ledger:"

// RedisStore keeps each lineage as a list of JSON entries, index i holding
// version i+1. Appends WATCH every key in the batch and commit in one MULTI,
// so a concurrent writer aborts the whole batch.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(patientID id.PatientID, poolID id.PoolID) string {
	return redisKeyPrefix + patientID.String() + "|" + poolID.String()
}

func (s *RedisStore) Latest(ctx context.Context, patientID id.PatientID, poolID id.PoolID) (*models.LedgerEntry, error) {
	start := time.Now()
	defer observeLedgerOp("redis", "latest", start)

	raw, err := s.client.LIndex(ctx, redisKey(patientID, poolID), -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("ledger %s/%s: %w", patientID, poolID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read latest ledger entry: %w", err)
	}
	return decodeEntry(raw)
}

func (s *RedisStore) History(ctx context.Context, patientID id.PatientID, poolID id.PoolID) ([]*models.LedgerEntry, error) {
	start := time.Now()
	defer observeLedgerOp("redis", "history", start)

	raws, err := s.client.LRange(ctx, redisKey(patientID, poolID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read ledger history: %w", err)
	}
	out := make([]*models.LedgerEntry, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeEntry([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) AppendBatch(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	start := time.Now()
	defer observeLedgerOp("redis", "append", start)

	keys := batchKeys(entries)
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = redisKey(k.patientID, k.poolID)
	}

	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode ledger entry: %w", err)
		}
		payloads[i] = raw
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		err := checkBatch(entries, func(k lineageKey) (uint64, error) {
			n, err := tx.LLen(ctx, redisKey(k.patientID, k.poolID)).Result()
			if err != nil {
				return 0, fmt.Errorf("read ledger head: %w", err)
			}
			return uint64(n), nil
		})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, e := range entries {
				pipe.RPush(ctx, redisKey(e.PatientID, e.PoolID), payloads[i])
			}
			return nil
		})
		return err
	}, redisKeys...)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("append ledger batch: %w", sentinel.ErrConflict)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		return fmt.Errorf("append ledger batch: %w", err)
	}
	return nil
}

func decodeEntry(raw []byte) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode ledger entry: %w", err)
	}
	return &e, nil
}
