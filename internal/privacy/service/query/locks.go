package query

import (
	"context"
	"sort"
	"time"

	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

// numLockShards spreads (patient, pool) keys over a fixed set of locks.
const numLockShards = 128

const defaultLockTimeout = 5 * time.Second

// shardedLocks serialises queries that share contributors within one
// process. Shards are always taken in ascending order so two queries with
// overlapping contributors cannot deadlock. Each shard is a one-slot channel
// so acquisition can observe ctx.
type shardedLocks struct {
	shards  [numLockShards]chan struct{}
	timeout time.Duration
}

func newShardedLocks(timeout time.Duration) *shardedLocks {
	l := &shardedLocks{timeout: timeout}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// acquire locks every shard the contributors hash to and returns the
// release func. The returned context carries the lock timeout when the
// caller set no deadline.
func (l *shardedLocks) acquire(ctx context.Context, poolID id.PoolID, patients []id.PatientID) (context.Context, func(), error) {
	if err := ctx.Err(); err != nil {
		return ctx, nil, dErrors.Wrap(err, dErrors.CodeTimeout, "query aborted: context cancelled")
	}

	cancel := func() {}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		timeout := l.timeout
		if timeout == 0 {
			timeout = defaultLockTimeout
		}
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	idx := shardsFor(poolID, patients)
	held := make([]int, 0, len(idx))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-l.shards[held[i]]
		}
		cancel()
	}

	for _, shard := range idx {
		select {
		case l.shards[shard] <- struct{}{}:
			held = append(held, shard)
		case <-ctx.Done():
			release()
			return ctx, nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for contributor locks")
		}
	}

	// Check again after acquiring every lock
	if err := ctx.Err(); err != nil {
		release()
		return ctx, nil, dErrors.Wrap(err, dErrors.CodeTimeout, "query aborted: context cancelled")
	}
	return ctx, release, nil
}

// shardsFor returns the distinct shard indexes for the keys, ascending.
func shardsFor(poolID id.PoolID, patients []id.PatientID) []int {
	seen := make(map[int]struct{}, len(patients))
	out := make([]int, 0, len(patients))
	for _, p := range patients {
		shard := int(hashKey(p.String()+"|"+poolID.String()) % numLockShards)
		if _, ok := seen[shard]; ok {
			continue
		}
		seen[shard] = struct{}{}
		out = append(out, shard)
	}
	sort.Ints(out)
	return out
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
