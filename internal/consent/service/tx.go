package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

// ConsentStoreTx provides a transactional boundary for consent store mutations.
// Implementations may wrap a database transaction or, in-memory, a lock per grantor.
type ConsentStoreTx interface {
	RunInTx(ctx context.Context, grantor id.AgentID, fn func(ctx context.Context, store Store) error) error
}

// numConsentShards spreads grantors over independent locks.
const numConsentShards = 128

const defaultConsentTxTimeout = 5 * time.Second

// shardedConsentTx serializes version changes per grantor. Writes go straight
// to the store, so a failing fn must not have written anything yet.
type shardedConsentTx struct {
	shards  [numConsentShards]sync.Mutex
	store   Store
	timeout time.Duration
}

func newShardedConsentTx(store Store) *shardedConsentTx {
	return &shardedConsentTx{store: store, timeout: defaultConsentTxTimeout}
}

func (t *shardedConsentTx) RunInTx(ctx context.Context, grantor id.AgentID, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := shardFor(grantor)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Waiting for the lock may have used up the deadline.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.store)
}

func shardFor(grantor id.AgentID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(grantor.String()))
	return h.Sum32() % numConsentShards
}
