package ledger

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"healthcommons/internal/privacy/models"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/platform/tx"
)

// numLedgerShards spreads keys across locks so unrelated patients do not contend.
const numLedgerShards = 128

// InMemoryStore keeps ledger entries in memory behind sharded locks.
type InMemoryStore struct {
	shards [numLedgerShards]sync.Mutex

	mu      sync.RWMutex
	entries map[models.LedgerKey]*models.LedgerEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[models.LedgerKey]*models.LedgerEntry)}
}

func (s *InMemoryStore) Find(_ context.Context, key models.LedgerKey) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return entry.Clone(), nil
}

func (s *InMemoryStore) RunInTx(ctx context.Context, key models.LedgerKey, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tx.DefaultTimeout)
		defer cancel()
	}

	shard := &s.shards[shardFor(key)]
	shard.Lock()
	defer shard.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	view := &memoryTx{store: s}
	if err := fn(ctx, view); err != nil {
		return err
	}
	if view.pending != nil {
		s.mu.Lock()
		s.entries[key] = view.pending
		s.mu.Unlock()
	}
	return nil
}

func shardFor(key models.LedgerKey) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return h.Sum32() % numLedgerShards
}

// memoryTx buffers the write until fn returns without error.
type memoryTx struct {
	store   *InMemoryStore
	pending *models.LedgerEntry
}

func (t *memoryTx) FindOrCreate(ctx context.Context, key models.LedgerKey, policy models.Policy, now time.Time) (*models.LedgerEntry, error) {
	entry, err := t.store.Find(ctx, key)
	if err == nil {
		return entry, nil
	}
	return models.NewLedgerEntry(key, policy, now), nil
}

func (t *memoryTx) Save(_ context.Context, entry *models.LedgerEntry) error {
	cp := entry.Clone()
	cp.Version++
	t.pending = cp
	return nil
}
