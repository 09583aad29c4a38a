package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"healthcommons/internal/privacy/models"
	"healthcommons/pkg/platform/sentinel"
)

const (
	redisKeyPrefix       = "budget:ledger:"
	defaultRedisAttempts = 10
)

// RedisStore keeps ledger entries as JSON documents and serializes debits
// with optimistic WATCH/MULTI transactions, retried on contention.
type RedisStore struct {
	client      *redis.Client
	maxAttempts int
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, maxAttempts: defaultRedisAttempts}
}

func redisKey(key models.LedgerKey) string {
	return redisKeyPrefix + key.String()
}

func (s *RedisStore) Find(ctx context.Context, key models.LedgerKey) (*models.LedgerEntry, error) {
	return getEntry(ctx, s.client, redisKey(key))
}

func (s *RedisStore) RunInTx(ctx context.Context, key models.LedgerKey, fn TxFunc) error {
	rkey := redisKey(key)
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			view := &redisTx{tx: rtx, key: rkey}
			if err := fn(ctx, view); err != nil {
				return err
			}
			if view.pending == nil {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, rkey, view.pending, 0)
				return nil
			})
			return err
		}, rkey)
		if errors.Is(err, redis.TxFailedErr) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		return err
	}
	return fmt.Errorf("ledger entry %s: %w", key, sentinel.ErrConflict)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getEntry(ctx context.Context, c redisGetter, key string) (*models.LedgerEntry, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	var entry models.LedgerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode ledger entry: %w", err)
	}
	return &entry, nil
}

type redisTx struct {
	tx      *redis.Tx
	key     string
	pending []byte
}

func (t *redisTx) FindOrCreate(ctx context.Context, key models.LedgerKey, policy models.Policy, now time.Time) (*models.LedgerEntry, error) {
	entry, err := getEntry(ctx, t.tx, t.key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.NewLedgerEntry(key, policy, now), nil
	}
	return entry, err
}

func (t *redisTx) Save(_ context.Context, entry *models.LedgerEntry) error {
	cp := entry.Clone()
	cp.Version++
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	t.pending = data
	return nil
}
