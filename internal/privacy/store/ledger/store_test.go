package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

type backend interface {
	Find(ctx context.Context, key models.LedgerKey) (*models.LedgerEntry, error)
	RunInTx(ctx context.Context, key models.LedgerKey, fn TxFunc) error
}

// LedgerSuite runs the same contract against the memory and Redis backends.
type LedgerSuite struct {
	suite.Suite
	newBackend func(s *LedgerSuite) backend
	store      backend
	key        models.LedgerKey
	policy     models.Policy
}

func TestInMemoryLedger(t *testing.T) {
	suite.Run(t, &LedgerSuite{newBackend: func(*LedgerSuite) backend { return NewInMemoryStore() }})
}

func TestRedisLedger(t *testing.T) {
	suite.Run(t, &LedgerSuite{newBackend: func(s *LedgerSuite) backend {
		mr := miniredis.RunT(s.T())
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		s.T().Cleanup(func() { _ = client.Close() })
		return NewRedis(client)
	}})
}

func (s *LedgerSuite) SetupTest() {
	s.store = s.newBackend(s)
	s.key = models.LedgerKey{Patient: id.AgentID(uuid.New()), PoolID: id.PoolID(uuid.New())}
	s.policy = models.Policy{TotalEpsilon: 10, TotalDelta: 1e-5, Composition: budget.Basic()}
}

func (s *LedgerSuite) debit(eps float64) error {
	return s.store.RunInTx(context.Background(), s.key, func(ctx context.Context, tx TxStore) error {
		now := time.Now()
		entry, err := tx.FindOrCreate(ctx, s.key, s.policy, now)
		if err != nil {
			return err
		}
		if err := entry.CanDebit(eps, 0, now); err != nil {
			return err
		}
		entry.ApplyDebit(eps, 0, now)
		return tx.Save(ctx, entry)
	})
}

func (s *LedgerSuite) TestFindMissing() {
	_, err := s.store.Find(context.Background(), s.key)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestDebitPersists() {
	s.Require().NoError(s.debit(2.5))
	s.Require().NoError(s.debit(1.5))

	entry, err := s.store.Find(context.Background(), s.key)
	s.Require().NoError(err)
	s.Equal(4.0, entry.ConsumedEpsilon)
	s.Equal(int64(2), entry.QueryCount)
	s.Equal([]float64{2.5, 1.5}, entry.EpsilonHistory)
	s.Equal(int64(2), entry.Version)
}

func (s *LedgerSuite) TestFailedSectionWritesNothing() {
	boom := errors.New("boom")
	err := s.store.RunInTx(context.Background(), s.key, func(ctx context.Context, tx TxStore) error {
		entry, err := tx.FindOrCreate(ctx, s.key, s.policy, time.Now())
		s.Require().NoError(err)
		entry.ApplyDebit(5, 0, time.Now())
		s.Require().NoError(tx.Save(ctx, entry))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.Find(context.Background(), s.key)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestConcurrentDebitsNeverOverspend() {
	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		denials   atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.debit(6); err != nil {
				denials.Add(1)
				return
			}
			successes.Add(1)
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(workers-1), denials.Load())

	entry, err := s.store.Find(context.Background(), s.key)
	s.Require().NoError(err)
	s.Equal(6.0, entry.ConsumedEpsilon)
	s.LessOrEqual(entry.ConsumedEpsilon, entry.TotalEpsilon)
}

func TestShardForIsStable(t *testing.T) {
	key := models.LedgerKey{Patient: id.AgentID(uuid.New()), PoolID: id.PoolID(uuid.New())}
	assert.Equal(t, shardFor(key), shardFor(key))
	require.Less(t, shardFor(key), uint32(numLedgerShards))
}

func TestRedisStore_RerunsSectionAfterConflict(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedis(client)

	ctx := context.Background()
	key := models.LedgerKey{Patient: id.AgentID(uuid.New()), PoolID: id.PoolID(uuid.New())}
	policy := models.Policy{TotalEpsilon: 10, TotalDelta: 1e-5, Composition: budget.Basic()}
	debit := func(eps float64) TxFunc {
		return func(ctx context.Context, tx TxStore) error {
			entry, err := tx.FindOrCreate(ctx, key, policy, time.Now())
			if err != nil {
				return err
			}
			entry.ApplyDebit(eps, 0, time.Now())
			return tx.Save(ctx, entry)
		}
	}

	runs := 0
	err := store.RunInTx(ctx, key, func(ctx context.Context, tx TxStore) error {
		runs++
		if runs == 1 {
			// another writer commits between WATCH and EXEC
			require.NoError(t, store.RunInTx(ctx, key, debit(1)))
		}
		return debit(2)(ctx, tx)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs, "the losing attempt is discarded and the section re-run")

	entry, err := store.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3.0, entry.ConsumedEpsilon)
	assert.Equal(t, int64(2), entry.QueryCount)
}
