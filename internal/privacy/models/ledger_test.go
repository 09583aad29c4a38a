package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/internal/privacy/budget"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

func newEntry(total float64, c budget.Composition) *LedgerEntry {
	key := LedgerKey{Patient: id.AgentID(uuid.New()), PoolID: id.PoolID(uuid.New())}
	return NewLedgerEntry(key, Policy{TotalEpsilon: total, TotalDelta: 1e-5, Composition: c}, time.Now())
}

func TestLedgerEntry_Debit(t *testing.T) {
	now := time.Now()

	t.Run("rejects overspend without touching state", func(t *testing.T) {
		e := newEntry(10, budget.Basic())
		require.NoError(t, e.CanDebit(6, 0, now))
		e.ApplyDebit(6, 0, now)

		err := e.CanDebit(6, 0, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientBudget))
		assert.Equal(t, 6.0, e.ConsumedEpsilon)
		assert.Equal(t, int64(1), e.QueryCount)
	})

	t.Run("spends exactly to the total", func(t *testing.T) {
		e := newEntry(10, budget.Basic())
		for range 2 {
			require.NoError(t, e.CanDebit(5, 0, now))
			e.ApplyDebit(5, 0, now)
		}
		assert.Equal(t, 10.0, e.ConsumedEpsilon)
		err := e.CanDebit(0.1, 0, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBudgetExhausted))
	})

	t.Run("delta is bounded", func(t *testing.T) {
		e := newEntry(10, budget.Basic())
		err := e.CanDebit(1, 2e-5, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientBudget))
	})

	t.Run("advanced composition admits more small queries", func(t *testing.T) {
		basic := newEntry(1, budget.Basic())
		advanced := newEntry(1, budget.Advanced(1e-6))
		count := func(e *LedgerEntry) int {
			n := 0
			for e.CanDebit(0.01, 0, now) == nil {
				e.ApplyDebit(0.01, 0, now)
				n++
				if n > 100000 {
					break
				}
			}
			return n
		}
		nb, na := count(basic), count(advanced)
		assert.GreaterOrEqual(t, nb, 99)
		assert.LessOrEqual(t, nb, 100)
		assert.GreaterOrEqual(t, na, nb)
		assert.LessOrEqual(t, advanced.ConsumedEpsilon, advanced.TotalEpsilon)
		assert.InDelta(t, 1e-6, advanced.ConsumedDelta, 1e-15)
	})
}

func TestLedgerEntry_Renew(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := LedgerKey{Patient: id.AgentID(uuid.New()), PoolID: id.PoolID(uuid.New())}
	e := NewLedgerEntry(key, Policy{TotalEpsilon: 10, TotalDelta: 1e-5, Composition: budget.Basic()}, start)
	e.ApplyDebit(4, 0, start)

	assert.False(t, e.Renew(start.Add(time.Hour)))

	later := start.Add(DefaultPeriod)
	err := e.CanDebit(1, 0, later)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBudgetExhausted))

	require.True(t, e.Renew(later))
	assert.Equal(t, 0.0, e.ConsumedEpsilon)
	assert.Equal(t, int64(0), e.QueryCount)
	assert.Equal(t, later.Add(DefaultPeriod), e.PeriodEnd)
}

func TestLedgerEntry_RefundDebit(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := LedgerKey{Patient: id.AgentID(uuid.New()), PoolID: id.PoolID(uuid.New())}
	policy := Policy{TotalEpsilon: 10, TotalDelta: 1e-5, Composition: budget.Advanced(1e-6)}

	t.Run("removes the latest matching debit", func(t *testing.T) {
		e := NewLedgerEntry(key, policy, start)
		e.ApplyDebit(1, 1e-7, start)
		e.ApplyDebit(2, 0, start)
		e.ApplyDebit(1, 0, start)

		require.True(t, e.RefundDebit(1, 0, start, start))
		assert.Equal(t, []float64{1, 2}, e.EpsilonHistory)
		assert.Equal(t, int64(2), e.QueryCount)
		assert.InDelta(t, e.Composition.ComposeEpsilon([]float64{1, 2}), e.ConsumedEpsilon, 1e-12)
		assert.InDelta(t, 1e-7+1e-6, e.ConsumedDelta, 1e-15)
	})

	t.Run("refunding everything returns to zero", func(t *testing.T) {
		e := NewLedgerEntry(key, policy, start)
		e.ApplyDebit(3, 1e-7, start)
		require.True(t, e.RefundDebit(3, 1e-7, start, start))
		assert.Equal(t, 0.0, e.ConsumedEpsilon)
		assert.Equal(t, 0.0, e.ConsumedDelta)
		assert.Equal(t, int64(0), e.QueryCount)
	})

	t.Run("a renewed period is left alone", func(t *testing.T) {
		e := NewLedgerEntry(key, policy, start)
		e.ApplyDebit(3, 0, start)
		later := start.Add(DefaultPeriod)
		require.True(t, e.Renew(later))
		e.ApplyDebit(3, 0, later)

		assert.False(t, e.RefundDebit(3, 0, start, later))
		assert.Equal(t, int64(1), e.QueryCount)
	})

	t.Run("unknown debit changes nothing", func(t *testing.T) {
		e := NewLedgerEntry(key, policy, start)
		e.ApplyDebit(3, 0, start)
		assert.False(t, e.RefundDebit(4, 0, start, start))
		assert.Equal(t, []float64{3}, e.EpsilonHistory)
	})
}
