package models

import (
	"slices"
	"time"

	"healthcommons/internal/privacy/budget"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

// DefaultPeriod is the budget period of a new ledger entry.
const DefaultPeriod = 365 * 24 * time.Hour

// LedgerKey identifies a ledger entry.
type LedgerKey struct {
	Patient id.AgentID
	PoolID  id.PoolID
}

func (k LedgerKey) String() string {
	return k.Patient.String() + ":" + k.PoolID.String()
}

// Policy is the budget a pool grants each participant.
type Policy struct {
	TotalEpsilon float64
	TotalDelta   float64
	Composition  budget.Composition
}

// LedgerEntry tracks privacy loss for one (patient, pool) pair.
// ConsumedEpsilon and ConsumedDelta hold the composed loss, so
// 0 ≤ consumed ≤ total holds for whichever composition is in force.
type LedgerEntry struct {
	Patient         id.AgentID         `json:"patient"`
	PoolID          id.PoolID          `json:"pool_id"`
	TotalEpsilon    float64            `json:"total_epsilon"`
	ConsumedEpsilon float64            `json:"consumed_epsilon"`
	TotalDelta      float64            `json:"total_delta"`
	ConsumedDelta   float64            `json:"consumed_delta"`
	DeltaSum        float64            `json:"delta_sum"`
	QueryCount      int64              `json:"query_count"`
	Composition     budget.Composition `json:"composition"`
	EpsilonHistory  []float64          `json:"epsilon_history"`
	PeriodStart     time.Time          `json:"period_start"`
	PeriodEnd       time.Time          `json:"period_end"`
	AutoRenew       bool               `json:"auto_renew"`
	Version         int64              `json:"version"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewLedgerEntry creates an unspent entry under policy.
func NewLedgerEntry(key LedgerKey, policy Policy, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		Patient:      key.Patient,
		PoolID:       key.PoolID,
		TotalEpsilon: policy.TotalEpsilon,
		TotalDelta:   policy.TotalDelta,
		Composition:  policy.Composition,
		PeriodStart:  now,
		PeriodEnd:    now.Add(DefaultPeriod),
		AutoRenew:    true,
		UpdatedAt:    now,
	}
}

func (e *LedgerEntry) Key() LedgerKey {
	return LedgerKey{Patient: e.Patient, PoolID: e.PoolID}
}

// Status derives the budget status.
func (e *LedgerEntry) Status() budget.Status {
	return budget.CalculateStatus(budget.Ledger{
		TotalEpsilon:    e.TotalEpsilon,
		ConsumedEpsilon: e.ConsumedEpsilon,
		TotalDelta:      e.TotalDelta,
		ConsumedDelta:   e.ConsumedDelta,
		QueryCount:      e.QueryCount,
	})
}

// PeriodEnded reports whether now is past the budget period.
func (e *LedgerEntry) PeriodEnded(now time.Time) bool {
	return !now.Before(e.PeriodEnd)
}

// Renew starts a fresh period with zero consumption. Only valid once the
// period ended on an auto-renewing entry.
func (e *LedgerEntry) Renew(now time.Time) bool {
	if !e.AutoRenew || !e.PeriodEnded(now) {
		return false
	}
	e.ConsumedEpsilon = 0
	e.ConsumedDelta = 0
	e.DeltaSum = 0
	e.QueryCount = 0
	e.EpsilonHistory = nil
	e.PeriodStart = now
	e.PeriodEnd = now.Add(DefaultPeriod)
	e.UpdatedAt = now
	return true
}

// CanDebit checks that spending (epsilon, delta) keeps the entry within its
// totals. The debit is rejected, never clamped.
func (e *LedgerEntry) CanDebit(epsilon, delta float64, now time.Time) error {
	status := e.Status()
	if e.PeriodEnded(now) {
		return dErrors.New(dErrors.CodeBudgetExhausted, "privacy budget period has ended").
			WithMeta(dErrors.MetaPercentRemaining, status.PercentRemaining)
	}
	if err := budget.ValidateQuery(status, epsilon); err != nil {
		return err
	}
	nextEps, nextDelta := e.projected(epsilon, delta)
	if nextEps > e.TotalEpsilon {
		return dErrors.Newf(dErrors.CodeInsufficientBudget,
			"insufficient budget: composed loss %g would exceed total %g", nextEps, e.TotalEpsilon).
			WithMeta(dErrors.MetaPercentRemaining, status.PercentRemaining)
	}
	if nextDelta > e.TotalDelta {
		return dErrors.Newf(dErrors.CodeInsufficientBudget,
			"insufficient delta budget: %g would exceed total %g", nextDelta, e.TotalDelta).
			WithMeta(dErrors.MetaPercentRemaining, status.PercentRemaining)
	}
	return nil
}

// ApplyDebit records a query. Call CanDebit first.
func (e *LedgerEntry) ApplyDebit(epsilon, delta float64, now time.Time) {
	e.ConsumedEpsilon, e.ConsumedDelta = e.projected(epsilon, delta)
	e.EpsilonHistory = append(e.EpsilonHistory, epsilon)
	e.DeltaSum += delta
	e.QueryCount++
	e.UpdatedAt = now
}

// RefundDebit reverses the latest debit of (epsilon, delta) made in the
// period that started at periodStart. It reports false, changing nothing,
// when that period has since been renewed or no such debit is on record.
func (e *LedgerEntry) RefundDebit(epsilon, delta float64, periodStart, now time.Time) bool {
	// Stores may round timestamps; periods are a year apart.
	if e.PeriodStart.Sub(periodStart).Abs() > time.Second {
		return false
	}
	i := len(e.EpsilonHistory) - 1
	for i >= 0 && e.EpsilonHistory[i] != epsilon {
		i--
	}
	if i < 0 {
		return false
	}
	e.EpsilonHistory = slices.Delete(e.EpsilonHistory, i, i+1)
	e.DeltaSum = max(0, e.DeltaSum-delta)
	e.QueryCount--
	e.ConsumedEpsilon = e.Composition.ComposeEpsilon(e.EpsilonHistory)
	e.ConsumedDelta = e.Composition.ComposeDelta(e.DeltaSum, len(e.EpsilonHistory))
	e.UpdatedAt = now
	return true
}

func (e *LedgerEntry) projected(epsilon, delta float64) (float64, float64) {
	history := append(slices.Clone(e.EpsilonHistory), epsilon)
	return e.Composition.ComposeEpsilon(history),
		e.Composition.ComposeDelta(e.DeltaSum+delta, len(history))
}

// Clone returns a deep copy.
func (e *LedgerEntry) Clone() *LedgerEntry {
	cp := *e
	cp.EpsilonHistory = slices.Clone(e.EpsilonHistory)
	return &cp
}
