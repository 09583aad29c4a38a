package service

import (
	"context"

	privacymodels "healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
)

// PolicySource serves each pool's per-participant budget to the privacy
// ledger. It reads the pool store directly so the privacy service can be
// built before the pool service that depends on it.
type PolicySource struct {
	pools PoolStore
}

func NewPolicySource(pools PoolStore) *PolicySource {
	return &PolicySource{pools: pools}
}

// BudgetPolicy returns sentinel.ErrNotFound for unknown pools.
func (p *PolicySource) BudgetPolicy(ctx context.Context, poolID id.PoolID) (privacymodels.Policy, error) {
	pool, err := p.pools.FindByID(ctx, poolID)
	if err != nil {
		return privacymodels.Policy{}, err
	}
	return pool.BudgetPolicy(), nil
}
