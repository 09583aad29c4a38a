package client

import (
	"context"
	"strconv"

	id "healthcommons/pkg/domain"
)

func poolPath(poolID id.PoolID, suffix string) string {
	return "/pools/" + poolID.String() + suffix
}

func (c *Client) CreatePool(ctx context.Context, req CreatePoolRequest) (*Pool, error) {
	var out Pool
	if err := c.post(ctx, "/pools", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPool(ctx context.Context, poolID id.PoolID) (*Pool, error) {
	var out Pool
	if err := c.get(ctx, poolPath(poolID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPools lists pools, all of them when status is empty.
func (c *Client) ListPools(ctx context.Context, status string) ([]Pool, error) {
	var query map[string]string
	if status != "" {
		query = map[string]string{"status": status}
	}
	var out struct {
		Pools []Pool `json:"pools"`
	}
	if err := c.get(ctx, "/pools", query, &out); err != nil {
		return nil, err
	}
	return out.Pools, nil
}

func (c *Client) SetPoolStatus(ctx context.Context, poolID id.PoolID, status string) (*Pool, error) {
	var out Pool
	if err := c.post(ctx, poolPath(poolID, "/status"), map[string]string{"status": status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Contribute submits one record to a pool under a consent. The payload is
// sent and stored exactly as given: for local differential privacy, perturb
// the values before calling and set LocalEpsilon to the loss of that noise.
func (c *Client) Contribute(ctx context.Context, poolID id.PoolID, req ContributeRequest) (*Contribution, error) {
	var out Contribution
	if err := c.post(ctx, poolPath(poolID, "/contributions"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Budget returns the caller's privacy budget in a pool.
func (c *Client) Budget(ctx context.Context, poolID id.PoolID) (*Budget, error) {
	var out Budget
	if err := c.get(ctx, poolPath(poolID, "/budget"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckQueryBudget asks the server whether a query of (epsilon, delta) would fit.
func (c *Client) CheckQueryBudget(ctx context.Context, poolID id.PoolID, epsilon float64, delta *float64) (*BudgetCheck, error) {
	body := map[string]any{"epsilon": epsilon}
	if delta != nil {
		body["delta"] = *delta
	}
	var out BudgetCheck
	if err := c.post(ctx, poolPath(poolID, "/budget/check"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SimulateBudget replays planned epsilons against the caller's budget.
// It returns how many would be admitted and the status afterwards.
func (c *Client) SimulateBudget(ctx context.Context, poolID id.PoolID, epsilons []float64) (int, *BudgetStatus, error) {
	var out struct {
		Admitted int          `json:"admitted"`
		Status   BudgetStatus `json:"status"`
	}
	if err := c.post(ctx, poolPath(poolID, "/budget/simulate"), map[string][]float64{"epsilons": epsilons}, &out); err != nil {
		return 0, nil, err
	}
	return out.Admitted, &out.Status, nil
}

// EstimateQueries fetches the budget with a planning epsilon and returns how
// many queries of that size still fit.
func (c *Client) EstimateQueries(ctx context.Context, poolID id.PoolID, epsilon float64) (int64, error) {
	var out struct {
		EstimatedQueries int64 `json:"estimated_queries"`
	}
	query := map[string]string{"epsilon": strconv.FormatFloat(epsilon, 'g', -1, 64)}
	if err := c.get(ctx, poolPath(poolID, "/budget"), query, &out); err != nil {
		return 0, err
	}
	return out.EstimatedQueries, nil
}
