package client

import (
	"context"

	"healthcommons/internal/privacy/budget"
	querymodels "healthcommons/internal/query/models"
	id "healthcommons/pkg/domain"
)

// ExecuteQuery runs a differentially-private query. When the caller queries
// their own budget the SDK first fetches it and applies the same parameter and
// budget rules the server enforces, so doomed queries fail without a round
// trip that the server would refuse anyway. The server's debit stays the
// authority.
func (c *Client) ExecuteQuery(ctx context.Context, poolID id.PoolID, req QueryRequest) (*QueryResult, error) {
	if req.Patient == nil {
		if err := c.precheck(ctx, poolID, req); err != nil {
			return nil, err
		}
	}
	var out QueryResult
	if err := c.post(ctx, poolPath(poolID, "/queries"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) precheck(ctx context.Context, poolID id.PoolID, req QueryRequest) error {
	queryType, err := querymodels.ParseQueryType(req.QueryType)
	if err != nil {
		return err
	}
	params := budget.Params{
		Epsilon:     req.Epsilon,
		Delta:       req.Delta,
		Sensitivity: req.Sensitivity,
		Mechanism:   budget.Mechanism(req.Mechanism),
	}
	if params.Mechanism == "" {
		params.Mechanism = queryType.DefaultMechanism()
	}

	if err := budget.ValidateParams(params); err != nil {
		return err
	}
	current, err := c.Budget(ctx, poolID)
	if err != nil {
		return err
	}
	return budget.ValidateQuery(current.Status.toStatus(), req.Epsilon)
}

func (s BudgetStatus) toStatus() budget.Status {
	return budget.Status{
		Total:            s.Total,
		Consumed:         s.Consumed,
		Remaining:        s.Remaining,
		TotalDelta:       s.TotalDelta,
		ConsumedDelta:    s.ConsumedDelta,
		RemainingDelta:   s.RemainingDelta,
		QueriesAnswered:  s.QueriesAnswered,
		IsExhausted:      s.IsExhausted,
		PercentRemaining: s.PercentRemaining,
	}
}
