package handler

import (
	"math"
	"net/url"
	"strconv"

	"healthcommons/internal/privacy/budget"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

type CheckBudgetRequest struct {
	Epsilon float64  `json:"epsilon"`
	Delta   *float64 `json:"delta,omitempty"`
}

func (r *CheckBudgetRequest) Validate() error {
	if math.IsNaN(r.Epsilon) || math.IsInf(r.Epsilon, 0) {
		return dErrors.New(dErrors.CodeInvalidEpsilon, "epsilon must be a finite number")
	}
	if r.Delta != nil && (math.IsNaN(*r.Delta) || *r.Delta < 0) {
		return dErrors.New(dErrors.CodeInvalidDelta, "delta must not be negative")
	}
	return nil
}

func (r *CheckBudgetRequest) DeltaValue() float64 {
	if r.Delta == nil {
		return 0
	}
	return *r.Delta
}

// SimulateRequest replays a planned series of query epsilons against the
// current budget without spending anything.
type SimulateRequest struct {
	Epsilons []float64 `json:"epsilons"`
}

func (r *SimulateRequest) Validate() error {
	if len(r.Epsilons) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one epsilon is required")
	}
	if len(r.Epsilons) > 1000 {
		return dErrors.New(dErrors.CodeValidation, "at most 1000 epsilons may be simulated")
	}
	return nil
}

// statusQuery holds the optional planning parameters of GET /pools/{id}/budget.
type statusQuery struct {
	patient id.AgentID
	epsilon float64
	queries int
}

func parseStatusQuery(q url.Values) (statusQuery, error) {
	var out statusQuery
	var err error
	if raw := q.Get("patient"); raw != "" {
		if out.patient, err = id.ParseAgentID(raw); err != nil {
			return out, err
		}
	}
	if raw := q.Get("epsilon"); raw != "" {
		out.epsilon, err = strconv.ParseFloat(raw, 64)
		if err != nil || out.epsilon <= 0 || out.epsilon > budget.MaxPerQuery {
			return out, dErrors.Newf(dErrors.CodeInvalidEpsilon, "epsilon must be in (0, %g]", budget.MaxPerQuery)
		}
	}
	if raw := q.Get("queries"); raw != "" {
		out.queries, err = strconv.Atoi(raw)
		if err != nil || out.queries < 1 {
			return out, dErrors.New(dErrors.CodeValidation, "queries must be a positive integer")
		}
	}
	return out, nil
}
