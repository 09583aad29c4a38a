package models

import (
	"math"
	"time"

	"healthcommons/internal/privacy/budget"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

// Payload is the data a contributor submits. Value feeds numeric queries,
// Flag boolean counts and Bucket histograms.
type Payload struct {
	Value  float64 `json:"value"`
	Flag   *bool   `json:"flag,omitempty"`
	Bucket string  `json:"bucket,omitempty"`
}

func (p Payload) Validate() error {
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return dErrors.New(dErrors.CodeValidation, "payload value must be a finite number")
	}
	if len(p.Bucket) > 64 {
		return dErrors.New(dErrors.CodeValidation, "payload bucket must be at most 64 characters")
	}
	return nil
}

// Contribution is an append-only record of data submitted to a pool. The
// payload itself lives sealed in the entry store under PayloadHash.
type Contribution struct {
	ID             id.ContributionID
	PoolID         id.PoolID
	Contributor    id.AgentID
	Category       id.DataCategory
	PayloadHash    id.Hash
	ConsentHash    id.Hash
	BudgetConsumed float64
	CreatedAt      time.Time
}

// ContributionRequest is what a patient submits. LocalEpsilon, when
// positive, is debited from the contributor's ledger for the pool.
type ContributionRequest struct {
	Category     id.DataCategory
	ConsentHash  id.Hash
	Payload      Payload
	LocalEpsilon float64
}

func (r ContributionRequest) Validate() error {
	if !r.Category.IsValid() || r.Category == id.CategoryAll {
		return dErrors.New(dErrors.CodeValidation, "a single data category is required")
	}
	if r.ConsentHash.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "consent hash is required")
	}
	if math.IsNaN(r.LocalEpsilon) || r.LocalEpsilon < 0 || r.LocalEpsilon > budget.MaxPerQuery {
		return dErrors.Newf(dErrors.CodeInvalidEpsilon, "local epsilon must be in [0, %g]", budget.MaxPerQuery)
	}
	return r.Payload.Validate()
}
