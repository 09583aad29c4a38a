// Package models defines data pools and the contributions patients make to them.
package models

import (
	"math"
	"slices"
	"strings"
	"time"

	consentmodel "healthcommons/internal/consent/models"
	"healthcommons/internal/privacy/budget"
	privacymodels "healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

const (
	DefaultDeltaBudget     = 1e-5
	DefaultMinContributors = 5
	maxNameLength          = 128
	maxDescriptionLength   = 2000
)

// PoolStatus is the lifecycle state of a pool. Closed is terminal.
type PoolStatus string

const (
	PoolStatusActive PoolStatus = "active"
	PoolStatusPaused PoolStatus = "paused"
	PoolStatusClosed PoolStatus = "closed"
)

func ParsePoolStatus(s string) (PoolStatus, error) {
	st := PoolStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case PoolStatusActive, PoolStatusPaused, PoolStatusClosed:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown pool status %q", s)
}

// CanTransitionTo allows active ↔ paused and active/paused → closed.
func (s PoolStatus) CanTransitionTo(next PoolStatus) bool {
	switch s {
	case PoolStatusActive:
		return next == PoolStatusPaused || next == PoolStatusClosed
	case PoolStatusPaused:
		return next == PoolStatusActive || next == PoolStatusClosed
	default:
		return false
	}
}

type GovernanceModel string

const (
	GovernanceDemocratic  GovernanceModel = "democratic"
	GovernanceCooperative GovernanceModel = "cooperative"
	GovernanceStewardship GovernanceModel = "stewardship"
	GovernanceHybrid      GovernanceModel = "hybrid"
)

func ParseGovernanceModel(s string) (GovernanceModel, error) {
	g := GovernanceModel(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case GovernanceDemocratic, GovernanceCooperative, GovernanceStewardship, GovernanceHybrid:
		return g, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown governance model %q", s)
}

// Pool is a governed collection of contributions. Everything but the status
// is fixed at creation.
type Pool struct {
	ID                   id.PoolID
	Name                 string
	Description          string
	DataCategories       []id.DataCategory
	RequiredConsentLevel consentmodel.Scope
	DefaultEpsilon       float64
	BudgetPerUser        float64
	DeltaBudget          float64
	Governance           GovernanceModel
	Composition          budget.Composition
	MinContributors      int
	Status               PoolStatus
	Creator              id.AgentID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PoolSpec holds the creation parameters of a pool.
type PoolSpec struct {
	Name                 string
	Description          string
	DataCategories       []id.DataCategory
	RequiredConsentLevel consentmodel.Scope
	DefaultEpsilon       float64
	BudgetPerUser        float64
	DeltaBudget          float64
	Governance           GovernanceModel
	Composition          budget.Composition
	MinContributors      int
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks the spec after defaults are applied.
func (s PoolSpec) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "pool name is required")
	}
	if len(name) > maxNameLength {
		return dErrors.Newf(dErrors.CodeValidation, "pool name must be at most %d characters", maxNameLength)
	}
	if len(s.Description) > maxDescriptionLength {
		return dErrors.Newf(dErrors.CodeValidation, "description must be at most %d characters", maxDescriptionLength)
	}
	if len(s.DataCategories) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one data category is required")
	}
	if s.RequiredConsentLevel == consentmodel.ScopeCustom {
		return dErrors.New(dErrors.CodeValidation, "required consent level cannot be custom")
	}
	if !positive(s.DefaultEpsilon) || s.DefaultEpsilon > budget.MaxPerQuery {
		return dErrors.Newf(dErrors.CodeInvalidEpsilon, "default epsilon must be in (0, %g]", budget.MaxPerQuery)
	}
	if !positive(s.BudgetPerUser) {
		return dErrors.New(dErrors.CodeInvalidEpsilon, "budget per user must be positive")
	}
	if s.DefaultEpsilon > s.BudgetPerUser {
		return dErrors.New(dErrors.CodeInvalidEpsilon, "default epsilon cannot exceed the budget per user")
	}
	if !positive(s.DeltaBudget) || s.DeltaBudget > budget.MaxDelta {
		return dErrors.Newf(dErrors.CodeInvalidDelta, "delta budget must be in (0, %g]", budget.MaxDelta)
	}
	if err := s.Composition.Validate(s.DeltaBudget); err != nil {
		return err
	}
	if s.MinContributors < 1 {
		return dErrors.New(dErrors.CodeValidation, "min contributors must be at least 1")
	}
	return nil
}

// WithDefaults fills unset optional fields.
func (s PoolSpec) WithDefaults() PoolSpec {
	s.Name = strings.TrimSpace(s.Name)
	s.Description = strings.TrimSpace(s.Description)
	if s.RequiredConsentLevel == "" {
		s.RequiredConsentLevel = consentmodel.ScopeAggregateOnly
	}
	if s.DeltaBudget == 0 {
		s.DeltaBudget = DefaultDeltaBudget
	}
	if s.Governance == "" {
		s.Governance = GovernanceStewardship
	}
	if s.Composition.Method == "" {
		s.Composition = budget.Basic()
	}
	if s.MinContributors == 0 {
		s.MinContributors = DefaultMinContributors
	}
	return s
}

func NewPool(poolID id.PoolID, creator id.AgentID, spec PoolSpec, now time.Time) (*Pool, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		ID:                   poolID,
		Name:                 spec.Name,
		Description:          spec.Description,
		DataCategories:       slices.Clone(spec.DataCategories),
		RequiredConsentLevel: spec.RequiredConsentLevel,
		DefaultEpsilon:       spec.DefaultEpsilon,
		BudgetPerUser:        spec.BudgetPerUser,
		DeltaBudget:          spec.DeltaBudget,
		Governance:           spec.Governance,
		Composition:          spec.Composition,
		MinContributors:      spec.MinContributors,
		Status:               PoolStatusActive,
		Creator:              creator,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

func (p *Pool) IsActive() bool {
	return p.Status == PoolStatusActive
}

// Accepts reports whether the pool collects category.
func (p *Pool) Accepts(category id.DataCategory) bool {
	return slices.Contains(p.DataCategories, id.CategoryAll) || slices.Contains(p.DataCategories, category)
}

// BudgetPolicy is the ledger budget each participant receives.
func (p *Pool) BudgetPolicy() privacymodels.Policy {
	return privacymodels.Policy{
		TotalEpsilon: p.BudgetPerUser,
		TotalDelta:   p.DeltaBudget,
		Composition:  p.Composition,
	}
}

// CanTransitionTo checks a status change.
func (p *Pool) CanTransitionTo(next PoolStatus) error {
	if p.Status == next {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "pool is already %s", next)
	}
	if !p.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "pool cannot move from %s to %s", p.Status, next)
	}
	return nil
}

// ApplyStatus records the transition. Call CanTransitionTo first.
func (p *Pool) ApplyStatus(next PoolStatus, now time.Time) {
	p.Status = next
	p.UpdatedAt = now
}

func (p *Pool) Clone() *Pool {
	cp := *p
	cp.DataCategories = slices.Clone(p.DataCategories)
	return &cp
}
