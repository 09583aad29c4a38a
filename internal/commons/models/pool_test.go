package models

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consentmodel "healthcommons/internal/consent/models"
	"healthcommons/internal/privacy/budget"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

var now = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func validSpec() PoolSpec {
	return PoolSpec{
		Name:           "Diabetes outcomes",
		DataCategories: []id.DataCategory{id.CategoryLabResults},
		DefaultEpsilon: 1,
		BudgetPerUser:  10,
	}
}

func TestNewPoolAppliesDefaults(t *testing.T) {
	p, err := NewPool(id.PoolID(uuid.New()), id.AgentID(uuid.New()), validSpec(), now)
	require.NoError(t, err)

	assert.Equal(t, PoolStatusActive, p.Status)
	assert.Equal(t, DefaultDeltaBudget, p.DeltaBudget)
	assert.Equal(t, DefaultMinContributors, p.MinContributors)
	assert.Equal(t, consentmodel.ScopeAggregateOnly, p.RequiredConsentLevel)
	assert.Equal(t, budget.Basic(), p.Composition)

	policy := p.BudgetPolicy()
	assert.Equal(t, 10.0, policy.TotalEpsilon)
	assert.Equal(t, DefaultDeltaBudget, policy.TotalDelta)
}

func TestPoolSpecValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PoolSpec)
		code   dErrors.Code
	}{
		{"blank name", func(s *PoolSpec) { s.Name = "  " }, dErrors.CodeValidation},
		{"no categories", func(s *PoolSpec) { s.DataCategories = nil }, dErrors.CodeValidation},
		{"zero epsilon", func(s *PoolSpec) { s.DefaultEpsilon = 0 }, dErrors.CodeInvalidEpsilon},
		{"NaN budget", func(s *PoolSpec) { s.BudgetPerUser = math.NaN() }, dErrors.CodeInvalidEpsilon},
		{"epsilon above budget", func(s *PoolSpec) { s.DefaultEpsilon = 5; s.BudgetPerUser = 2 }, dErrors.CodeInvalidEpsilon},
		{"delta too large", func(s *PoolSpec) { s.DeltaBudget = 0.02 }, dErrors.CodeInvalidDelta},
		{"advanced delta prime too large", func(s *PoolSpec) { s.Composition = budget.Advanced(1e-3) }, dErrors.CodeInvalidDelta},
		{"custom consent level", func(s *PoolSpec) { s.RequiredConsentLevel = consentmodel.ScopeCustom }, dErrors.CodeValidation},
		{"negative contributors", func(s *PoolSpec) { s.MinContributors = -1 }, dErrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			_, err := NewPool(id.PoolID(uuid.New()), id.AgentID(uuid.New()), spec, now)
			assert.True(t, dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestPoolStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to PoolStatus
		allowed  bool
	}{
		{PoolStatusActive, PoolStatusPaused, true},
		{PoolStatusPaused, PoolStatusActive, true},
		{PoolStatusActive, PoolStatusClosed, true},
		{PoolStatusPaused, PoolStatusClosed, true},
		{PoolStatusClosed, PoolStatusActive, false},
		{PoolStatusClosed, PoolStatusPaused, false},
		{PoolStatusActive, PoolStatusActive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			p := &Pool{Status: tt.from}
			err := p.CanTransitionTo(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestPoolAccepts(t *testing.T) {
	p := &Pool{DataCategories: []id.DataCategory{id.CategoryLabResults}}
	assert.True(t, p.Accepts(id.CategoryLabResults))
	assert.False(t, p.Accepts(id.CategoryMentalHealth))

	p.DataCategories = []id.DataCategory{id.CategoryAll}
	assert.True(t, p.Accepts(id.CategoryMentalHealth))
}

func TestContributionRequestValidate(t *testing.T) {
	base := ContributionRequest{
		Category:    id.CategoryLabResults,
		ConsentHash: id.Hash("ab"),
		Payload:     Payload{Value: 7.2},
	}
	require.NoError(t, base.Validate())

	all := base
	all.Category = id.CategoryAll
	assert.True(t, dErrors.HasCode(all.Validate(), dErrors.CodeValidation))

	inf := base
	inf.Payload.Value = math.Inf(1)
	assert.True(t, dErrors.HasCode(inf.Validate(), dErrors.CodeValidation))

	negative := base
	negative.LocalEpsilon = -0.5
	assert.True(t, dErrors.HasCode(negative.Validate(), dErrors.CodeInvalidEpsilon))
}
