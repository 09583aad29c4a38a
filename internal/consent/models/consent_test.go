package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

func newTestConsent(t *testing.T, scope Scope, custom ...id.Permission) *Consent {
	t.Helper()
	c, err := NewConsent(id.AgentID(uuid.New()), Terms{
		Grantee:           Grantee{Kind: GranteeRole, Role: "researcher"},
		Scope:             scope,
		CustomPermissions: custom,
		DataCategories:    []id.DataCategory{id.CategoryVitalSigns},
		Purpose:           "study",
	}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return c
}

func TestScopePermits(t *testing.T) {
	cases := []struct {
		scope     Scope
		custom    []id.Permission
		perm      id.Permission
		emergency bool
		want      bool
	}{
		{ScopeRead, nil, id.PermissionRead, false, true},
		{ScopeRead, nil, id.PermissionWrite, false, false},
		{ScopeFullAccess, nil, id.PermissionDelete, false, true},
		{ScopeAggregateOnly, nil, id.PermissionAggregate, false, true},
		{ScopeAggregateOnly, nil, id.PermissionRead, false, false},
		{ScopeResearchOnly, nil, id.PermissionAggregate, false, true},
		{ScopeEmergencyOnly, nil, id.PermissionRead, false, false},
		{ScopeEmergencyOnly, nil, id.PermissionRead, true, true},
		{ScopeCustom, []id.Permission{id.PermissionShare}, id.PermissionShare, false, true},
		{ScopeCustom, []id.Permission{id.PermissionShare}, id.PermissionRead, false, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.scope.Permits(tc.perm, tc.custom, tc.emergency),
			"%s permits %s (emergency=%v)", tc.scope, tc.perm, tc.emergency)
	}
}

func TestSatisfies(t *testing.T) {
	assert.True(t, newTestConsent(t, ScopeFullAccess).Satisfies(ScopeAggregateOnly))
	assert.True(t, newTestConsent(t, ScopeResearchOnly).Satisfies(ScopeAggregateOnly))
	assert.True(t, newTestConsent(t, ScopeCustom, id.PermissionAggregate).Satisfies(ScopeAggregateOnly))
	assert.False(t, newTestConsent(t, ScopeRead).Satisfies(ScopeAggregateOnly))
	assert.False(t, newTestConsent(t, ScopeAggregateOnly).Satisfies(ScopeFullAccess))
}

func TestNewConsentValidation(t *testing.T) {
	grantor := id.AgentID(uuid.New())
	now := time.Now()
	base := Terms{
		Grantee:        Grantee{Kind: GranteeAgent, Agent: id.AgentID(uuid.New())},
		Scope:          ScopeRead,
		DataCategories: []id.DataCategory{id.CategoryAllergies},
		Purpose:        "care",
	}

	t.Run("custom scope needs permissions", func(t *testing.T) {
		terms := base
		terms.Scope = ScopeCustom
		_, err := NewConsent(grantor, terms, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("window must be non-empty", func(t *testing.T) {
		terms := base
		terms.ValidFrom = now
		terms.ValidUntil = &now
		_, err := NewConsent(grantor, terms, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("valid_from defaults to now", func(t *testing.T) {
		c, err := NewConsent(grantor, base, now)
		require.NoError(t, err)
		assert.True(t, c.ValidFrom.Equal(now))
		assert.True(t, c.IsEffective(now))
		assert.False(t, c.IsEffective(now.Add(-time.Second)))
	})
}

func TestHashIsContentAddress(t *testing.T) {
	a := newTestConsent(t, ScopeRead)
	b := a.Clone()
	b.ApplyRevoke(time.Now(), "lifecycle fields are not hashed")
	require.NoError(t, b.seal())
	assert.Equal(t, a.Hash, b.Hash)

	b.Purpose = "different"
	require.NoError(t, b.seal())
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestNewVersionSupersedes(t *testing.T) {
	c := newTestConsent(t, ScopeRead)
	terms := c.Terms()
	terms.Scope = ScopeFullAccess
	next, err := c.NewVersion(terms, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, next.Version)
	assert.Equal(t, c.Hash, next.PreviousHash)
	assert.False(t, c.IsActive)
	assert.True(t, c.IsSuperseded())
	assert.False(t, c.IsRevoked())
	assert.Error(t, c.CanRevoke())
}
