package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/internal/consent/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

func newConsent(t *testing.T, grantor, grantee id.AgentID, now time.Time) *models.Consent {
	t.Helper()
	c, err := models.NewConsent(grantor, models.Terms{
		Grantee:        models.Grantee{Kind: models.GranteeAgent, Agent: grantee},
		Scope:          models.ScopeRead,
		DataCategories: []id.DataCategory{id.CategoryLabResults},
		Purpose:        "follow-up care",
	}, now)
	require.NoError(t, err)
	return c
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	grantor := id.AgentID(uuid.New())
	grantee := id.AgentID(uuid.New())
	now := time.Now()

	t.Run("save and find returns a copy", func(t *testing.T) {
		s := NewInMemoryStore()
		c := newConsent(t, grantor, grantee, now)
		require.NoError(t, s.Save(ctx, c))

		found, err := s.FindByHash(ctx, c.Hash)
		require.NoError(t, err)
		found.Purpose = "mutated"

		again, err := s.FindByHash(ctx, c.Hash)
		require.NoError(t, err)
		assert.Equal(t, "follow-up care", again.Purpose)
	})

	t.Run("duplicate hash conflicts", func(t *testing.T) {
		s := NewInMemoryStore()
		c := newConsent(t, grantor, grantee, now)
		require.NoError(t, s.Save(ctx, c))
		assert.ErrorIs(t, s.Save(ctx, c), sentinel.ErrConflict)
	})

	t.Run("update persists lifecycle fields", func(t *testing.T) {
		s := NewInMemoryStore()
		c := newConsent(t, grantor, grantee, now)
		require.NoError(t, s.Save(ctx, c))

		c.ApplyRevoke(now, "moved providers")
		require.NoError(t, s.Update(ctx, c))

		found, err := s.FindByHash(ctx, c.Hash)
		require.NoError(t, err)
		assert.False(t, found.IsActive)
		assert.True(t, found.IsRevoked())
		assert.Equal(t, "moved providers", found.RevocationReason)
	})

	t.Run("update of unknown consent", func(t *testing.T) {
		s := NewInMemoryStore()
		assert.ErrorIs(t, s.Update(ctx, newConsent(t, grantor, grantee, now)), sentinel.ErrNotFound)
	})

	t.Run("lists by grantor and grantee newest first", func(t *testing.T) {
		s := NewInMemoryStore()
		first := newConsent(t, grantor, grantee, now)
		next, err := first.NewVersion(first.Terms(), now.Add(time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, first))
		require.NoError(t, s.Save(ctx, next))

		byGrantor, err := s.ListByGrantor(ctx, grantor)
		require.NoError(t, err)
		require.Len(t, byGrantor, 2)
		assert.Equal(t, next.Hash, byGrantor[0].Hash)

		byGrantee, err := s.ListByGranteeAgent(ctx, grantee)
		require.NoError(t, err)
		assert.Len(t, byGrantee, 2)

		none, err := s.ListByGrantor(ctx, grantee)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
