package contribution

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/internal/commons/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/platform/tx"
)

func newContribution(poolID id.PoolID, contributor id.AgentID, category id.DataCategory) *models.Contribution {
	return &models.Contribution{
		ID:          id.ContributionID(uuid.New()),
		PoolID:      poolID,
		Contributor: contributor,
		Category:    category,
		PayloadHash: id.Hash("payload"),
		ConsentHash: id.Hash("consent"),
		CreatedAt:   time.Now(),
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	poolID := id.PoolID(uuid.New())
	alice := id.AgentID(uuid.New())
	bob := id.AgentID(uuid.New())

	first := newContribution(poolID, alice, id.CategoryLabResults)
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, newContribution(poolID, alice, id.CategoryLabResults)))
	require.NoError(t, s.Append(ctx, newContribution(poolID, bob, id.CategoryLabResults)))
	require.NoError(t, s.Append(ctx, newContribution(poolID, bob, id.CategoryVitalSigns)))

	t.Run("rejects duplicate ids", func(t *testing.T) {
		assert.ErrorIs(t, s.Append(ctx, first), sentinel.ErrConflict)
	})

	t.Run("lists one category", func(t *testing.T) {
		list, err := s.ListByPool(ctx, poolID, id.CategoryLabResults)
		require.NoError(t, err)
		assert.Len(t, list, 3)
		assert.Equal(t, first.ID, list[0].ID)
	})

	t.Run("counts distinct contributors", func(t *testing.T) {
		n, err := s.CountContributors(ctx, poolID, id.CategoryLabResults)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("discard removes one record", func(t *testing.T) {
		require.NoError(t, s.Discard(ctx, first.ID))
		require.NoError(t, s.Discard(ctx, first.ID), "discarding twice is harmless")

		list, err := s.ListByPool(ctx, poolID, id.CategoryLabResults)
		require.NoError(t, err)
		assert.Len(t, list, 2)
		for _, c := range list {
			assert.NotEqual(t, first.ID, c.ID)
		}
		assert.NoError(t, s.Append(ctx, first), "the id is free again")
	})
}

func TestPostgresStore_Discard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	contributionID := uuid.New()
	mock.ExpectExec("DELETE FROM contributions WHERE id").
		WithArgs(contributionID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgres(db).Discard(context.Background(), id.ContributionID(contributionID)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendJoinsContextTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := newContribution(id.PoolID(uuid.New()), id.AgentID(uuid.New()), id.CategoryLabResults)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO contributions").
		WithArgs(c.ID.String(), c.PoolID.String(), c.Contributor.String(), "lab_results",
			"payload", "consent", 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPostgres(db)
	err = tx.Run(context.Background(), db, nil, func(ctx context.Context, _ *sql.Tx) error {
		return store.Append(ctx, c)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountContributors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	poolID := uuid.New()
	mock.ExpectQuery("SELECT COUNT\\(DISTINCT contributor\\) FROM contributions").
		WithArgs(poolID.String(), "vital_signs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := NewPostgres(db).CountContributors(context.Background(), id.PoolID(poolID), id.CategoryVitalSigns)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}
