package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

var ledgerRowColumns = []string{
	"patient", "pool_id", "total_epsilon", "consumed_epsilon", "total_delta", "consumed_delta",
	"query_count", "composition", "composition_delta", "epsilon_history", "delta_sum",
	"period_start", "period_end", "auto_renew", "version", "updated_at",
}

func TestPostgresStore_DebitInTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	key := models.LedgerKey{Patient: id.AgentID(uuid.New()), PoolID: id.PoolID(uuid.New())}
	now := time.Now()
	policy := models.Policy{TotalEpsilon: 10, TotalDelta: 1e-5, Composition: budget.Basic()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO budget_ledger").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM budget_ledger WHERE patient = \\$1 AND pool_id = \\$2 FOR UPDATE").
		WithArgs(key.Patient.String(), key.PoolID.String()).
		WillReturnRows(sqlmock.NewRows(ledgerRowColumns).AddRow(
			key.Patient.String(), key.PoolID.String(), 10.0, 4.0, 1e-5, 0.0,
			int64(1), "basic", 0.0, "{4}", 0.0,
			now, now.Add(models.DefaultPeriod), true, int64(3), now,
		))
	mock.ExpectExec("UPDATE budget_ledger SET").
		WithArgs(key.Patient.String(), key.PoolID.String(),
			7.0, 0.0, int64(2), sqlmock.AnyArg(), 0.0, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPostgres(db)
	err = store.RunInTx(context.Background(), key, func(ctx context.Context, tx TxStore) error {
		entry, err := tx.FindOrCreate(ctx, key, policy, now)
		if err != nil {
			return err
		}
		assert.Equal(t, []float64{4}, entry.EpsilonHistory)
		if err := entry.CanDebit(3, 0, now); err != nil {
			return err
		}
		entry.ApplyDebit(3, 0, now)
		return tx.Save(ctx, entry)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RejectedDebitRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	key := models.LedgerKey{Patient: id.AgentID(uuid.New()), PoolID: id.PoolID(uuid.New())}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO budget_ledger").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM budget_ledger").
		WillReturnRows(sqlmock.NewRows(ledgerRowColumns).AddRow(
			key.Patient.String(), key.PoolID.String(), 10.0, 8.0, 1e-5, 0.0,
			int64(2), "basic", 0.0, "{4,4}", 0.0,
			now, now.Add(models.DefaultPeriod), true, int64(2), now,
		))
	mock.ExpectRollback()

	store := NewPostgres(db)
	err = store.RunInTx(context.Background(), key, func(ctx context.Context, tx TxStore) error {
		entry, err := tx.FindOrCreate(ctx, key, models.Policy{TotalEpsilon: 10, TotalDelta: 1e-5}, now)
		if err != nil {
			return err
		}
		return entry.CanDebit(6, 0, now)
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	mock.ExpectExec("UPDATE budget_ledger SET").WillReturnResult(sqlmock.NewResult(0, 0))

	entry := models.NewLedgerEntry(models.LedgerKey{}, models.Policy{TotalEpsilon: 1}, time.Now())
	err = (&postgresTx{tx: tx}).Save(context.Background(), entry)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}
