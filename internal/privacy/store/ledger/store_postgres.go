package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/platform/tx"
)

// PostgresStore persists ledger entries in the budget_ledger table. Debits
// run in a transaction holding a row lock (SELECT ... FOR UPDATE).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ledgerColumns = `patient, pool_id, total_epsilon, consumed_epsilon, total_delta, consumed_delta,
	query_count, composition, composition_delta, epsilon_history, delta_sum,
	period_start, period_end, auto_renew, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) Find(ctx context.Context, key models.LedgerKey) (*models.LedgerEntry, error) {
	return findEntry(ctx, s.db, key, false)
}

func (s *PostgresStore) RunInTx(ctx context.Context, key models.LedgerKey, fn TxFunc) error {
	return tx.Run(ctx, s.db, nil, func(ctx context.Context, sqlTx *sql.Tx) error {
		return fn(ctx, &postgresTx{tx: sqlTx})
	})
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) FindOrCreate(ctx context.Context, key models.LedgerKey, policy models.Policy, now time.Time) (*models.LedgerEntry, error) {
	fresh := models.NewLedgerEntry(key, policy, now)
	// Insert first so concurrent creators converge on one row before locking it.
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO budget_ledger (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (patient, pool_id) DO NOTHING`,
		entryArgs(fresh)...,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return findEntry(ctx, t.tx, key, true)
}

func (t *postgresTx) Save(ctx context.Context, entry *models.LedgerEntry) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE budget_ledger SET
			consumed_epsilon = $3, consumed_delta = $4, query_count = $5,
			epsilon_history = $6, delta_sum = $7, period_start = $8, period_end = $9,
			version = version + 1, updated_at = $10
		WHERE patient = $1 AND pool_id = $2 AND version = $11`,
		uuid.UUID(entry.Patient), uuid.UUID(entry.PoolID),
		entry.ConsumedEpsilon, entry.ConsumedDelta, entry.QueryCount,
		pq.Array(entry.EpsilonHistory), entry.DeltaSum, entry.PeriodStart, entry.PeriodEnd,
		entry.UpdatedAt, entry.Version,
	)
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func findEntry(ctx context.Context, q queryer, key models.LedgerKey, forUpdate bool) (*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM budget_ledger WHERE patient = $1 AND pool_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRowContext(ctx, query, uuid.UUID(key.Patient), uuid.UUID(key.PoolID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger entry: %w", err)
	}
	return entry, nil
}

func entryArgs(e *models.LedgerEntry) []any {
	history := e.EpsilonHistory
	if history == nil {
		history = []float64{}
	}
	return []any{
		uuid.UUID(e.Patient), uuid.UUID(e.PoolID),
		e.TotalEpsilon, e.ConsumedEpsilon, e.TotalDelta, e.ConsumedDelta,
		e.QueryCount, string(e.Composition.Method), e.Composition.DeltaPrime,
		pq.Array(history), e.DeltaSum,
		e.PeriodStart, e.PeriodEnd, e.AutoRenew, e.Version, e.UpdatedAt,
	}
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var (
		e           models.LedgerEntry
		patient     uuid.UUID
		poolID      uuid.UUID
		composition string
		history     pq.Float64Array
	)
	err := row.Scan(
		&patient, &poolID,
		&e.TotalEpsilon, &e.ConsumedEpsilon, &e.TotalDelta, &e.ConsumedDelta,
		&e.QueryCount, &composition, &e.Composition.DeltaPrime,
		&history, &e.DeltaSum,
		&e.PeriodStart, &e.PeriodEnd, &e.AutoRenew, &e.Version, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Patient = id.AgentID(patient)
	e.PoolID = id.PoolID(poolID)
	e.Composition.Method = budget.CompositionMethod(composition)
	e.EpsilonHistory = []float64(history)
	return &e, nil
}
