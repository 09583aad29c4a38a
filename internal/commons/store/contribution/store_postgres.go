package contribution

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"healthcommons/internal/commons/models"
	"healthcommons/internal/platform/postgres"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/platform/tx"
)

// PostgresStore writes contributions inside the transaction carried by the
// context when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) q(ctx context.Context) queryer {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

const contributionColumns = `id, pool_id, contributor, category, payload_hash, consent_hash, budget_consumed, created_at`

func (s *PostgresStore) Append(ctx context.Context, c *models.Contribution) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO contributions (`+contributionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(c.ID), uuid.UUID(c.PoolID), uuid.UUID(c.Contributor), string(c.Category),
		c.PayloadHash.String(), c.ConsentHash.String(), c.BudgetConsumed, c.CreatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

// Discard deletes a contribution whose recording could not be completed.
func (s *PostgresStore) Discard(ctx context.Context, contributionID id.ContributionID) error {
	_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM contributions WHERE id = $1`, uuid.UUID(contributionID))
	if err != nil {
		return fmt.Errorf("delete contribution: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPool(ctx context.Context, poolID id.PoolID, category id.DataCategory) ([]*models.Contribution, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+contributionColumns+` FROM contributions
		WHERE pool_id = $1 AND category = $2
		ORDER BY created_at, id`,
		uuid.UUID(poolID), string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []*models.Contribution
	for rows.Next() {
		var (
			c           models.Contribution
			cid         uuid.UUID
			pid         uuid.UUID
			contributor uuid.UUID
			cat         string
			payloadHash string
			consentHash string
		)
		if err := rows.Scan(&cid, &pid, &contributor, &cat, &payloadHash, &consentHash,
			&c.BudgetConsumed, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.ID = id.ContributionID(cid)
		c.PoolID = id.PoolID(pid)
		c.Contributor = id.AgentID(contributor)
		c.Category = id.DataCategory(cat)
		c.PayloadHash = id.Hash(payloadHash)
		c.ConsentHash = id.Hash(consentHash)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountContributors(ctx context.Context, poolID id.PoolID, category id.DataCategory) (int, error) {
	var n int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT contributor) FROM contributions WHERE pool_id = $1 AND category = $2`,
		uuid.UUID(poolID), string(category),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contributors: %w", err)
	}
	return n, nil
}
