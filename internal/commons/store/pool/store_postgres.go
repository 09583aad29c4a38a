package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"healthcommons/internal/commons/models"
	consentmodel "healthcommons/internal/consent/models"
	"healthcommons/internal/platform/postgres"
	"healthcommons/internal/privacy/budget"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const poolColumns = `id, name, description, data_categories, required_consent_level, default_epsilon,
	budget_per_user, delta_budget, governance_model, composition, composition_delta,
	min_contributors, status, creator, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, p *models.Pool) error {
	categories := make([]string, 0, len(p.DataCategories))
	for _, c := range p.DataCategories {
		categories = append(categories, string(c))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_pools (`+poolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		uuid.UUID(p.ID), p.Name, p.Description, pq.Array(categories), string(p.RequiredConsentLevel),
		p.DefaultEpsilon, p.BudgetPerUser, p.DeltaBudget, string(p.Governance),
		string(p.Composition.Method), p.Composition.DeltaPrime, p.MinContributors,
		string(p.Status), uuid.UUID(p.Creator), p.CreatedAt, p.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, poolID id.PoolID) (*models.Pool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM data_pools WHERE id = $1`, uuid.UUID(poolID))
	p, err := scanPool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find pool: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, status models.PoolStatus) ([]*models.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM data_pools`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at DESC, name`, args...)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var out []*models.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, p *models.Pool, from models.PoolStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE data_pools SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		uuid.UUID(p.ID), string(p.Status), p.UpdatedAt, string(from),
	)
	if err != nil {
		return fmt.Errorf("update pool status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pool status: %w", err)
	}
	if n == 1 {
		return nil
	}
	// Distinguish a missing pool from a lost race.
	if _, err := s.FindByID(ctx, p.ID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (*models.Pool, error) {
	var (
		p           models.Pool
		poolID      uuid.UUID
		creator     uuid.UUID
		categories  pq.StringArray
		level       string
		governance  string
		composition string
		deltaPrime  float64
		status      string
	)
	if err := row.Scan(&poolID, &p.Name, &p.Description, &categories, &level, &p.DefaultEpsilon,
		&p.BudgetPerUser, &p.DeltaBudget, &governance, &composition, &deltaPrime,
		&p.MinContributors, &status, &creator, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PoolID(poolID)
	p.Creator = id.AgentID(creator)
	p.RequiredConsentLevel = consentmodel.Scope(level)
	p.Governance = models.GovernanceModel(governance)
	p.Composition = budget.Composition{Method: budget.CompositionMethod(composition), DeltaPrime: deltaPrime}
	p.Status = models.PoolStatus(status)
	for _, c := range categories {
		p.DataCategories = append(p.DataCategories, id.DataCategory(c))
	}
	return &p, nil
}
