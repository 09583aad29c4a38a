package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"healthcommons/internal/consent/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/platform/tx"
)

// PostgresStore persists consents in the consents table. It joins the
// transaction carried by the context when there is one.
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

const consentColumns = `hash, grantor, grantee_kind, grantee_agent, grantee_role, scope,
	custom_permissions, data_categories, exclusions, purpose, valid_from, valid_until,
	is_active, revoked_at, revocation_reason, superseded_by, version, previous_hash, created_at`

func (s *PostgresStore) Save(ctx context.Context, c *models.Consent) error {
	var granteeAgent *uuid.UUID
	if c.Grantee.Kind == models.GranteeAgent {
		u := uuid.UUID(c.Grantee.Agent)
		granteeAgent = &u
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO consents (`+consentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		c.Hash.String(), uuid.UUID(c.Grantor), string(c.Grantee.Kind), granteeAgent, c.Grantee.Role,
		string(c.Scope), pq.Array(toStrings(c.CustomPermissions)), pq.Array(toStrings(c.DataCategories)),
		pq.Array(toStrings(c.Exclusions)), c.Purpose, c.ValidFrom, c.ValidUntil,
		c.IsActive, c.RevokedAt, c.RevocationReason, c.SupersededBy.String(), c.Version,
		c.PreviousHash.String(), c.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, c *models.Consent) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE consents SET is_active = $2, revoked_at = $3, revocation_reason = $4, superseded_by = $5
		WHERE hash = $1`,
		c.Hash.String(), c.IsActive, c.RevokedAt, c.RevocationReason, c.SupersededBy.String(),
	)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash id.Hash) (*models.Consent, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+consentColumns+` FROM consents WHERE hash = $1`, hash.String())
	c, err := scanConsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByGrantor(ctx context.Context, grantor id.AgentID) ([]*models.Consent, error) {
	return s.list(ctx, `WHERE grantor = $1`, uuid.UUID(grantor))
}

func (s *PostgresStore) ListByGranteeAgent(ctx context.Context, grantee id.AgentID) ([]*models.Consent, error) {
	return s.list(ctx, `WHERE grantee_kind = 'agent' AND grantee_agent = $1`, uuid.UUID(grantee))
}

func (s *PostgresStore) list(ctx context.Context, where string, arg any) ([]*models.Consent, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+consentColumns+` FROM consents `+where+` ORDER BY created_at DESC, version DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var out []*models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*models.Consent, error) {
	var (
		c            models.Consent
		hash         string
		grantor      uuid.UUID
		granteeKind  string
		granteeAgent uuid.NullUUID
		scope        string
		custom       pq.StringArray
		categories   pq.StringArray
		exclusions   pq.StringArray
		validUntil   sql.NullTime
		revokedAt    sql.NullTime
		supersededBy string
		previousHash string
	)
	err := row.Scan(
		&hash, &grantor, &granteeKind, &granteeAgent, &c.Grantee.Role, &scope,
		&custom, &categories, &exclusions, &c.Purpose, &c.ValidFrom, &validUntil,
		&c.IsActive, &revokedAt, &c.RevocationReason, &supersededBy, &c.Version,
		&previousHash, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Hash = id.Hash(hash)
	c.Grantor = id.AgentID(grantor)
	c.Grantee.Kind = models.GranteeKind(granteeKind)
	if granteeAgent.Valid {
		c.Grantee.Agent = id.AgentID(granteeAgent.UUID)
	}
	c.Scope = models.Scope(scope)
	c.CustomPermissions = fromStrings[id.Permission](custom)
	c.DataCategories = fromStrings[id.DataCategory](categories)
	c.Exclusions = fromStrings[id.DataCategory](exclusions)
	if validUntil.Valid {
		c.ValidUntil = &validUntil.Time
	}
	if revokedAt.Valid {
		c.RevokedAt = &revokedAt.Time
	}
	c.SupersededBy = id.Hash(supersededBy)
	c.PreviousHash = id.Hash(previousHash)
	return &c, nil
}

func toStrings[S ~string](values []S) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func fromStrings[S ~string](values []string) []S {
	if len(values) == 0 {
		return nil
	}
	out := make([]S, len(values))
	for i, v := range values {
		out[i] = S(v)
	}
	return out
}
