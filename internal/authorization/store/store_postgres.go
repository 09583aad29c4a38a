package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"healthcommons/internal/authorization/models"
	id "healthcommons/pkg/domain"
	"healthcommons/pkg/platform/tx"
)

// PostgresStore persists access logs in the access_logs table and joins the
// transaction carried by the context when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) q(ctx context.Context) queryer {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

const logColumns = `id, patient, requester, category, permission, outcome, reason, consent_hash,
	emergency_override, justification, client_ip, client_summary, request_id, accessed_at`

func (s *PostgresStore) Append(ctx context.Context, l *models.AccessLog) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO access_logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		uuid.UUID(l.ID), uuid.UUID(l.Patient), uuid.UUID(l.Requester), string(l.Category),
		string(l.Permission), string(l.Outcome), l.Reason, l.ConsentHash.String(),
		l.EmergencyOverride, l.Justification, l.ClientIP, l.ClientSummary, l.RequestID, l.AccessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patient id.AgentID, filter models.LogFilter) ([]*models.AccessLog, error) {
	where := []string{"patient = $1"}
	args := []any{uuid.UUID(patient)}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("accessed_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("accessed_at < $%d", len(args)))
	}
	if !filter.Accessor.IsNil() {
		args = append(args, uuid.UUID(filter.Accessor))
		where = append(where, fmt.Sprintf("requester = $%d", len(args)))
	}
	query := `SELECT ` + logColumns + ` FROM access_logs WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY accessed_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access logs: %w", err)
	}
	defer rows.Close()

	var out []*models.AccessLog
	for rows.Next() {
		var (
			l                                   models.AccessLog
			logID, patientID, requester         uuid.UUID
			category, permission, outcome, hash string
		)
		if err := rows.Scan(&logID, &patientID, &requester, &category, &permission, &outcome,
			&l.Reason, &hash, &l.EmergencyOverride, &l.Justification, &l.ClientIP,
			&l.ClientSummary, &l.RequestID, &l.AccessedAt); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		l.ID = id.AccessLogID(logID)
		l.Patient = id.AgentID(patientID)
		l.Requester = id.AgentID(requester)
		l.Category = id.DataCategory(category)
		l.Permission = id.Permission(permission)
		l.Outcome = models.Outcome(outcome)
		l.ConsentHash = id.Hash(hash)
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access logs: %w", err)
	}
	return out, nil
}
