package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/internal/authorization/models"
	id "healthcommons/pkg/domain"
)

func accessLog(patient, requester id.AgentID, at time.Time) *models.AccessLog {
	return &models.AccessLog{
		ID:         id.AccessLogID(uuid.New()),
		Patient:    patient,
		Requester:  requester,
		Category:   id.CategoryLabResults,
		Permission: id.PermissionRead,
		Outcome:    models.OutcomeGranted,
		Reason:     models.ReasonConsent,
		AccessedAt: at,
	}
}

func TestInMemoryStore_ListByPatient(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	patient := id.AgentID(uuid.New())
	doctor := id.AgentID(uuid.New())
	nurse := id.AgentID(uuid.New())
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, accessLog(patient, doctor, base)))
	require.NoError(t, s.Append(ctx, accessLog(patient, nurse, base.Add(time.Hour))))
	require.NoError(t, s.Append(ctx, accessLog(patient, doctor, base.Add(2*time.Hour))))
	require.NoError(t, s.Append(ctx, accessLog(id.AgentID(uuid.New()), doctor, base)))

	all, err := s.ListByPatient(ctx, patient, models.LogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].AccessedAt.After(all[1].AccessedAt))

	window, err := s.ListByPatient(ctx, patient, models.LogFilter{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, nurse, window[0].Requester)

	byDoctor, err := s.ListByPatient(ctx, patient, models.LogFilter{Accessor: doctor, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byDoctor, 1)
	assert.Equal(t, base.Add(2*time.Hour), byDoctor[0].AccessedAt)
}

func TestPostgresStore_ListByPatientBuildsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	patient := id.AgentID(uuid.New())
	doctor := id.AgentID(uuid.New())
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logID := uuid.New()

	mock.ExpectQuery(`FROM access_logs WHERE patient = \$1 AND accessed_at >= \$2 AND requester = \$3 ORDER BY accessed_at DESC LIMIT \$4`).
		WithArgs(patient.String(), from, doctor.String(), 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient", "requester", "category", "permission", "outcome", "reason", "consent_hash",
			"emergency_override", "justification", "client_ip", "client_summary", "request_id", "accessed_at",
		}).AddRow(logID.String(), patient.String(), doctor.String(), "lab_results", "read", "denied",
			models.ReasonConsentRevoked, "", false, "", "10.0.0.1", "Firefox on Linux", "req-1", from))

	logs, err := NewPostgres(db).ListByPatient(context.Background(), patient,
		models.LogFilter{From: from, Accessor: doctor, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeDenied, logs[0].Outcome)
	assert.Equal(t, id.AccessLogID(logID), logs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := accessLog(id.AgentID(uuid.New()), id.AgentID(uuid.New()), time.Now())
	l.EmergencyOverride = true
	l.Justification = "trauma bay"
	mock.ExpectExec("INSERT INTO access_logs").
		WithArgs(uuid.UUID(l.ID).String(), l.Patient.String(), l.Requester.String(), "lab_results", "read",
			"granted", models.ReasonConsent, "", true, "trauma bay", "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgres(db).Append(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}
