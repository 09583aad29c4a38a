// Package service runs authorization checks and keeps the access log that
// records every one of them.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"healthcommons/internal/authorization/engine"
	"healthcommons/internal/authorization/metrics"
	"healthcommons/internal/authorization/models"
	consentmodel "healthcommons/internal/consent/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/requestcontext"
)

// ConsentSource lists the consents a patient has granted.
type ConsentSource interface {
	ListByGrantor(ctx context.Context, grantor id.AgentID) ([]*consentmodel.Consent, error)
}

type LogStore interface {
	Append(ctx context.Context, log *models.AccessLog) error
	ListByPatient(ctx context.Context, patient id.AgentID, filter models.LogFilter) ([]*models.AccessLog, error)
}

// AuditPublisher records compliance events. Failures abort the check.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// SecurityPublisher records denials best-effort.
type SecurityPublisher interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

type Service struct {
	consents          ConsentSource
	logs              LogStore
	auditPublisher    AuditPublisher
	securityPublisher SecurityPublisher
	metrics           *metrics.Metrics
	logger            *slog.Logger
	tracer            trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithSecurityPublisher(publisher SecurityPublisher) Option {
	return func(s *Service) {
		s.securityPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(consents ConsentSource, logs LogStore, opts ...Option) *Service {
	s := &Service{
		consents: consents,
		logs:     logs,
		logger:   slog.Default(),
		tracer:   otel.Tracer("healthcommons/authorization"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check evaluates req and writes exactly one access log entry for it. A
// denial returns the decision and a domain error explaining it. If the log
// cannot be written the request is refused.
func (s *Service) Check(ctx context.Context, req models.AccessRequest) (*models.Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "authorization.Check", trace.WithAttributes(
		attribute.String("category", string(req.Category)),
		attribute.String("permission", string(req.Permission)),
		attribute.Bool("emergency", req.Emergency),
	))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveCheckDuration(time.Since(start).Seconds()) }()

	now := requestcontext.Now(ctx)
	decision, denyErr := s.evaluate(ctx, req, now)

	entry := s.newLog(ctx, req, decision, now)
	if err := s.logs.Append(ctx, entry); err != nil {
		span.SetStatus(codes.Error, "access log write failed")
		s.logger.ErrorContext(ctx, "failed to write access log",
			"request_id", entry.RequestID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record access attempt")
	}
	s.metrics.IncCheck(string(entry.Outcome), entry.Reason)
	span.SetAttributes(attribute.String("outcome", string(entry.Outcome)), attribute.String("reason", entry.Reason))

	if denyErr != nil {
		s.securityEvent(ctx, req, entry)
		s.logger.InfoContext(ctx, "access denied",
			"request_id", entry.RequestID,
			"patient_id", req.Patient,
			"requester_id", req.Requester,
			"category", req.Category,
			"reason", entry.Reason,
		)
		return &decision, denyErr
	}

	if decision.EmergencyOverride {
		s.metrics.IncEmergency()
		if err := s.emergencyEvent(ctx, req, entry); err != nil {
			return nil, err
		}
	}
	return &decision, nil
}

func (s *Service) evaluate(ctx context.Context, req models.AccessRequest, now time.Time) (models.Decision, error) {
	if req.Requester == req.Patient {
		return engine.Evaluate(req, nil, now)
	}
	consents, err := s.consents.ListByGrantor(ctx, req.Patient)
	if err != nil {
		return models.Decision{Reason: models.ReasonLookupFailed},
			dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}
	return engine.Evaluate(req, consents, now)
}

func (s *Service) newLog(ctx context.Context, req models.AccessRequest, d models.Decision, now time.Time) *models.AccessLog {
	outcome := models.OutcomeDenied
	if d.Authorized {
		outcome = models.OutcomeGranted
	}
	return &models.AccessLog{
		ID:                id.AccessLogID(uuid.New()),
		Patient:           req.Patient,
		Requester:         req.Requester,
		Category:          req.Category,
		Permission:        req.Permission,
		Outcome:           outcome,
		Reason:            d.Reason,
		ConsentHash:       d.ConsentHash,
		EmergencyOverride: d.EmergencyOverride,
		Justification:     req.Justification,
		ClientIP:          requestcontext.ClientIP(ctx),
		ClientSummary:     summarizeUserAgent(requestcontext.UserAgent(ctx)),
		RequestID:         requestcontext.RequestID(ctx),
		AccessedAt:        now,
	}
}

// summarizeUserAgent reduces a User-Agent header to "Browser on OS".
func summarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}
	name, _ := ua.Browser()
	os := ua.OS()
	switch {
	case name == "" && os == "":
		return "unknown client"
	case os == "":
		return name
	case name == "":
		return os
	}
	summary := fmt.Sprintf("%s on %s", name, os)
	if ua.Mobile() {
		summary += " (mobile)"
	}
	return summary
}

func (s *Service) securityEvent(ctx context.Context, req models.AccessRequest, entry *models.AccessLog) {
	if s.securityPublisher == nil {
		return
	}
	severity := audit.SeverityWarning
	if req.Emergency {
		severity = audit.SeverityCritical
	}
	s.securityPublisher.Emit(ctx, audit.SecurityEvent{
		Timestamp: entry.AccessedAt,
		AgentID:   req.Patient,
		Subject:   req.Requester.String(),
		Action:    string(audit.EventAccessDenied),
		Reason:    entry.Reason,
		IP:        entry.ClientIP,
		RequestID: entry.RequestID,
		ActorID:   req.Requester.String(),
		Severity:  severity,
	})
}

func (s *Service) emergencyEvent(ctx context.Context, req models.AccessRequest, entry *models.AccessLog) error {
	s.logger.WarnContext(ctx, "emergency override used",
		"request_id", entry.RequestID,
		"patient_id", req.Patient,
		"requester_id", req.Requester,
		"category", req.Category,
	)
	if s.securityPublisher != nil {
		s.securityPublisher.Emit(ctx, audit.SecurityEvent{
			Timestamp: entry.AccessedAt,
			AgentID:   req.Patient,
			Subject:   req.Requester.String(),
			Action:    string(audit.EventEmergencyAccess),
			Reason:    req.Justification,
			IP:        entry.ClientIP,
			RequestID: entry.RequestID,
			ActorID:   req.Requester.String(),
			Severity:  audit.SeverityCritical,
		})
	}
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, audit.ComplianceEvent{
		Timestamp: entry.AccessedAt,
		AgentID:   req.Patient,
		Subject:   entry.ID.String(),
		Action:    string(audit.EventEmergencyAccess),
		Purpose:   req.Justification,
		Decision:  string(entry.Outcome),
		RequestID: entry.RequestID,
		ActorID:   req.Requester.String(),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record emergency access")
	}
	return nil
}

// ListAccessLogs returns the patient's access log, newest first.
func (s *Service) ListAccessLogs(ctx context.Context, patient id.AgentID, filter models.LogFilter) ([]*models.AccessLog, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return nil, dErrors.New(dErrors.CodeValidation, "to must be after from")
	}
	logs, err := s.logs.ListByPatient(ctx, patient, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access logs")
	}
	return logs, nil
}

// DisclosureReport summarizes who accessed the patient's data in [from, to).
func (s *Service) DisclosureReport(ctx context.Context, patient id.AgentID, from, to time.Time) (*models.DisclosureReport, error) {
	if from.IsZero() || to.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "from and to are required")
	}
	logs, err := s.ListAccessLogs(ctx, patient, models.LogFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return models.BuildDisclosureReport(patient, from, to, logs), nil
}
