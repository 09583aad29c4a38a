// Package service is the authoritative privacy budget path: status reads,
// advisory checks and the serialized debit every query and contribution goes through.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/metrics"
	"healthcommons/internal/privacy/models"
	"healthcommons/internal/privacy/store/ledger"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/requestcontext"
)

// Ledger is a budget ledger backend.
type Ledger interface {
	Find(ctx context.Context, key models.LedgerKey) (*models.LedgerEntry, error)
	RunInTx(ctx context.Context, key models.LedgerKey, fn ledger.TxFunc) error
}

// PolicySource resolves the budget a pool grants each participant.
type PolicySource interface {
	BudgetPolicy(ctx context.Context, poolID id.PoolID) (models.Policy, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// DebitHook runs exactly once, after the debit is durable. When it fails
// the debit is refunded, so a hook must leave nothing behind when it
// returns an error.
type DebitHook func(ctx context.Context, entry *models.LedgerEntry) error

// Service manages privacy budget ledgers.
type Service struct {
	ledger         Ledger
	policies       PolicySource
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(ledger Ledger, policies PolicySource, opts ...Option) *Service {
	s := &Service{
		ledger:   ledger,
		policies: policies,
		logger:   slog.Default(),
		tracer:   otel.Tracer("healthcommons/privacy"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetStatus returns the budget of patient in pool. A pair with no ledger yet
// reports the full budget without creating an entry.
func (s *Service) GetStatus(ctx context.Context, patient id.AgentID, poolID id.PoolID) (*models.BudgetView, error) {
	key := models.LedgerKey{Patient: patient, PoolID: poolID}
	policy, err := s.policy(ctx, poolID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	entry, err := s.ledger.Find(ctx, key)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		entry = models.NewLedgerEntry(key, policy, now)
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load privacy budget")
	default:
		// Show what the next debit will see.
		entry.Renew(now)
	}
	return models.NewBudgetView(entry), nil
}

// CheckQueryBudget reports whether a query of (epsilon, delta) would fit. The
// answer is advisory; Debit is the enforcement point.
func (s *Service) CheckQueryBudget(ctx context.Context, patient id.AgentID, poolID id.PoolID, epsilon, delta float64) (*budget.BudgetCheck, error) {
	view, err := s.GetStatus(ctx, patient, poolID)
	if err != nil {
		return nil, err
	}
	check := budget.CheckQueryBudget(view.Status, epsilon, delta)
	return &check, nil
}

// Debit atomically validates and records a spend of (epsilon, delta) on the
// (patient, pool) ledger, creating the entry on first use. A rejected debit
// leaves the ledger untouched. The ledger section itself has no other side
// effects because some backends re-run it on contention; hook and audit run
// once it has committed.
func (s *Service) Debit(ctx context.Context, patient id.AgentID, poolID id.PoolID, epsilon, delta float64, hook DebitHook) (*models.LedgerEntry, error) {
	ctx, span := s.tracer.Start(ctx, "privacy.Debit", trace.WithAttributes(
		attribute.String("pool_id", poolID.String()),
		attribute.Float64("epsilon", epsilon),
		attribute.Float64("delta", delta),
	))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveDebitDuration(time.Since(start).Seconds()) }()

	policy, err := s.policy(ctx, poolID)
	if err != nil {
		return nil, err
	}
	key := models.LedgerKey{Patient: patient, PoolID: poolID}
	now := requestcontext.Now(ctx)

	var (
		debited *models.LedgerEntry
		renewed bool
	)
	err = s.ledger.RunInTx(ctx, key, func(ctx context.Context, tx ledger.TxStore) error {
		debited, renewed = nil, false
		entry, err := tx.FindOrCreate(ctx, key, policy, now)
		if err != nil {
			return err
		}
		renewed = entry.Renew(now)
		if err := entry.CanDebit(epsilon, delta, now); err != nil {
			return err
		}
		entry.ApplyDebit(epsilon, delta, now)
		if err := tx.Save(ctx, entry); err != nil {
			return err
		}
		debited = entry
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.IncDebit(debitOutcome(err))
		return nil, translateDebitError(err)
	}
	if renewed {
		s.metrics.IncRenewal()
	}

	if err := s.afterDebit(ctx, patient, poolID, debited, renewed, hook); err != nil {
		span.RecordError(err)
		s.refund(ctx, key, policy, epsilon, delta, debited.PeriodStart)
		return nil, translateDebitError(err)
	}

	s.metrics.IncDebit("debited")
	s.metrics.ObserveEpsilon(epsilon)
	s.logger.InfoContext(ctx, "privacy budget debited",
		"request_id", requestcontext.RequestID(ctx),
		"pool_id", poolID,
		"epsilon", epsilon,
		"delta", delta,
		"consumed_epsilon", debited.ConsumedEpsilon,
		"query_count", debited.QueryCount,
	)
	return debited, nil
}

func (s *Service) afterDebit(ctx context.Context, patient id.AgentID, poolID id.PoolID, entry *models.LedgerEntry, renewed bool, hook DebitHook) error {
	if renewed {
		if err := s.emit(ctx, patient, poolID, audit.EventBudgetRenewed, "renewed"); err != nil {
			return err
		}
	}
	if hook == nil {
		return nil
	}
	return hook(ctx, entry)
}

// refund reverses a committed debit whose follow-up failed. A refund that
// cannot be written leaves the spend recorded, which only ever overstates
// privacy loss.
func (s *Service) refund(ctx context.Context, key models.LedgerKey, policy models.Policy, epsilon, delta float64, periodStart time.Time) {
	ctx = context.WithoutCancel(ctx)
	now := requestcontext.Now(ctx)
	err := s.ledger.RunInTx(ctx, key, func(ctx context.Context, tx ledger.TxStore) error {
		entry, err := tx.FindOrCreate(ctx, key, policy, now)
		if err != nil {
			return err
		}
		if !entry.RefundDebit(epsilon, delta, periodStart, now) {
			return nil
		}
		return tx.Save(ctx, entry)
	})
	if err != nil {
		s.metrics.IncDebit("refund_failed")
		s.logger.ErrorContext(ctx, "failed to refund privacy budget",
			"request_id", requestcontext.RequestID(ctx),
			"pool_id", key.PoolID,
			"epsilon", epsilon,
			"error", err,
		)
		return
	}
	s.metrics.IncDebit("refunded")
}

func (s *Service) policy(ctx context.Context, poolID id.PoolID) (models.Policy, error) {
	policy, err := s.policies.BudgetPolicy(ctx, poolID)
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return models.Policy{}, err
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Policy{}, dErrors.New(dErrors.CodeNotFound, "pool not found")
		}
		return models.Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pool budget policy")
	}
	return policy, nil
}

func (s *Service) emit(ctx context.Context, patient id.AgentID, poolID id.PoolID, event audit.AuditEvent, decision string) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.ComplianceEvent{
		AgentID:   patient,
		Subject:   poolID.String(),
		Action:    string(event),
		Decision:  decision,
		RequestID: requestcontext.RequestID(ctx),
	})
}

func debitOutcome(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInsufficientBudget:
		return "insufficient"
	case dErrors.CodeBudgetExhausted:
		return "exhausted"
	case dErrors.CodeInvalidEpsilon, dErrors.CodeInvalidDelta:
		return "invalid"
	default:
		return "error"
	}
}

func translateDebitError(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "privacy budget was modified concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to debit privacy budget")
}
