// Package service executes differentially-private aggregate queries over
// pool contributions and charges them to the patient's privacy budget.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	authmodels "healthcommons/internal/authorization/models"
	commonsmodels "healthcommons/internal/commons/models"
	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/mechanism"
	privacymodels "healthcommons/internal/privacy/models"
	privacyservice "healthcommons/internal/privacy/service"
	"healthcommons/internal/query/metrics"
	"healthcommons/internal/query/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/requestcontext"
)

// Pools reads pool metadata and opens contributions.
type Pools interface {
	GetPool(ctx context.Context, poolID id.PoolID) (*commonsmodels.Pool, error)
	CountContributors(ctx context.Context, poolID id.PoolID, category id.DataCategory) (int, error)
	Contributions(ctx context.Context, poolID id.PoolID, category id.DataCategory) ([]*commonsmodels.Contribution, error)
	OpenPayloads(ctx context.Context, poolID id.PoolID, contributions []*commonsmodels.Contribution) ([]commonsmodels.Payload, error)
}

// Authorizer gates queries made on a patient's behalf by someone else.
type Authorizer interface {
	Check(ctx context.Context, req authmodels.AccessRequest) (*authmodels.Decision, error)
}

// Budget reads and debits privacy budget ledgers.
type Budget interface {
	GetStatus(ctx context.Context, patient id.AgentID, poolID id.PoolID) (*privacymodels.BudgetView, error)
	Debit(ctx context.Context, patient id.AgentID, poolID id.PoolID, epsilon, delta float64, hook privacyservice.DebitHook) (*privacymodels.LedgerEntry, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

type Service struct {
	pools          Pools
	authorizer     Authorizer
	budget         Budget
	source         mechanism.Source
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
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

// WithSource replaces the noise source. Production code keeps the default
// CSPRNG; tests pass a deterministic source.
func WithSource(src mechanism.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

func New(pools Pools, authorizer Authorizer, budget Budget, opts ...Option) *Service {
	s := &Service{
		pools:      pools,
		authorizer: authorizer,
		budget:     budget,
		source:     mechanism.CryptoSource{},
		logger:     slog.Default(),
		tracer:     otel.Tracer("healthcommons/query"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute answers req for requester. The noisy answer is computed first and
// released only if the debit succeeds; a refused debit leaves no trace in the
// ledger and returns nothing.
func (s *Service) Execute(ctx context.Context, requester id.AgentID, req models.Request) (*models.Result, error) {
	start := time.Now()
	req, err := req.Prepared()
	if err != nil {
		s.metrics.IncQuery(string(req.Type), string(req.Params.Mechanism), "invalid")
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "query.Execute", trace.WithAttributes(
		attribute.String("pool_id", req.PoolID.String()),
		attribute.String("type", string(req.Type)),
		attribute.String("mechanism", string(req.Params.Mechanism)),
		attribute.Float64("epsilon", req.Params.Epsilon),
	))
	defer span.End()
	defer func() { s.metrics.ObserveDuration(string(req.Type), time.Since(start).Seconds()) }()

	result, err := s.execute(ctx, requester, req)
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		s.metrics.IncQuery(string(req.Type), string(req.Params.Mechanism), string(dErrors.CodeOf(err)))
		s.rejected(ctx, requester, req, err)
		return nil, err
	}
	s.metrics.IncQuery(string(req.Type), string(req.Params.Mechanism), "executed")
	s.logger.InfoContext(ctx, "query executed",
		"request_id", requestcontext.RequestID(ctx),
		"pool_id", req.PoolID,
		"type", req.Type,
		"mechanism", req.Params.Mechanism,
		"epsilon", result.EpsilonConsumed,
		"contributors", result.Contributors,
	)
	return result, nil
}

func (s *Service) execute(ctx context.Context, requester id.AgentID, req models.Request) (*models.Result, error) {
	pool, err := s.pools.GetPool(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}
	if !pool.IsActive() {
		return nil, dErrors.Newf(dErrors.CodePoolInactive, "pool is %s", pool.Status)
	}
	if !pool.Accepts(req.Category) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "pool does not hold %s data", req.Category)
	}

	if requester != req.Patient {
		if _, err := s.authorizer.Check(ctx, authmodels.AccessRequest{
			Patient:    req.Patient,
			Requester:  requester,
			Roles:      requestcontext.Roles(ctx),
			Category:   req.Category,
			Permission: id.PermissionAggregate,
		}); err != nil {
			return nil, err
		}
	}

	contributors, err := s.pools.CountContributors(ctx, req.PoolID, req.Category)
	if err != nil {
		return nil, err
	}
	if contributors < pool.MinContributors {
		return nil, dErrors.Newf(dErrors.CodeInsufficientContributors,
			"query needs at least %d contributors, pool has %d", pool.MinContributors, contributors)
	}

	// Early refusal; the debit re-checks under the ledger lock.
	view, err := s.budget.GetStatus(ctx, req.Patient, req.PoolID)
	if err != nil {
		return nil, err
	}
	if err := budget.ValidateQuery(view.Status, req.Params.Epsilon); err != nil {
		return nil, err
	}

	contributions, err := s.pools.Contributions(ctx, req.PoolID, req.Category)
	if err != nil {
		return nil, err
	}
	payloads, err := s.pools.OpenPayloads(ctx, req.PoolID, contributions)
	if err != nil {
		return nil, err
	}
	ans, err := compute(s.source, req, payloads)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute query")
	}

	now := requestcontext.Now(ctx)
	delta := req.Params.DeltaValue()
	entry, err := s.budget.Debit(ctx, req.Patient, req.PoolID, req.Params.Epsilon, delta,
		func(ctx context.Context, _ *privacymodels.LedgerEntry) error {
			return s.emit(ctx, requester, req, audit.EventQueryExecuted, "executed")
		})
	if err != nil {
		return nil, err
	}

	return &models.Result{
		PoolID:             req.PoolID,
		Patient:            req.Patient,
		Category:           req.Category,
		Type:               req.Type,
		Value:              ans.value,
		Values:             ans.values,
		EpsilonConsumed:    req.Params.Epsilon,
		DeltaConsumed:      delta,
		StandardError:      ans.stdErr,
		ConfidenceInterval: ans.interval,
		Mechanism:          req.Params.Mechanism,
		Contributors:       contributors,
		ExecutedAt:         now,
		Budget:             entry.Status(),
	}, nil
}

// rejected records a refused query. Audit failures are logged, not returned:
// the caller already gets the refusal.
func (s *Service) rejected(ctx context.Context, requester id.AgentID, req models.Request, cause error) {
	decision := fmt.Sprintf("rejected:%s", dErrors.CodeOf(cause))
	if err := s.emit(ctx, requester, req, audit.EventQueryRejected, decision); err != nil {
		s.logger.ErrorContext(ctx, "failed to audit rejected query",
			"request_id", requestcontext.RequestID(ctx),
			"pool_id", req.PoolID,
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, requester id.AgentID, req models.Request, event audit.AuditEvent, decision string) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.ComplianceEvent{
		AgentID:   req.Patient,
		ActorID:   requester.String(),
		Subject:   req.PoolID.String(),
		Action:    string(event),
		Purpose:   fmt.Sprintf("%s:%s", req.Type, req.Category),
		Decision:  decision,
		RequestID: requestcontext.RequestID(ctx),
	})
}
