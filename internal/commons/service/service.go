// Package service runs the data pool registry and records contributions.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"healthcommons/internal/commons/metrics"
	"healthcommons/internal/commons/models"
	"healthcommons/internal/commons/sealing"
	consentmodel "healthcommons/internal/consent/models"
	"healthcommons/internal/platform/entrystore"
	privacymodels "healthcommons/internal/privacy/models"
	privacyservice "healthcommons/internal/privacy/service"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/requestcontext"
)

// LinkPoolPayloads anchors sealed payloads under their pool id.
const LinkPoolPayloads = "pool_payloads"

// openConcurrency bounds parallel payload reads.
const openConcurrency = 8

type PoolStore interface {
	Save(ctx context.Context, p *models.Pool) error
	FindByID(ctx context.Context, poolID id.PoolID) (*models.Pool, error)
	List(ctx context.Context, status models.PoolStatus) ([]*models.Pool, error)
	UpdateStatus(ctx context.Context, p *models.Pool, from models.PoolStatus) error
}

type ContributionStore interface {
	Append(ctx context.Context, c *models.Contribution) error
	Discard(ctx context.Context, contributionID id.ContributionID) error
	ListByPool(ctx context.Context, poolID id.PoolID, category id.DataCategory) ([]*models.Contribution, error)
	CountContributors(ctx context.Context, poolID id.PoolID, category id.DataCategory) (int, error)
}

// ConsentSource resolves a consent visible to caller.
type ConsentSource interface {
	Get(ctx context.Context, caller id.AgentID, hash id.Hash) (*consentmodel.Consent, error)
}

// BudgetDebiter spends local-DP epsilon on a contributor's ledger.
type BudgetDebiter interface {
	Debit(ctx context.Context, patient id.AgentID, poolID id.PoolID, epsilon, delta float64, hook privacyservice.DebitHook) (*privacymodels.LedgerEntry, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

type Service struct {
	pools          PoolStore
	contributions  ContributionStore
	consents       ConsentSource
	entries        entrystore.Store
	sealer         *sealing.Sealer
	budget         BudgetDebiter
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

// WithBudget enables local-DP contributions. Without it a contribution
// asking for a local epsilon is rejected.
func WithBudget(b BudgetDebiter) Option {
	return func(s *Service) {
		s.budget = b
	}
}

func New(
	pools PoolStore,
	contributions ContributionStore,
	consents ConsentSource,
	entries entrystore.Store,
	sealer *sealing.Sealer,
	opts ...Option,
) *Service {
	s := &Service{
		pools:         pools,
		contributions: contributions,
		consents:      consents,
		entries:       entries,
		sealer:        sealer,
		logger:        slog.Default(),
		tracer:        otel.Tracer("healthcommons/commons"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePool registers a new active pool owned by creator.
func (s *Service) CreatePool(ctx context.Context, creator id.AgentID, spec models.PoolSpec) (*models.Pool, error) {
	now := requestcontext.Now(ctx)
	pool, err := models.NewPool(id.PoolID(uuid.New()), creator, spec, now)
	if err != nil {
		return nil, err
	}
	if err := s.pools.Save(ctx, pool); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a pool with this name already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save pool")
	}
	if err := s.emit(ctx, creator, pool.ID.String(), audit.EventPoolCreated, pool.Name, string(pool.Status)); err != nil {
		return nil, err
	}

	s.metrics.IncPoolStatus(string(pool.Status))
	s.logger.InfoContext(ctx, "pool created",
		"request_id", requestcontext.RequestID(ctx),
		"pool_id", pool.ID,
		"governance", pool.Governance,
		"budget_per_user", pool.BudgetPerUser,
	)
	return pool, nil
}

func (s *Service) GetPool(ctx context.Context, poolID id.PoolID) (*models.Pool, error) {
	pool, err := s.pools.FindByID(ctx, poolID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "pool not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pool")
	}
	return pool, nil
}

// ListPools returns pools newest first. An empty status lists all of them.
func (s *Service) ListPools(ctx context.Context, status models.PoolStatus) ([]*models.Pool, error) {
	pools, err := s.pools.List(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pools")
	}
	return pools, nil
}

// SetPoolStatus moves a pool through its lifecycle. Only the creator may
// change it.
func (s *Service) SetPoolStatus(ctx context.Context, caller id.AgentID, poolID id.PoolID, next models.PoolStatus) (*models.Pool, error) {
	pool, err := s.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Creator != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the pool creator can change its status")
	}
	if err := pool.CanTransitionTo(next); err != nil {
		return nil, err
	}
	from := pool.Status
	pool.ApplyStatus(next, requestcontext.Now(ctx))
	if err := s.pools.UpdateStatus(ctx, pool, from); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "pool status changed concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update pool status")
	}
	if err := s.emit(ctx, caller, pool.ID.String(), audit.EventPoolStatusChanged, string(from), string(next)); err != nil {
		return nil, err
	}

	s.metrics.IncPoolStatus(string(next))
	s.logger.InfoContext(ctx, "pool status changed",
		"request_id", requestcontext.RequestID(ctx),
		"pool_id", pool.ID,
		"from", from,
		"to", next,
	)
	return pool, nil
}

// Contribute seals the payload, records the contribution and, when a local
// epsilon is requested, debits it from the contributor's ledger first.
// Nothing is recorded if the debit is refused, and a recording that fails
// part way is undone along with its debit.
//
// The payload is stored exactly as received. Local differential privacy
// means the contributor perturbs the value before sending it; LocalEpsilon
// only accounts for that noise on the contributor's ledger.
func (s *Service) Contribute(ctx context.Context, contributor id.AgentID, poolID id.PoolID, req models.ContributionRequest) (*models.Contribution, error) {
	ctx, span := s.tracer.Start(ctx, "commons.Contribute", trace.WithAttributes(
		attribute.String("pool_id", poolID.String()),
		attribute.String("category", string(req.Category)),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	pool, err := s.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if !pool.IsActive() {
		return nil, dErrors.Newf(dErrors.CodePoolInactive, "pool is %s and not accepting contributions", pool.Status)
	}
	if !pool.Accepts(req.Category) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "pool does not collect %s", req.Category)
	}
	if req.LocalEpsilon > 0 && s.budget == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "local differential privacy is not enabled")
	}

	now := requestcontext.Now(ctx)
	consent, err := s.consents.Get(ctx, contributor, req.ConsentHash)
	if err != nil {
		return nil, err
	}
	if err := checkConsent(consent, contributor, req.Category, pool.RequiredConsentLevel, now); err != nil {
		s.metrics.IncContribution(string(req.Category), "consent_denied")
		return nil, err
	}

	payloadHash, err := s.seal(ctx, pool.ID, req.Payload)
	if err != nil {
		return nil, err
	}
	contribution := &models.Contribution{
		ID:             id.ContributionID(uuid.New()),
		PoolID:         pool.ID,
		Contributor:    contributor,
		Category:       req.Category,
		PayloadHash:    payloadHash,
		ConsentHash:    consent.Hash,
		BudgetConsumed: req.LocalEpsilon,
		CreatedAt:      now,
	}

	record := func(ctx context.Context) error {
		if err := s.contributions.Append(ctx, contribution); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record contribution")
		}
		err := s.emit(ctx, contributor, contribution.ID.String(), audit.EventContributionRecorded,
			string(req.Category), "recorded")
		if err != nil {
			s.discard(ctx, contribution)
		}
		return err
	}
	if req.LocalEpsilon > 0 {
		_, err = s.budget.Debit(ctx, contributor, pool.ID, req.LocalEpsilon, 0,
			func(ctx context.Context, _ *privacymodels.LedgerEntry) error { return record(ctx) })
	} else {
		err = record(ctx)
	}
	if err != nil {
		span.RecordError(err)
		s.metrics.IncContribution(string(req.Category), "rejected")
		return nil, err
	}

	s.metrics.IncContribution(string(req.Category), "recorded")
	if req.LocalEpsilon > 0 {
		s.metrics.ObserveLocalEpsilon(req.LocalEpsilon)
	}
	s.logger.InfoContext(ctx, "contribution recorded",
		"request_id", requestcontext.RequestID(ctx),
		"pool_id", pool.ID,
		"category", req.Category,
		"local_epsilon", req.LocalEpsilon,
	)
	return contribution, nil
}

// discard removes a contribution whose audit event could not be written.
func (s *Service) discard(ctx context.Context, c *models.Contribution) {
	if err := s.contributions.Discard(context.WithoutCancel(ctx), c.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to discard unaudited contribution",
			"request_id", requestcontext.RequestID(ctx),
			"pool_id", c.PoolID,
			"contribution_id", c.ID,
			"error", err,
		)
	}
}

// checkConsent verifies the contributor's own consent is in force, covers
// the category and grants at least the pool's required level.
func checkConsent(c *consentmodel.Consent, contributor id.AgentID, category id.DataCategory, required consentmodel.Scope, now time.Time) error {
	switch {
	case c.Grantor != contributor:
		return dErrors.New(dErrors.CodeForbidden, "consent was not granted by the contributor")
	case c.IsRevoked():
		return dErrors.New(dErrors.CodeConsentRevoked, "consent has been revoked")
	case c.IsSuperseded():
		return dErrors.New(dErrors.CodeUnauthorized, "consent has been superseded by a newer version")
	case c.IsExpired(now):
		return dErrors.New(dErrors.CodeConsentExpired, "consent has expired")
	case !c.IsEffective(now):
		return dErrors.New(dErrors.CodeUnauthorized, "consent is not yet in effect")
	case !c.Covers(category):
		return dErrors.Newf(dErrors.CodeUnauthorized, "consent does not cover %s", category)
	case !c.Satisfies(required):
		return dErrors.Newf(dErrors.CodeUnauthorized, "consent scope %s does not meet the pool's required level %s", c.Scope, required)
	}
	return nil
}

func (s *Service) seal(ctx context.Context, poolID id.PoolID, payload models.Payload) (id.Hash, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode payload")
	}
	sealed, err := s.sealer.Seal(poolID, plain)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal payload")
	}
	hash, err := s.entries.Put(ctx, sealed)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store payload")
	}
	if err := s.entries.Link(ctx, poolID.String(), hash, LinkPoolPayloads); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to link payload")
	}
	return hash, nil
}

// Contributions lists a pool's contributions in one category.
func (s *Service) Contributions(ctx context.Context, poolID id.PoolID, category id.DataCategory) ([]*models.Contribution, error) {
	list, err := s.contributions.ListByPool(ctx, poolID, category)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contributions")
	}
	return list, nil
}

// CountContributors counts distinct contributors to a category.
func (s *Service) CountContributors(ctx context.Context, poolID id.PoolID, category id.DataCategory) (int, error) {
	n, err := s.contributions.CountContributors(ctx, poolID, category)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count contributors")
	}
	return n, nil
}

// OpenPayloads decrypts the payloads of contributions in parallel,
// preserving order.
func (s *Service) OpenPayloads(ctx context.Context, poolID id.PoolID, contributions []*models.Contribution) ([]models.Payload, error) {
	payloads := make([]models.Payload, len(contributions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(openConcurrency)
	for i, c := range contributions {
		g.Go(func() error {
			sealed, err := s.entries.Get(ctx, c.PayloadHash)
			if err != nil {
				return err
			}
			plain, err := s.sealer.Open(poolID, sealed)
			if err != nil {
				return err
			}
			return json.Unmarshal(plain, &payloads[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open contribution payloads")
	}
	return payloads, nil
}

func (s *Service) emit(ctx context.Context, agent id.AgentID, subject string, event audit.AuditEvent, purpose, decision string) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, audit.ComplianceEvent{
		AgentID:   agent,
		Subject:   subject,
		Action:    string(event),
		Purpose:   strings.TrimSpace(purpose),
		Decision:  decision,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record pool audit event")
	}
	return nil
}
