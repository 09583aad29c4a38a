// Package service manages the consent ledger: granting, revoking and
// versioning consents, and listing them for the authorization engine.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"healthcommons/internal/consent/metrics"
	"healthcommons/internal/consent/models"
	"healthcommons/internal/platform/entrystore"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/sentinel"
	"healthcommons/pkg/requestcontext"
)

// Link types used when anchoring consents in the entry store.
const (
	LinkPatientConsents = "patient_consents"
	LinkNextVersion     = "next_version"
)

type Store interface {
	Save(ctx context.Context, consent *models.Consent) error
	Update(ctx context.Context, consent *models.Consent) error
	FindByHash(ctx context.Context, hash id.Hash) (*models.Consent, error)
	ListByGrantor(ctx context.Context, grantor id.AgentID) ([]*models.Consent, error)
	ListByGranteeAgent(ctx context.Context, grantee id.AgentID) ([]*models.Consent, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Service persists consent decisions. Version changes for one grantor are
// serialized through the ConsentStoreTx.
type Service struct {
	store          Store
	tx             ConsentStoreTx
	entries        entrystore.Store
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
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

// WithTx replaces the default in-process lock with a store transaction.
func WithTx(tx ConsentStoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithEntryStore anchors every consent version in the content-addressed
// entry store and links it from its grantor.
func WithEntryStore(entries entrystore.Store) Option {
	return func(s *Service) {
		s.entries = entries
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newShardedConsentTx(store)
	}
	return s
}

// Grant records a new consent from grantor.
func (s *Service) Grant(ctx context.Context, grantor id.AgentID, terms models.Terms) (*models.Consent, error) {
	now := requestcontext.Now(ctx)
	consent, err := models.NewConsent(grantor, terms, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, grantor, func(ctx context.Context, store Store) error {
		if err := store.Save(ctx, consent); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "an identical consent already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
		}
		if err := s.anchor(ctx, consent); err != nil {
			return err
		}
		return s.emit(ctx, consent, audit.EventConsentGranted, "granted")
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncChange("granted")
	s.metrics.IncActive(string(consent.Scope))
	s.logger.InfoContext(ctx, "consent granted",
		"request_id", requestcontext.RequestID(ctx),
		"consent_hash", consent.Hash,
		"grantee_kind", consent.Grantee.Kind,
		"scope", consent.Scope,
	)
	return consent, nil
}

// Revoke deactivates the consent at hash. Only its grantor may revoke it.
func (s *Service) Revoke(ctx context.Context, grantor id.AgentID, hash id.Hash, reason string) (*models.Consent, error) {
	now := requestcontext.Now(ctx)
	var revoked *models.Consent
	err := s.tx.RunInTx(ctx, grantor, func(ctx context.Context, store Store) error {
		consent, err := s.ownedBy(ctx, store, grantor, hash)
		if err != nil {
			return err
		}
		if err := consent.CanRevoke(); err != nil {
			return err
		}
		consent.ApplyRevoke(now, reason)
		if err := store.Update(ctx, consent); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
		}
		revoked = consent
		return s.emit(ctx, consent, audit.EventConsentRevoked, "revoked")
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncChange("revoked")
	s.metrics.DecActive(string(revoked.Scope))
	s.logger.InfoContext(ctx, "consent revoked",
		"request_id", requestcontext.RequestID(ctx),
		"consent_hash", hash,
	)
	return revoked, nil
}

// Extend creates a new version of the consent valid until validUntil.
func (s *Service) Extend(ctx context.Context, grantor id.AgentID, hash id.Hash, validUntil time.Time) (*models.Consent, error) {
	now := requestcontext.Now(ctx)
	if !validUntil.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "valid_until must be in the future")
	}
	return s.amend(ctx, grantor, hash, audit.EventConsentExtended, "extended", func(c *models.Consent) (models.Terms, error) {
		if c.ValidUntil != nil && !validUntil.After(*c.ValidUntil) {
			return models.Terms{}, dErrors.New(dErrors.CodeValidation, "extension must move valid_until later")
		}
		terms := c.Terms()
		terms.ValidUntil = &validUntil
		return terms, nil
	})
}

// ScopeChange replaces the scope and categories of a consent.
type ScopeChange struct {
	Scope             models.Scope
	CustomPermissions []id.Permission
	DataCategories    []id.DataCategory
	Exclusions        []id.DataCategory
}

// UpdateScope creates a new version of the consent with changed scope and categories.
func (s *Service) UpdateScope(ctx context.Context, grantor id.AgentID, hash id.Hash, change ScopeChange) (*models.Consent, error) {
	return s.amend(ctx, grantor, hash, audit.EventConsentAmended, "amended", func(c *models.Consent) (models.Terms, error) {
		terms := c.Terms()
		terms.Scope = change.Scope
		terms.CustomPermissions = change.CustomPermissions
		terms.DataCategories = change.DataCategories
		terms.Exclusions = change.Exclusions
		return terms, nil
	})
}

func (s *Service) amend(
	ctx context.Context,
	grantor id.AgentID,
	hash id.Hash,
	event audit.AuditEvent,
	action string,
	change func(*models.Consent) (models.Terms, error),
) (*models.Consent, error) {
	now := requestcontext.Now(ctx)
	var prev, next *models.Consent
	err := s.tx.RunInTx(ctx, grantor, func(ctx context.Context, store Store) error {
		current, err := s.ownedBy(ctx, store, grantor, hash)
		if err != nil {
			return err
		}
		if err := current.CanAmend(now); err != nil {
			return err
		}
		terms, err := change(current)
		if err != nil {
			return err
		}
		next, err = current.NewVersion(terms, now)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent version")
		}
		if err := store.Update(ctx, current); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede consent")
		}
		if err := s.anchor(ctx, next); err != nil {
			return err
		}
		prev = current
		return s.emit(ctx, next, event, action)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncChange(action)
	s.metrics.DecActive(string(prev.Scope))
	s.metrics.IncActive(string(next.Scope))
	s.logger.InfoContext(ctx, "consent "+action,
		"request_id", requestcontext.RequestID(ctx),
		"previous_hash", prev.Hash,
		"consent_hash", next.Hash,
		"version", next.Version,
	)
	return next, nil
}

// Get returns a consent visible to caller: its grantor or its agent grantee.
func (s *Service) Get(ctx context.Context, caller id.AgentID, hash id.Hash) (*models.Consent, error) {
	consent, err := s.find(ctx, s.store, hash)
	if err != nil {
		return nil, err
	}
	if !visibleTo(consent, caller) {
		// Hide existence from unrelated callers.
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	return consent, nil
}

// History returns the version chain containing hash, oldest first.
func (s *Service) History(ctx context.Context, caller id.AgentID, hash id.Hash) ([]*models.Consent, error) {
	start, err := s.Get(ctx, caller, hash)
	if err != nil {
		return nil, err
	}

	var older []*models.Consent
	for c := start; c.PreviousHash != ""; {
		prev, err := s.find(ctx, s.store, c.PreviousHash)
		if err != nil {
			return nil, err
		}
		older = append(older, prev)
		c = prev
	}

	chain := make([]*models.Consent, 0, len(older)+1)
	for i := len(older) - 1; i >= 0; i-- {
		chain = append(chain, older[i])
	}
	chain = append(chain, start)
	for c := start; c.SupersededBy != ""; {
		next, err := s.find(ctx, s.store, c.SupersededBy)
		if err != nil {
			return nil, err
		}
		chain = append(chain, next)
		c = next
	}
	return chain, nil
}

// ListByGrantor returns every consent version the patient has granted, newest first.
func (s *Service) ListByGrantor(ctx context.Context, grantor id.AgentID) ([]*models.Consent, error) {
	consents, err := s.store.ListByGrantor(ctx, grantor)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return consents, nil
}

// ListReceived returns consents naming grantee as the agent grantee.
func (s *Service) ListReceived(ctx context.Context, grantee id.AgentID) ([]*models.Consent, error) {
	consents, err := s.store.ListByGranteeAgent(ctx, grantee)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return consents, nil
}

func (s *Service) ownedBy(ctx context.Context, store Store, grantor id.AgentID, hash id.Hash) (*models.Consent, error) {
	consent, err := s.find(ctx, store, hash)
	if err != nil {
		return nil, err
	}
	if consent.Grantor != grantor {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the granting patient can change a consent")
	}
	return consent, nil
}

func (s *Service) find(ctx context.Context, store Store, hash id.Hash) (*models.Consent, error) {
	consent, err := store.FindByHash(ctx, hash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}
	return consent, nil
}

func visibleTo(c *models.Consent, caller id.AgentID) bool {
	return c.Grantor == caller || (c.Grantee.Kind == models.GranteeAgent && c.Grantee.Agent == caller)
}

func (s *Service) anchor(ctx context.Context, c *models.Consent) error {
	if s.entries == nil {
		return nil
	}
	hash, err := entrystore.PutJSON(ctx, s.entries, c.Content())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor consent")
	}
	if hash != c.Hash {
		return dErrors.New(dErrors.CodeInternal, "anchored consent hash mismatch")
	}
	if err := s.entries.Link(ctx, c.Grantor.String(), hash, LinkPatientConsents); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to link consent")
	}
	if c.PreviousHash != "" {
		if err := s.entries.Link(ctx, c.PreviousHash.String(), hash, LinkNextVersion); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to link consent version")
		}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, c *models.Consent, event audit.AuditEvent, decision string) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, audit.ComplianceEvent{
		AgentID:   c.Grantor,
		Subject:   c.Hash.String(),
		Action:    string(event),
		Purpose:   c.Purpose,
		Decision:  decision,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record consent audit event")
	}
	return nil
}
