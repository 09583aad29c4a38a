// Package models holds the consent ledger domain: who may do what with which
// categories of a patient's data, and for how long.
package models

import (
	"slices"
	"strings"
	"time"

	"healthcommons/internal/platform/entrystore"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

// Scope is the breadth of access a consent grants.
type Scope string

const (
	ScopeRead          Scope = "read"
	ScopeWrite         Scope = "write"
	ScopeShare         Scope = "share"
	ScopeExport        Scope = "export"
	ScopeDelete        Scope = "delete"
	ScopeAmend         Scope = "amend"
	ScopeFullAccess    Scope = "full_access"
	ScopeAggregateOnly Scope = "aggregate_only"
	ScopeEmergencyOnly Scope = "emergency_only"
	ScopeResearchOnly  Scope = "research_only"
	ScopeCustom        Scope = "custom"
)

func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.ToLower(strings.TrimSpace(s)))
	switch scope {
	case ScopeRead, ScopeWrite, ScopeShare, ScopeExport, ScopeDelete, ScopeAmend,
		ScopeFullAccess, ScopeAggregateOnly, ScopeEmergencyOnly, ScopeResearchOnly, ScopeCustom:
		return scope, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "invalid scope: %s", s)
}

// Permits reports whether scope allows permission. custom lists the
// permissions of a Custom scope and is ignored otherwise.
func (s Scope) Permits(p id.Permission, custom []id.Permission, emergency bool) bool {
	switch s {
	case ScopeFullAccess:
		return true
	case ScopeAggregateOnly, ScopeResearchOnly:
		return p == id.PermissionAggregate
	case ScopeEmergencyOnly:
		return emergency && p == id.PermissionRead
	case ScopeCustom:
		return slices.Contains(custom, p)
	case ScopeRead, ScopeWrite, ScopeShare, ScopeExport, ScopeDelete, ScopeAmend:
		return string(s) == string(p)
	}
	return false
}

// GranteeKind says how a grantee is matched against a requester.
type GranteeKind string

const (
	GranteeAgent     GranteeKind = "agent"
	GranteeRole      GranteeKind = "role"
	GranteeEmergency GranteeKind = "emergency"
)

// Grantee is the party a consent is granted to.
type Grantee struct {
	Kind  GranteeKind `json:"kind"`
	Agent id.AgentID  `json:"agent,omitempty"`
	Role  string      `json:"role,omitempty"`
}

func (g Grantee) Validate() error {
	switch g.Kind {
	case GranteeAgent:
		if g.Agent.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "grantee agent is required")
		}
	case GranteeRole:
		if strings.TrimSpace(g.Role) == "" {
			return dErrors.New(dErrors.CodeValidation, "grantee role is required")
		}
	case GranteeEmergency:
	default:
		return dErrors.New(dErrors.CodeValidation, "grantee kind must be agent, role or emergency")
	}
	return nil
}

// Matches reports whether the requester (with its asserted roles) is this grantee.
// Emergency grantees only match emergency requests.
func (g Grantee) Matches(requester id.AgentID, roles []string, emergency bool) bool {
	switch g.Kind {
	case GranteeAgent:
		return g.Agent == requester
	case GranteeRole:
		return slices.Contains(roles, g.Role)
	case GranteeEmergency:
		return emergency
	}
	return false
}

// Consent is one version of a consent grant. Versions are immutable apart
// from deactivation; amendments create a new version linked to the previous one.
type Consent struct {
	Hash              id.Hash
	Grantor           id.AgentID
	Grantee           Grantee
	Scope             Scope
	CustomPermissions []id.Permission
	DataCategories    []id.DataCategory
	Exclusions        []id.DataCategory
	Purpose           string
	ValidFrom         time.Time
	ValidUntil        *time.Time
	IsActive          bool
	RevokedAt         *time.Time
	RevocationReason  string
	SupersededBy      id.Hash
	Version           int
	PreviousHash      id.Hash
	CreatedAt         time.Time
}

// content is the hashed, immutable part of a consent version.
type content struct {
	Grantor           id.AgentID        `json:"grantor"`
	Grantee           Grantee           `json:"grantee"`
	Scope             Scope             `json:"scope"`
	CustomPermissions []id.Permission   `json:"custom_permissions,omitempty"`
	DataCategories    []id.DataCategory `json:"data_categories"`
	Exclusions        []id.DataCategory `json:"exclusions,omitempty"`
	Purpose           string            `json:"purpose"`
	ValidFrom         time.Time         `json:"valid_from"`
	ValidUntil        *time.Time        `json:"valid_until,omitempty"`
	Version           int               `json:"version"`
	PreviousHash      id.Hash           `json:"previous_hash,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Content returns the hashed document of this version.
func (c *Consent) Content() any {
	return content{
		Grantor:           c.Grantor,
		Grantee:           c.Grantee,
		Scope:             c.Scope,
		CustomPermissions: c.CustomPermissions,
		DataCategories:    c.DataCategories,
		Exclusions:        c.Exclusions,
		Purpose:           c.Purpose,
		ValidFrom:         c.ValidFrom.UTC(),
		ValidUntil:        utcPtr(c.ValidUntil),
		Version:           c.Version,
		PreviousHash:      c.PreviousHash,
		CreatedAt:         c.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Terms are the amendable parts of a consent.
type Terms struct {
	Grantee           Grantee
	Scope             Scope
	CustomPermissions []id.Permission
	DataCategories    []id.DataCategory
	Exclusions        []id.DataCategory
	Purpose           string
	ValidFrom         time.Time
	ValidUntil        *time.Time
}

func (t Terms) validate(grantor id.AgentID) error {
	if err := t.Grantee.Validate(); err != nil {
		return err
	}
	if t.Grantee.Kind == GranteeAgent && t.Grantee.Agent == grantor {
		return dErrors.New(dErrors.CodeValidation, "patients cannot grant consent to themselves")
	}
	if strings.TrimSpace(t.Purpose) == "" {
		return dErrors.New(dErrors.CodeValidation, "purpose is required")
	}
	if len(t.DataCategories) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one data category is required")
	}
	if t.Scope == ScopeCustom && len(t.CustomPermissions) == 0 {
		return dErrors.New(dErrors.CodeValidation, "custom scope requires permissions")
	}
	if t.Scope != ScopeCustom && len(t.CustomPermissions) > 0 {
		return dErrors.New(dErrors.CodeValidation, "permissions are only allowed with custom scope")
	}
	if t.ValidUntil != nil && !t.ValidUntil.After(t.ValidFrom) {
		return dErrors.New(dErrors.CodeValidation, "valid_until must be after valid_from")
	}
	return nil
}

// NewConsent creates the first version of a grant.
func NewConsent(grantor id.AgentID, terms Terms, now time.Time) (*Consent, error) {
	if grantor.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "grantor is required")
	}
	if terms.ValidFrom.IsZero() {
		terms.ValidFrom = now
	}
	if err := terms.validate(grantor); err != nil {
		return nil, err
	}
	c := &Consent{Grantor: grantor, Version: 1, IsActive: true, CreatedAt: now}
	c.setTerms(terms)
	if err := c.seal(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Consent) setTerms(t Terms) {
	c.Grantee = t.Grantee
	c.Scope = t.Scope
	c.CustomPermissions = slices.Clone(t.CustomPermissions)
	c.DataCategories = slices.Clone(t.DataCategories)
	c.Exclusions = slices.Clone(t.Exclusions)
	c.Purpose = strings.TrimSpace(t.Purpose)
	c.ValidFrom = t.ValidFrom
	c.ValidUntil = t.ValidUntil
}

func (c *Consent) seal() error {
	hash, err := entrystore.HashJSON(c.Content())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash consent")
	}
	c.Hash = hash
	return nil
}

// Terms returns the current amendable terms.
func (c *Consent) Terms() Terms {
	return Terms{
		Grantee:           c.Grantee,
		Scope:             c.Scope,
		CustomPermissions: slices.Clone(c.CustomPermissions),
		DataCategories:    slices.Clone(c.DataCategories),
		Exclusions:        slices.Clone(c.Exclusions),
		Purpose:           c.Purpose,
		ValidFrom:         c.ValidFrom,
		ValidUntil:        c.ValidUntil,
	}
}

// IsEffective reports is_active ∧ now ∈ [valid_from, valid_until).
func (c *Consent) IsEffective(now time.Time) bool {
	if !c.IsActive || now.Before(c.ValidFrom) {
		return false
	}
	return c.ValidUntil == nil || now.Before(*c.ValidUntil)
}

// IsExpired reports whether the validity window has closed.
func (c *Consent) IsExpired(now time.Time) bool {
	return c.ValidUntil != nil && !now.Before(*c.ValidUntil)
}

// IsRevoked distinguishes explicit revocation from supersession.
func (c *Consent) IsRevoked() bool {
	return !c.IsActive && c.SupersededBy == ""
}

func (c *Consent) IsSuperseded() bool {
	return c.SupersededBy != ""
}

// Covers reports whether the consent includes category. Exclusions win over
// an All grant.
func (c *Consent) Covers(category id.DataCategory) bool {
	if slices.Contains(c.Exclusions, category) {
		return false
	}
	if category == id.CategoryAll {
		return slices.Contains(c.DataCategories, id.CategoryAll) && len(c.Exclusions) == 0
	}
	return slices.Contains(c.DataCategories, category) || slices.Contains(c.DataCategories, id.CategoryAll)
}

// Permits reports whether the consent's scope allows permission.
func (c *Consent) Permits(p id.Permission, emergency bool) bool {
	return c.Scope.Permits(p, c.CustomPermissions, emergency)
}

// Satisfies reports whether this consent grants at least what required grants.
func (c *Consent) Satisfies(required Scope) bool {
	for _, p := range id.AllPermissions() {
		if required.Permits(p, nil, false) && !c.Permits(p, false) {
			return false
		}
	}
	return true
}

// CanRevoke checks whether this version may be revoked.
func (c *Consent) CanRevoke() error {
	if c.IsSuperseded() {
		return dErrors.New(dErrors.CodeInvariantViolation, "consent was superseded; revoke the latest version")
	}
	if !c.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "consent already revoked")
	}
	return nil
}

// ApplyRevoke deactivates the consent. Irreversible.
func (c *Consent) ApplyRevoke(now time.Time, reason string) {
	c.IsActive = false
	c.RevokedAt = &now
	c.RevocationReason = strings.TrimSpace(reason)
}

// CanAmend checks whether a new version may be derived from this one.
func (c *Consent) CanAmend(now time.Time) error {
	if c.IsSuperseded() {
		return dErrors.New(dErrors.CodeInvariantViolation, "consent was superseded; amend the latest version")
	}
	if !c.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "revoked consent cannot be amended")
	}
	return nil
}

// NewVersion derives the next version with terms and deactivates c as superseded.
func (c *Consent) NewVersion(terms Terms, now time.Time) (*Consent, error) {
	if err := c.CanAmend(now); err != nil {
		return nil, err
	}
	if err := terms.validate(c.Grantor); err != nil {
		return nil, err
	}
	next := &Consent{
		Grantor:      c.Grantor,
		Version:      c.Version + 1,
		PreviousHash: c.Hash,
		IsActive:     true,
		CreatedAt:    now,
	}
	next.setTerms(terms)
	if err := next.seal(); err != nil {
		return nil, err
	}
	c.IsActive = false
	c.SupersededBy = next.Hash
	return next, nil
}

// Clone returns a deep copy.
func (c *Consent) Clone() *Consent {
	cp := *c
	cp.CustomPermissions = slices.Clone(c.CustomPermissions)
	cp.DataCategories = slices.Clone(c.DataCategories)
	cp.Exclusions = slices.Clone(c.Exclusions)
	if c.ValidUntil != nil {
		v := *c.ValidUntil
		cp.ValidUntil = &v
	}
	if c.RevokedAt != nil {
		v := *c.RevokedAt
		cp.RevokedAt = &v
	}
	return &cp
}
