package handler

import (
	"time"

	"healthcommons/internal/consent/models"
	"healthcommons/internal/consent/service"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

type GranteeRequest struct {
	Kind  string `json:"kind"`
	Agent string `json:"agent,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (g GranteeRequest) parse() (models.Grantee, error) {
	grantee := models.Grantee{Kind: models.GranteeKind(g.Kind), Role: g.Role}
	if g.Agent != "" {
		agent, err := id.ParseAgentID(g.Agent)
		if err != nil {
			return models.Grantee{}, err
		}
		grantee.Agent = agent
	}
	return grantee, grantee.Validate()
}

type GrantRequest struct {
	Grantee        GranteeRequest `json:"grantee"`
	Scope          string         `json:"scope"`
	Permissions    []string       `json:"permissions,omitempty"`
	DataCategories []string       `json:"data_categories"`
	Exclusions     []string       `json:"exclusions,omitempty"`
	Purpose        string         `json:"purpose"`
	ValidFrom      *time.Time     `json:"valid_from,omitempty"`
	ValidUntil     *time.Time     `json:"valid_until,omitempty"`

	terms models.Terms
}

func (r *GrantRequest) Validate() error {
	sanitize(r)
	grantee, err := r.Grantee.parse()
	if err != nil {
		return err
	}
	scope, err := parseScope(r.Scope, r.Permissions, r.DataCategories, r.Exclusions)
	if err != nil {
		return err
	}
	if r.Purpose == "" {
		return dErrors.New(dErrors.CodeValidation, "purpose is required")
	}
	r.terms = models.Terms{
		Grantee:           grantee,
		Scope:             scope.Scope,
		CustomPermissions: scope.CustomPermissions,
		DataCategories:    scope.DataCategories,
		Exclusions:        scope.Exclusions,
		Purpose:           r.Purpose,
		ValidUntil:        r.ValidUntil,
	}
	if r.ValidFrom != nil {
		r.terms.ValidFrom = *r.ValidFrom
	}
	return nil
}

func (r *GrantRequest) ParsedTerms() models.Terms { return r.terms }

type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Validate() error {
	sanitize(r)
	if len(r.Reason) > 500 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	return nil
}

type ExtendRequest struct {
	ValidUntil time.Time `json:"valid_until"`
}

func (r *ExtendRequest) Validate() error {
	if r.ValidUntil.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "valid_until is required")
	}
	return nil
}

type UpdateScopeRequest struct {
	Scope          string   `json:"scope"`
	Permissions    []string `json:"permissions,omitempty"`
	DataCategories []string `json:"data_categories"`
	Exclusions     []string `json:"exclusions,omitempty"`

	change service.ScopeChange
}

func (r *UpdateScopeRequest) Validate() error {
	sanitize(r)
	change, err := parseScope(r.Scope, r.Permissions, r.DataCategories, r.Exclusions)
	if err != nil {
		return err
	}
	r.change = change
	return nil
}

func (r *UpdateScopeRequest) ParsedChange() service.ScopeChange { return r.change }

func parseScope(rawScope string, rawPermissions, rawCategories, rawExclusions []string) (service.ScopeChange, error) {
	scope, err := models.ParseScope(rawScope)
	if err != nil {
		return service.ScopeChange{}, err
	}
	categories, err := id.ParseDataCategories(rawCategories)
	if err != nil {
		return service.ScopeChange{}, err
	}
	if len(categories) == 0 {
		return service.ScopeChange{}, dErrors.New(dErrors.CodeValidation, "data_categories must not be empty")
	}
	exclusions, err := id.ParseDataCategories(rawExclusions)
	if err != nil {
		return service.ScopeChange{}, err
	}
	var permissions []id.Permission
	for _, raw := range rawPermissions {
		p, err := id.ParsePermission(raw)
		if err != nil {
			return service.ScopeChange{}, err
		}
		permissions = append(permissions, p)
	}
	return service.ScopeChange{
		Scope:             scope,
		CustomPermissions: permissions,
		DataCategories:    categories,
		Exclusions:        exclusions,
	}, nil
}
