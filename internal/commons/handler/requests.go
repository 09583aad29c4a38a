package handler

import (
	"strings"

	"healthcommons/internal/commons/models"
	consentmodel "healthcommons/internal/consent/models"
	"healthcommons/internal/privacy/budget"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

type CompositionRequest struct {
	Method     string  `json:"method"`
	DeltaPrime float64 `json:"delta_prime,omitempty"`
}

type CreatePoolRequest struct {
	Name                 string              `json:"name"`
	Description          string              `json:"description,omitempty"`
	DataCategories       []string            `json:"data_categories"`
	RequiredConsentLevel string              `json:"required_consent_level,omitempty"`
	DefaultEpsilon       float64             `json:"default_epsilon"`
	BudgetPerUser        float64             `json:"budget_per_user"`
	DeltaBudget          float64             `json:"delta_budget,omitempty"`
	GovernanceModel      string              `json:"governance_model,omitempty"`
	Composition          *CompositionRequest `json:"composition,omitempty"`
	MinContributors      int                 `json:"min_contributors,omitempty"`

	spec models.PoolSpec
}

// Validate parses enum fields. Numeric bounds are checked by the pool model
// once defaults are applied.
func (r *CreatePoolRequest) Validate() error {
	categories, err := id.ParseDataCategories(r.DataCategories)
	if err != nil {
		return err
	}
	r.spec = models.PoolSpec{
		Name:            strings.TrimSpace(r.Name),
		Description:     strings.TrimSpace(r.Description),
		DataCategories:  categories,
		DefaultEpsilon:  r.DefaultEpsilon,
		BudgetPerUser:   r.BudgetPerUser,
		DeltaBudget:     r.DeltaBudget,
		MinContributors: r.MinContributors,
	}
	if level := strings.TrimSpace(r.RequiredConsentLevel); level != "" {
		if r.spec.RequiredConsentLevel, err = consentmodel.ParseScope(level); err != nil {
			return err
		}
	}
	if g := strings.TrimSpace(r.GovernanceModel); g != "" {
		if r.spec.Governance, err = models.ParseGovernanceModel(g); err != nil {
			return err
		}
	}
	if r.Composition != nil {
		switch budget.CompositionMethod(strings.ToLower(strings.TrimSpace(r.Composition.Method))) {
		case budget.CompositionBasic:
			r.spec.Composition = budget.Basic()
		case budget.CompositionAdvanced:
			r.spec.Composition = budget.Advanced(r.Composition.DeltaPrime)
		default:
			return dErrors.New(dErrors.CodeValidation, "composition method must be basic or advanced")
		}
	}
	return r.spec.WithDefaults().Validate()
}

func (r *CreatePoolRequest) ParsedSpec() models.PoolSpec { return r.spec }

type SetStatusRequest struct {
	Status string `json:"status"`

	status models.PoolStatus
}

func (r *SetStatusRequest) Validate() error {
	var err error
	r.status, err = models.ParsePoolStatus(r.Status)
	return err
}

type PayloadRequest struct {
	Value  float64 `json:"value"`
	Flag   *bool   `json:"flag,omitempty"`
	Bucket string  `json:"bucket,omitempty"`
}

type ContributeRequest struct {
	Category     string         `json:"category"`
	ConsentHash  string         `json:"consent_hash"`
	Payload      PayloadRequest `json:"payload"`
	LocalEpsilon float64        `json:"local_epsilon,omitempty"`

	parsed models.ContributionRequest
}

func (r *ContributeRequest) Validate() error {
	category, err := id.ParseDataCategory(strings.ToLower(strings.TrimSpace(r.Category)))
	if err != nil {
		return err
	}
	hash, err := id.ParseHash(strings.TrimSpace(r.ConsentHash))
	if err != nil {
		return err
	}
	r.parsed = models.ContributionRequest{
		Category:    category,
		ConsentHash: hash,
		Payload: models.Payload{
			Value:  r.Payload.Value,
			Flag:   r.Payload.Flag,
			Bucket: strings.TrimSpace(r.Payload.Bucket),
		},
		LocalEpsilon: r.LocalEpsilon,
	}
	return r.parsed.Validate()
}

func (r *ContributeRequest) Parsed() models.ContributionRequest { return r.parsed }
