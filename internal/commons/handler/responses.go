package handler

import (
	"time"

	"healthcommons/internal/commons/models"
	id "healthcommons/pkg/domain"
)

type PoolResponse struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Description          string             `json:"description,omitempty"`
	DataCategories       []string           `json:"data_categories"`
	RequiredConsentLevel string             `json:"required_consent_level"`
	DefaultEpsilon       float64            `json:"default_epsilon"`
	BudgetPerUser        float64            `json:"budget_per_user"`
	DeltaBudget          float64            `json:"delta_budget"`
	GovernanceModel      string             `json:"governance_model"`
	Composition          CompositionRequest `json:"composition"`
	MinContributors      int                `json:"min_contributors"`
	Status               string             `json:"status"`
	IsActive             bool               `json:"is_active"`
	Creator              string             `json:"creator"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type PoolListResponse struct {
	Pools []PoolResponse `json:"pools"`
}

type ContributionResponse struct {
	ID             string    `json:"id"`
	PoolID         string    `json:"pool_id"`
	Category       string    `json:"category"`
	PayloadHash    string    `json:"payload_hash"`
	ConsentHash    string    `json:"consent_hash"`
	BudgetConsumed float64   `json:"budget_consumed"`
	CreatedAt      time.Time `json:"created_at"`
}

func toPoolResponse(p *models.Pool) PoolResponse {
	return PoolResponse{
		ID:                   p.ID.String(),
		Name:                 p.Name,
		Description:          p.Description,
		DataCategories:       id.CategoriesToStrings(p.DataCategories),
		RequiredConsentLevel: string(p.RequiredConsentLevel),
		DefaultEpsilon:       p.DefaultEpsilon,
		BudgetPerUser:        p.BudgetPerUser,
		DeltaBudget:          p.DeltaBudget,
		GovernanceModel:      string(p.Governance),
		Composition: CompositionRequest{
			Method:     string(p.Composition.Method),
			DeltaPrime: p.Composition.DeltaPrime,
		},
		MinContributors: p.MinContributors,
		Status:          string(p.Status),
		IsActive:        p.IsActive(),
		Creator:         p.Creator.String(),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toPoolListResponse(pools []*models.Pool) PoolListResponse {
	out := PoolListResponse{Pools: make([]PoolResponse, 0, len(pools))}
	for _, p := range pools {
		out.Pools = append(out.Pools, toPoolResponse(p))
	}
	return out
}

func toContributionResponse(c *models.Contribution) ContributionResponse {
	return ContributionResponse{
		ID:             c.ID.String(),
		PoolID:         c.PoolID.String(),
		Category:       string(c.Category),
		PayloadHash:    c.PayloadHash.String(),
		ConsentHash:    c.ConsentHash.String(),
		BudgetConsumed: c.BudgetConsumed,
		CreatedAt:      c.CreatedAt,
	}
}
