package handler

import (
	"time"

	"healthcommons/internal/consent/models"
	id "healthcommons/pkg/domain"
)

type ConsentResponse struct {
	Hash             string          `json:"hash"`
	Grantor          string          `json:"grantor"`
	Grantee          models.Grantee  `json:"grantee"`
	Scope            string          `json:"scope"`
	Permissions      []id.Permission `json:"permissions,omitempty"`
	DataCategories   []string        `json:"data_categories"`
	Exclusions       []string        `json:"exclusions,omitempty"`
	Purpose          string          `json:"purpose"`
	ValidFrom        time.Time       `json:"valid_from"`
	ValidUntil       *time.Time      `json:"valid_until,omitempty"`
	IsActive         bool            `json:"is_active"`
	IsEffective      bool            `json:"is_effective"`
	RevokedAt        *time.Time      `json:"revoked_at,omitempty"`
	RevocationReason string          `json:"revocation_reason,omitempty"`
	SupersededBy     string          `json:"superseded_by,omitempty"`
	Version          int             `json:"version"`
	PreviousHash     string          `json:"previous_hash,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type ConsentListResponse struct {
	Consents []ConsentResponse `json:"consents"`
}

func toResponse(c *models.Consent, now time.Time) ConsentResponse {
	return ConsentResponse{
		Hash:             c.Hash.String(),
		Grantor:          c.Grantor.String(),
		Grantee:          c.Grantee,
		Scope:            string(c.Scope),
		Permissions:      c.CustomPermissions,
		DataCategories:   id.CategoriesToStrings(c.DataCategories),
		Exclusions:       id.CategoriesToStrings(c.Exclusions),
		Purpose:          c.Purpose,
		ValidFrom:        c.ValidFrom,
		ValidUntil:       c.ValidUntil,
		IsActive:         c.IsActive,
		IsEffective:      c.IsEffective(now),
		RevokedAt:        c.RevokedAt,
		RevocationReason: c.RevocationReason,
		SupersededBy:     c.SupersededBy.String(),
		Version:          c.Version,
		PreviousHash:     c.PreviousHash.String(),
		CreatedAt:        c.CreatedAt,
	}
}

func toListResponse(consents []*models.Consent, now time.Time) ConsentListResponse {
	out := ConsentListResponse{Consents: make([]ConsentResponse, 0, len(consents))}
	for _, c := range consents {
		out.Consents = append(out.Consents, toResponse(c, now))
	}
	return out
}
