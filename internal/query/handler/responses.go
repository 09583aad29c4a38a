package handler

import (
	"time"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/mechanism"
	"healthcommons/internal/query/models"
)

type BucketResponse struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type QueryResultResponse struct {
	PoolID             string              `json:"pool_id"`
	Patient            string              `json:"patient"`
	Category           string              `json:"category"`
	QueryType          string              `json:"query_type"`
	Value              float64             `json:"value"`
	Values             []BucketResponse    `json:"values,omitempty"`
	EpsilonConsumed    float64             `json:"epsilon_consumed"`
	DeltaConsumed      float64             `json:"delta_consumed"`
	StandardError      *float64            `json:"standard_error,omitempty"`
	ConfidenceInterval *mechanism.Interval `json:"confidence_interval,omitempty"`
	ConfidenceLevel    float64             `json:"confidence_level,omitempty"`
	Mechanism          string              `json:"mechanism"`
	ContributorCount   int                 `json:"contributor_count"`
	ExecutedAt         time.Time           `json:"executed_at"`
	Budget             budget.Status       `json:"budget"`
}

func toQueryResultResponse(r *models.Result) QueryResultResponse {
	resp := QueryResultResponse{
		PoolID:             r.PoolID.String(),
		Patient:            r.Patient.String(),
		Category:           string(r.Category),
		QueryType:          string(r.Type),
		Value:              r.Value,
		EpsilonConsumed:    r.EpsilonConsumed,
		DeltaConsumed:      r.DeltaConsumed,
		StandardError:      r.StandardError,
		ConfidenceInterval: r.ConfidenceInterval,
		Mechanism:          string(r.Mechanism),
		ContributorCount:   r.Contributors,
		ExecutedAt:         r.ExecutedAt,
		Budget:             r.Budget,
	}
	if r.ConfidenceInterval != nil {
		resp.ConfidenceLevel = mechanism.ConfidenceLevel
	}
	for _, b := range r.Values {
		resp.Values = append(resp.Values, BucketResponse{Label: b.Label, Value: b.Value})
	}
	return resp
}
