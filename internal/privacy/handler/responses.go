package handler

import (
	"time"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/models"
)

type BudgetStatusResponse struct {
	Patient           string             `json:"patient"`
	PoolID            string             `json:"pool_id"`
	Status            budget.Status      `json:"status"`
	Display           budget.DisplayInfo `json:"display"`
	CompositionMethod string             `json:"composition_method"`
	PeriodStart       time.Time          `json:"period_start"`
	PeriodEnd         time.Time          `json:"period_end"`
	AutoRenew         bool               `json:"auto_renew"`
	EstimatedQueries  *int64             `json:"estimated_queries,omitempty"`
	OptimalEpsilon    *float64           `json:"optimal_epsilon,omitempty"`
}

type SimulateResponse struct {
	Admitted int           `json:"admitted"`
	Status   budget.Status `json:"status"`
}

func toBudgetStatusResponse(v *models.BudgetView, q statusQuery) BudgetStatusResponse {
	resp := BudgetStatusResponse{
		Patient:           v.Entry.Patient.String(),
		PoolID:            v.Entry.PoolID.String(),
		Status:            v.Status,
		Display:           v.Display,
		CompositionMethod: string(v.Entry.Composition.Method),
		PeriodStart:       v.Entry.PeriodStart,
		PeriodEnd:         v.Entry.PeriodEnd,
		AutoRenew:         v.Entry.AutoRenew,
	}
	if q.epsilon > 0 {
		n := budget.EstimateRemainingQueries(v.Status, q.epsilon)
		resp.EstimatedQueries = &n
	}
	if q.queries > 0 {
		eps := budget.CalculateOptimalEpsilon(v.Status, q.queries)
		resp.OptimalEpsilon = &eps
	}
	return resp
}
