package handler

import (
	"strings"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/mechanism"
	"healthcommons/internal/query/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

// ExecuteQueryRequest is the body of POST /pools/{id}/queries. Patient
// defaults to the caller. Histograms declare their Buckets and medians their
// Grid up front.
type ExecuteQueryRequest struct {
	Patient     string          `json:"patient,omitempty"`
	Category    string          `json:"category"`
	QueryType   string          `json:"query_type"`
	Epsilon     float64         `json:"epsilon"`
	Delta       *float64        `json:"delta,omitempty"`
	Sensitivity float64         `json:"sensitivity"`
	Mechanism   string          `json:"mechanism,omitempty"`
	Buckets     []string        `json:"buckets,omitempty"`
	Grid        *mechanism.Grid `json:"grid,omitempty"`

	patient   id.AgentID
	category  id.DataCategory
	queryType models.QueryType
	mechanism budget.Mechanism
}

func (r *ExecuteQueryRequest) Validate() error {
	var err error
	if p := strings.TrimSpace(r.Patient); p != "" {
		if r.patient, err = id.ParseAgentID(p); err != nil {
			return err
		}
	}
	if r.category, err = id.ParseDataCategory(r.Category); err != nil {
		return err
	}
	if r.queryType, err = models.ParseQueryType(r.QueryType); err != nil {
		return err
	}
	if m := strings.ToLower(strings.TrimSpace(r.Mechanism)); m != "" {
		r.mechanism = budget.Mechanism(m)
		if !r.mechanism.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown mechanism %q", r.Mechanism)
		}
	}
	return nil
}

// Query builds the executor request. A missing patient means the caller
// queries against their own budget.
func (r *ExecuteQueryRequest) Query(caller id.AgentID, poolID id.PoolID) models.Request {
	patient := r.patient
	if patient.IsNil() {
		patient = caller
	}
	return models.Request{
		PoolID:   poolID,
		Patient:  patient,
		Category: r.category,
		Type:     r.queryType,
		Buckets:  r.Buckets,
		Grid:     r.Grid,
		Params: budget.Params{
			Epsilon:     r.Epsilon,
			Delta:       r.Delta,
			Sensitivity: r.Sensitivity,
			Mechanism:   r.mechanism,
		},
	}
}
