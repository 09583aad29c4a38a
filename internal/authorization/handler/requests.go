package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"healthcommons/internal/authorization/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

type CheckRequest struct {
	Patient       string `json:"patient"`
	Category      string `json:"category"`
	Permission    string `json:"permission"`
	Emergency     bool   `json:"emergency"`
	Justification string `json:"justification,omitempty"`

	patient    id.AgentID
	category   id.DataCategory
	permission id.Permission
}

func (r *CheckRequest) Validate() error {
	var err error
	if r.patient, err = id.ParseAgentID(strings.TrimSpace(r.Patient)); err != nil {
		return err
	}
	if r.category, err = id.ParseDataCategory(strings.ToLower(strings.TrimSpace(r.Category))); err != nil {
		return err
	}
	if r.permission, err = id.ParsePermission(strings.ToLower(strings.TrimSpace(r.Permission))); err != nil {
		return err
	}
	r.Justification = strings.TrimSpace(r.Justification)
	if len(r.Justification) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "justification must be at most 2000 characters")
	}
	return nil
}

// AccessRequest builds the engine request for requester.
func (r *CheckRequest) AccessRequest(requester id.AgentID, roles []string) models.AccessRequest {
	return models.AccessRequest{
		Patient:       r.patient,
		Requester:     requester,
		Roles:         roles,
		Category:      r.category,
		Permission:    r.permission,
		Emergency:     r.Emergency,
		Justification: r.Justification,
	}
}

const maxLogLimit = 1000

// parseLogFilter reads from, to (RFC 3339), accessor and limit query parameters.
func parseLogFilter(q url.Values) (models.LogFilter, error) {
	var f models.LogFilter
	var err error
	if f.From, err = parseTime(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q.Get("to"), "to"); err != nil {
		return f, err
	}
	if raw := q.Get("accessor"); raw != "" {
		if f.Accessor, err = id.ParseAgentID(raw); err != nil {
			return f, err
		}
	}
	f.Limit = 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLogLimit {
			return f, dErrors.Newf(dErrors.CodeValidation, "limit must be between 1 and %d", maxLogLimit)
		}
		f.Limit = n
	}
	return f, nil
}

func parseTime(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}
