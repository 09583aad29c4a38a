package handler

import (
	"time"

	"healthcommons/internal/authorization/models"
)

type DecisionResponse struct {
	Authorized        bool       `json:"authorized"`
	ConsentHash       string     `json:"consent_hash,omitempty"`
	Reason            string     `json:"reason"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	EmergencyOverride bool       `json:"emergency_override"`
}

type AccessLogResponse struct {
	ID                string    `json:"id"`
	Requester         string    `json:"requester"`
	Category          string    `json:"category"`
	Permission        string    `json:"permission"`
	Outcome           string    `json:"outcome"`
	Reason            string    `json:"reason"`
	ConsentHash       string    `json:"consent_hash,omitempty"`
	EmergencyOverride bool      `json:"emergency_override"`
	Justification     string    `json:"justification,omitempty"`
	ClientIP          string    `json:"client_ip,omitempty"`
	ClientSummary     string    `json:"client_summary,omitempty"`
	AccessedAt        time.Time `json:"accessed_at"`
}

type AccessLogListResponse struct {
	Logs []AccessLogResponse `json:"logs"`
}

type AccessorSummaryResponse struct {
	Accessor   string    `json:"accessor"`
	Granted    int       `json:"granted"`
	Denied     int       `json:"denied"`
	Emergency  int       `json:"emergency"`
	Categories []string  `json:"categories"`
	LastAccess time.Time `json:"last_access"`
}

type DisclosureReportResponse struct {
	Patient   string                    `json:"patient"`
	From      time.Time                 `json:"from"`
	To        time.Time                 `json:"to"`
	Accessors []AccessorSummaryResponse `json:"accessors"`
}

func toDecisionResponse(d *models.Decision) DecisionResponse {
	return DecisionResponse{
		Authorized:        d.Authorized,
		ConsentHash:       d.ConsentHash.String(),
		Reason:            d.Reason,
		ExpiresAt:         d.ExpiresAt,
		EmergencyOverride: d.EmergencyOverride,
	}
}

func toLogListResponse(logs []*models.AccessLog) AccessLogListResponse {
	out := AccessLogListResponse{Logs: make([]AccessLogResponse, 0, len(logs))}
	for _, l := range logs {
		out.Logs = append(out.Logs, AccessLogResponse{
			ID:                l.ID.String(),
			Requester:         l.Requester.String(),
			Category:          string(l.Category),
			Permission:        string(l.Permission),
			Outcome:           string(l.Outcome),
			Reason:            l.Reason,
			ConsentHash:       l.ConsentHash.String(),
			EmergencyOverride: l.EmergencyOverride,
			Justification:     l.Justification,
			ClientIP:          l.ClientIP,
			ClientSummary:     l.ClientSummary,
			AccessedAt:        l.AccessedAt,
		})
	}
	return out
}

func toReportResponse(r *models.DisclosureReport) DisclosureReportResponse {
	out := DisclosureReportResponse{
		Patient:   r.Patient.String(),
		From:      r.From,
		To:        r.To,
		Accessors: make([]AccessorSummaryResponse, 0, len(r.Accessors)),
	}
	for _, a := range r.Accessors {
		categories := make([]string, 0, len(a.Categories))
		for _, c := range a.Categories {
			categories = append(categories, string(c))
		}
		out.Accessors = append(out.Accessors, AccessorSummaryResponse{
			Accessor:   a.Accessor.String(),
			Granted:    a.Granted,
			Denied:     a.Denied,
			Emergency:  a.Emergency,
			Categories: categories,
			LastAccess: a.LastAccess,
		})
	}
	return out
}
