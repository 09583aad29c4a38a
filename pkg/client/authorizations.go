package client

import (
	"context"
	"strconv"
	"time"
)

// CheckAuthorization asks whether the caller may access a patient's data.
// A denial comes back as an error with the denial's code.
func (c *Client) CheckAuthorization(ctx context.Context, req AuthorizationRequest) (*Decision, error) {
	var out Decision
	if err := c.post(ctx, "/authorizations/check", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AccessLogs(ctx context.Context, filter AccessLogFilter) ([]AccessLog, error) {
	query := map[string]string{}
	if !filter.From.IsZero() {
		query["from"] = filter.From.Format(time.RFC3339)
	}
	if !filter.To.IsZero() {
		query["to"] = filter.To.Format(time.RFC3339)
	}
	if !filter.Accessor.IsNil() {
		query["accessor"] = filter.Accessor.String()
	}
	if filter.Limit > 0 {
		query["limit"] = strconv.Itoa(filter.Limit)
	}
	var out struct {
		Logs []AccessLog `json:"logs"`
	}
	if err := c.get(ctx, "/patients/me/access-logs", query, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

func reportQuery(from, to time.Time) map[string]string {
	query := map[string]string{}
	if !from.IsZero() {
		query["from"] = from.Format(time.RFC3339)
	}
	if !to.IsZero() {
		query["to"] = to.Format(time.RFC3339)
	}
	return query
}

// DisclosureReport summarises who accessed the caller's data between from and
// to. Zero times fall back to the server default window.
func (c *Client) DisclosureReport(ctx context.Context, from, to time.Time) (*DisclosureReport, error) {
	var out DisclosureReport
	if err := c.get(ctx, "/patients/me/disclosures", reportQuery(from, to), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisclosureReportXLSX downloads the same report as a spreadsheet.
func (c *Client) DisclosureReportXLSX(ctx context.Context, from, to time.Time) ([]byte, error) {
	return c.getRaw(ctx, "/patients/me/disclosures.xlsx", reportQuery(from, to))
}
