package handler

//go:generate mockgen -source=handler.go -destination=mocks/authorization-mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"healthcommons/internal/authorization/models"
	"healthcommons/internal/authorization/report"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/httputil"
	"healthcommons/pkg/requestcontext"
)

type Service interface {
	Check(ctx context.Context, req models.AccessRequest) (*models.Decision, error)
	ListAccessLogs(ctx context.Context, patient id.AgentID, filter models.LogFilter) ([]*models.AccessLog, error)
	DisclosureReport(ctx context.Context, patient id.AgentID, from, to time.Time) (*models.DisclosureReport, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/authorizations/check", h.handleCheck)
	r.Get("/patients/me/access-logs", h.handleAccessLogs)
	r.Get("/patients/me/disclosures", h.handleDisclosures)
	r.Get("/patients/me/disclosures.xlsx", h.handleDisclosuresXLSX)
}

// handleCheck authorizes the caller against a patient's consents. Denials
// carry the decision's reason alongside the error code.
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	requestID := requestcontext.RequestID(ctx)
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	decision, err := h.service.Check(ctx, req.AccessRequest(caller, requestcontext.Roles(ctx)))
	if err != nil {
		if de, isDomain := dErrors.As(err); isDomain && decision != nil {
			err = de.WithMeta("reason", decision.Reason)
		}
		h.logger.InfoContext(ctx, "authorization check denied",
			"request_id", requestID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(decision))
}

func (h *Handler) handleAccessLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	filter, err := parseLogFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	logs, err := h.service.ListAccessLogs(ctx, caller, filter)
	if err != nil {
		h.fail(ctx, w, "failed to list access logs", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLogListResponse(logs))
}

func (h *Handler) handleDisclosures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rep, ok := h.report(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReportResponse(rep))
	h.logger.InfoContext(ctx, "disclosure report served",
		"request_id", requestcontext.RequestID(ctx),
		"accessors", len(rep.Accessors),
	)
}

func (h *Handler) handleDisclosuresXLSX(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rep, ok := h.report(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="disclosures.xlsx"`)
	if err := report.WriteXLSX(w, rep); err != nil {
		// Headers are already sent; only the log can record this.
		h.logger.ErrorContext(ctx, "failed to write disclosure workbook",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

// report loads the caller's disclosure report for the from/to query window,
// defaulting to the last 90 days.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) (*models.DisclosureReport, bool) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return nil, false
	}
	filter, err := parseLogFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	to := filter.To
	if to.IsZero() {
		to = requestcontext.Now(ctx)
	}
	from := filter.From
	if from.IsZero() {
		from = to.AddDate(0, 0, -90)
	}
	rep, err := h.service.DisclosureReport(ctx, caller, from, to)
	if err != nil {
		h.fail(ctx, w, "failed to build disclosure report", err)
		return nil, false
	}
	return rep, true
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.AgentID, bool) {
	caller := requestcontext.AgentID(r.Context())
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return id.AgentID{}, false
	}
	return caller, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
