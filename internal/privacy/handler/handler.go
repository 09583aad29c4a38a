package handler

//go:generate mockgen -source=handler.go -destination=mocks/privacy-mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/httputil"
	"healthcommons/pkg/requestcontext"
)

type Service interface {
	GetStatus(ctx context.Context, patient id.AgentID, poolID id.PoolID) (*models.BudgetView, error)
	CheckQueryBudget(ctx context.Context, patient id.AgentID, poolID id.PoolID, epsilon, delta float64) (*budget.BudgetCheck, error)
}

// Handler exposes a caller's own privacy budget. Budgets are personal: no
// route reads another agent's ledger.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/pools/{id}/budget", h.handleStatus)
	r.Post("/pools/{id}/budget/check", h.handleCheck)
	r.Post("/pools/{id}/budget/simulate", h.handleSimulate)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, poolID, ok := h.target(w, r)
	if !ok {
		return
	}
	q, err := parseStatusQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !q.patient.IsNil() && q.patient != caller {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "budgets can only be read by their patient"))
		return
	}
	view, err := h.service.GetStatus(ctx, caller, poolID)
	if err != nil {
		h.fail(ctx, w, "failed to get privacy budget", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBudgetStatusResponse(view, q))
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, poolID, ok := h.target(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CheckBudgetRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	check, err := h.service.CheckQueryBudget(ctx, caller, poolID, req.Epsilon, req.DeltaValue())
	if err != nil {
		h.fail(ctx, w, "failed to check privacy budget", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, check)
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, poolID, ok := h.target(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SimulateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	view, err := h.service.GetStatus(ctx, caller, poolID)
	if err != nil {
		h.fail(ctx, w, "failed to get privacy budget", err)
		return
	}
	status, admitted := budget.SimulateConsumption(view.Status, req.Epsilons)
	httputil.WriteJSON(w, http.StatusOK, SimulateResponse{Admitted: admitted, Status: status})
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (id.AgentID, id.PoolID, bool) {
	caller := requestcontext.AgentID(r.Context())
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return id.AgentID{}, id.PoolID{}, false
	}
	poolID, err := id.ParsePoolID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.AgentID{}, id.PoolID{}, false
	}
	return caller, poolID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
