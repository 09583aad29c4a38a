package handler

//go:generate mockgen -source=handler.go -destination=mocks/commons-mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"healthcommons/internal/commons/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/httputil"
	"healthcommons/pkg/requestcontext"
)

type Service interface {
	CreatePool(ctx context.Context, creator id.AgentID, spec models.PoolSpec) (*models.Pool, error)
	GetPool(ctx context.Context, poolID id.PoolID) (*models.Pool, error)
	ListPools(ctx context.Context, status models.PoolStatus) ([]*models.Pool, error)
	SetPoolStatus(ctx context.Context, caller id.AgentID, poolID id.PoolID, next models.PoolStatus) (*models.Pool, error)
	Contribute(ctx context.Context, contributor id.AgentID, poolID id.PoolID, req models.ContributionRequest) (*models.Contribution, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register adds the pool routes. Paths are absolute because the budget and
// query handlers share the /pools/{id} prefix.
func (h *Handler) Register(r chi.Router) {
	r.Post("/pools", h.handleCreate)
	r.Get("/pools", h.handleList)
	r.Get("/pools/{id}", h.handleGet)
	r.Post("/pools/{id}/status", h.handleSetStatus)
	r.Post("/pools/{id}/contributions", h.handleContribute)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreatePoolRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pool, err := h.service.CreatePool(ctx, caller, req.ParsedSpec())
	if err != nil {
		h.fail(ctx, w, "failed to create pool", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toPoolResponse(pool))
}

// handleList lists pools, optionally filtered by ?status=.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var status models.PoolStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := models.ParsePoolStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = parsed
	}
	pools, err := h.service.ListPools(ctx, status)
	if err != nil {
		h.fail(ctx, w, "failed to list pools", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPoolListResponse(pools))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	poolID, ok := h.poolID(w, r)
	if !ok {
		return
	}
	pool, err := h.service.GetPool(ctx, poolID)
	if err != nil {
		h.fail(ctx, w, "failed to get pool", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPoolResponse(pool))
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	poolID, ok := h.poolID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pool, err := h.service.SetPoolStatus(ctx, caller, poolID, req.status)
	if err != nil {
		h.fail(ctx, w, "failed to change pool status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPoolResponse(pool))
}

func (h *Handler) handleContribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	requestID := requestcontext.RequestID(ctx)
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	poolID, ok := h.poolID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ContributeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	contribution, err := h.service.Contribute(ctx, caller, poolID, req.Parsed())
	if err != nil {
		h.fail(ctx, w, "failed to record contribution", err)
		return
	}
	h.logger.InfoContext(ctx, "contribution accepted",
		"request_id", requestID,
		"pool_id", poolID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, toContributionResponse(contribution))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.AgentID, bool) {
	caller := requestcontext.AgentID(r.Context())
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return id.AgentID{}, false
	}
	return caller, true
}

func (h *Handler) poolID(w http.ResponseWriter, r *http.Request) (id.PoolID, bool) {
	poolID, err := id.ParsePoolID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.PoolID{}, false
	}
	return poolID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
