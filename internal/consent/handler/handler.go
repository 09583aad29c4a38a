package handler

//go:generate mockgen -source=handler.go -destination=mocks/consent-mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"healthcommons/internal/consent/models"
	"healthcommons/internal/consent/service"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/httputil"
	"healthcommons/pkg/requestcontext"
)

// Service defines the consent operations the handler exposes.
type Service interface {
	Grant(ctx context.Context, grantor id.AgentID, terms models.Terms) (*models.Consent, error)
	Revoke(ctx context.Context, grantor id.AgentID, hash id.Hash, reason string) (*models.Consent, error)
	Extend(ctx context.Context, grantor id.AgentID, hash id.Hash, validUntil time.Time) (*models.Consent, error)
	UpdateScope(ctx context.Context, grantor id.AgentID, hash id.Hash, change service.ScopeChange) (*models.Consent, error)
	Get(ctx context.Context, caller id.AgentID, hash id.Hash) (*models.Consent, error)
	History(ctx context.Context, caller id.AgentID, hash id.Hash) ([]*models.Consent, error)
	ListByGrantor(ctx context.Context, grantor id.AgentID) ([]*models.Consent, error)
	ListReceived(ctx context.Context, grantee id.AgentID) ([]*models.Consent, error)
}

// Handler serves the consent ledger endpoints. Routes expect the auth
// middleware to have put the caller on the context.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/consents", func(r chi.Router) {
		r.Post("/", h.handleGrant)
		r.Get("/", h.handleList)
		r.Get("/{hash}", h.handleGet)
		r.Get("/{hash}/history", h.handleHistory)
		r.Post("/{hash}/revoke", h.handleRevoke)
		r.Post("/{hash}/extend", h.handleExtend)
		r.Post("/{hash}/scope", h.handleUpdateScope)
	})
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[GrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	consent, err := h.service.Grant(ctx, caller, req.ParsedTerms())
	if err != nil {
		h.fail(ctx, w, "failed to grant consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(consent, requestcontext.Now(ctx)))
}

// handleList returns consents the caller granted, or with ?received=true,
// consents naming the caller as grantee.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var (
		consents []*models.Consent
		err      error
	)
	if r.URL.Query().Get("received") == "true" {
		consents, err = h.service.ListReceived(ctx, caller)
	} else {
		consents, err = h.service.ListByGrantor(ctx, caller)
	}
	if err != nil {
		h.fail(ctx, w, "failed to list consents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(consents, requestcontext.Now(ctx)))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, hash, ok := h.callerAndHash(w, r)
	if !ok {
		return
	}
	consent, err := h.service.Get(ctx, caller, hash)
	if err != nil {
		h.fail(ctx, w, "failed to get consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(consent, requestcontext.Now(ctx)))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, hash, ok := h.callerAndHash(w, r)
	if !ok {
		return
	}
	chain, err := h.service.History(ctx, caller, hash)
	if err != nil {
		h.fail(ctx, w, "failed to load consent history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(chain, requestcontext.Now(ctx)))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, hash, ok := h.callerAndHash(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	consent, err := h.service.Revoke(ctx, caller, hash, req.Reason)
	if err != nil {
		h.fail(ctx, w, "failed to revoke consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(consent, requestcontext.Now(ctx)))
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, hash, ok := h.callerAndHash(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ExtendRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	consent, err := h.service.Extend(ctx, caller, hash, req.ValidUntil)
	if err != nil {
		h.fail(ctx, w, "failed to extend consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(consent, requestcontext.Now(ctx)))
}

func (h *Handler) handleUpdateScope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, hash, ok := h.callerAndHash(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateScopeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	consent, err := h.service.UpdateScope(ctx, caller, hash, req.ParsedChange())
	if err != nil {
		h.fail(ctx, w, "failed to update consent scope", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(consent, requestcontext.Now(ctx)))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.AgentID, bool) {
	caller := requestcontext.AgentID(r.Context())
	if caller.IsNil() {
		h.logger.ErrorContext(r.Context(), "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return id.AgentID{}, false
	}
	return caller, true
}

func (h *Handler) callerAndHash(w http.ResponseWriter, r *http.Request) (id.AgentID, id.Hash, bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return id.AgentID{}, "", false
	}
	hash, err := id.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.AgentID{}, "", false
	}
	return caller, hash, true
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
