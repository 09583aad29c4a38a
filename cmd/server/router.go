package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authorizationhandler "healthcommons/internal/authorization/handler"
	commonshandler "healthcommons/internal/commons/handler"
	consenthandler "healthcommons/internal/consent/handler"
	jwttoken "healthcommons/internal/jwt_token"
	"healthcommons/internal/platform/config"
	httpmetrics "healthcommons/internal/platform/metrics"
	"healthcommons/internal/platform/tracing"
	privacyhandler "healthcommons/internal/privacy/handler"
	queryhandler "healthcommons/internal/query/handler"
	"healthcommons/pkg/platform/httputil"
	"healthcommons/pkg/platform/middleware/auth"
	"healthcommons/pkg/platform/middleware/metadata"
	"healthcommons/pkg/platform/middleware/request"
	"healthcommons/pkg/platform/middleware/requesttime"
)

const requestTimeout = 30 * time.Second

func newRouter(cfg config.Server, a *app, in *infra, logger *slog.Logger) http.Handler {
	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(tracing.Middleware(cfg.Tracing.ServiceName))
	r.Use(httpmetrics.New().Middleware)

	r.Get("/healthz", healthHandler(in))
	r.Handle("/metrics", promhttp.Handler())
	if cfg.DevTokens {
		logger.Warn("dev token endpoint enabled")
		r.Post("/dev/token", devTokenHandler(tokens, logger))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(tokens), logger))

		consenthandler.New(a.consents, logger).Register(r)
		authorizationhandler.New(a.authz, logger).Register(r)
		commonshandler.New(a.commons, logger).Register(r)
		privacyhandler.New(a.privacy, logger).Register(r)
		queryhandler.New(a.queries, logger).Register(r)
	})
	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

// healthHandler reports readiness of the configured backing services.
func healthHandler(in *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if in.db != nil {
			resp.Postgres = "ok"
			if err := in.db.PingContext(ctx); err != nil {
				resp.Postgres, resp.Status, status = "unavailable", "degraded", http.StatusServiceUnavailable
			}
		}
		if in.redis != nil {
			resp.Redis = "ok"
			if err := in.redis.Health(ctx); err != nil {
				resp.Redis, resp.Status, status = "unavailable", "degraded", http.StatusServiceUnavailable
			}
		}
		httputil.WriteJSON(w, status, resp)
	}
}
