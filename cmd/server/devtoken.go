package main

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	jwttoken "healthcommons/internal/jwt_token"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/httputil"
	"healthcommons/pkg/requestcontext"
)

const devTokenTTL = time.Hour

type devTokenRequest struct {
	AgentID string   `json:"agent_id"`
	Roles   []string `json:"roles"`

	agent id.AgentID
}

// Validate mints a fresh agent when none is given.
func (r *devTokenRequest) Validate() error {
	if strings.TrimSpace(r.AgentID) == "" {
		r.agent = id.AgentID(uuid.New())
		return nil
	}
	agent, err := id.ParseAgentID(r.AgentID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid agent_id")
	}
	r.agent = agent
	return nil
}

type devTokenResponse struct {
	AgentID     id.AgentID `json:"agent_id"`
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int        `json:"expires_in"`
}

// devTokenHandler issues short-lived access tokens for local testing.
func devTokenHandler(tokens *jwttoken.JWTService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		req, ok := httputil.DecodeAndPrepare[devTokenRequest](w, r, logger, ctx, requestID)
		if !ok {
			return
		}
		token, err := tokens.GenerateAccessToken(req.agent, req.Roles, devTokenTTL)
		if err != nil {
			logger.ErrorContext(ctx, "failed to issue dev token",
				"request_id", requestID,
				"error", err,
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, devTokenResponse{
			AgentID:     req.agent,
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(devTokenTTL.Seconds()),
		})
	}
}
