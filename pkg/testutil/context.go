package testutil

import (
	"net/http"

	id "healthcommons/pkg/domain"
	"healthcommons/pkg/requestcontext"
)

// WithAgent places an authenticated caller on the request context, the way
// the auth middleware does after validating a bearer token.
func WithAgent(req *http.Request, agent id.AgentID, roles ...string) *http.Request {
	ctx := requestcontext.WithAgentID(req.Context(), agent)
	if len(roles) > 0 {
		ctx = requestcontext.WithRoles(ctx, roles)
	}
	return req.WithContext(ctx)
}

// WithBearer sets the Authorization header for requests sent through the
// full middleware chain.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
