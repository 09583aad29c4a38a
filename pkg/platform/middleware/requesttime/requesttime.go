// Package requesttime provides middleware for request-scoped time.
// All operations within a single HTTP request use the same "now", so a consent
// checked at the start of a query is judged against the same instant as the
// access log row written at the end.
package requesttime

import (
	"net/http"
	"time"

	"healthcommons/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
