// Package requestid assigns each request a correlation ID, honoring one
// supplied by the reverse proxy.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"heimdall/pkg/requestcontext"
)

const Header = "X-Request-Id"

// Middleware stores the request's correlation ID in the context and echoes
// it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(Header, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
