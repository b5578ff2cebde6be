package web

import (
	"net/http"

	"github.com/JonMunkholm/groupsub/internal/core"
	"github.com/JonMunkholm/groupsub/internal/web/middleware"
)

// requestMeta stores the client address and user agent for audit logging.
// It runs after TrustedRealIP so RemoteAddr is already the client address.
func requestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.WithRequestMeta(r.Context(), core.RequestMeta{
			IPAddress: middleware.ClientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
