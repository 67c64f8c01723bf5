package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/meterly/datagate/internal/api/httpx"
)

// AdminAuth guards administrative endpoints with a static bearer token.
// An empty token disables the check (dev mode).
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
				return
			}
			got := strings.TrimSpace(ah[len("Bearer "):])
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
