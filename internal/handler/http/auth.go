package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// NewTokenAuth guards the ops routes with a static bearer token. An empty
// token disables the check.
func NewTokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// [PRE_AUTH] Validate identity before reaching any handler
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeError(w, http.StatusUnauthorized, "authentication failed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
