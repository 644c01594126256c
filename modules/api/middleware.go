package api

import (
	"crypto/subtle"
	"net/http"
)

// AdminSecretHeader carries the shared secret protecting admin endpoints.
const AdminSecretHeader = "X-Admin-Secret"

// adminOnly rejects requests whose shared secret does not match. The
// comparison is constant-time so the secret cannot be probed byte by byte.
func adminOnly(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(AdminSecretHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid admin secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
