package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// APIKeyAuth guards the admin API. A request must carry one of the
// configured keys via
//   - Authorization: Bearer <key>
//   - X-API-Key: <key>
//
// With no keys configured every request is refused, so an unconfigured
// deployment never exposes engram or pipeline management.
type APIKeyAuth struct {
	keys [][]byte
}

// NewAPIKeyAuth creates the middleware. Empty keys are ignored.
func NewAPIKeyAuth(keys ...string) *APIKeyAuth {
	a := &APIKeyAuth{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

// Enabled reports whether at least one key is configured.
func (a *APIKeyAuth) Enabled() bool { return len(a.keys) > 0 }

// Middleware enforces the key check.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			respondJSON(w, http.StatusForbidden, "admin_disabled", "The admin API is disabled. Set LARDER_ADMIN_API_KEY to enable it.")
			return
		}

		apiKey := extractAPIKey(r)
		if apiKey == "" {
			respondUnauthorized(w, "API key required. Set Authorization: Bearer <key> or X-API-Key header.")
			return
		}
		if !a.validateKey(apiKey) {
			respondUnauthorized(w, "Invalid API key.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) validateKey(candidate string) bool {
	ok := false
	for _, key := range a.keys {
		// Compare against every key so timing does not reveal which one matched.
		if subtle.ConstantTimeCompare([]byte(candidate), key) == 1 {
			ok = true
		}
	}
	return ok
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="larder"`)
	respondJSON(w, http.StatusUnauthorized, "unauthorized", msg)
}

func respondJSON(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": msg,
	})
}
