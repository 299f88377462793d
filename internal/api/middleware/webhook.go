package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebhookSecret rejects webhook calls whose secret header does not match.
// An empty secret accepts every call; the server warns about it at startup.
func WebhookSecret(header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(header)), []byte(secret)) != 1 {
				log.Warn().Str("remote", r.RemoteAddr).Msg("Webhook call with a bad secret")
				respondJSON(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
