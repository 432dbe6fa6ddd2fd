package platform

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyMiddleware enforces X-API-Key when PLUGIN_API_KEY is configured.
// The plugin normally runs behind the orchestrator on a private network,
// so an empty key skips the check.
func APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetEnv("PLUGIN_API_KEY", "")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
