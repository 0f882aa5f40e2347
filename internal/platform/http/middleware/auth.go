package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyAuth guards the admin API with the master key in X-API-Key.
func APIKeyAuth(validKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get("X-API-Key")

			if clientKey == "" || validKey == "" ||
				subtle.ConstantTimeCompare([]byte(clientKey), []byte(validKey)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status":"error","message":"invalid or missing API key"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
