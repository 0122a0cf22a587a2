package middleware

import (
	"net/http"
	"strings"

	"github.com/rentiva/rentiva-backend/pkg/httputil"
)

// EnableCORS allows the configured origins with credentials and the custom
// token headers.
func EnableCORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowedHeaders := strings.Join([]string{
		"Content-Type",
		httputil.AccessTokenHeader,
		httputil.SessionTokenHeader,
	}, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range allowedOrigins {
			if allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
