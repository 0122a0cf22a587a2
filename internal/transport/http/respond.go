package http

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"

	"github.com/rentiva/rentiva-backend/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError logs the full error internally and sends only the collapsed
// public message and status to the client.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		log.Printf("[HTTP] %d: %v", status, err)
	}
	writeJSON(w, status, map[string]string{"error": apperr.PublicMessage(err)})
}

// Recover is the single top-level handler for unexpected panics: full detail
// to the log, a generic message to the client.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[HTTP] panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
