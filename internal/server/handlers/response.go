// internal/server/handlers/response.go

package handlers

import (
	"encoding/json"
	"net/http"

	"brandpulse/internal/logging"
)

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper for error responses. Server errors are logged with their cause.
func respondWithError(w http.ResponseWriter, logger logging.Logger, code int, message string, err error) {
	if err != nil && code >= 500 && logger != nil {
		logger.WithError(err).WithField("status", code).Error(message)
	}
	respondWithJSON(w, code, map[string]string{"error": message})
}
