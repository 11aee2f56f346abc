package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope is the standard API response wrapper used across handlers.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// respondJSON writes a success response using the common envelope.
func respondJSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, envelope{Code: status, Message: message, Data: data})
}

// respondError writes an error response with the shared envelope structure.
func respondError(w http.ResponseWriter, status int, message string) {
	write(w, status, envelope{Code: status, Message: message})
}

func write(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// decodeJSON reads a request body into dst, rejecting unknown garbage early.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
