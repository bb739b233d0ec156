package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusBadRequest {
		writeJSON(w, status, errorResponse{Error: message})
		return
	}
	writeJSON(w, status, messageResponse{Message: message})
}

// writeError maps the service error taxonomy onto HTTP statuses. Internal
// causes are logged but never sent to the client.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch auth.KindOf(err) {
	case auth.KindInvalidCredentials, auth.KindUnauthorized:
		status = http.StatusUnauthorized
		message = err.Error()
	case auth.KindConflict:
		status = http.StatusConflict
		message = err.Error()
	case auth.KindNotFound:
		status = http.StatusNotFound
		message = err.Error()
	case auth.KindInvalidToken, auth.KindValidation:
		status = http.StatusBadRequest
		message = err.Error()
	default:
		logger.Error().Err(err).Msg("internal error")
	}

	writeJSON(w, status, errorResponse{Error: message})
}
