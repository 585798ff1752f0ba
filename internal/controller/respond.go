package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps domain errors to HTTP status codes.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, appErrors.ErrInvalidParam), errors.Is(err, appErrors.ErrInvalidMessageID):
		status = http.StatusBadRequest
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}
