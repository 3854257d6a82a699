package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/account-sync/internal/errors"
	"github.com/account-sync/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondCategorized maps a categorized service error onto an HTTP status.
func respondCategorized(w http.ResponseWriter, err error) {
	ce := apperrors.Categorize(err)

	status := http.StatusInternalServerError
	switch ce.Code {
	case apperrors.CodeNoActiveAccount, apperrors.CodeInvalidAccount:
		status = http.StatusBadRequest
	case apperrors.CodeRemoteFetchFailed:
		status = http.StatusBadGateway
	case apperrors.CodePersistenceUnavailable:
		status = http.StatusServiceUnavailable
	}

	svc := ce.ToServiceError()
	respondError(w, status, svc.Code, svc.Message, svc.Details)
}
