package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"whisper-desk/internal/domain"
)

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Meta  *PageMeta `json:"meta,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// PageMeta carries offset pagination info for list responses.
type PageMeta struct {
	TotalCount int  `json:"total_count"`
	HasMore    bool `json:"has_more"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, apiErr := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, Envelope{Error: &apiErr})
}

func mapError(err error) (int, APIError) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: []FieldError{{Field: validationErr.Field, Message: validationErr.Message}},
		}
	}

	switch {
	case errors.Is(err, domain.ErrModelNotFound):
		return http.StatusNotFound, APIError{Code: "model_not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "not_found", Message: "The requested resource was not found"}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, APIError{Code: "invalid_input", Message: "The request body is invalid"}
	case errors.Is(err, domain.ErrEngineNotFound):
		return http.StatusServiceUnavailable, APIError{Code: "engine_not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrSerialization):
		return http.StatusInternalServerError, APIError{Code: "corrupt_record", Message: "A stored record could not be read"}
	default:
		return http.StatusInternalServerError, APIError{Code: "internal_error", Message: "An unexpected error occurred"}
	}
}
