// Package response writes JSON bodies and maps domain errors to HTTP statuses.
package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"mybank/internal/domain"
	"mybank/pkg/logger"
)

const (
	maxBodyBytes = 1 << 20
	// RetryAfterSeconds is sent with every 503.
	RetryAfterSeconds = 2
)

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err in the common error envelope. Errors without a domain kind
// are logged and reported as a generic 500.
func Error(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		log.ErrorContext(r.Context(), "Unhandled error", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
			"error":      err.Error(),
		})
		JSON(w, http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
			Code:    "internal",
			Kind:    "internal",
			Message: "internal server error",
		}})
		return
	}

	status := StatusFor(de.Kind)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		log.WarnContext(r.Context(), "Request failed with retryable error", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
	}
	JSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:    de.Code,
		Kind:    string(de.Kind),
		Message: de.Message,
	}})
}

func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindBusinessRule:
		return http.StatusUnprocessableEntity
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Decode reads a JSON body into dst. Unknown fields are ignored; an empty or
// malformed body is a validation error.
func Decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return domain.ErrInvalidInput.WithMessage("request body is required")
		}
		return domain.ErrInvalidInput.WithMessage("malformed request body")
	}
	return nil
}
