package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"shop-orders/internal/domain"

	"go.uber.org/zap"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// RespondWithError sends a structured error response whose code is derived from the status.
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithErrorDetails(w, statusCode, message, nil)
}

// RespondWithErrorDetails sends a structured error response with additional details
func RespondWithErrorDetails(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	writeError(w, statusCode, statusCodeName(statusCode), message, details)
}

// RespondWithValidationErrors sends validation error response
func RespondWithValidationErrors(w http.ResponseWriter, errs []ValidationError) {
	details := map[string]interface{}{
		"validation_errors": errs,
	}
	writeError(w, http.StatusBadRequest, string(domain.CodeInvalidRequest), "validation failed", details)
}

// StatusForCode maps a placement error code to its HTTP status.
func StatusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidRequest:
		return http.StatusBadRequest
	case domain.CodeProductNotFound:
		return http.StatusNotFound
	case domain.CodeInsufficientStock:
		return http.StatusConflict
	case domain.CodeOrderPersistenceFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithDomainError writes err using its stable code. Internal errors are
// logged and their text is not exposed.
func RespondWithDomainError(w http.ResponseWriter, err error, logger *zap.Logger) {
	code := domain.CodeOf(err)
	status := StatusForCode(code)

	if !domain.IsBusiness(err) {
		logger.Error("Request failed", zap.Error(err))
		writeError(w, status, string(code), "internal server error", nil)
		return
	}

	message := err.Error()
	if code == domain.CodeOrderPersistenceFailed {
		logger.Warn("Order could not be recorded", zap.Error(err))
		message = domain.ErrOrderPersistenceFailed.Error()
	}

	writeError(w, status, string(code), message, nil)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// statusCodeName turns 404 into NOT_FOUND.
func statusCodeName(statusCode int) string {
	text := http.StatusText(statusCode)
	if text == "" {
		return string(domain.CodeInternal)
	}
	return strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(text, "'", ""), " ", "_"))
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
						panic(rec)
					}
					logger.Error("Panic recovered",
						zap.Any("error", rec),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
					)

					RespondWithError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
