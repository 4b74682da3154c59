package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta represents pagination metadata
type Meta struct {
	PageToken string `json:"page_token,omitempty"`
	Total     int    `json:"total,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response, deriving the status code from
// the service error. Throttled requests additionally get a Retry-After
// header.
func respondWithError(w http.ResponseWriter, err error, message string) {
	statusCode := getStatusCode(err)

	var rl *service.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(rl.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	// Authentication outcomes stay 400: locked, throttled-out and
	// compromised states must not be confused with role-based 403s, and an
	// expired code just tells the caller to restart the flow.
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrTOTPNotConfigured),
		errors.Is(err, service.ErrAccountLocked),
		errors.Is(err, service.ErrOTPAttemptsExceeded),
		errors.Is(err, service.ErrOTPExpired),
		errors.Is(err, service.ErrBackupCodeAlreadyUsed),
		errors.Is(err, service.ErrDeviceCompromised):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrEmailVerified),
		errors.Is(err, service.ErrTOTPAlreadyEnabled),
		errors.Is(err, service.ErrCurrentDevice):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrSessionExpired),
		errors.Is(err, service.ErrTokenBlacklisted),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrWrongType):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrEmailNotVerified),
		errors.Is(err, service.ErrSessionRevoked),
		errors.Is(err, service.ErrDeviceRevoked):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrDeviceNotFound),
		errors.Is(err, service.ErrOTPNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrOTPAlreadyUsed),
		errors.Is(err, service.ErrNoPendingLogin),
		errors.Is(err, service.ErrNoPendingVerification):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
