// Package errors defines the service error taxonomy shared by all layers.
// Services return ServiceError values (usually wrapped); the HTTP layer maps
// them onto status codes and machine-readable reason strings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure. Codes are stable and
// machine-readable; clients branch on them.
type ErrorCode string

const (
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeForbidden           ErrorCode = "forbidden"
	CodeNotFound            ErrorCode = "not_found"
	CodeInvalidInput        ErrorCode = "invalid_input"
	CodeQuotaExceeded       ErrorCode = "quota_exceeded"
	CodeInsufficientCredits ErrorCode = "insufficient_credits"
	CodeConflict            ErrorCode = "conflict"
	CodeRateLimitExceeded   ErrorCode = "rate_limit_exceeded"
	CodeStorageUnavailable  ErrorCode = "storage_unavailable"
	CodeInternal            ErrorCode = "internal"
)

// ServiceError carries an error code, a human-readable message and the HTTP
// status the API layer should respond with.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair to the error and returns it.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the caller may safely retry the failed request.
func (e *ServiceError) Retryable() bool {
	return e.Code == CodeStorageUnavailable || e.Code == CodeRateLimitExceeded
}

func newError(code ErrorCode, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: cause}
}

// Unauthorized indicates the request carries no verified actor.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// Forbidden indicates the actor lacks ownership of the target resource.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "access denied"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound indicates the referenced resource does not exist.
func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s %s not found", resource, id), nil)
}

// InvalidInput indicates malformed or out-of-range request data. Validation
// failures are raised before any store mutation.
func InvalidInput(message string) *ServiceError {
	return newError(CodeInvalidInput, http.StatusBadRequest, message, nil)
}

// QuotaExceeded is the business outcome for a post outside the actor's free
// daily allowance with no credit path available.
func QuotaExceeded(used, allowance int) *ServiceError {
	e := newError(CodeQuotaExceeded, http.StatusConflict, "daily story quota exceeded", nil)
	return e.WithDetails("posts_used_today", used).WithDetails("allowance", allowance)
}

// InsufficientCredits is the business outcome for an over-quota post whose
// credit debit could not be covered.
func InsufficientCredits(balance, cost int64) *ServiceError {
	e := newError(CodeInsufficientCredits, http.StatusConflict, "credit balance too low for over-quota post", nil)
	return e.WithDetails("balance", balance).WithDetails("cost", cost)
}

// Conflict marks a uniqueness collision. The idempotent view/reaction paths
// treat it as the already-exists branch and never surface it to clients.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// RateLimitExceeded indicates the per-actor request budget ran out.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "rate limit exceeded", nil)
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// StorageUnavailable wraps a transient store failure. The outcome of the
// attempted operation is unknown; callers retry only naturally idempotent
// operations.
func StorageUnavailable(cause error) *ServiceError {
	return newError(CodeStorageUnavailable, http.StatusServiceUnavailable, "storage unavailable", cause)
}

// InvalidToken marks a failed credential check.
func InvalidToken(cause error) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, "invalid token", cause)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
