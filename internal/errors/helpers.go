package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewTransportError creates a recoverable transport error
func NewTransportError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeTransport, fmt.Sprintf("channel %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Connection lost, retrying")
}

// NewHistoryAPIError creates an error for history retrieval calls.
// 5xx, 429 and 408 responses are marked retryable.
func NewHistoryAPIError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeHistoryAPI, "history API call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode).
		WithUserMessage("Could not load message history")

	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}

	return appErr
}

// NewDatabaseError creates a spool error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("spool %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Local message spool failed")
}

// NewAuthError creates an authentication rejection error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication rejected by server").
		WithContext("reason", reason).
		WithUserMessage("Session expired, please sign in again")
}

// NewRateLimitError creates a rate limit rejection error
func NewRateLimitError(reason string) *AppError {
	return New(ErrCodeRateLimit, "rate limit rejection from server").
		WithContext("reason", reason).
		WithUserMessage("Too many messages, please slow down")
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}
