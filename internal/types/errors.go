package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationEmptyBody       ErrorCode = "validation_empty_body"
	ErrCodeValidationInvalidJSON     ErrorCode = "validation_invalid_json"
	ErrCodeValidationMissingAlarm    ErrorCode = "validation_missing_alarm"
	ErrCodeValidationMissingTriggers ErrorCode = "validation_missing_triggers"
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationMissingEventID  ErrorCode = "validation_missing_event_id"

	// Auth (401)
	ErrCodeAuthKeyMissing ErrorCode = "auth_api_key_missing"
	ErrCodeAuthKeyInvalid ErrorCode = "auth_api_key_invalid"

	// Not Found (404)
	ErrCodeNotFoundRoute ErrorCode = "not_found_route"
	// ErrCodeNotFoundEvent means no stored artifact matched the query within
	// the scan horizon.
	ErrCodeNotFoundEvent ErrorCode = "not_found_event"
	// ErrCodeNotFoundVideoUnavailable means the metadata record exists but
	// the paired video never arrived. This is a legitimate terminal state
	// reached when acquisition permanently failed and the message was
	// dead-lettered; clients must be able to tell it apart from
	// ErrCodeNotFoundEvent.
	ErrCodeNotFoundVideoUnavailable ErrorCode = "not_found_video_unavailable"
	ErrCodeNotFoundRecentVideo      ErrorCode = "not_found_recent_video"

	// Upstream video portal (retried via queue redelivery, 502 if surfaced)
	ErrCodeUpstreamAuthFailed         ErrorCode = "upstream_auth_failed"
	ErrCodeUpstreamAcquisitionTimeout ErrorCode = "upstream_acquisition_timeout"
	ErrCodeUpstreamUnavailable        ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited        ErrorCode = "upstream_rate_limited"

	// Storage (500)
	ErrCodeStorageRead  ErrorCode = "storage_read_failed"
	ErrCodeStorageWrite ErrorCode = "storage_write_failed"
	ErrCodeStorageList  ErrorCode = "storage_list_failed"

	// Configuration (500, never retried, requires operator fix)
	ErrCodeConfigMissing ErrorCode = "config_missing_setting"

	// Internal (500)
	ErrCodeInternalQueue      ErrorCode = "internal_queue_publish_failed"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "storage_"),
		strings.HasPrefix(s, "config_"),
		strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// Retryable reports whether a failure with this code should be returned to
// the queue for redelivery. Validation and not-found codes are terminal;
// upstream and storage codes are transient and worth another delivery.
func (c ErrorCode) Retryable() bool {
	s := string(c)
	return strings.HasPrefix(s, "upstream_") || strings.HasPrefix(s, "storage_")
}

// AppError is the standard application error type used throughout the
// pipeline. All domain and handler errors should be expressed as AppError to
// enable consistent error formatting, HTTP status mapping, and error chain
// support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for domain
// errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
