// Package errors provides a structured error system for sitekit with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderr "errors"
	"fmt"
	"strings"
	"time"
)

// As delegates to the standard library so callers do not need a second
// errors import alongside this package.
func As(err error, target interface{}) bool { return stderr.As(err, target) }

// Is delegates to the standard library errors.Is.
func Is(err, target error) bool { return stderr.Is(err, target) }

// IsCode reports whether err carries the given sitekit error code anywhere
// in its chain.
func IsCode(err error, code ErrorCode) bool {
	var skErr *SiteKitError
	if As(err, &skErr) {
		return skErr.Code == code
	}
	return false
}

// ErrorCode represents a structured error code for sitekit operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Lifecycle / state errors
	ErrCodeNotInitialized   ErrorCode = "NOT_INITIALIZED"
	ErrCodeModuleInitFailed ErrorCode = "MODULE_INIT_FAILED"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"

	// Site connection errors
	ErrCodeAlreadyConnected ErrorCode = "ALREADY_CONNECTED"
	ErrCodeAliasInUse       ErrorCode = "ALIAS_IN_USE"
	ErrCodeAccessDenied     ErrorCode = "ACCESS_DENIED"
	ErrCodeSiteNotFound     ErrorCode = "SITE_NOT_FOUND"
	ErrCodeNotConnected     ErrorCode = "NOT_CONNECTED"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"

	// Transport errors
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"
	ErrCodeRequestTimeout    ErrorCode = "REQUEST_TIMEOUT"
	ErrCodeTransientHTTP     ErrorCode = "TRANSIENT_HTTP"
	ErrCodeTerminalHTTP      ErrorCode = "TERMINAL_HTTP"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeResponseMalformed ErrorCode = "RESPONSE_MALFORMED"

	// Authentication errors
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeTokenUnavailable     ErrorCode = "TOKEN_UNAVAILABLE"

	// Cache errors
	ErrCodeInvalidCacheKey  ErrorCode = "INVALID_CACHE_KEY"
	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryState         ErrorCategory = "state"
	CategoryConnection    ErrorCategory = "connection"
	CategoryTransport     ErrorCategory = "transport"
	CategoryAuth          ErrorCategory = "auth"
	CategoryCache         ErrorCategory = "cache"
	CategoryInternal      ErrorCategory = "internal"
)

// SiteKitError represents a structured error with context and metadata.
type SiteKitError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time `json:"timestamp"`

	Component     string `json:"component,omitempty"`
	Operation     string `json:"operation,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *SiteKitError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *SiteKitError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *SiteKitError) Is(target error) bool {
	if skErr, ok := target.(*SiteKitError); ok {
		return e.Code == skErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *SiteKitError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.CorrelationID != "" {
		parts = append(parts, fmt.Sprintf("CorrelationID=%s", e.CorrelationID))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.HTTPStatus != 0 {
		parts = append(parts, fmt.Sprintf("HTTPStatus=%d", e.HTTPStatus))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("SiteKitError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new sitekit error with default values.
func NewError(code ErrorCode, message string) *SiteKitError {
	return &SiteKitError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// Wrap creates a new sitekit error wrapping an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *SiteKitError {
	err := NewError(code, message)
	err.Cause = cause
	return err
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigValidation, ErrCodeConfigLoad:
		return CategoryConfiguration
	case ErrCodeNotInitialized, ErrCodeModuleInitFailed, ErrCodeInvalidState:
		return CategoryState
	case ErrCodeAlreadyConnected, ErrCodeAliasInUse, ErrCodeAccessDenied,
		ErrCodeSiteNotFound, ErrCodeNotConnected, ErrCodeConnectionFailed:
		return CategoryConnection
	case ErrCodeNetworkError, ErrCodeRequestTimeout, ErrCodeTransientHTTP,
		ErrCodeTerminalHTTP, ErrCodeRetryExhausted, ErrCodeResponseMalformed:
		return CategoryTransport
	case ErrCodeAuthenticationFailed, ErrCodeTokenUnavailable:
		return CategoryAuth
	case ErrCodeInvalidCacheKey, ErrCodeCacheUnavailable:
		return CategoryCache
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
// Transient transport failures retry; everything else surfaces immediately.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeNetworkError, ErrCodeRequestTimeout, ErrCodeTransientHTTP:
		return true
	default:
		return false
	}
}

// CodeOf extracts the sitekit error code from an arbitrary error, returning
// ErrCodeUnknownError for errors produced outside this package.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var skErr *SiteKitError
	if As(err, &skErr) {
		return skErr.Code
	}
	return ErrCodeUnknownError
}

// IsRetryable reports whether an error should be retried.
func IsRetryable(err error) bool {
	var skErr *SiteKitError
	if As(err, &skErr) {
		return skErr.Retryable
	}
	return false
}

// WithDetail adds detailed information to an error.
func (e *SiteKitError) WithDetail(key string, value interface{}) *SiteKitError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error.
func (e *SiteKitError) WithComponent(component string) *SiteKitError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error.
func (e *SiteKitError) WithOperation(operation string) *SiteKitError {
	e.Operation = operation
	return e
}

// WithCorrelationID sets the correlation id for an error.
func (e *SiteKitError) WithCorrelationID(id string) *SiteKitError {
	e.CorrelationID = id
	return e
}

// WithCause sets the underlying cause.
func (e *SiteKitError) WithCause(cause error) *SiteKitError {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status associated with the error.
func (e *SiteKitError) WithHTTPStatus(status int) *SiteKitError {
	e.HTTPStatus = status
	return e
}

// WithRetryable overrides the default retryability of the error.
func (e *SiteKitError) WithRetryable(retryable bool) *SiteKitError {
	e.Retryable = retryable
	return e
}

// JSON returns the error as a JSON string.
func (e *SiteKitError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// FromHTTPStatus classifies an HTTP response status into a sitekit error code.
// 5xx and 429 are transient; other 4xx are terminal.
func FromHTTPStatus(status int) ErrorCode {
	switch {
	case status >= 500 || status == 429:
		return ErrCodeTransientHTTP
	case status >= 400:
		return ErrCodeTerminalHTTP
	default:
		return ""
	}
}
