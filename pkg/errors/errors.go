// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// PluginError is a structured error with context.
type PluginError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Key         string   `json:"key,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *PluginError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s] %s: %s (key: %s)", e.Severity, e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Error codes
const (
	ErrCodeRequiredParameter = "REQUIRED_PARAMETER"
	ErrCodeInvalidParameter  = "INVALID_PARAMETER"
	ErrCodeClassification    = "CLASSIFICATION_FAILED"
	ErrCodeRemoteCall        = "REMOTE_CALL_FAILED"
)

// NewMissingParameter creates an error for an absent required field.
func NewMissingParameter(key string) *PluginError {
	return &PluginError{
		Code:        ErrCodeRequiredParameter,
		Message:     fmt.Sprintf("Required parameter is missing: %s", key),
		Severity:    SeverityError,
		Key:         key,
		Recoverable: false,
	}
}

// NewInvalidParameter creates an error for a present field that fails validation.
func NewInvalidParameter(key, reason string) *PluginError {
	return &PluginError{
		Code:        ErrCodeInvalidParameter,
		Message:     fmt.Sprintf("Invalid parameter value for %s: %s", key, reason),
		Severity:    SeverityError,
		Key:         key,
		Recoverable: false,
	}
}

// NewClassification creates a data-integrity error for a raw record that
// cannot be normalized. Not transient: indicates upstream schema drift.
func NewClassification(field string) *PluginError {
	return &PluginError{
		Code:        ErrCodeClassification,
		Message:     fmt.Sprintf("Raw billing record is missing required field: %s", field),
		Severity:    SeverityError,
		Key:         field,
		Recoverable: false,
	}
}

// NewRemoteCall wraps a non-2xx collaborator response. Retry policy, if
// any, belongs to the invoking orchestrator.
func NewRemoteCall(method string, status int, body string) *PluginError {
	return &PluginError{
		Code:        ErrCodeRemoteCall,
		Message:     fmt.Sprintf("%s returned HTTP %d: %s", method, status, body),
		Severity:    SeverityError,
		Recoverable: true,
	}
}

// CodeOf returns the plugin error code, or "" for foreign errors.
func CodeOf(err error) string {
	var pe *PluginError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
