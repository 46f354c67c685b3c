// Package errors provides standardized error handling for the follow-up orchestration core.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed      ErrorCode = "VALIDATION_FAILED"
	ErrCodeQuotaExceeded         ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeGenerationTimeout     ErrorCode = "GENERATION_TIMEOUT"
	ErrCodeExternalService       ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeRegistryInconsistency ErrorCode = "REGISTRY_INCONSISTENCY"
	ErrCodePersistence           ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeTransportFailed       ErrorCode = "TRANSPORT_FAILED"
	ErrCodeLeadNotFound          ErrorCode = "LEAD_NOT_FOUND"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches on error code, so errors.Is(err, ErrQuotaExceeded) works for any
// StandardError carrying that code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns the error with an extra metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidationFailed      = &StandardError{Code: ErrCodeValidationFailed}
	ErrQuotaExceeded         = &StandardError{Code: ErrCodeQuotaExceeded}
	ErrGenerationTimeout     = &StandardError{Code: ErrCodeGenerationTimeout}
	ErrExternalService       = &StandardError{Code: ErrCodeExternalService}
	ErrRegistryInconsistency = &StandardError{Code: ErrCodeRegistryInconsistency}
	ErrPersistence           = &StandardError{Code: ErrCodePersistence}
	ErrTransportFailed       = &StandardError{Code: ErrCodeTransportFailed}
	ErrLeadNotFound          = &StandardError{Code: ErrCodeLeadNotFound}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable error for malformed lead/task data.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQuotaExceededError is expected and non-fatal; callers fall back a tier.
func NewQuotaExceededError(accountID string, approved, limit int) *StandardError {
	return &StandardError{
		Code:      ErrCodeQuotaExceeded,
		Message:   "Template quota exceeded",
		Details:   fmt.Sprintf("accountId: %s, approved: %d, limit: %d", accountID, approved, limit),
		Retryable: false,
		Metadata: map[string]interface{}{
			"accountId": accountID,
			"approved":  approved,
			"limit":     limit,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationTimeoutError creates a retryable AI generation timeout error.
func NewGenerationTimeoutError(provider string, timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationTimeout,
		Message:   "AI generation timed out",
		Details:   fmt.Sprintf("provider: %s, timeout: %s", provider, timeout),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExternalServiceError creates a retryable error for AI/search/registry failures.
func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   errDetails(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRegistryInconsistencyError records that remote template state drifted from local state.
func NewRegistryInconsistencyError(templateID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRegistryInconsistency,
		Message:   "Remote template registry out of sync",
		Details:   fmt.Sprintf("templateId: %s, error: %s", templateID, errDetails(err)),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewPersistenceError is fatal to the current task only.
func NewPersistenceError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistence,
		Message:   "Store operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, errDetails(err)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewTransportFailedError creates a retryable message delivery error.
func NewTransportFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportFailed,
		Message:   fmt.Sprintf("Message delivery via '%s' failed", channel),
		Details:   errDetails(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewLeadNotFoundError creates a non-retryable missing lead error.
func NewLeadNotFoundError(leadID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLeadNotFound,
		Message:   "Lead not found",
		Details:   fmt.Sprintf("leadId: %s", leadID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the local retry budget for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePersistence,
		ErrCodeTransportFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeGenerationTimeout:
		return 2

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsRetryable reports whether err (or anything it wraps) is a retryable StandardError.
// Unknown errors are treated as retryable so a transient failure never kills a task outright.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return true
}

// CodeOf returns the error code of err, or INTERNAL_ERROR when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "QUOTA") || strings.Contains(codeStr, "REGISTRY"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "PERSISTENCE"):
		return "DATABASE"
	case strings.Contains(codeStr, "GENERATION"):
		return "AI"
	case strings.Contains(codeStr, "TRANSPORT") || strings.Contains(codeStr, "EXTERNAL"):
		return "EXTERNAL"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// Is and As forward to the standard library so callers importing this package
// under the name errors keep the usual helpers.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
