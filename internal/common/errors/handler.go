// internal/common/errors/handler.go
package errors

import (
	"time"
)

// Disposition tells the caller what to do with a failed unit of work.
type Disposition struct {
	Code      ErrorCode
	Category  string
	Retryable bool
	Retries   int
}

// ErrorHandler normalizes and logs errors with a uniform field set.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err with the supplied context fields and returns how it should be treated.
func (h *ErrorHandler) Handle(err error, fields map[string]interface{}) Disposition {
	stdErr := Normalize(err)

	d := Disposition{
		Code:      stdErr.Code,
		Category:  GetErrorCategory(stdErr.Code),
		Retryable: stdErr.Retryable,
		Retries:   GetRetryCount(stdErr.Code),
	}
	if !stdErr.Retryable {
		d.Retries = 0
	}

	logFields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     d.Retryable,
		"errorCategory": d.Category,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	if h.logger != nil {
		h.logger.Error("operation failed", logFields)
	}

	return d
}

// Normalize ensures we always have a StandardError
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}
