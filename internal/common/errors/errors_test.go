// internal/common/errors/errors_test.go
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardError_IsMatchesByCode(t *testing.T) {
	err := NewQuotaExceededError("acct-1", 250, 250)
	wrapped := fmt.Errorf("select strategy: %w", err)

	assert.True(t, Is(wrapped, ErrQuotaExceeded))
	assert.False(t, Is(wrapped, ErrPersistence))
	assert.Equal(t, ErrCodeQuotaExceeded, CodeOf(wrapped))
}

func TestStandardError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewPersistenceError("update_task", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "update_task")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"validation", NewValidationError("missing lead"), false},
		{"quota", NewQuotaExceededError("a", 1, 1), false},
		{"persistence", NewPersistenceError("op", stderrors.New("x")), true},
		{"transport", NewTransportFailedError("whatsapp", stderrors.New("x")), true},
		{"unknown error", stderrors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestGetRetryCount(t *testing.T) {
	assert.Equal(t, 3, GetRetryCount(ErrCodePersistence))
	assert.Equal(t, 2, GetRetryCount(ErrCodeGenerationTimeout))
	assert.Equal(t, 0, GetRetryCount(ErrCodeValidationFailed))
	assert.True(t, IsRetryableErrorCode(ErrCodeTransportFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeQuotaExceeded))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "TEMPLATE", GetErrorCategory(ErrCodeQuotaExceeded))
	assert.Equal(t, "TEMPLATE", GetErrorCategory(ErrCodeRegistryInconsistency))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodePersistence))
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeGenerationTimeout))
	assert.Equal(t, "EXTERNAL", GetErrorCategory(ErrCodeTransportFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeLeadNotFound))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

type recordingLogger struct {
	messages []string
	fields   []map[string]interface{}
}

func (r *recordingLogger) Error(msg string, fields map[string]interface{}) {
	r.messages = append(r.messages, msg)
	r.fields = append(r.fields, fields)
}

func TestErrorHandler_Handle(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	d := h.Handle(NewValidationError("lead id empty"), map[string]interface{}{"taskId": "t-1"})
	assert.Equal(t, ErrCodeValidationFailed, d.Code)
	assert.False(t, d.Retryable)
	assert.Equal(t, 0, d.Retries)

	d = h.Handle(stderrors.New("unexpected"), nil)
	assert.Equal(t, ErrCodeInternal, d.Code)
	assert.True(t, d.Retryable)

	assert.Len(t, log.messages, 2)
	assert.Equal(t, "t-1", log.fields[0]["taskId"])
}
