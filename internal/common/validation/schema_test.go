// internal/common/validation/schema_test.go
package validation

import (
	"testing"
	"time"

	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTask() *models.FollowUpTask {
	return &models.FollowUpTask{
		ID:            "task-1",
		LeadID:        "lead-1",
		AccountID:     "acc-1",
		ScheduledTime: time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC),
		Status:        models.TaskStatusPending,
		SequenceStage: 0,
	}
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.FollowUpTask)
		wantErr bool
	}{
		{"valid pending", func(*models.FollowUpTask) {}, false},
		{"valid failed retry", func(tk *models.FollowUpTask) { tk.Status = models.TaskStatusFailed; tk.AttemptCount = 2 }, false},
		{"missing lead", func(tk *models.FollowUpTask) { tk.LeadID = "" }, true},
		{"already sent", func(tk *models.FollowUpTask) { tk.Status = models.TaskStatusSent }, true},
		{"negative stage", func(tk *models.FollowUpTask) { tk.SequenceStage = -1 }, true},
		{"unknown type", func(tk *models.FollowUpTask) { tk.FollowUpType = "spam" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(task)
			err := ValidateTask(task)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateTemplateSpec(t *testing.T) {
	spec := models.TemplateSpec{
		AccountID: "acc-1",
		Name:      "fu_urgency_3f2a",
		Category:  models.CategoryAIGenerated,
		Language:  "en",
		Body:      "Hi {{1}}, a few units in Baner just opened up.",
	}
	assert.NoError(t, ValidateTemplateSpec(spec))

	spec.Name = "Has Spaces"
	assert.Error(t, ValidateTemplateSpec(spec))

	spec.Name = "ok_name"
	spec.Category = models.CategoryCoreBusiness
	assert.Error(t, ValidateTemplateSpec(spec))
}

func TestValidateLead(t *testing.T) {
	assert.NoError(t, ValidateLead(&models.Lead{ID: "l1", Phone: "+91 98000 00000"}))
	assert.Error(t, ValidateLead(&models.Lead{ID: "l1", Phone: "123"}))
	assert.Error(t, ValidateLead(nil))
}
