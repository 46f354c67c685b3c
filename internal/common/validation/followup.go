// internal/common/validation/followup.go
package validation

import (
	"fmt"
	"strings"

	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/models"
)

const taskSchemaJSON = `{
  "type": "object",
  "required": ["id", "leadId", "accountId", "scheduledTime", "status", "sequenceStage", "attemptCount"],
  "properties": {
    "id":            {"type": "string", "minLength": 1},
    "leadId":        {"type": "string", "minLength": 1},
    "accountId":     {"type": "string", "minLength": 1},
    "scheduledTime": {"type": "string", "format": "date-time"},
    "status":        {"type": "string", "enum": ["pending", "failed"]},
    "followUpType":  {"type": "string", "enum": ["", "urgency", "lead_state", "behavioral", "educational", "relationship"]},
    "sequenceStage": {"type": "integer", "minimum": 0},
    "attemptCount":  {"type": "integer", "minimum": 0}
  }
}`

const templateSpecSchemaJSON = `{
  "type": "object",
  "required": ["accountId", "name", "category", "language", "body"],
  "properties": {
    "accountId": {"type": "string", "minLength": 1},
    "name":      {"type": "string", "pattern": "^[a-z0-9_]{1,512}$"},
    "category":  {"type": "string", "enum": ["ai_generated", "standard"]},
    "language":  {"type": "string", "minLength": 2, "maxLength": 8},
    "body":      {"type": "string", "minLength": 1, "maxLength": 1024}
  }
}`

var (
	taskSchema         = MustCompile("followup_task", taskSchemaJSON)
	templateSpecSchema = MustCompile("template_spec", templateSpecSchemaJSON)
)

// ValidateTask checks a claimed task before it is processed. Only pending and
// failed tasks are processable.
func ValidateTask(task *models.FollowUpTask) error {
	if task == nil {
		return apperrors.NewValidationError("task is nil")
	}
	return check(taskSchema, task)
}

// ValidateTemplateSpec checks an AI template before it is submitted for approval.
// core_business templates are provisioned by hand and never come through here.
func ValidateTemplateSpec(spec models.TemplateSpec) error {
	return check(templateSpecSchema, spec)
}

// ValidateLead checks the lead fields a send depends on.
func ValidateLead(lead *models.Lead) error {
	if lead == nil {
		return apperrors.NewValidationError("lead is nil")
	}
	if lead.ID == "" {
		return apperrors.NewValidationError("lead id is empty")
	}
	if !ValidatePhone(lead.Phone) {
		return apperrors.NewValidationError(fmt.Sprintf("lead %s has invalid phone %q", lead.ID, lead.Phone))
	}
	return nil
}

func check(s *Schema, v interface{}) error {
	result, err := s.Validate(v)
	if err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	if !result.Valid {
		return apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}
