// internal/models/task.go
package models

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusSent    TaskStatus = "sent"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusDead    TaskStatus = "dead"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSent || s == TaskStatusDead
}

// CanTransition enforces the monotonic task lifecycle: nothing returns to
// pending, and sent/dead are final.
func CanTransition(from, to TaskStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case TaskStatusSent, TaskStatusFailed, TaskStatusDead:
		return true
	default:
		return false
	}
}

type FollowUpType string

const (
	FollowUpUrgency      FollowUpType = "urgency"
	FollowUpLeadState    FollowUpType = "lead_state"
	FollowUpBehavioral   FollowUpType = "behavioral"
	FollowUpEducational  FollowUpType = "educational"
	FollowUpRelationship FollowUpType = "relationship"
)

func (t FollowUpType) Valid() bool {
	switch t {
	case FollowUpUrgency, FollowUpLeadState, FollowUpBehavioral, FollowUpEducational, FollowUpRelationship:
		return true
	}
	return false
}

type FollowUpTask struct {
	ID             string       `json:"id"`
	LeadID         string       `json:"leadId"`
	AccountID      string       `json:"accountId"`
	ScheduledTime  time.Time    `json:"scheduledTime"`
	AttemptCount   int          `json:"attemptCount"`
	Status         TaskStatus   `json:"status"`
	FollowUpType   FollowUpType `json:"followUpType"`
	SequenceStage  int          `json:"sequenceStage"`
	IsFinalAttempt bool         `json:"isFinalAttempt"`
	LastError      string       `json:"lastError,omitempty"`
	SentAt         *time.Time   `json:"sentAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// TaskUpdate carries the fields updateTask may change; nil means unchanged.
type TaskUpdate struct {
	Status        *TaskStatus
	AttemptCount  *int
	ScheduledTime *time.Time
	LastError     *string
	SentAt        *time.Time
	FollowUpType  *FollowUpType
}

// Apply validates the status transition against current and returns an error
// if it would break the lifecycle.
func (u TaskUpdate) Apply(current *FollowUpTask) error {
	if u.Status != nil && *u.Status != current.Status && !CanTransition(current.Status, *u.Status) {
		return fmt.Errorf("invalid task transition %s -> %s", current.Status, *u.Status)
	}
	if u.Status != nil {
		current.Status = *u.Status
	}
	if u.AttemptCount != nil {
		current.AttemptCount = *u.AttemptCount
	}
	if u.ScheduledTime != nil {
		current.ScheduledTime = *u.ScheduledTime
	}
	if u.LastError != nil {
		current.LastError = *u.LastError
	}
	if u.SentAt != nil {
		current.SentAt = u.SentAt
	}
	if u.FollowUpType != nil {
		current.FollowUpType = *u.FollowUpType
	}
	return nil
}
