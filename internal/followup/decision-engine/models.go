// internal/followup/decision-engine/models.go
package decisionengine

import (
	"time"

	"followup-orchestrator/internal/models"
)

type EngagementLevel string

const (
	LevelHot     EngagementLevel = "hot"
	LevelWarm    EngagementLevel = "warm"
	LevelCold    EngagementLevel = "cold"
	LevelNurture EngagementLevel = "nurture"
)

// Cadence is the default re-contact interval for the level.
func (l EngagementLevel) Cadence() time.Duration {
	switch l {
	case LevelHot:
		return 2 * 24 * time.Hour
	case LevelWarm:
		return 7 * 24 * time.Hour
	case LevelCold:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

type TimelineTier string

const (
	TimelineImmediate TimelineTier = "immediate"
	TimelineSoon      TimelineTier = "soon"
	TimelineMedium    TimelineTier = "medium"
	TimelineLong      TimelineTier = "long"
	TimelineUnknown   TimelineTier = "unknown"
)

type TriggerKind string

const (
	TriggerTimelineApproaching TriggerKind = "timeline_approaching"
	TriggerUnresolvedObjection TriggerKind = "unresolved_objection"
	TriggerPostDiscussion      TriggerKind = "post_discussion"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

type Trigger struct {
	Kind     TriggerKind `json:"kind"`
	Priority Priority    `json:"priority"`
	Evidence string      `json:"evidence,omitempty"`
}

// ScoreBreakdown records each contribution to the engagement score.
type ScoreBreakdown struct {
	Base          int          `json:"base"`
	ResponseRatio float64      `json:"responseRatio"`
	Response      int          `json:"response"`
	Timeline      int          `json:"timeline"`
	TimelineTier  TimelineTier `json:"timelineTier"`
	Recency       int          `json:"recency"`
	Intent        int          `json:"intent"`
	Total         int          `json:"total"`
}

// StrategyInput is the decision handed to the strategy selector.
type StrategyInput struct {
	LeadID         string                `json:"leadId"`
	AccountID      string                `json:"accountId"`
	LeadState      models.LeadState      `json:"leadState"`
	Score          int                   `json:"score"`
	Breakdown      ScoreBreakdown        `json:"breakdown"`
	Level          EngagementLevel       `json:"level"`
	Triggers       []Trigger             `json:"triggers,omitempty"`
	FollowUpType   models.FollowUpType   `json:"followUpType"`
	Candidates     []models.FollowUpType `json:"candidates"`
	Offset         time.Duration         `json:"offset"`
	ScheduledAt    time.Time             `json:"scheduledAt"`
	SequenceStage  int                   `json:"sequenceStage"`
	IsFinalAttempt bool                  `json:"isFinalAttempt"`
	Reasoning      string                `json:"reasoning"`
}

// HasHighTrigger reports whether any detected trigger is high priority.
func (s *StrategyInput) HasHighTrigger() bool {
	return hasPriority(s.Triggers, PriorityHigh)
}

func hasPriority(triggers []Trigger, p Priority) bool {
	for _, t := range triggers {
		if t.Priority == p {
			return true
		}
	}
	return false
}

func hasKind(triggers []Trigger, k TriggerKind) bool {
	for _, t := range triggers {
		if t.Kind == k {
			return true
		}
	}
	return false
}
