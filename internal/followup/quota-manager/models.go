// internal/followup/quota-manager/models.go
package quotamanager

import "followup-orchestrator/internal/models"

// Pass identifies an eviction tier. Passes run in ascending order.
type Pass int

const (
	PassUnused Pass = iota + 1
	PassStale
	PassLowPerformance
	PassOverflow
)

func (p Pass) String() string {
	switch p {
	case PassUnused:
		return "unused"
	case PassStale:
		return "stale_low_usage"
	case PassLowPerformance:
		return "low_performance"
	case PassOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

type CanCreateResult struct {
	Allowed        bool `json:"allowed"`
	RemainingSlots int  `json:"remainingSlots"`
	Approved       int  `json:"approved"`
	Reserved       int  `json:"reserved"`
}

// Action is one template removal.
type Action struct {
	Pass          string                  `json:"pass"`
	TemplateID    string                  `json:"templateId"`
	Name          string                  `json:"name"`
	Category      models.TemplateCategory `json:"category"`
	RemoteDeleted bool                    `json:"remoteDeleted"`
	LocalDeleted  bool                    `json:"localDeleted"`
	Error         string                  `json:"error,omitempty"`
}

// Recommendation lists what a pass would evict; nothing is deleted.
type Recommendation struct {
	Pass        string   `json:"pass"`
	TemplateIDs []string `json:"templateIds"`
	Message     string   `json:"message"`
}

type EnforcementResult struct {
	AccountID       string           `json:"accountId"`
	Before          int              `json:"before"`
	After           int              `json:"after"`
	Level           Level            `json:"level"`
	Enforced        bool             `json:"enforced"`
	Actions         []Action         `json:"actions,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

type Status struct {
	AccountID string `json:"accountId"`
	Approved  int    `json:"approved"`
	Reserved  int    `json:"reserved"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Level     Level  `json:"level"`
}

// SyncResult counts the outcome of one pending-template sync.
type SyncResult struct {
	AccountID string `json:"accountId"`
	Checked   int    `json:"checked"`
	Promoted  int    `json:"promoted"`
	Removed   int    `json:"removed"`
	Waiting   int    `json:"waiting"`
}
