// internal/models/metrics.go
package models

import "time"

// DailyMetrics is one account's rollup for a calendar day.
type DailyMetrics struct {
	AccountID         string    `json:"accountId"`
	Date              time.Time `json:"date"`
	TasksSent         int       `json:"tasksSent"`
	TasksFailed       int       `json:"tasksFailed"`
	TasksDead         int       `json:"tasksDead"`
	Replies           int       `json:"replies"`
	ResponseRate      float64   `json:"responseRate"`
	TemplatesApproved int       `json:"templatesApproved"`
}

// TemplatePerformance is a template-performance rollup row.
type TemplatePerformance struct {
	TemplateID   string           `json:"templateId"`
	AccountID    string           `json:"accountId"`
	Name         string           `json:"name"`
	Category     TemplateCategory `json:"category"`
	UsageCount   int              `json:"usageCount"`
	ResponseRate float64          `json:"responseRate"`
	ComputedAt   time.Time        `json:"computedAt"`
}
