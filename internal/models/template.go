// internal/models/template.go
package models

import "time"

type TemplateCategory string

const (
	CategoryCoreBusiness TemplateCategory = "core_business"
	CategoryAIGenerated  TemplateCategory = "ai_generated"
	CategoryStandard     TemplateCategory = "standard"
)

type TemplateStatus string

const (
	TemplateStatusApproved TemplateStatus = "approved"
	TemplateStatusPending  TemplateStatus = "pending"
	TemplateStatusDeleted  TemplateStatus = "deleted"
)

type Template struct {
	ID           string           `json:"id"`
	AccountID    string           `json:"accountId"`
	Name         string           `json:"name"`
	Category     TemplateCategory `json:"category"`
	Language     string           `json:"language"`
	Body         string           `json:"body"`
	UsageCount   int              `json:"usageCount"`
	ResponseRate float64          `json:"responseRate"`
	Status       TemplateStatus   `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastUsedAt   *time.Time       `json:"lastUsedAt,omitempty"`
}

type TemplateOrder string

const (
	OrderByCreatedAt    TemplateOrder = "created_at"
	OrderByUsage        TemplateOrder = "usage_count"
	OrderByResponseRate TemplateOrder = "response_rate"
)

// TemplateFilter narrows listTemplates. Zero values mean "no constraint".
type TemplateFilter struct {
	AccountID         string
	Status            TemplateStatus
	ExcludeCategories []TemplateCategory
	Category          TemplateCategory
	CreatedBefore     *time.Time
	UsageBelow        *int     // usage_count < n
	UsageAbove        *int     // usage_count > n
	ResponseRateBelow *float64 // response_rate < r
	OrderBy           TemplateOrder
	Limit             int
}

// TemplateSpec is what gets submitted to the remote registry for approval.
type TemplateSpec struct {
	AccountID string           `json:"accountId"`
	Name      string           `json:"name"`
	Category  TemplateCategory `json:"category"`
	Language  string           `json:"language"`
	Body      string           `json:"body"`
}

// RemoteTemplate is the registry's response to a create call.
type RemoteTemplate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
