// internal/models/lead.go
package models

import "time"

type LeadState string

const (
	LeadStateNew              LeadState = "new"
	LeadStateEngaged          LeadState = "engaged"
	LeadStateQualified        LeadState = "qualified"
	LeadStateViewingScheduled LeadState = "viewing_scheduled"
	LeadStateNegotiating      LeadState = "negotiating"
	LeadStateObjection        LeadState = "objection"
	LeadStateDormant          LeadState = "dormant"
	LeadStateConverted        LeadState = "converted"
	LeadStateDead             LeadState = "dead"
)

// Lead is owned by the CRM; the follow-up core only reads it (except MarkLeadDead).
type Lead struct {
	ID                 string     `json:"id"`
	AccountID          string     `json:"accountId"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone"`
	State              LeadState  `json:"currentState"`
	Timeline           string     `json:"timeline"`
	Budget             string     `json:"budget"`
	LocationPreference string     `json:"locationPreference"`
	PropertyType       string     `json:"propertyType"`
	Timezone           string     `json:"timezone"`
	LastActivityAt     *time.Time `json:"lastActivityAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// IntentComplete reports whether budget, location and property type were all captured.
func (l *Lead) IntentComplete() bool {
	return l.Budget != "" && l.LocationPreference != "" && l.PropertyType != ""
}

// Active reports whether the lead should still receive follow-ups.
func (l *Lead) Active() bool {
	return l.State != LeadStateConverted && l.State != LeadStateDead
}
