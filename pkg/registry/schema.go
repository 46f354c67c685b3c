// pkg/registry/schema.go
package registry

// TemplateCatalog is the set of pre-approved static templates the strategy
// selector falls back to.
type TemplateCatalog struct {
	Version     string           `json:"version"`
	LastUpdated string           `json:"lastUpdated"`
	Templates   []StaticTemplate `json:"templates"`
}

// StaticTemplate is matched by lead state and sequence stage. An empty
// LeadState matches any state; a nil Stage matches any stage.
type StaticTemplate struct {
	Name         string   `json:"name"`
	Language     string   `json:"language"`
	Body         string   `json:"body"`
	LeadState    string   `json:"leadState,omitempty"`
	Stage        *int     `json:"stage,omitempty"`
	FollowUpType string   `json:"followUpType,omitempty"`
	Params       []string `json:"params,omitempty"`
}
