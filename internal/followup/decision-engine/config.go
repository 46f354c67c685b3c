// internal/followup/decision-engine/config.go
package decisionengine

import (
	"time"

	"followup-orchestrator/internal/common/config"
)

type Config struct {
	BaseScore          int
	ResponseWindowSize int
	BusinessHoursStart int
	BusinessHoursEnd   int
	Location           *time.Location
	HighTriggerCap     time.Duration
	PostDiscussionAge  time.Duration
}

func DefaultConfig() *Config {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.UTC
	}
	return &Config{
		BaseScore:          20,
		ResponseWindowSize: 10,
		BusinessHoursStart: 9,
		BusinessHoursEnd:   21,
		Location:           loc,
		HighTriggerCap:     24 * time.Hour,
		PostDiscussionAge:  72 * time.Hour,
	}
}

// ConfigFrom builds engine settings from the decision section. The timezone
// has already been validated by the loader.
func ConfigFrom(d config.DecisionConfig) *Config {
	c := DefaultConfig()
	if loc, err := time.LoadLocation(d.Timezone); err == nil {
		c.Location = loc
	}
	c.BusinessHoursStart = d.BusinessHoursStart
	c.BusinessHoursEnd = d.BusinessHoursEnd
	if d.ResponseWindowSize > 0 {
		c.ResponseWindowSize = d.ResponseWindowSize
	}
	return c
}
