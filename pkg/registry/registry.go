// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// GenericTemplateName is the catalog entry every lookup can fall back to.
const GenericTemplateName = "followup_generic_checkin"

// LoadCatalog reads a catalog file. An empty path yields the built-in catalog.
// The built-in generic entry is always appended so Lookup cannot miss.
func LoadCatalog(path string) (*TemplateCatalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat TemplateCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for i, t := range cat.Templates {
		if t.Name == "" || t.Body == "" {
			return nil, fmt.Errorf("catalog %s: template %d has empty name or body", path, i)
		}
	}
	cat.Templates = append(cat.Templates, generic())
	return &cat, nil
}

// Lookup picks the most specific template for state and stage:
// state+stage, then state, then stage, then the generic entry.
func (c *TemplateCatalog) Lookup(state string, stage int) StaticTemplate {
	best, bestRank := generic(), -1
	for _, t := range c.Templates {
		stateMatch := t.LeadState == state
		if t.LeadState != "" && !stateMatch {
			continue
		}
		stageMatch := t.Stage != nil && *t.Stage == stage
		if t.Stage != nil && !stageMatch {
			continue
		}

		rank := 0
		if stateMatch {
			rank += 2
		}
		if stageMatch {
			rank++
		}
		if rank > bestRank {
			best, bestRank = t, rank
		}
	}
	return best
}

func stagePtr(n int) *int { return &n }

func generic() StaticTemplate {
	return StaticTemplate{
		Name:         GenericTemplateName,
		Language:     "en",
		Body:         "Hi {{1}}, just checking in. Let me know if you would like fresh options that match what you are looking for.",
		FollowUpType: "relationship",
		Params:       []string{"lead.name"},
	}
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() *TemplateCatalog {
	return &TemplateCatalog{
		Version: "1",
		Templates: []StaticTemplate{
			{
				Name: "followup_new_intro", Language: "en", LeadState: "new", Stage: stagePtr(0),
				Body:         "Hi {{1}}, thanks for your interest. Are you still looking for a place in {{2}}?",
				FollowUpType: "relationship", Params: []string{"lead.name", "lead.location"},
			},
			{
				Name: "followup_engaged_options", Language: "en", LeadState: "engaged",
				Body:         "Hi {{1}}, a few new listings in {{2}} fit your budget. Want me to share them?",
				FollowUpType: "behavioral", Params: []string{"lead.name", "lead.location"},
			},
			{
				Name: "followup_qualified_visit", Language: "en", LeadState: "qualified",
				Body:         "Hi {{1}}, would you like to schedule a visit this week?",
				FollowUpType: "urgency", Params: []string{"lead.name"},
			},
			{
				Name: "followup_objection_clarify", Language: "en", LeadState: "objection",
				Body:         "Hi {{1}}, I have a few options that may address your concerns. Shall I send details?",
				FollowUpType: "lead_state", Params: []string{"lead.name"},
			},
			{
				Name: "followup_dormant_market", Language: "en", LeadState: "dormant",
				Body:         "Hi {{1}}, here is a quick market update for {{2}}. Happy to help whenever you are ready.",
				FollowUpType: "educational", Params: []string{"lead.name", "lead.location"},
			},
			{
				Name: "followup_last_touch", Language: "en", Stage: stagePtr(4),
				Body:         "Hi {{1}}, this is my last note for now. Reply anytime and I will pick things up.",
				FollowUpType: "relationship", Params: []string{"lead.name"},
			},
			generic(),
		},
	}
}
