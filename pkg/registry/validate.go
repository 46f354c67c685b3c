// pkg/registry/validate.go
package registry

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	templateNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,512}$`)
	placeholderPattern  = regexp.MustCompile(`\{\{(\d+)\}\}`)

	leadStates = map[string]bool{
		"new": true, "engaged": true, "qualified": true, "viewing_scheduled": true,
		"negotiating": true, "objection": true, "dormant": true,
	}
	followUpTypes = map[string]bool{
		"urgency": true, "lead_state": true, "behavioral": true, "educational": true, "relationship": true,
	}
)

// Validate reports every problem in the catalog, not just the first.
// Converted and dead leads never receive follow-ups, so templates keyed on
// those states are rejected.
func (c *TemplateCatalog) Validate() error {
	if len(c.Templates) == 0 {
		return errors.New("catalog contains no templates")
	}

	var errs []error
	seen := make(map[string]bool)
	for i, t := range c.Templates {
		ref := fmt.Sprintf("template %d (%s)", i, t.Name)
		if !templateNamePattern.MatchString(t.Name) {
			errs = append(errs, fmt.Errorf("%s: name must match %s", ref, templateNamePattern))
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", ref))
		}
		seen[t.Name] = true

		if t.Body == "" {
			errs = append(errs, fmt.Errorf("%s: empty body", ref))
		}
		if t.Language == "" {
			errs = append(errs, fmt.Errorf("%s: empty language", ref))
		}
		if t.LeadState != "" && !leadStates[t.LeadState] {
			errs = append(errs, fmt.Errorf("%s: unknown or inactive lead state %q", ref, t.LeadState))
		}
		if t.FollowUpType != "" && !followUpTypes[t.FollowUpType] {
			errs = append(errs, fmt.Errorf("%s: unknown follow-up type %q", ref, t.FollowUpType))
		}
		if t.Stage != nil && *t.Stage < 0 {
			errs = append(errs, fmt.Errorf("%s: negative stage", ref))
		}
		if n := countPlaceholders(t.Body); n != len(t.Params) {
			errs = append(errs, fmt.Errorf("%s: body has %d placeholders but %d params", ref, n, len(t.Params)))
		}
	}
	return errors.Join(errs...)
}

func countPlaceholders(body string) int {
	distinct := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		distinct[m[1]] = true
	}
	return len(distinct)
}
