// cmd/tools/catalog-updater/main_test.go
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followup-orchestrator/pkg/registry"
)

func useCatalog(t *testing.T) string {
	t.Helper()
	prev := catalogPath
	catalogPath = filepath.Join(t.TempDir(), "templates.json")
	t.Cleanup(func() { catalogPath = prev })
	return catalogPath
}

func TestAddUpdateValidate(t *testing.T) {
	path := useCatalog(t)

	require.NoError(t, addTemplate(registry.StaticTemplate{
		Name: "followup_negotiating_offer", Language: "en", LeadState: "negotiating",
		Body: "Hi {{1}}, the owner is open to offers this week.", FollowUpType: "urgency",
		Params: []string{"lead.name"},
	}))
	assert.Error(t, addTemplate(registry.StaticTemplate{Name: "followup_negotiating_offer", Language: "en", Body: "x"}))

	require.NoError(t, updateTemplate("followup_negotiating_offer", "stage", "2"))
	assert.Error(t, updateTemplate("followup_negotiating_offer", "colour", "blue"))
	assert.Error(t, updateTemplate("missing", "body", "x"))

	var out bytes.Buffer
	require.NoError(t, validateCatalog(&out))
	assert.Contains(t, out.String(), "Found 1 templates")

	// the generic fallback is appended on load but never persisted
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), registry.GenericTemplateName)

	cat, err := registry.LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "followup_negotiating_offer", cat.Lookup("negotiating", 2).Name)
}

func TestUpdateRejectsInvalidEdit(t *testing.T) {
	useCatalog(t)
	require.NoError(t, addTemplate(registry.StaticTemplate{
		Name: "followup_dormant_ping", Language: "en", Body: "Hi {{1}}", Params: []string{"lead.name"},
	}))

	err := updateTemplate("followup_dormant_ping", "body", "Hi {{1}}, still in {{2}}?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 placeholders but 1 params")
}

func TestListCatalog(t *testing.T) {
	useCatalog(t)
	require.NoError(t, addTemplate(registry.StaticTemplate{
		Name: "followup_qualified_visit", Language: "en", LeadState: "qualified",
		Body: "Hi {{1}}", Params: []string{"lead.name"},
	}))

	var out bytes.Buffer
	require.NoError(t, listCatalog(&out))
	assert.Contains(t, out.String(), "followup_qualified_visit")
	assert.Contains(t, out.String(), registry.GenericTemplateName)
}

func TestSplitParams(t *testing.T) {
	assert.Nil(t, splitParams(" "))
	assert.Equal(t, []string{"lead.name", "lead.location"}, splitParams("lead.name, lead.location,"))
}
