// pkg/registry/registry_test.go
package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_PrefersMostSpecific(t *testing.T) {
	cat := DefaultCatalog()

	assert.Equal(t, "followup_new_intro", cat.Lookup("new", 0).Name)
	assert.Equal(t, "followup_engaged_options", cat.Lookup("engaged", 3).Name)
	assert.Equal(t, "followup_last_touch", cat.Lookup("negotiating", 4).Name)
	assert.Equal(t, GenericTemplateName, cat.Lookup("negotiating", 1).Name)
	assert.Equal(t, GenericTemplateName, cat.Lookup("new", 2).Name)
}

func TestLookup_EmptyCatalogNeverMisses(t *testing.T) {
	cat := &TemplateCatalog{}
	got := cat.Lookup("anything", 9)
	assert.Equal(t, GenericTemplateName, got.Name)
	assert.NotEmpty(t, got.Body)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "2",
		"templates": [
			{"name": "custom_dormant", "language": "en", "leadState": "dormant", "body": "Hi {{1}}"}
		]
	}`), 0o600))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "custom_dormant", cat.Lookup("dormant", 1).Name)
	assert.Equal(t, GenericTemplateName, cat.Lookup("new", 0).Name)
}

func TestLoadCatalog_RejectsEmptyBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"templates":[{"name":"x"}]}`), 0o600))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}

func TestLoadCatalog_EmptyPathUsesDefaults(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	assert.NotEmpty(t, cat.Templates)
}

func TestValidate_DefaultCatalogIsClean(t *testing.T) {
	require.NoError(t, DefaultCatalog().Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	stage := -1
	cat := &TemplateCatalog{Templates: []StaticTemplate{
		{Name: "Bad Name", Language: "en", Body: "Hi {{1}}", Params: []string{"lead.name"}},
		{Name: "dup", Language: "en", Body: "Hi", LeadState: "converted"},
		{Name: "dup", Language: "en", Body: "Hi {{1}} in {{2}}", Params: []string{"lead.name"}, Stage: &stage},
		{Name: "typo", Language: "en", Body: "Hi", FollowUpType: "urgent"},
	}}

	err := cat.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "name must match")
	assert.Contains(t, msg, "inactive lead state \"converted\"")
	assert.Contains(t, msg, "duplicate name")
	assert.Contains(t, msg, "negative stage")
	assert.Contains(t, msg, "2 placeholders but 1 params")
	assert.Contains(t, msg, "unknown follow-up type \"urgent\"")
}

func TestValidate_Empty(t *testing.T) {
	assert.Error(t, (&TemplateCatalog{}).Validate())
}
