// cmd/tools/catalog-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"followup-orchestrator/pkg/registry"
)

var catalogPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, listCmd} {
		fs.StringVar(&catalogPath, "path", "configs/templates.json", "Path to catalog file")
	}

	// Add command flags
	name := addCmd.String("name", "", "Template name as approved on WhatsApp (e.g., followup_engaged_options)")
	body := addCmd.String("body", "", "Template body with {{n}} placeholders")
	language := addCmd.String("language", "en", "Template language")
	leadState := addCmd.String("state", "", "Lead state this template targets (empty matches any)")
	stage := addCmd.Int("stage", -1, "Sequence stage this template targets (-1 matches any)")
	followUpType := addCmd.String("type", "", "Follow-up type (urgency, lead_state, behavioral, educational, relationship)")
	params := addCmd.String("params", "", "Comma separated placeholder sources (lead.name, lead.location, lead.budget, lead.property_type)")

	// Update command flags
	nameUpdate := updateCmd.String("name", "", "Template name to update")
	field := updateCmd.String("field", "", "Field to update (body, language, state, stage, type, params)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		_ = addCmd.Parse(os.Args[2:])
		if *name == "" || *body == "" {
			fmt.Println("Error: name and body are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		t := registry.StaticTemplate{
			Name:         *name,
			Language:     *language,
			Body:         *body,
			LeadState:    *leadState,
			FollowUpType: *followUpType,
			Params:       splitParams(*params),
		}
		if *stage >= 0 {
			t.Stage = stage
		}
		if err = addTemplate(t); err == nil {
			fmt.Printf("Added template: %s\n", *name)
		}

	case "update":
		_ = updateCmd.Parse(os.Args[2:])
		if *nameUpdate == "" || *field == "" {
			fmt.Println("Error: name and field are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err = updateTemplate(*nameUpdate, *field, *value); err == nil {
			fmt.Printf("Updated template %s, field %s to %q\n", *nameUpdate, *field, *value)
		}

	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		if err = validateCatalog(os.Stdout); err == nil {
			fmt.Println("Catalog validation passed.")
		}

	case "list":
		_ = listCmd.Parse(os.Args[2:])
		err = listCatalog(os.Stdout)

	case "help":
		fallthrough
	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func splitParams(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// readCatalog reads the file as written. registry.LoadCatalog appends the
// built-in generic entry, which must not be saved back.
func readCatalog(path string) (*registry.TemplateCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &registry.TemplateCatalog{Version: "1"}, nil
		}
		return nil, err
	}
	var cat registry.TemplateCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return &cat, nil
}

func addTemplate(t registry.StaticTemplate) error {
	cat, err := readCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	for _, existing := range cat.Templates {
		if existing.Name == t.Name {
			return fmt.Errorf("template %s already exists", t.Name)
		}
	}
	cat.Templates = append(cat.Templates, t)
	return saveCatalog(cat, catalogPath)
}

func updateTemplate(name, field, value string) error {
	cat, err := readCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	idx := -1
	for i := range cat.Templates {
		if cat.Templates[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("template %s not found", name)
	}

	t := &cat.Templates[idx]
	switch field {
	case "body":
		t.Body = value
	case "language":
		t.Language = value
	case "state":
		t.LeadState = value
	case "type":
		t.FollowUpType = value
	case "params":
		t.Params = splitParams(value)
	case "stage":
		if value == "" || value == "-1" {
			t.Stage = nil
			break
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid stage value: %w", err)
		}
		t.Stage = &n
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return saveCatalog(cat, catalogPath)
}

func validateCatalog(w io.Writer) error {
	cat, err := readCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Found %d templates.\n", len(cat.Templates))
	return nil
}

func listCatalog(w io.Writer) error {
	cat, err := registry.LoadCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tSTAGE\tTYPE\tPARAMS")
	for _, t := range cat.Templates {
		state, stage := t.LeadState, "*"
		if state == "" {
			state = "*"
		}
		if t.Stage != nil {
			stage = strconv.Itoa(*t.Stage)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Name, state, stage, t.FollowUpType, strings.Join(t.Params, ","))
	}
	return tw.Flush()
}

// saveCatalog validates before writing so a bad edit never reaches the scheduler.
func saveCatalog(cat *registry.TemplateCatalog, path string) error {
	if err := cat.Validate(); err != nil {
		return fmt.Errorf("catalog would be invalid: %w", err)
	}
	cat.LastUpdated = time.Now().Format("2006-01-02")

	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}

func help() {
	fmt.Println(`
Usage: catalog-updater <command> [flags]

Commands:
  add       Add a static template to the catalog
  update    Update a field of an existing template
  validate  Validate the catalog file
  list      Show how templates are keyed (including the built-in fallback)
  help      Show this help message

Examples:
  catalog-updater add -name followup_negotiating_offer -state negotiating -type urgency -body "Hi {{1}}, the owner is open to offers this week." -params lead.name
  catalog-updater update -name followup_negotiating_offer -field stage -value 2
  catalog-updater validate -path configs/templates.json

Use 'catalog-updater <command> -h' for more information about a command.`)
}
