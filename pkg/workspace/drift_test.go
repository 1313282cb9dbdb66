package workspace

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/history"
	"github.com/strataconf/strata/pkg/schema"
)

func TestComputeDrift_Clean(t *testing.T) {
	ws := newTestWorkspace(t, testWorkspaceYAML, map[string]string{
		"editor/settings.json": `{"Theme": "dark", "FontSize": 14}`,
		"editor/state.json":    `{"LastFile": "a.txt"}`,
	})

	report, err := ws.ComputeDrift(context.Background(), DriftOptions{})
	if err != nil {
		t.Fatalf("ComputeDrift() error = %v", err)
	}

	// State documents are not part of drift reporting.
	want := DriftSummary{Total: 1, Clean: 1}
	if report.Summary != want {
		t.Errorf("summary = %+v, want %+v", report.Summary, want)
	}
	if !report.Documents[0].Clean() {
		t.Errorf("document = %+v, want clean", report.Documents[0])
	}
}

func TestComputeDrift_Drifted(t *testing.T) {
	ws := newTestWorkspace(t, testWorkspaceYAML, map[string]string{
		"editor/settings.json": `{"Theme": "dark", "Plugins": "vim", "Junk": 1}`,
	})

	before, err := os.ReadFile(filepath.Join(ws.Root(), "editor", "settings.json"))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}

	report, err := ws.ComputeDrift(context.Background(), DriftOptions{})
	if err != nil {
		t.Fatalf("ComputeDrift() error = %v", err)
	}

	want := DriftSummary{
		Total:             1,
		Drifted:           1,
		UnknownProperties: 1,
		MissingProperties: 1,
		TypeMismatches:    1,
		PendingMigrations: 1,
	}
	if report.Summary != want {
		t.Errorf("summary = %+v, want %+v", report.Summary, want)
	}

	d := report.Documents[0]
	if !reflect.DeepEqual(d.Unknown, []string{"Junk"}) {
		t.Errorf("unknown = %v", d.Unknown)
	}
	if !reflect.DeepEqual(d.Missing, []string{"FontSize"}) {
		t.Errorf("missing = %v", d.Missing)
	}
	if len(d.Mismatches) != 1 || d.Mismatches[0].Path != "Plugins" || d.Mismatches[0].Kind != schema.TypeMismatch {
		t.Errorf("mismatches = %+v", d.Mismatches)
	}
	if len(d.Migrations) != 1 || d.Migrations[0].Rule != engine.MigrationStringToList {
		t.Errorf("migrations = %+v", d.Migrations)
	}

	after, err := os.ReadFile(filepath.Join(ws.Root(), "editor", "settings.json"))
	if err != nil {
		t.Fatalf("failed to re-read fixture: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Error("ComputeDrift() modified the document on disk")
	}
}

func TestComputeDrift_TypeSelection(t *testing.T) {
	ws := newTestWorkspace(t, testWorkspaceYAML, nil)
	ctx := context.Background()

	if _, err := ws.ComputeDrift(ctx, DriftOptions{Types: []string{"absent"}}); err == nil {
		t.Error("ComputeDrift() expected error for unknown type")
	}
	if _, err := ws.ComputeDrift(ctx, DriftOptions{Types: []string{"state"}}); err == nil {
		t.Error("ComputeDrift() expected error for non-settings type")
	}
}

func TestComputeDrift_ComposeError(t *testing.T) {
	ws := newTestWorkspace(t, testWorkspaceYAML, map[string]string{
		"editor/settings.json": `{"$extends": "../base/absent", "Theme": "dark", "FontSize": 14}`,
	})

	report, err := ws.ComputeDrift(context.Background(), DriftOptions{})
	if err != nil {
		t.Fatalf("ComputeDrift() error = %v", err)
	}

	if report.Summary.Errored != 1 {
		t.Errorf("summary = %+v, want one errored document", report.Summary)
	}
	if d := report.Documents[0]; d.Err == "" || d.Clean() {
		t.Errorf("document = %+v, want compose error", d)
	}
}

func TestComputeDrift_RecordsHistory(t *testing.T) {
	configYAML := `
version: 1
root: docs
policies:
  enabled: false
types:
  - name: settings
    pattern: "**/settings"
    mode: settings
    schema: schemas/settings.schema.yaml
  - name: state
    pattern: "**/state"
    mode: state
    schema: schemas/state.schema.yaml
`
	ws := newTestWorkspace(t, configYAML, map[string]string{
		"editor/settings.json": `{"Theme": "dark", "Plugins": "vim", "Junk": 1}`,
	})
	ctx := context.Background()

	if _, err := ws.ComputeDrift(ctx, DriftOptions{Record: true}); err != nil {
		t.Fatalf("ComputeDrift() error = %v", err)
	}

	docID := "editor/settings"
	events, err := ws.History().ListDriftEvents(ctx, &docID, nil, 50, 0)
	if err != nil {
		t.Fatalf("ListDriftEvents() error = %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("event count = %d, want 4: %+v", len(events), events)
	}

	kinds := make(map[history.DriftKind]*history.DriftEvent)
	for _, event := range events {
		kinds[event.Kind] = event
	}
	for _, kind := range []history.DriftKind{
		history.DriftKindUnknownProperty,
		history.DriftKindMissingProperty,
		history.DriftKindTypeMismatch,
		history.DriftKindMigration,
	} {
		if kinds[kind] == nil {
			t.Errorf("no %s event recorded", kind)
		}
	}

	if event := kinds[history.DriftKindMigration]; event != nil {
		if event.PropertyPath != "Plugins" || event.Detail == nil {
			t.Errorf("migration event = %+v", event)
		}
	}
}
