package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/history"
	"github.com/strataconf/strata/pkg/schema"
)

// DriftOptions configures a drift computation.
type DriftOptions struct {
	// Types restricts the report to the named settings types. Empty
	// means every settings type in the workspace.
	Types []string

	// Record appends a drift event per finding to the history store.
	Record bool
}

// DocumentDrift lists how one stored document disagrees with its schema.
type DocumentDrift struct {
	DocumentID   string `json:"document_id"`
	DocumentType string `json:"document_type"`

	// Unknown are property paths the file carries but the schema does
	// not declare. A healing read drops them.
	Unknown []string `json:"unknown,omitempty"`

	// Missing are required property paths absent from the file. A
	// healing read fills them with their declared defaults.
	Missing []string `json:"missing,omitempty"`

	// Mismatches are values whose JSON kind differs from the declared
	// kind, with the expected and observed kinds attached.
	Mismatches []schema.Violation `json:"mismatches,omitempty"`

	// Migrations are the type migrations a healing read would apply.
	Migrations []engine.Migration `json:"migrations,omitempty"`

	// Err is set when the document could not be composed at all.
	Err string `json:"error,omitempty"`
}

// Clean reports whether the document matches its schema as stored.
func (d *DocumentDrift) Clean() bool {
	return d.Err == "" &&
		len(d.Unknown) == 0 &&
		len(d.Missing) == 0 &&
		len(d.Mismatches) == 0 &&
		len(d.Migrations) == 0
}

// DriftSummary aggregates a drift report.
type DriftSummary struct {
	Total   int `json:"total"`
	Clean   int `json:"clean"`
	Drifted int `json:"drifted"`
	Errored int `json:"errored"`

	UnknownProperties int `json:"unknown_properties"`
	MissingProperties int `json:"missing_properties"`
	TypeMismatches    int `json:"type_mismatches"`
	PendingMigrations int `json:"pending_migrations"`
}

// DriftReport describes every settings document that no longer matches
// its schema, without modifying anything.
type DriftReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Documents   []DocumentDrift `json:"documents"`
	Summary     DriftSummary    `json:"summary"`
}

// ComputeDrift inspects the workspace's settings documents and reports
// how each stored file disagrees with its schema. Nothing is repaired;
// Heal applies the fixes the report describes.
func (w *Workspace) ComputeDrift(ctx context.Context, opts DriftOptions) (*DriftReport, error) {
	report := &DriftReport{GeneratedAt: time.Now().UTC()}

	types := opts.Types
	if len(types) == 0 {
		for _, t := range w.config.Types {
			if t.Mode == string(engine.ModeSettings) {
				types = append(types, t.Name)
			}
		}
	}

	for _, typeName := range types {
		t, ok := w.config.TypeByName(typeName)
		if !ok {
			return nil, fmt.Errorf("unknown document type %q", typeName)
		}
		if t.Mode != string(engine.ModeSettings) {
			return nil, fmt.Errorf("document type %q is %s mode; drift applies to settings documents", typeName, t.Mode)
		}

		ids, err := w.List(typeName)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.Documents = append(report.Documents, w.documentDrift(ctx, typeName, id))
		}
	}

	sort.Slice(report.Documents, func(i, j int) bool {
		return report.Documents[i].DocumentID < report.Documents[j].DocumentID
	})

	for i := range report.Documents {
		d := &report.Documents[i]
		report.Summary.Total++
		switch {
		case d.Err != "":
			report.Summary.Errored++
		case d.Clean():
			report.Summary.Clean++
		default:
			report.Summary.Drifted++
		}
		report.Summary.UnknownProperties += len(d.Unknown)
		report.Summary.MissingProperties += len(d.Missing)
		report.Summary.TypeMismatches += len(d.Mismatches)
		report.Summary.PendingMigrations += len(d.Migrations)
	}

	if opts.Record && w.history != nil {
		w.recordDrift(ctx, report)
	}

	w.logger.Info().
		Int("total", report.Summary.Total).
		Int("clean", report.Summary.Clean).
		Int("drifted", report.Summary.Drifted).
		Int("errored", report.Summary.Errored).
		Msg("Drift report computed")

	return report, nil
}

// documentDrift checks one stored document against its schema. The
// document is composed with healing off, so the report never changes
// what is on disk.
func (w *Workspace) documentDrift(ctx context.Context, typeName, id string) DocumentDrift {
	drift := DocumentDrift{DocumentID: id, DocumentType: typeName}

	composed, _, shape, err := w.compose(ctx, typeName, id)
	if err != nil {
		drift.Err = err.Error()
		return drift
	}

	for _, v := range shape.Validate(composed) {
		switch v.Kind {
		case schema.UnexpectedProperty:
			drift.Unknown = append(drift.Unknown, v.Path)
		case schema.MissingRequiredProperty:
			drift.Missing = append(drift.Missing, v.Path)
		case schema.TypeMismatch:
			drift.Mismatches = append(drift.Mismatches, v)
		}
	}

	// Sanitize returns the migrations it attempted even when the repair
	// leaves violations behind.
	_, migrations, _ := engine.Sanitize(composed, shape)
	drift.Migrations = migrations

	return drift
}

// recordDrift appends one history event per finding. Recording is
// advisory: failures are logged and the report is returned regardless.
func (w *Workspace) recordDrift(ctx context.Context, report *DriftReport) {
	for i := range report.Documents {
		d := &report.Documents[i]
		if d.Err != "" {
			continue
		}

		var events []*history.DriftEvent
		for _, path := range d.Unknown {
			events = append(events, w.driftEvent(d, history.DriftKindUnknownProperty, path, nil))
		}
		for _, path := range d.Missing {
			events = append(events, w.driftEvent(d, history.DriftKindMissingProperty, path, nil))
		}
		for _, v := range d.Mismatches {
			detail := driftDetail(map[string]string{"expected": v.Expected, "actual": v.Actual})
			events = append(events, w.driftEvent(d, history.DriftKindTypeMismatch, v.Path, detail))
		}
		for _, m := range d.Migrations {
			detail := driftDetail(map[string]string{"rule": string(m.Rule)})
			events = append(events, w.driftEvent(d, history.DriftKindMigration, m.Path, detail))
		}

		for _, event := range events {
			event.Timestamp = report.GeneratedAt
			if err := w.history.AppendDriftEvent(ctx, event); err != nil {
				w.logger.Warn().Err(err).
					Str("document_id", d.DocumentID).
					Str("kind", string(event.Kind)).
					Msg("Failed to record drift event")
			}
		}
	}
}

func (w *Workspace) driftEvent(d *DocumentDrift, kind history.DriftKind, path string, detail *string) *history.DriftEvent {
	return &history.DriftEvent{
		DocumentID:   d.DocumentID,
		DocumentType: d.DocumentType,
		Kind:         kind,
		PropertyPath: path,
		Detail:       detail,
	}
}

func driftDetail(fields map[string]string) *string {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	detail := string(raw)
	return &detail
}
