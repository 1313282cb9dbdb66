package workspace

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/strataconf/strata/pkg/schema"
)

// defaultMaxParallel bounds the validation worker pool.
const defaultMaxParallel = 8

// RunnerOptions configures a batch validation run.
type RunnerOptions struct {
	// MaxParallel is the worker count per level. Zero applies the
	// default.
	MaxParallel int

	// FailFast stops after the first level that produced an invalid or
	// errored document.
	FailFast bool

	// Constraints also checks the type's CUE constraints against each
	// document that passed schema validation.
	Constraints bool
}

// DocumentReport is the validation outcome for one document.
type DocumentReport struct {
	DocumentID   string             `json:"document_id"`
	DocumentType string             `json:"document_type"`
	Violations   []schema.Violation `json:"violations,omitempty"`
	Err          string             `json:"error,omitempty"`
	Duration     time.Duration      `json:"duration"`
}

// Valid reports whether the document composed and passed every check.
func (r *DocumentReport) Valid() bool {
	return r.Err == "" && len(r.Violations) == 0
}

// BatchSummary aggregates a batch validation run.
type BatchSummary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Errored int `json:"errored"`
}

// BatchReport is the outcome of validating a whole workspace.
type BatchReport struct {
	Reports  []DocumentReport `json:"reports"`
	Summary  BatchSummary     `json:"summary"`
	Levels   int              `json:"levels"`
	Duration time.Duration    `json:"duration"`
}

// OK reports whether every document validated cleanly.
func (r *BatchReport) OK() bool {
	return r.Summary.Invalid == 0 && r.Summary.Errored == 0
}

// ValidateAll validates every typed document in the workspace in
// dependency order: bases and fragments are checked before the documents
// composed from them, and documents within a level run concurrently.
func (w *Workspace) ValidateAll(ctx context.Context, opts RunnerOptions) (*BatchReport, error) {
	start := time.Now()

	graph, err := w.BuildGraph()
	if err != nil {
		return nil, err
	}

	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}

	report := &BatchReport{Levels: graph.Depth}

	for _, level := range graph.Levels() {
		docs := w.typedDocuments(graph, level)
		if len(docs) == 0 {
			continue
		}

		reports := w.validateLevel(ctx, docs, maxParallel, opts.Constraints)
		report.Reports = append(report.Reports, reports...)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.FailFast && levelFailed(reports) {
			break
		}
	}

	for i := range report.Reports {
		report.Summary.Total++
		switch {
		case report.Reports[i].Err != "":
			report.Summary.Errored++
		case len(report.Reports[i].Violations) > 0:
			report.Summary.Invalid++
		default:
			report.Summary.Valid++
		}
	}

	sort.Slice(report.Reports, func(i, j int) bool {
		return report.Reports[i].DocumentID < report.Reports[j].DocumentID
	})
	report.Duration = time.Since(start)

	w.logger.Info().
		Int("total", report.Summary.Total).
		Int("valid", report.Summary.Valid).
		Int("invalid", report.Summary.Invalid).
		Int("errored", report.Summary.Errored).
		Dur("duration", report.Duration).
		Msg("Workspace validation finished")

	return report, nil
}

// typedDocuments filters a level down to the documents that belong to a
// declared type and exist. Fragments have no schema of their own, and
// missing references already surface through their dependents.
func (w *Workspace) typedDocuments(graph *Graph, level []string) []DocumentRef {
	var docs []DocumentRef
	for _, id := range level {
		node := graph.Nodes[id]
		if node.Type == "" || node.Missing {
			continue
		}
		docs = append(docs, DocumentRef{ID: id, Type: node.Type})
	}
	return docs
}

// validateLevel checks one level's documents with a bounded worker pool.
func (w *Workspace) validateLevel(ctx context.Context, docs []DocumentRef, maxParallel int, constraints bool) []DocumentReport {
	workers := maxParallel
	if len(docs) < workers {
		workers = len(docs)
	}

	queue := make(chan DocumentRef, len(docs))
	for _, doc := range docs {
		queue <- doc
	}
	close(queue)

	reports := make([]DocumentReport, 0, len(docs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range queue {
				if ctx.Err() != nil {
					return
				}
				report := w.validateDocument(ctx, doc, constraints)
				mu.Lock()
				reports = append(reports, report)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return reports
}

func (w *Workspace) validateDocument(ctx context.Context, doc DocumentRef, constraints bool) DocumentReport {
	start := time.Now()
	report := DocumentReport{DocumentID: doc.ID, DocumentType: doc.Type}

	composed, _, shape, err := w.compose(ctx, doc.Type, doc.ID)
	if err != nil {
		report.Err = err.Error()
		report.Duration = time.Since(start)
		return report
	}

	report.Violations = shape.Validate(composed)

	if constraints && len(report.Violations) == 0 {
		if err := w.CheckConstraints(ctx, doc.Type, composed); err != nil {
			report.Err = fmt.Sprintf("constraint check failed: %v", err)
		}
	}

	report.Duration = time.Since(start)
	return report
}

func levelFailed(reports []DocumentReport) bool {
	for i := range reports {
		if !reports[i].Valid() {
			return true
		}
	}
	return false
}
