package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/strataconf/strata/pkg/schema"
	"github.com/strataconf/strata/pkg/telemetry"
)

// SchemaKey is the reserved root-level key carrying the schema reference
// the engine injects on write. It is informational for external tooling
// and ignored on read.
const SchemaKey = "$schema"

// BehaviorMode controls missing-file handling and validation strictness
// for a document type.
type BehaviorMode string

const (
	// ModeSettings documents are user-edited. A missing file is populated
	// with the schema default and the read fails asking for review; a
	// drifted file is sanitized instead of rejected.
	ModeSettings BehaviorMode = "settings"

	// ModeState documents are machine-owned. A missing file is populated
	// with the schema default and returned; validation is strict.
	ModeState BehaviorMode = "state"

	// ModeOutput documents are write-only artifacts. Reading is
	// disallowed and writes skip validation and schema injection.
	ModeOutput BehaviorMode = "output"
)

// Valid reports whether the mode is one of the three known modes.
func (m BehaviorMode) Valid() bool {
	switch m {
	case ModeSettings, ModeState, ModeOutput:
		return true
	}
	return false
}

// ParseBehaviorMode parses a mode name.
func ParseBehaviorMode(s string) (BehaviorMode, error) {
	m := BehaviorMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown behavior mode %q (valid: settings, state, output)", s)
	}
	return m, nil
}

// Document is an untyped document tree.
type Document = map[string]any

// Store reads and writes documents of one type. Each document type is
// bound to a schema shape and a behavior mode; document identifiers are
// root-relative file references. A Store holds no cross-call state: every
// Read loads, composes, and validates the file fresh.
type Store[T any] struct {
	docType   string
	mode      BehaviorMode
	shape     *schema.Shape
	schemaRef string
	fs        FileSystem
	paths     *PathResolver
	resolver  *Resolver
	logger    zerolog.Logger
}

// RawStore is a Store surfacing untyped document trees.
type RawStore = Store[Document]

// StoreConfig configures a document store.
type StoreConfig struct {
	// DocumentType names the document type, used in logs and telemetry.
	DocumentType string

	// Mode is the behavior mode for this document type.
	Mode BehaviorMode

	// Shape is the full schema shape. Required except in output mode.
	Shape *schema.Shape

	// SchemaRef, when set, is injected as $schema on every validated
	// write.
	SchemaRef string

	// FileSystem defaults to the host OS.
	FileSystem FileSystem

	// Paths locates documents and enforces root containment.
	Paths *PathResolver

	// Logger is the parent logger to derive component loggers from.
	Logger zerolog.Logger
}

// NewStore creates a document store for one document type.
func NewStore[T any](cfg StoreConfig) (*Store[T], error) {
	if cfg.DocumentType == "" {
		return nil, fmt.Errorf("document type is required")
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("unknown behavior mode %q", cfg.Mode)
	}
	if cfg.Shape == nil && cfg.Mode != ModeOutput {
		return nil, fmt.Errorf("schema shape is required for %s documents", cfg.Mode)
	}
	if cfg.Paths == nil {
		return nil, fmt.Errorf("path resolver is required")
	}
	fsys := cfg.FileSystem
	if fsys == nil {
		fsys = NewOSFileSystem()
	}
	return &Store[T]{
		docType:   cfg.DocumentType,
		mode:      cfg.Mode,
		shape:     cfg.Shape,
		schemaRef: cfg.SchemaRef,
		fs:        fsys,
		paths:     cfg.Paths,
		resolver:  NewResolver(fsys, cfg.Paths, cfg.Logger),
		logger: cfg.Logger.With().
			Str("component", "store").
			Str("document_type", cfg.DocumentType).
			Logger(),
	}, nil
}

// DocumentType returns the document type this store serves.
func (s *Store[T]) DocumentType() string { return s.docType }

// Mode returns the store's behavior mode.
func (s *Store[T]) Mode() BehaviorMode { return s.mode }

// Path returns the file path a document identifier maps to.
func (s *Store[T]) Path(docID string) (string, error) {
	return s.paths.DocumentPath(docID)
}

// Read loads, composes, validates, and decodes the named document
// according to the store's behavior mode.
func (s *Store[T]) Read(ctx context.Context, docID string) (T, error) {
	ctx = telemetry.WithReadContext(ctx, docID, s.docType, string(s.mode))
	value, outcome, err := s.read(ctx, docID)
	telemetry.EndReadContext(ctx, docID, s.docType, string(s.mode), outcome, err)
	return value, err
}

func (s *Store[T]) read(ctx context.Context, docID string) (T, string, error) {
	var zero T

	if s.mode == ModeOutput {
		return zero, "error", NewReadDisallowedError(docID)
	}

	path, err := s.paths.DocumentPath(docID)
	if err != nil {
		return zero, "error", err
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.readMissing(ctx, docID, path)
		}
		return zero, "error", NewDocumentLoadFailedError(path, err)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		if s.mode == ModeSettings {
			s.logger.Warn().Str("document_id", docID).Err(err).Msg("document is not parseable JSON")
		}
		return zero, "error", NewDocumentLoadFailedError(path, err)
	}
	tree, ok := parsed.(Document)
	if !ok {
		return zero, "error", NewDocumentLoadFailedError(path,
			fmt.Errorf("document root must be an object"))
	}

	var composed Document
	var stats ResolveStats
	err = telemetry.RecordResolveOperation(ctx, "compose", docID, func() error {
		var rerr error
		composed, stats, rerr = s.resolver.ResolveTree(path, tree, s.shape, s.mode == ModeSettings)
		return rerr
	})
	if err != nil {
		return zero, "error", err
	}
	s.recordResolveStats(ctx, stats)

	violations := s.shape.Validate(composed)
	if len(violations) == 0 {
		value, err := decodeValue[T](composed)
		if err == nil {
			return value, "ok", nil
		}
		if s.mode != ModeSettings {
			return zero, "error", NewDocumentLoadFailedError(path, err)
		}
		s.logger.Warn().Str("document_id", docID).Err(err).Msg("document failed to decode, sanitizing")
		return s.sanitizeRead(ctx, docID, path, tree, composed)
	}

	s.recordViolations(ctx, docID, violations, "read")
	if s.mode != ModeSettings {
		return zero, "error", NewMergedValidationFailedError(path, violations)
	}
	return s.sanitizeRead(ctx, docID, path, tree, composed)
}

// readMissing implements the per-mode contract for absent files.
func (s *Store[T]) readMissing(ctx context.Context, docID, path string) (T, string, error) {
	var zero T

	tree := s.shape.DefaultTree()
	if err := s.writeTree(path, tree); err != nil {
		return zero, "error", fmt.Errorf("failed to write default document %s: %w", path, err)
	}

	s.logger.Info().
		Str("document_id", docID).
		Str("path", s.paths.Rel(path)).
		Msg("created default document")
	if t := telemetry.FromTelemetryContext(ctx); t != nil {
		t.Metrics.RecordDefaultCreated(s.docType, string(s.mode))
		t.Events.PublishDefaultCreated(docID, s.docType, path)
	}

	if s.mode == ModeState {
		value, err := decodeValue[T](tree)
		if err != nil {
			return zero, "error", fmt.Errorf("failed to decode default document: %w", err)
		}
		return value, "default_created", nil
	}
	return zero, "default_created", NewDefaultCreatedError(docID, path)
}

// sanitizeRead repairs a drifted settings document. When the document is
// standalone (no inheritance, no fragments) the repaired tree is also
// rewritten on disk so the file itself converges to the schema.
func (s *Store[T]) sanitizeRead(ctx context.Context, docID, path string, raw, composed Document) (T, string, error) {
	var zero T

	repaired, migrations, err := Sanitize(composed, s.shape)
	if err != nil {
		var engineErr *EngineError
		if errors.As(err, &engineErr) {
			engineErr.Path = path
			s.recordViolations(ctx, docID, engineErr.Violations, "sanitize")
		}
		return zero, "error", err
	}

	for _, m := range migrations {
		s.logger.Info().
			Str("document_id", docID).
			Str("rule", string(m.Rule)).
			Str("property", m.Path).
			Msg("applied migration")
	}
	if t := telemetry.FromTelemetryContext(ctx); t != nil {
		for _, m := range migrations {
			t.Metrics.RecordMigration(string(m.Rule))
		}
		t.Metrics.RecordSanitization(s.docType, "repaired")
		t.Events.PublishDocumentSanitized(docID, len(migrations))
	}

	if reflect.DeepEqual(raw, composed) {
		if err := s.writeTree(path, repaired); err != nil {
			return zero, "error", fmt.Errorf("failed to rewrite sanitized document %s: %w", path, err)
		}
		s.logger.Info().
			Str("document_id", docID).
			Int("migrations", len(migrations)).
			Msg("rewrote drifted document")
	} else {
		s.logger.Warn().
			Str("document_id", docID).
			Msg("composed document drifted; repaired in memory only")
	}

	value, err := decodeValue[T](repaired)
	if err != nil {
		return zero, "error", fmt.Errorf("failed to decode sanitized document %s: %w", path, err)
	}
	return value, "sanitized", nil
}

// Write validates and persists a document value, returning the path it
// was written to. Output-mode stores write the value as-is.
func (s *Store[T]) Write(ctx context.Context, docID string, value T) (string, error) {
	ctx = telemetry.WithWriteContext(ctx, docID, s.docType, string(s.mode))
	path, err := s.write(ctx, docID, value)
	telemetry.EndWriteContext(ctx, docID, s.docType, string(s.mode), path, err)
	return path, err
}

func (s *Store[T]) write(ctx context.Context, docID string, value T) (string, error) {
	path, err := s.paths.DocumentPath(docID)
	if err != nil {
		return "", err
	}

	if s.mode == ModeOutput {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode document %s: %w", docID, err)
		}
		data = append(data, '\n')
		if err := s.fs.MkdirAll(filepath.Dir(path), documentDirMode); err != nil {
			return "", fmt.Errorf("failed to create document directory: %w", err)
		}
		if err := s.fs.WriteFile(path, data, documentFileMode); err != nil {
			return "", fmt.Errorf("failed to write document %s: %w", path, err)
		}
		return path, nil
	}

	tree, err := encodeValue(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode document %s: %w", docID, err)
	}

	if violations := s.shape.Validate(tree); len(violations) > 0 {
		s.recordViolations(ctx, docID, violations, "write")
		return "", NewDocumentValidationFailedError(docID, violations)
	}

	if err := s.writeTree(path, tree); err != nil {
		return "", fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return path, nil
}

// IsCacheValid reports whether an externally cached copy of the document
// is still fresh: the file must exist, must have been modified within
// maxAge, and, when a predicate is given, the current content must
// satisfy it. A non-positive maxAge disables the age check.
func (s *Store[T]) IsCacheValid(ctx context.Context, docID string, maxAge time.Duration, predicate func(T) bool) bool {
	path, err := s.paths.DocumentPath(docID)
	if err != nil {
		return false
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return false
	}
	if maxAge > 0 && time.Since(info.ModTime()) > maxAge {
		return false
	}
	if predicate != nil {
		value, err := s.Read(ctx, docID)
		if err != nil {
			return false
		}
		return predicate(value)
	}
	return true
}

// writeTree persists a tree as the named document, injecting the schema
// reference when one is configured.
func (s *Store[T]) writeTree(path string, tree Document) error {
	out := CloneTree(tree).(Document)
	if s.schemaRef != "" {
		out[SchemaKey] = s.schemaRef
	}
	return writeDocumentFile(s.fs, path, out)
}

func (s *Store[T]) recordResolveStats(ctx context.Context, stats ResolveStats) {
	t := telemetry.FromTelemetryContext(ctx)
	if t == nil {
		return
	}
	for i := 0; i < stats.BasesResolved; i++ {
		t.Metrics.RecordBaseResolved(s.docType)
	}
	for i := 0; i < stats.FragmentsExpanded; i++ {
		t.Metrics.RecordFragmentExpanded(s.docType)
	}
}

func (s *Store[T]) recordViolations(ctx context.Context, docID string, violations []schema.Violation, stage string) {
	if len(violations) == 0 {
		return
	}
	t := telemetry.FromTelemetryContext(ctx)
	if t == nil {
		return
	}
	counts := make(map[string]int)
	for _, v := range violations {
		counts[string(v.Kind)]++
	}
	for kind, n := range counts {
		t.Metrics.RecordValidationViolations(s.docType, kind, n)
	}
	t.Events.PublishValidationFailed(docID, len(violations), stage)
}

// writeDocumentFile serializes a tree as indented JSON and writes it,
// creating parent directories as needed.
func writeDocumentFile(fsys FileSystem, path string, tree Document) error {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := fsys.MkdirAll(filepath.Dir(path), documentDirMode); err != nil {
		return err
	}
	return fsys.WriteFile(path, data, documentFileMode)
}

func decodeValue[T any](tree Document) (T, error) {
	var value T
	data, err := json.Marshal(tree)
	if err != nil {
		return value, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, err
	}
	return value, nil
}

func encodeValue[T any](value T) (Document, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var tree Document
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("document value must encode to an object: %w", err)
	}
	return tree, nil
}
