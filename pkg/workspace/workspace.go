package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/strataconf/strata/pkg/engine"
	"github.com/strataconf/strata/pkg/history"
	"github.com/strataconf/strata/pkg/policy"
	"github.com/strataconf/strata/pkg/schema"
)

// DeniedError reports an operation blocked by the policy engine.
type DeniedError struct {
	DocumentID string
	Operation  string
	Violations []policy.PolicyViolation
}

func (e *DeniedError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("%s of %s denied by policy", e.Operation, e.DocumentID)
	}
	first := e.Violations[0]
	msg := fmt.Sprintf("%s of %s denied by policy %s: %s", e.Operation, e.DocumentID, first.Policy, first.Message)
	if len(e.Violations) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(e.Violations)-1)
	}
	return msg
}

// DocumentRef identifies one document and the type it belongs to.
type DocumentRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Workspace is an opened strata workspace: per-type document stores plus
// the shared facilities around them. Its Read, Write, Validate, and
// Resolve methods implement the serve-mode document service.
type Workspace struct {
	config          *Config
	paths           *engine.PathResolver
	fs              engine.FileSystem
	registry        *schema.Registry
	constraints     *schema.ConstraintRegistry
	constraintNames map[string]string
	resolver        *engine.Resolver
	stores          map[string]*engine.RawStore
	history         history.Store
	policies        *policy.Engine
	logger          zerolog.Logger
}

// Open builds a workspace from its configuration: compiles every schema
// manifest, creates one store per document type, and initializes the
// history database and policy engine when they are enabled.
func Open(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Workspace, error) {
	root := cfg.AbsRoot()
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("document root %s: %w", root, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", root)
	}

	paths, err := engine.NewPathResolver(root)
	if err != nil {
		return nil, err
	}

	fsys := engine.NewOSFileSystem()
	w := &Workspace{
		config:          cfg,
		paths:           paths,
		fs:              fsys,
		registry:        schema.NewRegistry(),
		constraints:     schema.NewConstraintRegistry(),
		constraintNames: make(map[string]string),
		resolver:        engine.NewResolver(fsys, paths, logger),
		stores:          make(map[string]*engine.RawStore, len(cfg.Types)),
		logger: logger.With().
			Str("component", "workspace").
			Str("root", root).
			Logger(),
	}

	loader := schema.NewManifestLoader()
	for i := range cfg.Types {
		if err := w.addType(loader, &cfg.Types[i], logger); err != nil {
			return nil, err
		}
	}

	if cfg.History.IsEnabled() {
		if err := w.openHistory(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Policies.IsEnabled() {
		if err := w.openPolicies(ctx); err != nil {
			return nil, err
		}
	}

	w.logger.Info().
		Int("types", len(cfg.Types)).
		Bool("history", w.history != nil).
		Bool("policies", w.policies != nil).
		Msg("Workspace opened")

	return w, nil
}

func (w *Workspace) addType(loader *schema.ManifestLoader, t *TypeConfig, logger zerolog.Logger) error {
	mode, err := engine.ParseBehaviorMode(t.Mode)
	if err != nil {
		return fmt.Errorf("document type %q: %w", t.Name, err)
	}

	var shape *schema.Shape
	var schemaRef string
	if t.Schema != "" {
		manifest, err := loader.LoadFromFile(w.config.AbsPath(t.Schema))
		if err != nil {
			return fmt.Errorf("document type %q: %w", t.Name, err)
		}
		shape = manifest.Shape
		schemaRef = manifest.Reference
		if t.SchemaRef != "" {
			schemaRef = t.SchemaRef
		}
		if err := w.registry.Register(t.Name, shape, schemaRef); err != nil {
			return err
		}
	}

	if t.Constraints != "" {
		path := w.config.AbsPath(t.Constraints)
		if err := w.constraints.LoadFile(path); err != nil {
			return fmt.Errorf("document type %q: %w", t.Name, err)
		}
		w.constraintNames[t.Name] = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	store, err := engine.NewStore[engine.Document](engine.StoreConfig{
		DocumentType: t.Name,
		Mode:         mode,
		Shape:        shape,
		SchemaRef:    schemaRef,
		FileSystem:   w.fs,
		Paths:        w.paths,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("document type %q: %w", t.Name, err)
	}
	w.stores[t.Name] = store
	return nil
}

func (w *Workspace) openHistory(ctx context.Context) error {
	path := w.config.AbsPath(w.config.History.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	store, err := history.NewSQLiteStore(history.Config{Path: path})
	if err != nil {
		return fmt.Errorf("failed to create history store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to migrate history database: %w", err)
	}

	w.history = store
	return nil
}

func (w *Workspace) openPolicies(ctx context.Context) error {
	eng, err := policy.NewEngine(w.logger)
	if err != nil {
		return err
	}

	if len(w.config.Policies.Paths) > 0 {
		paths := make([]string, len(w.config.Policies.Paths))
		for i, p := range w.config.Policies.Paths {
			paths[i] = w.config.AbsPath(p)
		}
		if err := eng.LoadPolicies(ctx, paths); err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
	}

	w.policies = eng
	return nil
}

// Close releases the workspace's resources.
func (w *Workspace) Close() error {
	if w.history != nil {
		return w.history.Close()
	}
	return nil
}

// Config returns the workspace configuration.
func (w *Workspace) Config() *Config { return w.config }

// Root returns the absolute document root.
func (w *Workspace) Root() string { return w.paths.Root() }

// Registry returns the workspace's schema registry.
func (w *Workspace) Registry() *schema.Registry { return w.registry }

// History returns the revision history store, or nil when disabled.
func (w *Workspace) History() history.Store { return w.history }

// Policies returns the policy engine, or nil when disabled.
func (w *Workspace) Policies() *policy.Engine { return w.policies }

// Store returns the document store for a type name.
func (w *Workspace) Store(typeName string) (*engine.RawStore, error) {
	store, ok := w.stores[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", typeName)
	}
	return store, nil
}

// TypeFor maps a document identifier to its declared type. Types are
// tried in declaration order; the first matching pattern wins.
func (w *Workspace) TypeFor(docID string) (*TypeConfig, error) {
	id := path.Clean(filepath.ToSlash(docID))
	for i := range w.config.Types {
		t := &w.config.Types[i]
		ok, err := doublestar.Match(t.Pattern, id)
		if err != nil {
			return nil, fmt.Errorf("document type %q: invalid pattern %q: %w", t.Name, t.Pattern, err)
		}
		if ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no document type matches %q", docID)
}

// storeFor resolves the store serving a document. An empty docType
// infers the type from the identifier.
func (w *Workspace) storeFor(docType, docID string) (*engine.RawStore, *TypeConfig, error) {
	if docType == "" {
		t, err := w.TypeFor(docID)
		if err != nil {
			return nil, nil, err
		}
		docType = t.Name
	}
	t, ok := w.config.TypeByName(docType)
	if !ok {
		return nil, nil, fmt.Errorf("unknown document type %q", docType)
	}
	store := w.stores[docType]
	return store, t, nil
}

// Read loads a document through its type's store, applying the type's
// behavior mode. The read is recorded in the history log.
func (w *Workspace) Read(ctx context.Context, docType, docID string) (engine.Document, error) {
	store, t, err := w.storeFor(docType, docID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	doc, err := store.Read(ctx, docID)
	w.recordRead(ctx, docID, t.Name, time.Since(start), err)
	return doc, err
}

// Write validates the tree through the policy gate, persists it through
// the type's store, and records a revision.
func (w *Workspace) Write(ctx context.Context, docType, docID string, tree engine.Document) (string, error) {
	store, t, err := w.storeFor(docType, docID)
	if err != nil {
		return "", err
	}

	if w.policies != nil {
		result, err := w.policies.EvaluateWrite(ctx, docID, t.Name, store.Mode(), tree, &policy.PolicyContext{
			Workspace: w.paths.Root(),
			Timestamp: time.Now(),
		})
		if err != nil {
			return "", fmt.Errorf("policy evaluation failed: %w", err)
		}
		for _, warning := range result.Warnings {
			w.logger.Warn().Str("document_id", docID).Str("warning", warning).Msg("Policy warning")
		}
		if !result.Allowed {
			return "", &DeniedError{DocumentID: docID, Operation: "write", Violations: result.Violations}
		}
	}

	path, err := store.Write(ctx, docID, tree)
	if err != nil {
		return "", err
	}

	w.recordRevision(ctx, docID, t.Name, string(store.Mode()), tree)
	return path, nil
}

// Validate composes the named document and checks it against its type's
// schema without side effects: no default creation, no healing, and no
// rewriting. The returned violations are the validation answer; an error
// means the document could not be composed at all.
func (w *Workspace) Validate(ctx context.Context, docType, docID string) ([]schema.Violation, error) {
	composed, _, shape, err := w.compose(ctx, docType, docID)
	if err != nil {
		return nil, err
	}
	return shape.Validate(composed), nil
}

// Resolve composes the named document and returns the merged tree plus
// composition statistics, without validating or healing.
func (w *Workspace) Resolve(ctx context.Context, docType, docID string) (engine.Document, engine.ResolveStats, error) {
	composed, stats, _, err := w.compose(ctx, docType, docID)
	if err != nil {
		return nil, engine.ResolveStats{}, err
	}
	return composed, stats, nil
}

// compose loads the raw document and runs inheritance and fragment
// resolution with healing off.
func (w *Workspace) compose(ctx context.Context, docType, docID string) (engine.Document, engine.ResolveStats, *schema.Shape, error) {
	_, t, err := w.storeFor(docType, docID)
	if err != nil {
		return nil, engine.ResolveStats{}, nil, err
	}
	if t.Mode == string(engine.ModeOutput) {
		return nil, engine.ResolveStats{}, nil, engine.NewReadDisallowedError(docID)
	}

	shape, ok := w.registry.Get(t.Name)
	if !ok {
		return nil, engine.ResolveStats{}, nil, fmt.Errorf("document type %q has no schema", t.Name)
	}

	path, raw, err := w.loadRaw(docID)
	if err != nil {
		return nil, engine.ResolveStats{}, nil, err
	}

	composed, stats, err := w.resolver.ResolveTree(path, raw, shape, false)
	if err != nil {
		return nil, engine.ResolveStats{}, nil, err
	}
	return composed, stats, shape, nil
}

// CheckConstraints runs the type's CUE constraint, if one is configured,
// against a resolved tree.
func (w *Workspace) CheckConstraints(ctx context.Context, docType string, tree engine.Document) error {
	name, ok := w.constraintNames[docType]
	if !ok {
		return nil
	}
	return w.constraints.Check(ctx, name, tree)
}

// Heal performs a settings-mode read of the named document, triggering
// the sanitizer rewrite for drifted files.
func (w *Workspace) Heal(ctx context.Context, docID string) error {
	store, t, err := w.storeFor("", docID)
	if err != nil {
		return err
	}
	if t.Mode != string(engine.ModeSettings) {
		return fmt.Errorf("document %s is %s mode; only settings documents are healed", docID, t.Mode)
	}
	_, err = store.Read(ctx, docID)
	return err
}

// List enumerates the existing documents of one type, in sorted order.
// A document matched by an earlier type's pattern is not listed, even
// when this type's pattern also matches it.
func (w *Workspace) List(docType string) ([]string, error) {
	t, ok := w.config.TypeByName(docType)
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", docType)
	}

	// Patterns match extensionless identifiers, so glob every JSON file
	// and let TypeFor decide ownership.
	var ids []string
	err := doublestar.GlobWalk(os.DirFS(w.paths.Root()), "**/*.json", func(p string, d fs.DirEntry) error {
		if d.IsDir() || hiddenPath(p) {
			return nil
		}
		id := strings.TrimSuffix(p, ".json")
		owner, err := w.TypeFor(id)
		if err != nil || owner.Name != t.Name {
			return nil
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", docType, err)
	}

	sort.Strings(ids)
	return ids, nil
}

// Documents enumerates every typed document in the workspace, sorted by
// identifier.
func (w *Workspace) Documents() ([]DocumentRef, error) {
	var refs []DocumentRef
	for i := range w.config.Types {
		ids, err := w.List(w.config.Types[i].Name)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			refs = append(refs, DocumentRef{ID: id, Type: w.config.Types[i].Name})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// DocumentID maps an absolute file path under the root to a document
// identifier. It reports false for paths outside the root, non-JSON
// files, and hidden entries.
func (w *Workspace) DocumentID(absPath string) (string, bool) {
	if !w.paths.Contains(absPath) {
		return "", false
	}
	rel := w.paths.Rel(absPath)
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, ".json") || hiddenPath(rel) {
		return "", false
	}
	return strings.TrimSuffix(rel, ".json"), true
}

// loadRaw reads and parses a document file without composing it.
func (w *Workspace) loadRaw(docID string) (string, engine.Document, error) {
	path, err := w.paths.DocumentPath(docID)
	if err != nil {
		return "", nil, err
	}

	data, err := w.fs.ReadFile(path)
	if err != nil {
		return "", nil, engine.NewDocumentLoadFailedError(path, err)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", nil, engine.NewDocumentLoadFailedError(path, err)
	}
	tree, ok := parsed.(engine.Document)
	if !ok {
		return "", nil, engine.NewDocumentLoadFailedError(path, fmt.Errorf("document root must be an object"))
	}
	return path, tree, nil
}

// recordRead appends a read record to the history log. History failures
// are logged, never surfaced to the caller.
func (w *Workspace) recordRead(ctx context.Context, docID, docType string, duration time.Duration, readErr error) {
	if w.history == nil {
		return
	}

	rec := &history.ReadRecord{
		DocumentID:   docID,
		DocumentType: docType,
		Outcome:      readOutcome(readErr),
		DurationMS:   duration.Milliseconds(),
		Timestamp:    time.Now().UTC(),
	}
	if readErr != nil {
		msg := readErr.Error()
		rec.Error = &msg
	}

	if err := w.history.AppendReadRecord(ctx, rec); err != nil {
		w.logger.Warn().Err(err).Str("document_id", docID).Msg("Failed to record read")
	}
}

// readOutcome classifies a store read result for the history log. A
// sanitizing read returns no error, so it is indistinguishable from a
// plain success here and recorded as ok.
func readOutcome(err error) history.ReadOutcome {
	if err == nil {
		return history.ReadOutcomeOK
	}
	if engine.CodeOf(err) == engine.ErrCodeDefaultCreated {
		return history.ReadOutcomeDefaultCreated
	}
	return history.ReadOutcomeFailed
}

// recordRevision records a successful write in the revision history and
// prunes old revisions past the configured keep count.
func (w *Workspace) recordRevision(ctx context.Context, docID, docType, mode string, tree engine.Document) {
	if w.history == nil {
		return
	}

	rev, err := history.NewRevision(docID, docType, mode, history.RevisionOperationWrite, tree)
	if err != nil {
		w.logger.Warn().Err(err).Str("document_id", docID).Msg("Failed to build revision")
		return
	}
	if err := w.history.RecordRevision(ctx, rev); err != nil {
		w.logger.Warn().Err(err).Str("document_id", docID).Msg("Failed to record revision")
		return
	}

	if keep := w.config.History.Keep; keep > 0 {
		if _, err := w.history.PruneRevisions(ctx, docID, keep); err != nil {
			w.logger.Warn().Err(err).Str("document_id", docID).Msg("Failed to prune revisions")
		}
	}
}

// hiddenPath reports whether any path component is hidden.
func hiddenPath(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
