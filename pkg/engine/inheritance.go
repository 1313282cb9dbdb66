package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/strataconf/strata/pkg/schema"
)

// DirectiveExtends is the reserved root-level key naming the base
// document a document inherits from. A document carries at most one.
const DirectiveExtends = "$extends"

// ResolveStats reports what a resolution touched.
type ResolveStats struct {
	// BasesResolved is the number of base documents loaded and merged.
	BasesResolved int

	// FragmentsExpanded is the number of $include directives expanded,
	// across the document and all of its bases.
	FragmentsExpanded int

	// BasesHealed is the number of drifted terminal bases sanitized and
	// rewritten on disk during resolution.
	BasesHealed int
}

// Resolver composes a loaded document tree: it expands the document's
// fragment includes, resolves its $extends chain bottom-up, and returns
// the merged result. Base documents are loaded through the same fragment
// expansion, so directives inside a base resolve against the base's own
// directory.
type Resolver struct {
	fs       FileSystem
	paths    *PathResolver
	expander *Expander
	logger   zerolog.Logger
}

// NewResolver creates a resolver that loads base documents through fsys
// and resolves references with paths.
func NewResolver(fsys FileSystem, paths *PathResolver, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fs:       fsys,
		paths:    paths,
		expander: NewExpander(fsys, paths, logger),
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// ResolveTree fully composes the tree loaded from docPath. shape is the
// full schema for the document type; terminal bases are validated against
// it before merging. When heal is true, a terminal base that fails
// validation is sanitized and rewritten on disk instead of failing the
// resolution.
func (r *Resolver) ResolveTree(docPath string, tree map[string]any, shape *schema.Shape, heal bool) (map[string]any, ResolveStats, error) {
	var stats ResolveStats

	expanded, n, err := r.expander.Expand(tree, filepath.Dir(docPath))
	if err != nil {
		return nil, stats, err
	}
	stats.FragmentsExpanded += n

	ref, ok := expanded[DirectiveExtends]
	if !ok {
		return expanded, stats, nil
	}
	name, ok := ref.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, stats, NewInvalidExtendsValueError(docPath, ref)
	}

	base, err := r.resolveBase(name, filepath.Dir(docPath), []string{docPath}, shape, heal, &stats)
	if err != nil {
		return nil, stats, err
	}

	cleaned := CloneTree(expanded).(map[string]any)
	delete(cleaned, DirectiveExtends)

	return DeepMerge(base, cleaned), stats, nil
}

// resolveBase loads and fully resolves one base document. chain holds the
// canonical paths already visited, starting with the requesting document.
func (r *Resolver) resolveBase(ref, fromDir string, chain []string, shape *schema.Shape, heal bool, stats *ResolveStats) (map[string]any, error) {
	basePath, err := r.paths.Resolve(fromDir, ref, DirectiveExtends)
	if err != nil {
		return nil, err
	}

	for _, visited := range chain {
		if visited == basePath {
			cycle := append(append([]string(nil), chain...), basePath)
			return nil, NewCircularInheritanceError(basePath, r.paths.RelChain(cycle))
		}
	}
	chain = append(append([]string(nil), chain...), basePath)

	data, err := r.fs.ReadFile(basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewBaseNotFoundError(basePath, err)
		}
		return nil, NewBaseValidationFailedError(basePath, nil, err)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewBaseValidationFailedError(basePath, nil, err)
	}
	baseTree, ok := parsed.(map[string]any)
	if !ok {
		return nil, NewBaseValidationFailedError(basePath, nil,
			fmt.Errorf("base document root must be an object"))
	}
	stats.BasesResolved++

	baseTree, n, err := r.expander.Expand(baseTree, filepath.Dir(basePath))
	if err != nil {
		return nil, err
	}
	stats.FragmentsExpanded += n

	parentRef, hasParent := baseTree[DirectiveExtends]
	if hasParent {
		name, ok := parentRef.(string)
		if !ok || strings.TrimSpace(name) == "" {
			return nil, NewInvalidExtendsValueError(basePath, parentRef)
		}
		parent, err := r.resolveBase(name, filepath.Dir(basePath), chain, shape, heal, stats)
		if err != nil {
			return nil, err
		}
		cleaned := CloneTree(baseTree).(map[string]any)
		delete(cleaned, DirectiveExtends)
		return DeepMerge(parent, cleaned), nil
	}

	violations := shape.Validate(baseTree)
	if len(violations) == 0 {
		return baseTree, nil
	}
	if !heal {
		return nil, NewBaseValidationFailedError(basePath, violations, nil)
	}
	return r.healBase(basePath, baseTree, shape, stats)
}

// healBase sanitizes a drifted terminal base and rewrites it on disk so
// subsequent reads see a conforming document.
func (r *Resolver) healBase(basePath string, baseTree map[string]any, shape *schema.Shape, stats *ResolveStats) (map[string]any, error) {
	repaired, migrations, err := Sanitize(baseTree, shape)
	if err != nil {
		var engineErr *EngineError
		if errors.As(err, &engineErr) {
			return nil, NewBaseValidationFailedError(basePath, engineErr.Violations, nil)
		}
		return nil, NewBaseValidationFailedError(basePath, nil, err)
	}

	for _, m := range migrations {
		r.logger.Info().
			Str("path", r.paths.Rel(basePath)).
			Str("rule", string(m.Rule)).
			Str("property", m.Path).
			Msg("applied migration to base document")
	}

	if err := writeDocumentFile(r.fs, basePath, repaired); err != nil {
		return nil, NewBaseValidationFailedError(basePath, nil,
			fmt.Errorf("failed to rewrite healed base: %w", err))
	}

	r.logger.Warn().
		Str("path", r.paths.Rel(basePath)).
		Int("migrations", len(migrations)).
		Msg("healed drifted base document")
	stats.BasesHealed++

	return repaired, nil
}
