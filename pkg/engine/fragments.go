package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DirectiveInclude is the reserved key that splices a fragment into an
	// array. It is valid only as the sole key of an object used as an
	// array element.
	DirectiveInclude = "$include"

	// FragmentItemsKey is the single array-valued key a fragment file must
	// carry.
	FragmentItemsKey = "Items"
)

// Expander expands $include directives appearing inside arrays anywhere
// in a document tree by splicing in the contents of referenced fragment
// files. Fragments may themselves contain $include directives; expansion
// recurses with each fragment's own directory as the reference base and
// detects include cycles across the nesting chain.
type Expander struct {
	fs     FileSystem
	paths  *PathResolver
	logger zerolog.Logger
}

// NewExpander creates a fragment expander.
func NewExpander(fsys FileSystem, paths *PathResolver, logger zerolog.Logger) *Expander {
	return &Expander{
		fs:     fsys,
		paths:  paths,
		logger: logger.With().Str("component", "expander").Logger(),
	}
}

// Expand returns a copy of tree with every $include directive replaced by
// the referenced fragment's items, in order. baseDir is the directory of
// the file the tree was loaded from; relative references resolve against
// it. The returned count is the number of directives expanded, including
// directives nested inside fragments.
func (e *Expander) Expand(tree map[string]any, baseDir string) (map[string]any, int, error) {
	return e.expandObject(tree, baseDir, nil)
}

// expandObject walks an object's properties. Arrays are scanned for
// directives; nested objects recurse. An $include key on an object that
// is not an array element is rejected.
func (e *Expander) expandObject(obj map[string]any, baseDir string, chain []string) (map[string]any, int, error) {
	if _, ok := obj[DirectiveInclude]; ok {
		return nil, 0, NewInvalidIncludeValueError(baseDir,
			"$include is only valid as the sole key of an array element")
	}

	out := make(map[string]any, len(obj))
	total := 0

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := obj[k].(type) {
		case []any:
			expanded, n, err := e.expandElements(v, baseDir, chain)
			if err != nil {
				return nil, 0, err
			}
			out[k] = expanded
			total += n
		case map[string]any:
			expanded, n, err := e.expandObject(v, baseDir, chain)
			if err != nil {
				return nil, 0, err
			}
			out[k] = expanded
			total += n
		default:
			out[k] = CloneTree(v)
		}
	}
	return out, total, nil
}

// expandElements walks array elements in order, splicing fragment items
// where a directive appears and recursing into everything else.
func (e *Expander) expandElements(elems []any, baseDir string, chain []string) ([]any, int, error) {
	out := make([]any, 0, len(elems))
	total := 0

	for _, elem := range elems {
		switch v := elem.(type) {
		case map[string]any:
			if ref, ok := v[DirectiveInclude]; ok {
				items, n, err := e.expandDirective(v, ref, baseDir, chain)
				if err != nil {
					return nil, 0, err
				}
				out = append(out, items...)
				total += n
				continue
			}
			expanded, n, err := e.expandObject(v, baseDir, chain)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, expanded)
			total += n
		case []any:
			expanded, n, err := e.expandElements(v, baseDir, chain)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, expanded)
			total += n
		default:
			out = append(out, CloneTree(v))
		}
	}
	return out, total, nil
}

// expandDirective resolves a single $include directive and returns the
// fragment's fully expanded items.
func (e *Expander) expandDirective(directive map[string]any, ref any, baseDir string, chain []string) ([]any, int, error) {
	if len(directive) != 1 {
		return nil, 0, NewInvalidIncludeValueError(baseDir,
			"$include must be the sole key of its directive object")
	}
	name, ok := ref.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, 0, NewInvalidIncludeValueError(baseDir,
			fmt.Sprintf("$include value must be a non-empty string, got %v", ref))
	}

	fragPath, err := e.paths.Resolve(baseDir, name, DirectiveInclude)
	if err != nil {
		return nil, 0, err
	}

	for _, visited := range chain {
		if visited == fragPath {
			cycle := append(append([]string(nil), chain...), fragPath)
			return nil, 0, NewCircularFragmentIncludeError(fragPath, e.paths.RelChain(cycle))
		}
	}

	items, err := e.loadFragment(fragPath)
	if err != nil {
		return nil, 0, err
	}

	childChain := append(append([]string(nil), chain...), fragPath)
	expanded, nested, err := e.expandElements(items, filepath.Dir(fragPath), childChain)
	if err != nil {
		return nil, 0, err
	}

	e.logger.Debug().
		Str("fragment", e.paths.Rel(fragPath)).
		Int("items", len(expanded)).
		Msg("expanded fragment include")

	return expanded, nested + 1, nil
}

// loadFragment reads and parses a fragment file and returns its Items
// array.
func (e *Expander) loadFragment(path string) ([]any, error) {
	data, err := e.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewFragmentNotFoundError(path, err)
		}
		return nil, NewFragmentLoadFailedError(path, err)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewFragmentLoadFailedError(path, err)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, NewInvalidFragmentFormatError(path, "fragment must be an object with an Items array")
	}
	for k := range obj {
		if k != FragmentItemsKey && !strings.HasPrefix(k, "$") {
			return nil, NewInvalidFragmentFormatError(path,
				fmt.Sprintf("fragment must contain only an Items array, found %q", k))
		}
	}
	items, ok := obj[FragmentItemsKey].([]any)
	if !ok {
		return nil, NewInvalidFragmentFormatError(path, "fragment must carry an array-valued Items key")
	}
	return items, nil
}
