package engine

import (
	"fmt"
	"path/filepath"
	"strings"
)

// documentExtension is appended to directive references that omit it.
const documentExtension = ".json"

// PathResolver resolves directive references against the directory of the
// referencing document and proves that every resolved path stays inside
// the configured root directory. The containment check is purely lexical
// and runs before any file I/O touches the resolved path.
type PathResolver struct {
	root string
}

// NewPathResolver creates a resolver rooted at the given directory. The
// root is made absolute and canonicalized once, at construction.
func NewPathResolver(root string) (*PathResolver, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory %s: %w", root, err)
	}
	return &PathResolver{root: filepath.Clean(abs)}, nil
}

// Root returns the canonical root directory.
func (r *PathResolver) Root() string {
	return r.root
}

// Resolve resolves a directive reference found in the document whose
// directory is fromDir. References may omit the .json extension and may
// contain relative segments. The directive argument names the directive
// being resolved and is only used to classify errors.
func (r *PathResolver) Resolve(fromDir, ref, directive string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("empty reference")
	}

	name := ref
	if !strings.EqualFold(filepath.Ext(name), documentExtension) {
		name += documentExtension
	}

	var candidate string
	if filepath.IsAbs(name) {
		candidate = filepath.Clean(name)
	} else {
		candidate = filepath.Join(fromDir, name)
	}

	if !r.Contains(candidate) {
		err := NewPathEscapesRootError(candidate, directive)
		err.WithDetail("reference", ref)
		err.WithDetail("root", r.root)
		return "", err
	}
	return candidate, nil
}

// Contains reports whether path sits inside the root directory. The check
// compares canonical paths segment-aware, so a sibling directory sharing
// the root's name as a prefix does not pass.
func (r *PathResolver) Contains(path string) bool {
	p := filepath.Clean(path)
	return p == r.root || strings.HasPrefix(p, r.root+string(filepath.Separator))
}

// DocumentPath maps a document identifier to its file path under the
// root. Identifiers are root-relative references and follow the same
// extension and containment rules as directive references.
func (r *PathResolver) DocumentPath(docID string) (string, error) {
	if strings.TrimSpace(docID) == "" {
		return "", fmt.Errorf("document identifier is required")
	}
	return r.Resolve(r.root, docID, "")
}

// Rel renders a resolved path relative to the root for display. Paths
// outside the root are returned unchanged.
func (r *PathResolver) Rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// RelChain renders a directive chain root-relative for error reports.
func (r *PathResolver) RelChain(chain []string) []string {
	out := make([]string, len(chain))
	for i, p := range chain {
		out[i] = r.Rel(p)
	}
	return out
}
