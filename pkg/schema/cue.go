package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ConstraintRegistry manages auxiliary CUE constraints applied to resolved
// document trees. Shapes cover structure; CUE constraints cover the value
// rules structure cannot express (ranges, regex formats, cross-property
// conditions). Constraints are user-authored and optional.
type ConstraintRegistry struct {
	ctx         *cue.Context
	constraints map[string]cue.Value
	mu          sync.RWMutex
}

// NewConstraintRegistry creates an empty constraint registry.
func NewConstraintRegistry() *ConstraintRegistry {
	return &ConstraintRegistry{
		ctx:         cuecontext.New(),
		constraints: make(map[string]cue.Value),
	}
}

// Register compiles a CUE constraint source and registers it under the
// given name.
func (cr *ConstraintRegistry) Register(name, source string) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	val := cr.ctx.CompileString(source, cue.Filename(name))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile constraint %s: %w", name, err)
	}

	cr.constraints[name] = val
	return nil
}

// LoadFile compiles a single .cue file and registers it under its base
// name (without extension).
func (cr *ConstraintRegistry) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read constraint file %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return cr.Register(name, string(content))
}

// LoadDir walks a directory and registers every .cue file found.
func (cr *ConstraintRegistry) LoadDir(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".cue") {
			return nil
		}
		return cr.LoadFile(path)
	})
}

// Check validates a document tree against a named constraint by unifying
// the tree with the compiled CUE value.
func (cr *ConstraintRegistry) Check(ctx context.Context, name string, tree map[string]any) error {
	cr.mu.RLock()
	constraint, ok := cr.constraints[name]
	cr.mu.RUnlock()

	if !ok {
		return fmt.Errorf("constraint %s not found", name)
	}

	dataVal := cr.ctx.Encode(tree)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	unified := constraint.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("constraint %s: %w", name, err)
	}

	return nil
}

// CheckAll validates a document tree against every registered constraint,
// in name order, stopping at the first failure.
func (cr *ConstraintRegistry) CheckAll(ctx context.Context, tree map[string]any) error {
	for _, name := range cr.List() {
		if err := cr.Check(ctx, name, tree); err != nil {
			return err
		}
	}
	return nil
}

// List returns all registered constraint names, sorted.
func (cr *ConstraintRegistry) List() []string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	names := make([]string, 0, len(cr.constraints))
	for name := range cr.constraints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
