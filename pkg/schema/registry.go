package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the shapes known to a workspace, keyed by document type
// name. The extends variant of every shape is derived once at registration.
type Registry struct {
	mu     sync.RWMutex
	shapes map[string]*registryEntry
}

type registryEntry struct {
	full      *Shape
	extends   *Shape
	reference string
}

// NewRegistry creates an empty shape registry.
func NewRegistry() *Registry {
	return &Registry{
		shapes: make(map[string]*registryEntry),
	}
}

// Register registers a full shape under the given document type name. The
// reference string is what gets injected as `$schema` on write; it may be
// empty.
func (r *Registry) Register(name string, shape *Shape, reference string) error {
	if name == "" {
		return fmt.Errorf("schema name must not be empty")
	}
	if shape == nil {
		return fmt.Errorf("schema %s: shape must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.shapes[name] = &registryEntry{
		full:      shape,
		extends:   shape.ExtendsVariant(),
		reference: reference,
	}
	return nil
}

// RegisterManifest registers a compiled manifest under its own name.
func (r *Registry) RegisterManifest(m *Manifest) error {
	return r.Register(m.Name, m.Shape, m.Reference)
}

// Get retrieves the full shape for a document type.
func (r *Registry) Get(name string) (*Shape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.shapes[name]
	if !ok {
		return nil, false
	}
	return entry.full, true
}

// GetExtendsVariant retrieves the required-relaxed shape variant for a
// document type.
func (r *Registry) GetExtendsVariant(name string) (*Shape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.shapes[name]
	if !ok {
		return nil, false
	}
	return entry.extends, true
}

// Reference retrieves the `$schema` reference string for a document type.
func (r *Registry) Reference(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.shapes[name]
	if !ok {
		return ""
	}
	return entry.reference
}

// List returns all registered document type names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.shapes))
	for name := range r.shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
