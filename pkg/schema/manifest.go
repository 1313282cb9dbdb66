package schema

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Manifest is a compiled schema manifest: the document-type metadata plus
// the shape built from the declarative spec.
type Manifest struct {
	// Name is the document type name this schema describes.
	Name string

	// Version is the schema version string.
	Version string

	// Reference is the `$schema` reference injected into written documents.
	Reference string

	// Shape is the compiled full shape.
	Shape *Shape

	// Path is the file path the manifest was loaded from, if any.
	Path string
}

// ManifestSpec is the YAML document format of a schema manifest.
type ManifestSpec struct {
	// Name is the document type name.
	Name string `yaml:"name" validate:"required"`

	// Version is the schema version.
	Version string `yaml:"version" validate:"required"`

	// Reference is the optional `$schema` reference string.
	Reference string `yaml:"reference,omitempty"`

	// Shape is the declarative shape description.
	Shape *ShapeSpec `yaml:"shape" validate:"required"`
}

// ShapeSpec is the declarative YAML form of a Shape.
type ShapeSpec struct {
	// Kind is the JSON kind: string, number, boolean, object, or list.
	Kind string `yaml:"kind" validate:"required,oneof=string number boolean object list"`

	// Default is the value used when the property is absent.
	Default any `yaml:"default,omitempty"`

	// Properties declares child properties for object kinds.
	Properties map[string]*ShapeSpec `yaml:"properties,omitempty"`

	// Required lists the mandatory property names for object kinds.
	Required []string `yaml:"required,omitempty"`

	// Elem describes list elements for list kinds.
	Elem *ShapeSpec `yaml:"elem,omitempty"`
}

// ManifestLoader loads and compiles schema manifests from YAML.
type ManifestLoader struct {
	validator *validator.Validate
}

// NewManifestLoader creates a new manifest loader.
func NewManifestLoader() *ManifestLoader {
	return &ManifestLoader{
		validator: validator.New(),
	}
}

// LoadFromFile loads a manifest from a YAML file.
func (m *ManifestLoader) LoadFromFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	manifest, err := m.LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	manifest.Path = path
	return manifest, nil
}

// LoadFromBytes loads a manifest from raw YAML bytes.
func (m *ManifestLoader) LoadFromBytes(data []byte) (*Manifest, error) {
	var spec ManifestSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	if err := m.validateSpec(&spec); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	shape, err := compileShape(spec.Shape, "shape")
	if err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &Manifest{
		Name:      spec.Name,
		Version:   spec.Version,
		Reference: spec.Reference,
		Shape:     shape,
	}, nil
}

// validateSpec validates the manifest structure via struct tags.
func (m *ManifestLoader) validateSpec(spec *ManifestSpec) error {
	if err := m.validator.Struct(spec); err != nil {
		return err
	}
	return m.validateShapeSpec(spec.Shape, "shape")
}

func (m *ManifestLoader) validateShapeSpec(spec *ShapeSpec, path string) error {
	if spec == nil {
		return fmt.Errorf("%s: shape is required", path)
	}
	if err := m.validator.Struct(spec); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for name, child := range spec.Properties {
		if err := m.validateShapeSpec(child, path+"."+name); err != nil {
			return err
		}
	}
	if spec.Elem != nil {
		if err := m.validateShapeSpec(spec.Elem, path+".elem"); err != nil {
			return err
		}
	}
	return nil
}

// compileShape turns a declarative spec into a Shape, enforcing the
// structural rules the YAML tags cannot express.
func compileShape(spec *ShapeSpec, path string) (*Shape, error) {
	kind := Kind(spec.Kind)

	if kind != KindObject {
		if len(spec.Properties) > 0 {
			return nil, fmt.Errorf("%s: properties are only valid on object kinds", path)
		}
		if len(spec.Required) > 0 {
			return nil, fmt.Errorf("%s: required is only valid on object kinds", path)
		}
	}
	if kind != KindList && spec.Elem != nil {
		return nil, fmt.Errorf("%s: elem is only valid on list kinds", path)
	}

	shape := &Shape{
		Kind:    kind,
		Default: normalizeYAMLValue(spec.Default),
	}

	if len(spec.Properties) > 0 {
		shape.Properties = make(map[string]*Shape, len(spec.Properties))
		for name, child := range spec.Properties {
			compiled, err := compileShape(child, path+"."+name)
			if err != nil {
				return nil, err
			}
			shape.Properties[name] = compiled
		}
	}

	for _, name := range spec.Required {
		if _, declared := spec.Properties[name]; !declared {
			return nil, fmt.Errorf("%s: required property %q is not declared", path, name)
		}
	}
	shape.Required = append([]string(nil), spec.Required...)

	if spec.Elem != nil {
		compiled, err := compileShape(spec.Elem, path+".elem")
		if err != nil {
			return nil, err
		}
		shape.Elem = compiled
	}

	return shape, nil
}

// normalizeYAMLValue converts YAML-decoded defaults into the shapes
// encoding/json produces, so defaults compare equal to loaded documents.
func normalizeYAMLValue(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalizeYAMLValue(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeYAMLValue(e)
		}
		return out
	default:
		return v
	}
}
