package schema

// Kind identifies the JSON kind a value must have.
type Kind string

// Supported shape kinds. Numbers are not split into integer and float
// because document trees come from encoding/json, which decodes every JSON
// number as float64.
const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindList    Kind = "list"
)

// Shape is an explicit structural descriptor for one level of a document
// tree: the kind the value must have, the properties an object allows and
// requires, what a list's elements look like, and the default used when a
// declared property is absent. Shapes are hand-written capability tables
// (or compiled from a YAML manifest); they are never derived by reflection.
type Shape struct {
	// Kind is the JSON kind this level must have.
	Kind Kind

	// Default is the value used when a declared property is absent. When
	// nil, the kind's zero value is used instead.
	Default any

	// Properties declares the allowed child properties. Object kind only.
	Properties map[string]*Shape

	// Required lists the property names that must be present. Object kind
	// only; every name must also appear in Properties.
	Required []string

	// Elem describes every element of the list. List kind only. A nil Elem
	// leaves the list's elements unconstrained.
	Elem *Shape
}

// Clone returns a deep copy of the shape. Mutating the copy never affects
// the original.
func (s *Shape) Clone() *Shape {
	if s == nil {
		return nil
	}

	out := &Shape{
		Kind:    s.Kind,
		Default: cloneAny(s.Default),
		Elem:    s.Elem.Clone(),
	}

	if s.Properties != nil {
		out.Properties = make(map[string]*Shape, len(s.Properties))
		for name, child := range s.Properties {
			out.Properties[name] = child.Clone()
		}
	}

	if s.Required != nil {
		out.Required = append([]string(nil), s.Required...)
	}

	return out
}

// ExtendsVariant returns a copy of the shape with every required-property
// demand removed, at all nesting levels. Documents that declare an
// inheritance base may legitimately omit properties the base supplies, so
// they are checked against this relaxed variant; type checks and
// unexpected-property checks remain in force.
func (s *Shape) ExtendsVariant() *Shape {
	out := s.Clone()
	out.relaxRequired()
	return out
}

func (s *Shape) relaxRequired() {
	if s == nil {
		return
	}
	s.Required = nil
	for _, child := range s.Properties {
		child.relaxRequired()
	}
	s.Elem.relaxRequired()
}

// IsRequired reports whether the named property is required by this shape.
func (s *Shape) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// DefaultValue returns the value a document gets for this shape when the
// property is absent: the declared default if one is set, a fully populated
// default tree for objects, or the kind's zero value.
func (s *Shape) DefaultValue() any {
	if s.Default != nil {
		return cloneAny(s.Default)
	}

	switch s.Kind {
	case KindString:
		return ""
	case KindNumber:
		return float64(0)
	case KindBoolean:
		return false
	case KindObject:
		return s.DefaultTree()
	case KindList:
		return []any{}
	default:
		return nil
	}
}

// DefaultTree builds the schema-default document for an object shape: every
// declared property filled with its default value. Non-object shapes return
// an empty tree.
func (s *Shape) DefaultTree() map[string]any {
	tree := make(map[string]any)
	if s.Kind != KindObject {
		return tree
	}
	for name, child := range s.Properties {
		tree[name] = child.DefaultValue()
	}
	return tree
}

// Conform rewrites an object tree through the shape: every declared
// property the tree lacks is filled from its default, every undeclared
// property is dropped, and declared object and list properties are
// conformed recursively. Values whose kind does not match are kept as-is;
// deciding what to do about them is the caller's job (the sanitizer
// migrates the documented cases first and re-validates afterwards).
//
// The returned tree is freshly allocated and shares no memory with the
// input. Reserved directive keys (names starting with "$") pass through
// untouched.
func (s *Shape) Conform(tree map[string]any) map[string]any {
	out := make(map[string]any, len(s.Properties))

	for name, child := range s.Properties {
		value, present := tree[name]
		if !present {
			out[name] = child.DefaultValue()
			continue
		}
		out[name] = child.conformValue(value)
	}

	// Directive keys are not schema properties; keep them for the engine.
	for name, value := range tree {
		if isReservedKey(name) {
			out[name] = cloneAny(value)
		}
	}

	return out
}

func (s *Shape) conformValue(value any) any {
	switch s.Kind {
	case KindObject:
		if obj, ok := value.(map[string]any); ok {
			return s.Conform(obj)
		}
	case KindList:
		if list, ok := value.([]any); ok {
			out := make([]any, 0, len(list))
			for _, elem := range list {
				if s.Elem != nil {
					out = append(out, s.Elem.conformValue(elem))
				} else {
					out = append(out, cloneAny(elem))
				}
			}
			return out
		}
	}
	return cloneAny(value)
}

// isReservedKey reports whether a property name is a reserved directive key
// rather than schema-governed content.
func isReservedKey(name string) bool {
	return len(name) > 0 && name[0] == '$'
}

// cloneAny deep-copies a JSON value tree.
func cloneAny(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneAny(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}
