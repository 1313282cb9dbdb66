package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ViolationKind classifies a single way a document tree fails its shape.
type ViolationKind string

const (
	// MissingRequiredProperty means a property the shape requires is absent.
	MissingRequiredProperty ViolationKind = "missing_required_property"

	// UnexpectedProperty means the tree carries a property the shape does
	// not declare.
	UnexpectedProperty ViolationKind = "unexpected_property"

	// TypeMismatch means a value's JSON kind differs from the declared kind.
	TypeMismatch ViolationKind = "type_mismatch"
)

// Violation describes one schema violation at one property path.
type Violation struct {
	// Kind classifies the violation.
	Kind ViolationKind `json:"kind"`

	// Path is the dotted property path of the violating value. List
	// elements are addressed as name[index]. Empty for the document root.
	Path string `json:"path"`

	// Expected is the declared kind, for type mismatches.
	Expected string `json:"expected,omitempty"`

	// Actual is the observed kind, for type mismatches.
	Actual string `json:"actual,omitempty"`
}

// String renders the violation in the form error messages embed.
func (v Violation) String() string {
	path := v.Path
	if path == "" {
		path = "(document)"
	}
	switch v.Kind {
	case TypeMismatch:
		return fmt.Sprintf("%s: %s (expected %s, got %s)", v.Kind, path, v.Expected, v.Actual)
	default:
		return fmt.Sprintf("%s: %s", v.Kind, path)
	}
}

// FormatViolations renders a violation list as a single line for embedding
// in error messages.
func FormatViolations(violations []Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

// Validate checks a document tree against the shape and returns every
// violation found. A nil return means the tree conforms. Property names are
// visited in sorted order so the violation list is deterministic for a
// given tree. Reserved directive keys (names starting with "$") are
// invisible to validation; the engine strips or resolves them around this
// call.
func (s *Shape) Validate(tree any) []Violation {
	var out []Violation
	s.validateValue(tree, "", &out)
	return out
}

func (s *Shape) validateValue(value any, path string, out *[]Violation) {
	actual := KindOf(value)
	if actual != string(s.Kind) {
		*out = append(*out, Violation{
			Kind:     TypeMismatch,
			Path:     path,
			Expected: string(s.Kind),
			Actual:   actual,
		})
		return
	}

	switch s.Kind {
	case KindObject:
		s.validateObject(value.(map[string]any), path, out)
	case KindList:
		if s.Elem == nil {
			return
		}
		for i, elem := range value.([]any) {
			s.Elem.validateValue(elem, fmt.Sprintf("%s[%d]", path, i), out)
		}
	}
}

func (s *Shape) validateObject(obj map[string]any, path string, out *[]Violation) {
	for _, name := range sortedRequired(s.Required) {
		if _, present := obj[name]; !present {
			*out = append(*out, Violation{
				Kind: MissingRequiredProperty,
				Path: joinPath(path, name),
			})
		}
	}

	for _, name := range sortedKeys(obj) {
		if isReservedKey(name) {
			continue
		}
		child, declared := s.Properties[name]
		if !declared {
			*out = append(*out, Violation{
				Kind: UnexpectedProperty,
				Path: joinPath(path, name),
			})
			continue
		}
		child.validateValue(obj[name], joinPath(path, name), out)
	}
}

// KindOf reports the JSON kind of a decoded value: "string", "number",
// "boolean", "object", "list", "null", or "unknown".
func KindOf(value any) string {
	switch value.(type) {
	case string:
		return string(KindString)
	case float64:
		return string(KindNumber)
	case bool:
		return string(KindBoolean)
	case map[string]any:
		return string(KindObject)
	case []any:
		return string(KindList)
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRequired(required []string) []string {
	out := append([]string(nil), required...)
	sort.Strings(out)
	return out
}
