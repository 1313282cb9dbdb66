package engine

import (
	"fmt"
	"strconv"

	"github.com/strataconf/strata/pkg/schema"
)

// MigrationRule identifies one of the narrow, documented type migrations
// applied during sanitization.
type MigrationRule string

const (
	// MigrationStringToList wraps a scalar string found where the schema
	// expects a list into a single-element list.
	MigrationStringToList MigrationRule = "string_to_list"

	// MigrationNumberToString stringifies a number found where the schema
	// expects a string.
	MigrationNumberToString MigrationRule = "number_to_string"
)

// Migration records one applied type migration.
type Migration struct {
	Rule MigrationRule `json:"rule"`
	Path string        `json:"path"`
}

// Sanitize repairs a drifted document tree against its schema. It applies
// the two documented type migrations where the tree's values disagree
// with the declared kinds, then conforms the tree to the schema's shape:
// properties the schema declares but the tree lacks are filled with their
// declared defaults, and properties the schema does not declare are
// dropped. The repaired tree is re-validated; if violations remain the
// error carries them and no further repair is attempted.
//
// The input tree is not mutated. Reserved $-prefixed keys pass through
// untouched.
func Sanitize(tree map[string]any, shape *schema.Shape) (map[string]any, []Migration, error) {
	var migrations []Migration

	migrated := migrateObject(tree, shape, "", &migrations)
	conformed := shape.Conform(migrated)

	if violations := shape.Validate(conformed); len(violations) > 0 {
		return conformed, migrations, NewSanitizationFailedError("", violations)
	}
	return conformed, migrations, nil
}

// migrateObject applies migrations to the declared properties of an
// object. Undeclared properties are carried through for Conform to drop.
func migrateObject(obj map[string]any, shape *schema.Shape, base string, migrations *[]Migration) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		prop, declared := shape.Properties[k]
		if !declared {
			out[k] = CloneTree(v)
			continue
		}
		out[k] = migrateValue(v, prop, propertyPath(base, k), migrations)
	}
	return out
}

// migrateValue applies at most one migration to a value, then recurses
// through objects and list elements.
func migrateValue(value any, shape *schema.Shape, path string, migrations *[]Migration) any {
	switch shape.Kind {
	case schema.KindList:
		if s, ok := value.(string); ok {
			*migrations = append(*migrations, Migration{Rule: MigrationStringToList, Path: path})
			return []any{s}
		}
		if arr, ok := value.([]any); ok && shape.Elem != nil {
			out := make([]any, len(arr))
			for i, elem := range arr {
				out[i] = migrateValue(elem, shape.Elem, fmt.Sprintf("%s[%d]", path, i), migrations)
			}
			return out
		}
	case schema.KindString:
		if f, ok := value.(float64); ok {
			*migrations = append(*migrations, Migration{Rule: MigrationNumberToString, Path: path})
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	case schema.KindObject:
		if m, ok := value.(map[string]any); ok {
			return migrateObject(m, shape, path, migrations)
		}
	}
	return CloneTree(value)
}

func propertyPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}
