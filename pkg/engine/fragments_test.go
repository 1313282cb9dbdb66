package engine

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func newTestExpander(t *testing.T) (*Expander, *spyFS, *PathResolver) {
	t.Helper()
	paths := testPaths(t)
	spy := newSpyFS()
	return NewExpander(spy, paths, zerolog.Nop()), spy, paths
}

func includeOf(ref string) Document {
	return Document{DirectiveInclude: ref}
}

func TestExpander_OrderPreservation(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "common.json"), `{"Items": ["P", "Q"]}`)

	tree := Document{"Items": []any{"X", includeOf("common"), "Y"}}
	got, count, err := e.Expand(tree, paths.Root())
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []any{"X", "P", "Q", "Y"}
	if !reflect.DeepEqual(got["Items"], want) {
		t.Errorf("Expand() Items = %v, want %v", got["Items"], want)
	}
	if count != 1 {
		t.Errorf("Expand() count = %d, want 1", count)
	}
}

func TestExpander_NestedFragments(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "outer.json"),
		`{"Items": ["A", {"$include": "inner"}, "D"]}`)
	spy.addFile(filepath.Join(paths.Root(), "inner.json"), `{"Items": ["B", "C"]}`)

	tree := Document{"Fields": []any{includeOf("outer")}}
	got, count, err := e.Expand(tree, paths.Root())
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []any{"A", "B", "C", "D"}
	if !reflect.DeepEqual(got["Fields"], want) {
		t.Errorf("Expand() Fields = %v, want %v", got["Fields"], want)
	}
	if count != 2 {
		t.Errorf("Expand() count = %d, want 2", count)
	}
}

func TestExpander_FragmentDirectoryIsReferenceBase(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "shared", "outer.json"),
		`{"Items": [{"$include": "inner"}]}`)
	spy.addFile(filepath.Join(paths.Root(), "shared", "inner.json"), `{"Items": ["B"]}`)

	// The nested reference must resolve against shared/, not the
	// including document's directory.
	tree := Document{"Items": []any{includeOf("shared/outer")}}
	got, _, err := e.Expand(tree, paths.Root())
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if !reflect.DeepEqual(got["Items"], []any{"B"}) {
		t.Errorf("Expand() Items = %v, want [B]", got["Items"])
	}
}

func TestExpander_DirectivesAtAnyDepth(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "filters.json"), `{"Items": [{"Op": "eq"}]}`)

	tree := Document{
		"View": Document{
			"Columns": []any{
				Document{
					"Name":    "status",
					"Filters": []any{includeOf("filters")},
				},
			},
		},
	}
	got, _, err := e.Expand(tree, paths.Root())
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	col := got["View"].(Document)["Columns"].([]any)[0].(Document)
	want := []any{Document{"Op": "eq"}}
	if !reflect.DeepEqual(col["Filters"], want) {
		t.Errorf("Expand() Filters = %v, want %v", col["Filters"], want)
	}
}

func TestExpander_Cycle(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "f1.json"), `{"Items": [{"$include": "f2"}]}`)
	spy.addFile(filepath.Join(paths.Root(), "f2.json"), `{"Items": [{"$include": "f1"}]}`)

	tree := Document{"Items": []any{includeOf("f1")}}
	_, _, err := e.Expand(tree, paths.Root())
	if !IsCircularFragmentInclude(err) {
		t.Fatalf("Expand() error = %v, want circular_fragment_include", err)
	}

	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatal("Expand() error is not an *EngineError")
	}
	want := []string{"f1.json", "f2.json", "f1.json"}
	if !reflect.DeepEqual(engineErr.Chain, want) {
		t.Errorf("Chain = %v, want %v", engineErr.Chain, want)
	}
}

func TestExpander_SelfInclude(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "loop.json"), `{"Items": [{"$include": "loop"}]}`)

	tree := Document{"Items": []any{includeOf("loop")}}
	_, _, err := e.Expand(tree, paths.Root())
	if !IsCircularFragmentInclude(err) {
		t.Fatalf("Expand() error = %v, want circular_fragment_include", err)
	}
}

func TestExpander_DuplicateSiblingIncludesAllowed(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "common.json"), `{"Items": ["P"]}`)

	// The same fragment twice in one array is reuse, not a cycle.
	tree := Document{"Items": []any{includeOf("common"), includeOf("common")}}
	got, count, err := e.Expand(tree, paths.Root())
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if !reflect.DeepEqual(got["Items"], []any{"P", "P"}) {
		t.Errorf("Expand() Items = %v, want [P P]", got["Items"])
	}
	if count != 2 {
		t.Errorf("Expand() count = %d, want 2", count)
	}
}

func TestExpander_InvalidDirectives(t *testing.T) {
	tests := []struct {
		name string
		tree Document
	}{
		{
			name: "non-string value",
			tree: Document{"Items": []any{Document{DirectiveInclude: float64(5)}}},
		},
		{
			name: "empty value",
			tree: Document{"Items": []any{includeOf("")}},
		},
		{
			name: "extra keys on directive object",
			tree: Document{"Items": []any{Document{DirectiveInclude: "common", "Name": "x"}}},
		},
		{
			name: "include as object property",
			tree: Document{"Settings": includeOf("common")},
		},
		{
			name: "include at document root",
			tree: includeOf("common"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, paths := newTestExpander(t)
			_, _, err := e.Expand(tt.tree, paths.Root())
			if !IsInvalidIncludeValue(err) {
				t.Errorf("Expand() error = %v, want invalid_include_value", err)
			}
		})
	}
}

func TestExpander_FragmentErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
		check   func(error) bool
		class   string
	}{
		{
			name:    "fragment not found",
			missing: true,
			check:   IsFragmentNotFound,
			class:   "fragment_not_found",
		},
		{
			name:    "corrupt json",
			content: `{"Items": [`,
			check:   IsFragmentLoadFailed,
			class:   "fragment_load_failed",
		},
		{
			name:    "root not an object",
			content: `["P", "Q"]`,
			check:   IsInvalidFragmentFormat,
			class:   "invalid_fragment_format",
		},
		{
			name:    "missing items key",
			content: `{"Values": []}`,
			check:   IsInvalidFragmentFormat,
			class:   "invalid_fragment_format",
		},
		{
			name:    "items not an array",
			content: `{"Items": {"P": 1}}`,
			check:   IsInvalidFragmentFormat,
			class:   "invalid_fragment_format",
		},
		{
			name:    "stray key next to items",
			content: `{"Items": [], "Extra": 1}`,
			check:   IsInvalidFragmentFormat,
			class:   "invalid_fragment_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, spy, paths := newTestExpander(t)
			if !tt.missing {
				spy.addFile(filepath.Join(paths.Root(), "frag.json"), tt.content)
			}
			tree := Document{"Items": []any{includeOf("frag")}}
			_, _, err := e.Expand(tree, paths.Root())
			if !tt.check(err) {
				t.Errorf("Expand() error = %v, want %s", err, tt.class)
			}
		})
	}
}

func TestExpander_SchemaKeyAllowedInFragment(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "frag.json"),
		`{"$schema": "ref", "Items": ["P"]}`)

	tree := Document{"Items": []any{includeOf("frag")}}
	got, _, err := e.Expand(tree, paths.Root())
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if !reflect.DeepEqual(got["Items"], []any{"P"}) {
		t.Errorf("Expand() Items = %v, want [P]", got["Items"])
	}
}

func TestExpander_EscapeDetectedBeforeRead(t *testing.T) {
	e, spy, paths := newTestExpander(t)

	tree := Document{"Items": []any{includeOf("../../outside")}}
	_, _, err := e.Expand(tree, paths.Root())
	if !IsPathEscapesRoot(err) {
		t.Fatalf("Expand() error = %v, want path_escapes_root", err)
	}
	if len(spy.reads) != 0 {
		t.Errorf("Expand() read %v before the containment check", spy.reads)
	}
}

func TestExpander_ResultDoesNotAliasInput(t *testing.T) {
	e, spy, paths := newTestExpander(t)
	spy.addFile(filepath.Join(paths.Root(), "frag.json"), `{"Items": [{"K": "v"}]}`)

	tree := Document{"Items": []any{Document{"Inner": []any{"a"}}, includeOf("frag")}}
	got, _, err := e.Expand(tree, paths.Root())
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	got["Items"].([]any)[0].(Document)["Inner"].([]any)[0] = "mutated"
	if tree["Items"].([]any)[0].(Document)["Inner"].([]any)[0] != "a" {
		t.Error("Expand() aliased the input tree")
	}
}
