package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/strataconf/strata/pkg/schema"
)

func TestEngineError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want []string
	}{
		{
			name: "path and directive",
			err:  NewBaseNotFoundError("/cfg/base.json", errors.New("no such file")),
			want: []string{"[base_not_found]", "path=/cfg/base.json", "directive=$extends", "no such file"},
		},
		{
			name: "cycle includes the chain",
			err:  NewCircularInheritanceError("/cfg/x.json", []string{"x.json", "y.json", "x.json"}),
			want: []string{"[circular_inheritance]", "x.json -> y.json -> x.json"},
		},
		{
			name: "validation includes the violations",
			err: NewMergedValidationFailedError("/cfg/app.json", []schema.Violation{
				{Kind: schema.MissingRequiredProperty, Path: "Window"},
			}),
			want: []string{"[merged_validation_failed]", "missing_required_property", "Window"},
		},
		{
			name: "no optional context",
			err:  NewReadDisallowedError("report"),
			want: []string{"[read_disallowed]", "report"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestEngineError_Is(t *testing.T) {
	err := NewBaseNotFoundError("/cfg/base.json", nil)

	if !errors.Is(err, &EngineError{Class: ErrorClassBaseNotFound, Code: ErrCodeBaseNotFound}) {
		t.Error("errors.Is() = false for matching class and code")
	}
	if errors.Is(err, &EngineError{Class: ErrorClassFragmentNotFound, Code: ErrCodeFragmentNotFound}) {
		t.Error("errors.Is() = true across classes")
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := NewDocumentLoadFailedError("/cfg/app.json", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is() did not reach the wrapped cause")
	}
}

func TestClassOf(t *testing.T) {
	err := fmt.Errorf("reading settings: %w", NewDefaultCreatedError("app", "/cfg/app.json"))
	if got := ClassOf(err); got != ErrorClassDefaultCreated {
		t.Errorf("ClassOf() = %q, want %q", got, ErrorClassDefaultCreated)
	}
	if got := ClassOf(errors.New("plain")); got != "" {
		t.Errorf("ClassOf() = %q for a plain error, want empty", got)
	}
	if got := CodeOf(err); got != ErrCodeDefaultCreated {
		t.Errorf("CodeOf() = %q, want %q", got, ErrCodeDefaultCreated)
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"path escapes root", NewPathEscapesRootError("/evil", DirectiveExtends), IsPathEscapesRoot},
		{"circular inheritance", NewCircularInheritanceError("x", nil), IsCircularInheritance},
		{"circular fragment include", NewCircularFragmentIncludeError("f", nil), IsCircularFragmentInclude},
		{"base not found", NewBaseNotFoundError("b", nil), IsBaseNotFound},
		{"fragment not found", NewFragmentNotFoundError("f", nil), IsFragmentNotFound},
		{"invalid extends value", NewInvalidExtendsValueError("d", 5), IsInvalidExtendsValue},
		{"invalid include value", NewInvalidIncludeValueError("d", "bad"), IsInvalidIncludeValue},
		{"invalid fragment format", NewInvalidFragmentFormatError("f", "bad"), IsInvalidFragmentFormat},
		{"base validation failed", NewBaseValidationFailedError("b", nil, nil), IsBaseValidationFailed},
		{"merged validation failed", NewMergedValidationFailedError("d", nil), IsMergedValidationFailed},
		{"fragment load failed", NewFragmentLoadFailedError("f", nil), IsFragmentLoadFailed},
		{"read disallowed", NewReadDisallowedError("d"), IsReadDisallowed},
		{"default created", NewDefaultCreatedError("d", "p"), IsDefaultCreated},
		{"document load failed", NewDocumentLoadFailedError("p", nil), IsDocumentLoadFailed},
		{"document validation failed", NewDocumentValidationFailedError("d", nil), IsDocumentValidationFailed},
		{"sanitization failed", NewSanitizationFailedError("p", nil), IsSanitizationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("predicate returned false for its own class")
			}
			if tt.check(nil) {
				t.Errorf("predicate returned true for nil")
			}
		})
	}
}

func TestFormatChain(t *testing.T) {
	got := FormatChain([]string{"a.json", "b.json", "a.json"})
	if got != "a.json -> b.json -> a.json" {
		t.Errorf("FormatChain() = %q", got)
	}
}
