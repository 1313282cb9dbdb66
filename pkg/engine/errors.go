package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/strataconf/strata/pkg/schema"
)

// ErrorClass identifies the kind of engine failure.
type ErrorClass string

const (
	// ErrorClassPathEscapesRoot indicates a directive reference resolved
	// outside the configured root directory. No I/O was attempted.
	ErrorClassPathEscapesRoot ErrorClass = "path_escapes_root"

	// ErrorClassCircularInheritance indicates an $extends chain revisited
	// a document.
	ErrorClassCircularInheritance ErrorClass = "circular_inheritance"

	// ErrorClassCircularFragmentInclude indicates an $include chain
	// revisited a fragment.
	ErrorClassCircularFragmentInclude ErrorClass = "circular_fragment_include"

	// ErrorClassBaseNotFound indicates an $extends reference named an
	// absent file.
	ErrorClassBaseNotFound ErrorClass = "base_not_found"

	// ErrorClassFragmentNotFound indicates an $include reference named an
	// absent file.
	ErrorClassFragmentNotFound ErrorClass = "fragment_not_found"

	// ErrorClassInvalidExtendsValue indicates an $extends value that is
	// not a non-empty string.
	ErrorClassInvalidExtendsValue ErrorClass = "invalid_extends_value"

	// ErrorClassInvalidIncludeValue indicates an $include directive that
	// is malformed: a non-string value, an empty value, extra keys on the
	// directive object, or a directive outside an array-element position.
	ErrorClassInvalidIncludeValue ErrorClass = "invalid_include_value"

	// ErrorClassInvalidFragmentFormat indicates a fragment file that is
	// not an object with an Items array.
	ErrorClassInvalidFragmentFormat ErrorClass = "invalid_fragment_format"

	// ErrorClassBaseValidationFailed indicates a base document that could
	// not be read, parsed, or validated.
	ErrorClassBaseValidationFailed ErrorClass = "base_validation_failed"

	// ErrorClassMergedValidationFailed indicates a fully resolved document
	// that fails schema validation.
	ErrorClassMergedValidationFailed ErrorClass = "merged_validation_failed"

	// ErrorClassFragmentLoadFailed indicates a fragment file that exists
	// but could not be read or parsed.
	ErrorClassFragmentLoadFailed ErrorClass = "fragment_load_failed"

	// ErrorClassReadDisallowed indicates a read against a write-only
	// (output mode) store.
	ErrorClassReadDisallowed ErrorClass = "read_disallowed"

	// ErrorClassDefaultCreated indicates a settings-mode read found no
	// file, wrote the schema default, and wants the caller to review the
	// new file before retrying.
	ErrorClassDefaultCreated ErrorClass = "default_created"

	// ErrorClassDocumentLoadFailed indicates the requested document itself
	// could not be read or parsed.
	ErrorClassDocumentLoadFailed ErrorClass = "document_load_failed"

	// ErrorClassDocumentValidationFailed indicates a value handed to Write
	// fails schema validation.
	ErrorClassDocumentValidationFailed ErrorClass = "document_validation_failed"

	// ErrorClassSanitizationFailed indicates violations that survived a
	// settings-mode repair.
	ErrorClassSanitizationFailed ErrorClass = "sanitization_failed"
)

// EngineError represents a classified engine failure with the context a
// caller needs to act on it: the offending file, the directive involved,
// the chain that produced a cycle, and the violations behind a validation
// failure.
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is a stable error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Path is the file path that caused the error, if applicable.
	Path string `json:"path,omitempty"`

	// Directive is the directive being resolved when the error occurred
	// ("$extends" or "$include"), if applicable.
	Directive string `json:"directive,omitempty"`

	// Chain is the full directive chain for cycle errors, including the
	// repeated entry.
	Chain []string `json:"chain,omitempty"`

	// Violations carries the schema violations behind validation failures.
	Violations []schema.Violation `json:"violations,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)

	switch {
	case e.Path != "" && e.Directive != "":
		fmt.Fprintf(&b, " (path=%s, directive=%s)", e.Path, e.Directive)
	case e.Path != "":
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}

	if len(e.Chain) > 0 {
		fmt.Fprintf(&b, ": %s", FormatChain(e.Chain))
	}
	if len(e.Violations) > 0 {
		fmt.Fprintf(&b, ": %s", schema.FormatViolations(e.Violations))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// FormatChain renders a directive chain the way cycle errors report it.
func FormatChain(chain []string) string {
	return strings.Join(chain, " -> ")
}

// NewPathEscapesRootError creates an error for a reference that resolves
// outside the root directory.
func NewPathEscapesRootError(path, directive string) *EngineError {
	return &EngineError{
		Class:     ErrorClassPathEscapesRoot,
		Message:   "reference resolves outside the document root",
		Code:      ErrCodePathEscapesRoot,
		Path:      path,
		Directive: directive,
	}
}

// NewCircularInheritanceError creates an error for an $extends cycle. The
// chain must include the repeated entry.
func NewCircularInheritanceError(path string, chain []string) *EngineError {
	return &EngineError{
		Class:     ErrorClassCircularInheritance,
		Message:   "inheritance chain revisits a document",
		Code:      ErrCodeCircularInheritance,
		Path:      path,
		Directive: DirectiveExtends,
		Chain:     append([]string(nil), chain...),
	}
}

// NewCircularFragmentIncludeError creates an error for an $include cycle.
// The chain must include the repeated entry.
func NewCircularFragmentIncludeError(path string, chain []string) *EngineError {
	return &EngineError{
		Class:     ErrorClassCircularFragmentInclude,
		Message:   "fragment include chain revisits a fragment",
		Code:      ErrCodeCircularFragmentInclude,
		Path:      path,
		Directive: DirectiveInclude,
		Chain:     append([]string(nil), chain...),
	}
}

// NewBaseNotFoundError creates an error for an absent base document.
func NewBaseNotFoundError(path string, err error) *EngineError {
	return &EngineError{
		Class:     ErrorClassBaseNotFound,
		Message:   "base document not found",
		Code:      ErrCodeBaseNotFound,
		Path:      path,
		Directive: DirectiveExtends,
		Err:       err,
	}
}

// NewFragmentNotFoundError creates an error for an absent fragment file.
func NewFragmentNotFoundError(path string, err error) *EngineError {
	return &EngineError{
		Class:     ErrorClassFragmentNotFound,
		Message:   "fragment not found",
		Code:      ErrCodeFragmentNotFound,
		Path:      path,
		Directive: DirectiveInclude,
		Err:       err,
	}
}

// NewInvalidExtendsValueError creates an error for a malformed $extends
// value in the named document.
func NewInvalidExtendsValueError(docPath string, value any) *EngineError {
	return &EngineError{
		Class:     ErrorClassInvalidExtendsValue,
		Message:   fmt.Sprintf("$extends value must be a non-empty string, got %s", schema.KindOf(value)),
		Code:      ErrCodeInvalidExtendsValue,
		Path:      docPath,
		Directive: DirectiveExtends,
	}
}

// NewInvalidIncludeValueError creates an error for a malformed $include
// directive in the named document.
func NewInvalidIncludeValueError(docPath, reason string) *EngineError {
	return &EngineError{
		Class:     ErrorClassInvalidIncludeValue,
		Message:   reason,
		Code:      ErrCodeInvalidIncludeValue,
		Path:      docPath,
		Directive: DirectiveInclude,
	}
}

// NewInvalidFragmentFormatError creates an error for a fragment file that
// is not an object with an Items array.
func NewInvalidFragmentFormatError(path, reason string) *EngineError {
	return &EngineError{
		Class:     ErrorClassInvalidFragmentFormat,
		Message:   reason,
		Code:      ErrCodeInvalidFragmentFormat,
		Path:      path,
		Directive: DirectiveInclude,
	}
}

// NewBaseValidationFailedError creates an error for a base document that
// failed to load, parse, or validate.
func NewBaseValidationFailedError(basePath string, violations []schema.Violation, err error) *EngineError {
	return &EngineError{
		Class:      ErrorClassBaseValidationFailed,
		Message:    "base document failed validation",
		Code:       ErrCodeBaseValidationFailed,
		Path:       basePath,
		Directive:  DirectiveExtends,
		Violations: violations,
		Err:        err,
	}
}

// NewMergedValidationFailedError creates an error for a resolved document
// that fails schema validation.
func NewMergedValidationFailedError(docPath string, violations []schema.Violation) *EngineError {
	return &EngineError{
		Class:      ErrorClassMergedValidationFailed,
		Message:    "resolved document failed validation",
		Code:       ErrCodeMergedValidationFailed,
		Path:       docPath,
		Violations: violations,
	}
}

// NewFragmentLoadFailedError creates an error for a fragment that exists
// but could not be read or parsed.
func NewFragmentLoadFailedError(path string, err error) *EngineError {
	return &EngineError{
		Class:     ErrorClassFragmentLoadFailed,
		Message:   "failed to load fragment",
		Code:      ErrCodeFragmentLoadFailed,
		Path:      path,
		Directive: DirectiveInclude,
		Err:       err,
	}
}

// NewReadDisallowedError creates an error for a read against a write-only
// store.
func NewReadDisallowedError(docID string) *EngineError {
	return &EngineError{
		Class:   ErrorClassReadDisallowed,
		Message: fmt.Sprintf("document %s belongs to a write-only store; reading is disallowed", docID),
		Code:    ErrCodeReadDisallowed,
	}
}

// NewDefaultCreatedError creates the settings-mode review-and-retry error
// raised after a missing document was populated with its schema default.
func NewDefaultCreatedError(docID, path string) *EngineError {
	return &EngineError{
		Class:   ErrorClassDefaultCreated,
		Message: fmt.Sprintf("document %s was missing; a default was written for review", docID),
		Code:    ErrCodeDefaultCreated,
		Path:    path,
	}
}

// NewDocumentLoadFailedError creates an error for a requested document that
// could not be read or parsed.
func NewDocumentLoadFailedError(path string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassDocumentLoadFailed,
		Message: "failed to load document",
		Code:    ErrCodeDocumentLoadFailed,
		Path:    path,
		Err:     err,
	}
}

// NewDocumentValidationFailedError creates a write-side validation error.
func NewDocumentValidationFailedError(docID string, violations []schema.Violation) *EngineError {
	return &EngineError{
		Class:      ErrorClassDocumentValidationFailed,
		Message:    fmt.Sprintf("document %s failed validation", docID),
		Code:       ErrCodeDocumentValidationFailed,
		Violations: violations,
	}
}

// NewSanitizationFailedError creates an error for violations that survived
// a settings-mode repair.
func NewSanitizationFailedError(path string, violations []schema.Violation) *EngineError {
	return &EngineError{
		Class:      ErrorClassSanitizationFailed,
		Message:    "violations remain after sanitization",
		Code:       ErrCodeSanitizationFailed,
		Path:       path,
		Violations: violations,
	}
}

// WithPath adds the offending file path to an error.
func (e *EngineError) WithPath(path string) *EngineError {
	e.Path = path
	return e
}

// WithDirective records which directive was being resolved.
func (e *EngineError) WithDirective(directive string) *EngineError {
	e.Directive = directive
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value any) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the ErrorClass of an error, unwrapping as needed. It
// returns the empty class when the error is not an EngineError.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// CodeOf returns the error code of an error, unwrapping as needed.
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsPathEscapesRoot returns true for containment failures.
func IsPathEscapesRoot(err error) bool { return ClassOf(err) == ErrorClassPathEscapesRoot }

// IsCircularInheritance returns true for $extends cycles.
func IsCircularInheritance(err error) bool { return ClassOf(err) == ErrorClassCircularInheritance }

// IsCircularFragmentInclude returns true for $include cycles.
func IsCircularFragmentInclude(err error) bool {
	return ClassOf(err) == ErrorClassCircularFragmentInclude
}

// IsBaseNotFound returns true when a base document is absent.
func IsBaseNotFound(err error) bool { return ClassOf(err) == ErrorClassBaseNotFound }

// IsFragmentNotFound returns true when a fragment file is absent.
func IsFragmentNotFound(err error) bool { return ClassOf(err) == ErrorClassFragmentNotFound }

// IsInvalidExtendsValue returns true for malformed $extends values.
func IsInvalidExtendsValue(err error) bool { return ClassOf(err) == ErrorClassInvalidExtendsValue }

// IsInvalidIncludeValue returns true for malformed $include directives.
func IsInvalidIncludeValue(err error) bool { return ClassOf(err) == ErrorClassInvalidIncludeValue }

// IsInvalidFragmentFormat returns true for fragments that are not
// {Items: [...]} objects.
func IsInvalidFragmentFormat(err error) bool { return ClassOf(err) == ErrorClassInvalidFragmentFormat }

// IsBaseValidationFailed returns true when a base failed to load or
// validate.
func IsBaseValidationFailed(err error) bool { return ClassOf(err) == ErrorClassBaseValidationFailed }

// IsMergedValidationFailed returns true when a resolved document failed
// validation.
func IsMergedValidationFailed(err error) bool {
	return ClassOf(err) == ErrorClassMergedValidationFailed
}

// IsFragmentLoadFailed returns true for fragment read or parse failures.
func IsFragmentLoadFailed(err error) bool { return ClassOf(err) == ErrorClassFragmentLoadFailed }

// IsReadDisallowed returns true for reads against write-only stores.
func IsReadDisallowed(err error) bool { return ClassOf(err) == ErrorClassReadDisallowed }

// IsDefaultCreated returns true for the settings-mode review-and-retry
// error.
func IsDefaultCreated(err error) bool { return ClassOf(err) == ErrorClassDefaultCreated }

// IsDocumentLoadFailed returns true when the requested document could not
// be read or parsed.
func IsDocumentLoadFailed(err error) bool { return ClassOf(err) == ErrorClassDocumentLoadFailed }

// IsDocumentValidationFailed returns true for write-side validation
// failures.
func IsDocumentValidationFailed(err error) bool {
	return ClassOf(err) == ErrorClassDocumentValidationFailed
}

// IsSanitizationFailed returns true when violations survived a repair.
func IsSanitizationFailed(err error) bool { return ClassOf(err) == ErrorClassSanitizationFailed }

// Common error codes.
const (
	ErrCodePathEscapesRoot          = "PATH_ESCAPES_ROOT"
	ErrCodeCircularInheritance      = "CIRCULAR_INHERITANCE"
	ErrCodeCircularFragmentInclude  = "CIRCULAR_FRAGMENT_INCLUDE"
	ErrCodeBaseNotFound             = "BASE_NOT_FOUND"
	ErrCodeFragmentNotFound         = "FRAGMENT_NOT_FOUND"
	ErrCodeInvalidExtendsValue      = "INVALID_EXTENDS_VALUE"
	ErrCodeInvalidIncludeValue      = "INVALID_INCLUDE_VALUE"
	ErrCodeInvalidFragmentFormat    = "INVALID_FRAGMENT_FORMAT"
	ErrCodeBaseValidationFailed     = "BASE_VALIDATION_FAILED"
	ErrCodeMergedValidationFailed   = "MERGED_VALIDATION_FAILED"
	ErrCodeFragmentLoadFailed       = "FRAGMENT_LOAD_FAILED"
	ErrCodeReadDisallowed           = "READ_DISALLOWED"
	ErrCodeDefaultCreated           = "DEFAULT_CREATED"
	ErrCodeDocumentLoadFailed       = "DOCUMENT_LOAD_FAILED"
	ErrCodeDocumentValidationFailed = "DOCUMENT_VALIDATION_FAILED"
	ErrCodeSanitizationFailed       = "SANITIZATION_FAILED"
)
