package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/strataconf/strata/pkg/engine"
)

// documentsGlobal is the module-level dict a generation script must
// define. Its keys are document IDs, its values document trees.
const documentsGlobal = "documents"

// Result holds the outcome of a script evaluation.
type Result struct {
	// Documents maps document IDs to the generated trees, normalized to
	// the same value kinds loaded documents use (numbers as float64).
	Documents map[string]engine.Document

	// Globals holds every other exported module-level binding, mostly
	// useful for debugging scripts.
	Globals map[string]any

	// Error is set when the script failed or timed out.
	Error string

	// ExecutionTime is how long the evaluation took.
	ExecutionTime time.Duration
}

// Evaluator executes Starlark generation scripts in a sandbox.
type Evaluator struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEvaluator creates a new script evaluator.
func NewEvaluator(logger zerolog.Logger, timeout time.Duration) *Evaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Evaluator{
		timeout: timeout,
		logger:  logger.With().Str("component", "generate").Logger(),
	}
}

// Evaluate executes a script with the given parameters bound as global
// names. The name labels the script in errors and stack traces.
func (e *Evaluator) Evaluate(ctx context.Context, name, script string, params map[string]any) (*Result, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			e.logger.Debug().Str("script", name).Msg(msg)
		},
	}

	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := e.run(thread, name, script, params)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		// Halts the interpreter at its next safepoint, so the goroutine
		// does not keep spinning after we return
		thread.Cancel("timeout")
		return &Result{
			ExecutionTime: time.Since(startTime),
			Error:         fmt.Sprintf("execution timeout after %v", e.timeout),
		}, fmt.Errorf("script %s timed out after %v", name, e.timeout)
	case err := <-errCh:
		return &Result{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(startTime)
		return result, nil
	}
}

// run performs the actual evaluation on the calling goroutine.
func (e *Evaluator) run(thread *starlark.Thread, name, script string, params map[string]any) (*Result, error) {
	predeclared := starlark.StringDict{
		"struct":   starlarkstruct.Default,
		"merge":    starlark.NewBuiltin("merge", builtinMerge),
		"fragment": starlark.NewBuiltin("fragment", builtinFragment),
	}

	for key, val := range params {
		sv, err := toStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert parameter %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	globals, err := starlark.ExecFile(thread, name, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("script execution failed: %w", err)
	}

	result := &Result{
		Documents: make(map[string]engine.Document),
		Globals:   make(map[string]any),
	}

	seenDocuments := false
	for gname, val := range globals {
		// Names starting with _ stay private to the script
		if strings.HasPrefix(gname, "_") {
			continue
		}

		goVal, err := fromStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", gname, err)
		}

		if gname == documentsGlobal {
			docs, err := extractDocuments(goVal)
			if err != nil {
				return nil, err
			}
			result.Documents = docs
			seenDocuments = true
			continue
		}

		result.Globals[gname] = goVal
	}

	if !seenDocuments {
		return nil, fmt.Errorf("script %s does not define a %q dict", name, documentsGlobal)
	}

	return result, nil
}

// extractDocuments checks and normalizes the documents global.
func extractDocuments(v any) (map[string]engine.Document, error) {
	trees, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a dict of document trees, got %T", documentsGlobal, v)
	}

	out := make(map[string]engine.Document, len(trees))
	for id, tree := range trees {
		obj, ok := tree.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("document %s: tree must be a dict, got %T", id, tree)
		}

		normalized, err := normalizeTree(obj)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		out[id] = normalized
	}

	return out, nil
}

// normalizeTree round-trips a tree through JSON. Starlark integers come
// back as int64; after the round trip every number is a float64, matching
// trees decoded from document files.
func normalizeTree(tree map[string]any) (engine.Document, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("tree is not JSON-encodable: %w", err)
	}

	var doc engine.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to normalize tree: %w", err)
	}

	return doc, nil
}

// toStarlark converts a Go value to a Starlark value.
func toStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlark converts a Starlark value to a Go value.
func fromStarlark(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			goVal, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = goVal
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			value, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
