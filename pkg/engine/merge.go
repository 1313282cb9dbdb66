package engine

// CloneTree deep-copies a document tree. Trees are the untyped values
// produced by JSON decoding: objects, arrays, strings, numbers, booleans,
// and null. Values of any other type are returned as-is.
func CloneTree(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = CloneTree(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CloneTree(item)
		}
		return out
	default:
		return v
	}
}

// DeepMerge merges a child tree over a base tree and returns a freshly
// allocated result; neither input is mutated or aliased.
//
// For a key present in both trees the child wins outright, except when
// both values are objects, in which case the merge recurses. Arrays are
// atomic: a child array fully replaces the base array, element order and
// all. Scalars and nulls replace wholesale.
func DeepMerge(base, child map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(child))
	for k, v := range base {
		out[k] = CloneTree(v)
	}
	for k, v := range child {
		baseVal, inBase := out[k]
		baseObj, baseIsObj := baseVal.(map[string]any)
		childObj, childIsObj := v.(map[string]any)
		if inBase && baseIsObj && childIsObj {
			out[k] = DeepMerge(baseObj, childObj)
			continue
		}
		out[k] = CloneTree(v)
	}
	return out
}
