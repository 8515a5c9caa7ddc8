package policy

import (
	"errors"
	"fmt"
)

// ErrArrayMerge is returned when an override addresses an array.
var ErrArrayMerge = errors.New("merging arrays is not supported")

// Merge deep-merges source into a copy of target. Objects merge key by key,
// any other source value replaces the target value. Neither input is modified.
func Merge(target, source Document) (Document, error) {
	if source.root == nil {
		return Document{root: deepCopy(target.root)}, nil
	}
	if target.root == nil {
		return Document{root: deepCopy(source.root)}, nil
	}
	merged, err := mergeNode(deepCopy(target.root), source.root, "")
	if err != nil {
		return Document{}, err
	}
	return Document{root: merged}, nil
}

func mergeNode(target, source any, path string) (any, error) {
	if _, ok := target.([]any); ok {
		return nil, fmt.Errorf("%w: at %q", ErrArrayMerge, pathOrRoot(path))
	}
	if _, ok := source.([]any); ok {
		return nil, fmt.Errorf("%w: at %q", ErrArrayMerge, pathOrRoot(path))
	}

	tm, targetIsObject := target.(map[string]any)
	sm, sourceIsObject := source.(map[string]any)
	if !targetIsObject || !sourceIsObject {
		return deepCopy(source), nil
	}

	for k, sv := range sm {
		tv, exists := tm[k]
		if !exists {
			tm[k] = deepCopy(sv)
			continue
		}
		merged, err := mergeNode(tv, sv, path+"/"+k)
		if err != nil {
			return nil, err
		}
		tm[k] = merged
	}
	return tm, nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func deepCopy(node any) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[k] = deepCopy(v)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = deepCopy(v)
		}
		return out
	default:
		return n
	}
}
