// Package policy resolves remediation actions from per-workflow configuration documents.
//
// A Document is a tree of objects, arrays and scalars addressed by slash
// pointers such as "/antivirus/infectedSipAction". Resolution never fails: a
// missing or illegal value yields a Decision whose Outcome says so, and the
// caller records the accompanying note on the issue it raises.
package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed configuration document.
type Document struct {
	root any
}

// NewDocument wraps an already decoded tree. Maps with non-string keys are converted.
func NewDocument(root any) Document {
	return Document{root: normalize(root)}
}

// Load parses a JSON or YAML document.
func Load(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{root: map[string]any{}}, nil
	}
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Document{}, fmt.Errorf("parse policy document: %w", err)
	}
	return NewDocument(root), nil
}

// Root returns the underlying tree.
func (d Document) Root() any {
	return d.root
}

// IsZero reports whether the document holds nothing.
func (d Document) IsZero() bool {
	if d.root == nil {
		return true
	}
	m, ok := d.root.(map[string]any)
	return ok && len(m) == 0
}

// At returns the node addressed by pointer. The empty pointer addresses the root.
func (d Document) At(pointer string) (any, bool) {
	if pointer == "" {
		return d.root, d.root != nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, false
	}
	node := d.root
	for _, raw := range strings.Split(pointer[1:], "/") {
		seg := unescape(raw)
		switch n := node.(type) {
		case map[string]any:
			next, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n) {
				return nil, false
			}
			node = n[i]
		default:
			return nil, false
		}
	}
	return node, true
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	if d.root == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.root)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return err
	}
	d.root = normalize(root)
	return nil
}

func unescape(seg string) string {
	if !strings.Contains(seg, "~") {
		return seg
	}
	return strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
}

func normalize(node any) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[k] = normalize(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = normalize(v)
		}
		return out
	default:
		return n
	}
}

// render formats a node for notes: strings verbatim, everything else as JSON.
func render(node any) string {
	if s, ok := node.(string); ok {
		return s
	}
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Sprint(node)
	}
	return string(data)
}
