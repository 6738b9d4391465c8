// Package payload holds the canonical decoded form of an inbound event body:
// a tree of string-keyed maps, sequences and scalars with path-based access.
package payload

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Tree is a decoded payload. The zero value is an empty tree.
type Tree struct {
	root map[string]any
}

// Empty returns a tree with no keys.
func Empty() Tree {
	return Tree{root: map[string]any{}}
}

// Parse decodes a JSON object into a Tree. An empty input yields an empty tree.
func Parse(data []byte) (Tree, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Empty(), nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Tree{}, fmt.Errorf("decoding payload: %w", err)
	}
	return FromMap(m), nil
}

// FromMap wraps an already decoded map. The map is not copied.
func FromMap(m map[string]any) Tree {
	if m == nil {
		m = map[string]any{}
	}
	return Tree{root: m}
}

// FromForm converts form values into a tree, keeping the first value of each key.
func FromForm(values url.Values) Tree {
	m := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) > 0 {
			m[k] = v[0]
		}
	}
	return Tree{root: m}
}

// Raw returns the underlying map.
func (t Tree) Raw() map[string]any {
	if t.root == nil {
		return map[string]any{}
	}
	return t.root
}

// MarshalJSON emits the underlying map.
func (t Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Raw())
}

// Set assigns a top-level key.
func (t *Tree) Set(key string, value any) {
	if t.root == nil {
		t.root = map[string]any{}
	}
	t.root[key] = value
}

// Get walks a dot-separated path and returns the value found there, or def
// when any segment is missing. Numeric segments index into sequences.
func (t Tree) Get(path string, def any) any {
	v, ok := t.lookup(path)
	if !ok {
		return def
	}
	return v
}

// Has reports whether path resolves to a non-nil value.
func (t Tree) Has(path string) bool {
	v, ok := t.lookup(path)
	return ok && v != nil
}

// String returns the value at path as a string. Numbers and booleans are
// formatted; maps, sequences and missing values yield def.
func (t Tree) String(path, def string) string {
	v, ok := t.lookup(path)
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return def
	}
}

// Sub returns the map at path as its own tree, or an empty tree.
func (t Tree) Sub(path string) Tree {
	v, ok := t.lookup(path)
	if !ok {
		return Empty()
	}
	if m, ok := v.(map[string]any); ok {
		return FromMap(m)
	}
	return Empty()
}

// Len returns the length of the sequence at path, or 0.
func (t Tree) Len(path string) int {
	v, ok := t.lookup(path)
	if !ok {
		return 0
	}
	if s, ok := v.([]any); ok {
		return len(s)
	}
	return 0
}

func (t Tree) lookup(path string) (any, bool) {
	if path == "" {
		return t.Raw(), true
	}
	var cur any = t.Raw()
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
