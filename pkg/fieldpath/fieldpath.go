// Package fieldpath resolves dotted field paths against JSON values.
//
// A path is split on "." with no escaping, so keys that contain a literal
// dot cannot be addressed. Segments are always object keys: "0" and "[0]"
// are looked up as member names and never index into arrays.
package fieldpath

import (
	"strings"

	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

// DefaultSearchDepth bounds FindFirstArray when callers pass a non-positive depth
const DefaultSearchDepth = 32

// Segments splits a path into its keys
func Segments(path string) []string {
	return strings.Split(path, ".")
}

// Lookup walks v key by key. It reports false as soon as the current value
// is not an object or the key is missing.
func Lookup(v jsonvalue.Value, path string) (jsonvalue.Value, bool) {
	cur := v
	for _, key := range Segments(path) {
		next, ok := cur.Get(key)
		if !ok {
			return jsonvalue.Null(), false
		}
		cur = next
	}
	return cur, true
}

// Resolve is Lookup that yields null for unresolvable paths
func Resolve(v jsonvalue.Value, path string) jsonvalue.Value {
	out, _ := Lookup(v, path)
	return out
}

// FindFirstArray searches v for the first array, depth first in member
// order. A root array is returned as-is with an empty path. Within an
// object every member is checked in order; an array member is returned
// immediately, an object member is searched before moving on to the next
// member. Arrays nested inside arrays are not searched.
func FindFirstArray(v jsonvalue.Value, maxDepth int) (jsonvalue.Value, string, bool) {
	if maxDepth <= 0 {
		maxDepth = DefaultSearchDepth
	}
	if v.Kind() == jsonvalue.KindArray {
		return v, "", true
	}
	return findInObject(v, "", maxDepth)
}

func findInObject(v jsonvalue.Value, prefix string, depth int) (jsonvalue.Value, string, bool) {
	if depth == 0 || v.Kind() != jsonvalue.KindObject {
		return jsonvalue.Null(), "", false
	}
	for _, m := range v.Members() {
		path := m.Key
		if prefix != "" {
			path = prefix + "." + m.Key
		}
		switch m.Value.Kind() {
		case jsonvalue.KindArray:
			return m.Value, path, true
		case jsonvalue.KindObject:
			if found, p, ok := findInObject(m.Value, path, depth-1); ok {
				return found, p, true
			}
		}
	}
	return jsonvalue.Null(), "", false
}
