// Package jsonvalue models arbitrary JSON documents as an explicit tagged
// union that keeps object members in document order.
package jsonvalue

import (
	"strconv"
)

// Kind identifies which variant a Value holds
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name for the kind
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Member is a single key/value pair of an object
type Member struct {
	Key   string
	Value Value
}

// Value is one JSON value. The zero Value is JSON null.
// Values are treated as immutable once built; slices returned by
// Elements and Members must not be modified.
type Value struct {
	kind    Kind
	b       bool
	n       float64
	s       string
	elems   []Value
	members []Member
}

// Null returns the JSON null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a number
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array builds an array value from its elements
func Array(elems ...Value) Value {
	out := make([]Value, len(elems))
	copy(out, elems)
	return Value{kind: KindArray, elems: out}
}

// Object builds an object value. Later duplicates of a key replace the
// earlier value but keep the earlier position.
func Object(members ...Member) Value {
	b := newObjectBuilder(len(members))
	for _, m := range members {
		b.set(m.Key, m.Value)
	}
	return b.value()
}

// objectBuilder collects members in order with constant-time duplicate
// detection.
type objectBuilder struct {
	members []Member
	index   map[string]int
}

func newObjectBuilder(n int) *objectBuilder {
	return &objectBuilder{
		members: make([]Member, 0, n),
		index:   make(map[string]int, n),
	}
}

func (b *objectBuilder) set(key string, v Value) {
	if i, ok := b.index[key]; ok {
		b.members[i].Value = v
		return
	}
	b.index[key] = len(b.members)
	b.members = append(b.members, Member{Key: key, Value: v})
}

func (b *objectBuilder) value() Value {
	return Value{kind: KindObject, members: b.members}
}

func setMember(members []Member, key string, v Value) []Member {
	for i := range members {
		if members[i].Key == key {
			members[i].Value = v
			return members
		}
	}
	return append(members, Member{Key: key, Value: v})
}

// Kind reports the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a boolean
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number and whether v is a number
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string and whether v is a string
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Len returns the number of elements or members; zero for scalars
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.elems)
	case KindObject:
		return len(v.members)
	default:
		return 0
	}
}

// Elements returns the elements of an array, nil otherwise
func (v Value) Elements() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.elems
}

// Index returns element i of an array, or null when out of range
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.elems) {
		return Null()
	}
	return v.elems[i]
}

// Members returns the members of an object in document order, nil otherwise
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	return v.members
}

// Get looks up a member of an object
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Null(), false
}

// Has reports whether an object contains key
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Slice returns an array holding at most n leading elements of v
func (v Value) Slice(n int) Value {
	if v.kind != KindArray {
		return Null()
	}
	if n > len(v.elems) {
		n = len(v.elems)
	}
	return Array(v.elems[:n]...)
}

// With returns a copy of the object with key set to val
func (v Value) With(key string, val Value) Value {
	if v.kind != KindObject {
		return v
	}
	out := make([]Member, len(v.members))
	copy(out, v.members)
	return Value{kind: KindObject, members: setMember(out, key, val)}
}

// Text renders v the way a dashboard cell shows it: strings verbatim,
// numbers in shortest form, containers as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Truthy reports false for null, false, zero, NaN and the empty string
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && v.n == v.n
	case KindString:
		return v.s != ""
	default:
		return true
	}
}
