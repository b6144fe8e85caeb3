// Package schema discovers the addressable fields of an arbitrary JSON value.
package schema

import (
	"github.com/briangreenhill/finboard/pkg/jsonvalue"
)

// SampleSize is how many leading elements an array field keeps as its sample
const SampleSize = 3

// Field is one discovered leaf or array
type Field struct {
	Path        string          `json:"path"`
	Type        string          `json:"type"`
	SampleValue jsonvalue.Value `json:"sampleValue"`
	IsArray     bool            `json:"isArray"`
}

// Infer walks v in pre-order and returns every field it finds.
//
// Arrays produce a field for the array itself and then only element 0 is
// descended, under the literal suffix "[0]". Object members are visited in
// document order. Empty objects produce nothing. The result is never nil.
func Infer(v jsonvalue.Value) []Field {
	fields := []Field{}
	walk(v, "", &fields)
	return fields
}

func walk(v jsonvalue.Value, path string, out *[]Field) {
	switch v.Kind() {
	case jsonvalue.KindArray:
		*out = append(*out, Field{
			Path:        path,
			Type:        jsonvalue.KindArray.String(),
			SampleValue: v.Slice(SampleSize),
			IsArray:     true,
		})
		if v.Len() > 0 {
			walk(v.Index(0), path+"[0]", out)
		}
	case jsonvalue.KindObject:
		for _, m := range v.Members() {
			child := m.Key
			if path != "" {
				child = path + "." + m.Key
			}
			walk(m.Value, child, out)
		}
	default:
		*out = append(*out, Field{
			Path:        path,
			Type:        v.Kind().String(),
			SampleValue: v,
		})
	}
}

// Paths returns the paths of fields in order
func Paths(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Path
	}
	return out
}

// Lookup finds the field with the given path
func Lookup(fields []Field, path string) (Field, bool) {
	for _, f := range fields {
		if f.Path == path {
			return f, true
		}
	}
	return Field{}, false
}
