// Package schema validates untyped model output against structural schemas
// registered per agent name.
//
// Schemas are plain Go values built with the constructors in this file:
//
//	schema.Object(
//		schema.Req("width", schema.Number().Positive()),
//		schema.Opt("notes", schema.Array(schema.String())),
//	)
//
// Validation is structural only: types, required fields, enums, bounds.
package schema

import "strings"

// Kind is the JSON type a schema node accepts.
type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindAny     Kind = "any"
)

// Schema is one node of a structural schema.
type Schema struct {
	Kind     Kind
	Fields   []Field // object
	Items    *Schema // array
	MinItems int     // array
	Enum     []string
	NonEmpty bool     // string
	Min      *float64 // number, integer
	ExclMin  bool
	Nullable bool
}

// Field is a named member of an object schema.
type Field struct {
	Name     string
	Schema   *Schema
	Required bool
}

func Object(fields ...Field) *Schema { return &Schema{Kind: KindObject, Fields: fields} }
func Array(items *Schema) *Schema    { return &Schema{Kind: KindArray, Items: items} }
func String() *Schema                { return &Schema{Kind: KindString} }
func Number() *Schema                { return &Schema{Kind: KindNumber} }
func Integer() *Schema               { return &Schema{Kind: KindInteger} }
func Boolean() *Schema               { return &Schema{Kind: KindBoolean} }
func Any() *Schema                   { return &Schema{Kind: KindAny} }

// Enum is a string restricted to values.
func Enum(values ...string) *Schema {
	return &Schema{Kind: KindString, Enum: values}
}

// Req declares a required field.
func Req(name string, s *Schema) Field { return Field{Name: name, Schema: s, Required: true} }

// Opt declares an optional field.
func Opt(name string, s *Schema) Field { return Field{Name: name, Schema: s} }

// NonBlank rejects empty and whitespace-only strings.
func (s *Schema) NonBlank() *Schema {
	s.NonEmpty = true
	return s
}

// AtLeast sets an inclusive lower bound.
func (s *Schema) AtLeast(v float64) *Schema {
	s.Min = &v
	s.ExclMin = false
	return s
}

// Positive requires a value strictly greater than zero.
func (s *Schema) Positive() *Schema {
	zero := 0.0
	s.Min = &zero
	s.ExclMin = true
	return s
}

// MinLen requires at least n array items.
func (s *Schema) MinLen(n int) *Schema {
	s.MinItems = n
	return s
}

// OrNull accepts JSON null in addition to the node's type.
func (s *Schema) OrNull() *Schema {
	s.Nullable = true
	return s
}

// Field returns the named object member.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Describe renders the expected type, used in error messages.
func (s *Schema) Describe() string {
	if len(s.Enum) > 0 {
		return "one of [" + strings.Join(s.Enum, ", ") + "]"
	}
	if s.Kind == KindArray && s.Items != nil {
		return "array of " + s.Items.Describe()
	}
	if s.Nullable {
		return string(s.Kind) + " or null"
	}
	return string(s.Kind)
}
