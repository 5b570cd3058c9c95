// Copyright 2024-2025 Protoshape Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protoshape

import "strings"

// Source is the closed interface implemented by every schema front end.
// A Source turns one schema representation (a JTD document, a Go struct
// type, a hand-built node tree) into the normalized [Node] algebra that
// [BuildDescriptor] consumes. Adding support for a new schema language
// means adding a new Source implementation.
type Source interface {
	Schema() (Node, error)
}

// Node is the normalized intermediate representation shared by all schema
// front ends. The set of implementations is closed: Scalar, Array, Map,
// Enum, Message, Union, and Reference.
type Node interface {
	isNode()
}

// ScalarKind identifies a leaf field type. Timestamp and Any are carried as
// scalars in the model even though they compile to well-known message types.
type ScalarKind int

const (
	Bool ScalarKind = iota + 1
	Int32
	Int64
	UInt32
	UInt64
	Float
	Double
	String
	Bytes
	Timestamp
	Any
)

// Scalar is a leaf type with no substructure.
type Scalar struct {
	Kind ScalarKind
}

// Array is an ordered sequence of elements. Arrays compile to repeated
// fields, so they cannot nest directly inside another Array or a Map.
type Array struct {
	Elem Node
}

// Map is an associative container. Keys are scalar; JTD maps always use
// string keys.
type Map struct {
	Key   ScalarKind
	Value Node
}

// EnumValue is one named value of an enum. Repeated numbers declare aliases.
type EnumValue struct {
	Name   string
	Number int32
}

// Enum is a closed set of named values. An empty Name is synthesized from
// the enclosing field when the enum is declared inline.
type Enum struct {
	Name   string
	Values []EnumValue
}

// Field is one field of a Message, in declaration order. A zero Number asks
// the builder to assign the next unused field number. Optional fields
// compile to proto3 optional (a synthetic single-member oneof).
type Field struct {
	Name     string
	Type     Node
	Number   int32
	Optional bool
}

// Message is a record with ordered named fields. AdditionalFields requests
// a trailing google.protobuf.Struct field capturing arbitrary extra keys.
type Message struct {
	Name             string
	Fields           []Field
	AdditionalFields bool
}

// Variant is one alternative of a Union, identified by its tag.
type Variant struct {
	Tag    string
	Schema Node
}

// Union is a set of mutually exclusive variants discriminated by a tag
// field. Unions compile to a protobuf oneof whose members share the
// enclosing message's field-number space; the discriminator itself is not
// materialized as a field.
type Union struct {
	Name          string
	Discriminator string
	Variants      []Variant
}

// Reference names a type registered in the [Registry] or built earlier in
// the same conversion. References never own their referent; they break
// cycles in recursive schemas by naming the type instead of containing it.
type Reference struct {
	Name string
}

func (*Scalar) isNode()    {}
func (*Array) isNode()     {}
func (*Map) isNode()       {}
func (*Enum) isNode()      {}
func (*Message) isNode()   {}
func (*Union) isNode()     {}
func (*Reference) isNode() {}

// SchemaOf adapts a hand-built node tree into a [Source], for callers that
// construct the intermediate representation directly.
func SchemaOf(node Node) Source {
	return nodeSource{node: node}
}

type nodeSource struct {
	node Node
}

func (s nodeSource) Schema() (Node, error) {
	if s.node == nil {
		return nil, schemaErrorf("schema node is nil")
	}
	return s.node, nil
}

// upperCamel converts snake_case (or an already-capitalized name) to
// UpperCamelCase, the conventional spelling for message and enum names.
func upperCamel(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	up := true
	for _, r := range s {
		if r == '_' {
			up = true
			continue
		}
		if up {
			b.WriteString(strings.ToUpper(string(r)))
			up = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// snakeCase converts a Go identifier like UserID to user_id, the
// conventional spelling for protobuf field names.
func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			prevLower := i > 0 && isLowerAlnum(runes[i-1])
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isLowerAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
