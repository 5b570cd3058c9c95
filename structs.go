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

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// EnumValuer is implemented by Go types that enumerate their own named
// values. A type implementing it is treated as a protobuf enum rather than
// being mapped by its underlying kind.
//
// proto3 requires a zero value; when none of the returned values has number
// zero, a PLACEHOLDER_UNSET value is prepended.
type EnumValuer interface {
	EnumValues() []EnumValue
}

// StructSchema is a [Source] that derives a schema from a Go type using
// reflection. Fields map by kind: struct fields become nested messages,
// slices become repeated fields ([]byte becomes bytes), maps become protobuf
// maps, pointers become proto3 optional fields, time.Time becomes
// google.protobuf.Timestamp, and the empty interface becomes
// google.protobuf.Any.
//
// Field declarations are tunable with a `protoshape` struct tag:
//
//	Name  string `protoshape:"title"`             // rename the field
//	Count int32  `protoshape:"count,7"`           // explicit field number
//	Note  string `protoshape:",optional"`         // proto3 optional
//	Hide  string `protoshape:"-"`                 // omit the field
//	Cat   bool   `protoshape:",oneof=animal"`     // member of a oneof
//	Peer  any    `protoshape:"peer,ref=api.Peer"` // reference a registered type
type StructSchema struct {
	// Value is the value, pointer, or reflect.Type to introspect.
	Value any
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	enumValuerType = reflect.TypeOf((*EnumValuer)(nil)).Elem()
)

// Schema implements [Source].
func (s StructSchema) Schema() (Node, error) {
	t, ok := s.Value.(reflect.Type)
	if !ok {
		if s.Value == nil {
			return nil, schemaErrorf("struct schema value is nil")
		}
		t = reflect.TypeOf(s.Value)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c := &structConverter{seen: make(map[reflect.Type]string)}
	if isEnumType(t) {
		return c.enumNode(t)
	}
	if t.Kind() != reflect.Struct {
		return nil, schemaErrorf("%s is not a struct or enum type", t)
	}
	return c.messageNode(t)
}

type structConverter struct {
	// seen maps named struct types already converted in this walk to their
	// message names, so recursive types become references instead of
	// infinite trees.
	seen map[reflect.Type]string
}

func isEnumType(t reflect.Type) bool {
	return t.Implements(enumValuerType) || reflect.PtrTo(t).Implements(enumValuerType)
}

func (c *structConverter) enumNode(t reflect.Type) (Node, error) {
	var ev EnumValuer
	if t.Implements(enumValuerType) {
		ev = reflect.Zero(t).Interface().(EnumValuer)
	} else {
		ev = reflect.New(t).Interface().(EnumValuer)
	}
	values := ev.EnumValues()
	if len(values) == 0 {
		return nil, schemaErrorf("enum type %s declares no values", t)
	}
	hasZero := false
	for _, v := range values {
		if v.Number == 0 {
			hasZero = true
			break
		}
	}
	if !hasZero {
		values = append([]EnumValue{{Name: "PLACEHOLDER_UNSET", Number: 0}}, values...)
	}
	return &Enum{Name: t.Name(), Values: values}, nil
}

func (c *structConverter) messageNode(t reflect.Type) (Node, error) {
	if t.Name() != "" {
		c.seen[t] = t.Name()
	}
	msg := &Message{Name: t.Name()}
	unions := make(map[string]*Union)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue // unexported
		}
		opts, err := parseFieldTag(sf)
		if err != nil {
			return nil, err
		}
		if opts.skip {
			continue
		}
		fieldName := opts.name
		if fieldName == "" {
			fieldName = snakeCase(sf.Name)
		}

		var node Node
		optional := false
		if opts.ref != "" {
			node = Node(&Reference{Name: opts.ref})
			ft := sf.Type
			if ft.Kind() == reflect.Ptr {
				optional = true
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8 {
				node = &Array{Elem: node}
			}
		} else {
			node, optional, err = c.fieldNode(sf.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "field %s.%s", t.Name(), sf.Name)
			}
		}

		if opts.oneof != "" {
			u, ok := unions[opts.oneof]
			if !ok {
				u = &Union{Discriminator: opts.oneof}
				unions[opts.oneof] = u
				msg.Fields = append(msg.Fields, Field{Name: opts.oneof, Type: u})
			}
			u.Variants = append(u.Variants, Variant{Tag: sf.Name, Schema: node})
			continue
		}

		msg.Fields = append(msg.Fields, Field{
			Name:     fieldName,
			Type:     node,
			Number:   opts.number,
			Optional: optional || opts.optional,
		})
	}
	return msg, nil
}

func (c *structConverter) fieldNode(t reflect.Type) (Node, bool, error) {
	if t == timeType {
		return &Scalar{Kind: Timestamp}, false, nil
	}
	if isEnumType(t) {
		node, err := c.enumNode(t)
		return node, false, err
	}
	switch t.Kind() {
	case reflect.Ptr:
		node, _, err := c.fieldNode(t.Elem())
		return node, true, err
	case reflect.Bool:
		return &Scalar{Kind: Bool}, false, nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return &Scalar{Kind: Int32}, false, nil
	case reflect.Int, reflect.Int64:
		return &Scalar{Kind: Int64}, false, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return &Scalar{Kind: UInt32}, false, nil
	case reflect.Uint, reflect.Uint64:
		return &Scalar{Kind: UInt64}, false, nil
	case reflect.Float32:
		return &Scalar{Kind: Float}, false, nil
	case reflect.Float64:
		return &Scalar{Kind: Double}, false, nil
	case reflect.String:
		return &Scalar{Kind: String}, false, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Scalar{Kind: Bytes}, false, nil
		}
		elem, _, err := c.fieldNode(t.Elem())
		if err != nil {
			return nil, false, err
		}
		return &Array{Elem: elem}, false, nil
	case reflect.Map:
		key, err := mapKeyKind(t.Key())
		if err != nil {
			return nil, false, err
		}
		value, _, err := c.fieldNode(t.Elem())
		if err != nil {
			return nil, false, err
		}
		return &Map{Key: key, Value: value}, false, nil
	case reflect.Struct:
		if prior, ok := c.seen[t]; ok {
			return &Reference{Name: prior}, false, nil
		}
		node, err := c.messageNode(t)
		return node, false, err
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return &Scalar{Kind: Any}, false, nil
		}
		return nil, false, &UnsupportedTypeError{Type: t.String()}
	default:
		return nil, false, &UnsupportedTypeError{Type: t.String()}
	}
}

func mapKeyKind(t reflect.Type) (ScalarKind, error) {
	switch t.Kind() {
	case reflect.Bool:
		return Bool, nil
	case reflect.String:
		return String, nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Int32, nil
	case reflect.Int, reflect.Int64:
		return Int64, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return UInt32, nil
	case reflect.Uint, reflect.Uint64:
		return UInt64, nil
	default:
		return 0, schemaErrorf("%s is not a valid map key type", t)
	}
}

type fieldTagOpts struct {
	name     string
	number   int32
	optional bool
	oneof    string
	ref      string
	skip     bool
}

func parseFieldTag(sf reflect.StructField) (fieldTagOpts, error) {
	var opts fieldTagOpts
	tag, ok := sf.Tag.Lookup("protoshape")
	if !ok {
		return opts, nil
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" && len(parts) == 1 {
		opts.skip = true
		return opts, nil
	}
	opts.name = parts[0]
	for _, part := range parts[1:] {
		switch {
		case part == "optional":
			opts.optional = true
		case strings.HasPrefix(part, "oneof="):
			opts.oneof = strings.TrimPrefix(part, "oneof=")
		case strings.HasPrefix(part, "ref="):
			opts.ref = strings.TrimPrefix(part, "ref=")
		default:
			n, err := strconv.ParseInt(part, 10, 32)
			if err != nil || n <= 0 {
				return opts, schemaErrorf("field %s has unrecognized tag option %q", sf.Name, part)
			}
			opts.number = int32(n)
		}
	}
	return opts, nil
}
