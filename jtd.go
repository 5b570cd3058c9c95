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
	"bytes"
	"encoding/json"
	"math"
)

// jtdTypes maps JTD primitive type names onto the schema model. All integer
// widths below 32 bits are widened: protobuf varint encoding keeps small
// values small regardless of the declared width.
//
// "any" and "bytes" are not part of the JTD specification but are accepted
// because protobuf payloads need them.
var jtdTypes = map[string]ScalarKind{
	"any":       Any,
	"boolean":   Bool,
	"string":    String,
	"timestamp": Timestamp,
	"bytes":     Bytes,
	"float32":   Float,
	"float64":   Double,
	"int8":      Int32,
	"uint8":     UInt32,
	"int16":     Int32,
	"uint16":    UInt32,
	"int32":     Int32,
	"uint32":    UInt32,
	"int64":     Int64,
	"uint64":    UInt64,
}

// jtdKeywords is the closed set of keywords the front end understands.
// Anything else in a schema object is rejected rather than ignored.
var jtdKeywords = map[string]bool{
	"definitions":          true,
	"ref":                  true,
	"type":                 true,
	"enum":                 true,
	"elements":             true,
	"values":               true,
	"properties":           true,
	"optionalProperties":   true,
	"additionalProperties": true,
	"discriminator":        true,
	"mapping":              true,
	"metadata":             true,
	"nullable":             true,
}

// JTDSchema is a parsed JSON Typedef document, ready for [BuildDescriptor].
//
// Property declaration order is preserved from the document and drives
// field numbering, so the same document always produces the same
// descriptor.
type JTDSchema struct {
	root *jtdObject
}

// ParseJTD parses a JSON Typedef document.
func ParseJTD(data []byte) (*JTDSchema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	value, err := decodeJTDValue(dec)
	if err != nil {
		return nil, schemaErrorf("invalid JTD document: %v", err)
	}
	root, ok := value.(*jtdObject)
	if !ok {
		return nil, schemaErrorf("a JTD schema must be a JSON object")
	}
	if dec.More() {
		return nil, schemaErrorf("trailing data after JTD document")
	}
	return &JTDSchema{root: root}, nil
}

// Schema implements [Source].
func (s *JTDSchema) Schema() (Node, error) {
	if s == nil || s.root == nil {
		return nil, schemaErrorf("JTD schema is empty")
	}
	st := &jtdState{
		defs:         make(map[string]*jtdObject),
		materialized: make(map[string]bool),
		inProgress:   make(map[string]bool),
	}
	if raw, ok := s.root.get("definitions"); ok {
		defs, ok := raw.(*jtdObject)
		if !ok {
			return nil, schemaErrorf(`"definitions" must be an object`)
		}
		for _, name := range defs.keys {
			def, ok := defs.vals[name].(*jtdObject)
			if !ok {
				return nil, schemaErrorf("definition %q must be an object", name)
			}
			st.defs[name] = def
		}
	}
	return st.convert(s.root, true)
}

type jtdState struct {
	defs         map[string]*jtdObject
	materialized map[string]bool
	inProgress   map[string]bool
}

func (st *jtdState) convert(obj *jtdObject, isRoot bool) (Node, error) {
	for _, key := range obj.keys {
		if !jtdKeywords[key] {
			return nil, schemaErrorf("unsupported JTD keyword %q", key)
		}
		if key == "definitions" && !isRoot {
			return nil, schemaErrorf(`"definitions" is only allowed at the root of a JTD document`)
		}
	}

	forms := 0
	for _, form := range []string{"ref", "type", "enum", "elements", "values", "discriminator"} {
		if obj.has(form) {
			forms++
		}
	}
	hasProps := obj.has("properties") || obj.has("optionalProperties")
	if hasProps {
		forms++
	}
	if forms > 1 {
		return nil, schemaErrorf("JTD schema forms are mutually exclusive: %v", obj.keys)
	}
	if obj.has("additionalProperties") && !hasProps {
		return nil, schemaErrorf(`"additionalProperties" is only valid on a properties form`)
	}
	if obj.has("mapping") != obj.has("discriminator") {
		return nil, schemaErrorf(`"discriminator" and "mapping" must appear together`)
	}

	switch {
	case obj.has("ref"):
		name, ok := obj.vals["ref"].(string)
		if !ok {
			return nil, schemaErrorf(`"ref" must be a string`)
		}
		return st.resolveRef(name)

	case obj.has("type"):
		typeName, ok := obj.vals["type"].(string)
		if !ok {
			return nil, schemaErrorf(`"type" must be a string`)
		}
		kind, ok := jtdTypes[typeName]
		if !ok {
			return nil, &UnsupportedTypeError{Type: "JTD type " + typeName}
		}
		return &Scalar{Kind: kind}, nil

	case obj.has("enum"):
		entries, ok := obj.vals["enum"].([]any)
		if !ok || len(entries) == 0 {
			return nil, schemaErrorf(`"enum" must be a non-empty array of strings`)
		}
		enum := &Enum{}
		for i, raw := range entries {
			name, ok := raw.(string)
			if !ok {
				return nil, schemaErrorf(`"enum" must be a non-empty array of strings`)
			}
			enum.Values = append(enum.Values, EnumValue{Name: name, Number: int32(i)})
		}
		return enum, nil

	case obj.has("elements"):
		elem, ok := obj.vals["elements"].(*jtdObject)
		if !ok {
			return nil, schemaErrorf(`"elements" must be an object`)
		}
		node, err := st.convert(elem, false)
		if err != nil {
			return nil, err
		}
		return &Array{Elem: node}, nil

	case obj.has("values"):
		values, ok := obj.vals["values"].(*jtdObject)
		if !ok {
			return nil, schemaErrorf(`"values" must be an object`)
		}
		node, err := st.convert(values, false)
		if err != nil {
			return nil, err
		}
		return &Map{Key: String, Value: node}, nil

	case obj.has("discriminator"):
		disc, ok := obj.vals["discriminator"].(string)
		if !ok {
			return nil, schemaErrorf(`"discriminator" must be a string`)
		}
		mapping, ok := obj.vals["mapping"].(*jtdObject)
		if !ok || len(mapping.keys) == 0 {
			return nil, schemaErrorf(`"mapping" must be a non-empty object`)
		}
		union := &Union{Discriminator: disc}
		for _, tag := range mapping.keys {
			variant, ok := mapping.vals[tag].(*jtdObject)
			if !ok {
				return nil, schemaErrorf("mapping %q must be an object", tag)
			}
			node, err := st.convert(variant, false)
			if err != nil {
				return nil, err
			}
			if _, isMessage := node.(*Message); !isMessage {
				return nil, schemaErrorf("mapping %q must be a properties form", tag)
			}
			union.Variants = append(union.Variants, Variant{Tag: tag, Schema: node})
		}
		return union, nil

	case hasProps:
		return st.convertProperties(obj)

	default:
		// The empty form accepts any value.
		return &Scalar{Kind: Any}, nil
	}
}

func (st *jtdState) convertProperties(obj *jtdObject) (Node, error) {
	msg := &Message{}
	addProperties := func(raw any, optional bool) error {
		props, ok := raw.(*jtdObject)
		if !ok {
			return schemaErrorf(`"properties" and "optionalProperties" must be objects`)
		}
		for _, name := range props.keys {
			sub, ok := props.vals[name].(*jtdObject)
			if !ok {
				return schemaErrorf("property %q must be an object", name)
			}
			node, err := st.convert(sub, false)
			if err != nil {
				return err
			}
			field := Field{Name: name, Type: node, Optional: optional}
			if nullable, ok := sub.vals["nullable"].(bool); ok && nullable {
				field.Optional = true
			}
			number, err := jtdFieldNumber(sub)
			if err != nil {
				return err
			}
			field.Number = number
			msg.Fields = append(msg.Fields, field)
		}
		return nil
	}
	if raw, ok := obj.get("properties"); ok {
		if err := addProperties(raw, false); err != nil {
			return nil, err
		}
	}
	if raw, ok := obj.get("optionalProperties"); ok {
		if err := addProperties(raw, true); err != nil {
			return nil, err
		}
	}
	if extra, ok := obj.vals["additionalProperties"].(bool); ok {
		msg.AdditionalFields = extra
	}
	return msg, nil
}

// jtdFieldNumber extracts an explicit field number from a property's
// metadata, if present.
func jtdFieldNumber(obj *jtdObject) (int32, error) {
	meta, ok := obj.vals["metadata"].(*jtdObject)
	if !ok {
		return 0, nil
	}
	raw, ok := meta.get("field_number")
	if !ok {
		return 0, nil
	}
	num, ok := raw.(json.Number)
	if !ok {
		return 0, schemaErrorf(`metadata "field_number" must be an integer`)
	}
	n, err := num.Int64()
	if err != nil || n <= 0 || n > math.MaxInt32 {
		return 0, schemaErrorf(`metadata "field_number" %s is not a valid field number`, num)
	}
	return int32(n), nil
}

// resolveRef materializes a definition at its first use site and hands out
// references everywhere else, including inside the definition itself, which
// is what lets recursive and mutually recursive definitions build.
func (st *jtdState) resolveRef(name string) (Node, error) {
	def, ok := st.defs[name]
	if !ok {
		return nil, schemaErrorf("ref to undefined definition %q", name)
	}
	typeName := upperCamel(name)
	if st.inProgress[name] || st.materialized[name] {
		return &Reference{Name: typeName}, nil
	}
	st.inProgress[name] = true
	node, err := st.convert(def, false)
	delete(st.inProgress, name)
	if err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case *Message:
		n.Name = typeName
		st.materialized[name] = true
	case *Enum:
		n.Name = typeName
		st.materialized[name] = true
	case *Union:
		n.Name = typeName
		st.materialized[name] = true
	case *Reference:
		if n.Name == typeName {
			return nil, schemaErrorf("definition %q is an unresolvable reference cycle", name)
		}
	}
	return node, nil
}

// jtdObject is a JSON object that remembers its key order.
type jtdObject struct {
	keys []string
	vals map[string]any
}

func (o *jtdObject) get(key string) (any, bool) {
	v, ok := o.vals[key]
	return v, ok
}

func (o *jtdObject) has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

func decodeJTDValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := &jtdObject{vals: make(map[string]any)}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key := keyTok.(string)
			value, err := decodeJTDValue(dec)
			if err != nil {
				return nil, err
			}
			if _, dup := obj.vals[key]; !dup {
				obj.keys = append(obj.keys, key)
			}
			obj.vals[key] = value
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		var arr []any
		for dec.More() {
			value, err := decodeJTDValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, schemaErrorf("unexpected JSON delimiter %q", delim)
	}
}
