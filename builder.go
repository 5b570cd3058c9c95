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
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Field numbers 19000 through 19999 are reserved by the protobuf
// implementation and are never assigned.
const (
	reservedRangeStart = 19000
	reservedRangeEnd   = 19999
)

var (
	timestampDesc = (&timestamppb.Timestamp{}).ProtoReflect().Descriptor()
	anyDesc       = (&anypb.Any{}).ProtoReflect().Descriptor()
	structDesc    = (&structpb.Struct{}).ProtoReflect().Descriptor()
)

var scalarTypes = map[ScalarKind]descriptorpb.FieldDescriptorProto_Type{
	Bool:   descriptorpb.FieldDescriptorProto_TYPE_BOOL,
	Int32:  descriptorpb.FieldDescriptorProto_TYPE_INT32,
	Int64:  descriptorpb.FieldDescriptorProto_TYPE_INT64,
	UInt32: descriptorpb.FieldDescriptorProto_TYPE_UINT32,
	UInt64: descriptorpb.FieldDescriptorProto_TYPE_UINT64,
	Float:  descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
	Double: descriptorpb.FieldDescriptorProto_TYPE_DOUBLE,
	String: descriptorpb.FieldDescriptorProto_TYPE_STRING,
	Bytes:  descriptorpb.FieldDescriptorProto_TYPE_BYTES,
}

// BuildDescriptor converts a source schema into a protobuf message or enum
// descriptor, registering it and every nested or related descriptor in the
// given registry as a side effect. The returned descriptor is either a
// [protoreflect.MessageDescriptor] or a [protoreflect.EnumDescriptor].
//
// Building the same (name, schema) pair twice against the same registry is
// idempotent and returns the originally registered descriptor. Reusing a
// name for a structurally different schema fails with [TypeConflictError].
// Registrations made before a failure partway through a conversion are not
// rolled back.
//
// A nil registry falls back to [GlobalRegistry].
func BuildDescriptor(name, pkg string, source Source, registry *Registry) (protoreflect.Descriptor, error) {
	if registry == nil {
		registry = GlobalRegistry
	}
	if source == nil {
		return nil, schemaErrorf("schema source is nil")
	}
	if name == "" || !protoreflect.Name(upperCamel(name)).IsValid() {
		return nil, schemaErrorf("invalid type name %q", name)
	}
	if pkg != "" && !protoreflect.FullName(pkg).IsValid() {
		return nil, schemaErrorf("invalid package name %q", pkg)
	}
	node, err := source.Schema()
	if err != nil {
		return nil, err
	}
	return registry.build(name, pkg, node)
}

func (r *Registry) build(name, pkg string, node Node) (protoreflect.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rootName := upperCamel(name)
	fullName := protoreflect.FullName(rootName)
	if pkg != "" {
		fullName = protoreflect.FullName(pkg).Append(protoreflect.Name(rootName))
	}

	b := &builder{
		pkg:      pkg,
		registry: r,
		imports:  make(map[string]struct{}),
		local:    make(map[string]localType),
	}

	fdProto := &descriptorpb.FileDescriptorProto{
		Name:   proto.String(protoFileName(pkg, rootName)),
		Syntax: proto.String("proto3"),
	}
	if pkg != "" {
		fdProto.Package = proto.String(pkg)
	}

	switch n := node.(type) {
	case *Enum:
		enumProto, err := b.buildEnum(rootName, n)
		if err != nil {
			return nil, err
		}
		fdProto.EnumType = []*descriptorpb.EnumDescriptorProto{enumProto}
	case *Message:
		msgProto, err := b.buildMessage(rootName, n, fullName)
		if err != nil {
			return nil, err
		}
		fdProto.MessageType = []*descriptorpb.DescriptorProto{msgProto}
	case *Union:
		oneofName := n.Discriminator
		if oneofName == "" {
			oneofName = "kind"
		}
		wrapped := &Message{Name: n.Name, Fields: []Field{{Name: oneofName, Type: n}}}
		msgProto, err := b.buildMessage(rootName, wrapped, fullName)
		if err != nil {
			return nil, err
		}
		fdProto.MessageType = []*descriptorpb.DescriptorProto{msgProto}
	default:
		return nil, schemaErrorf("only message and enum schemas can be built at the top level, got %T", node)
	}

	deps := make([]string, 0, len(b.imports))
	for path := range b.imports {
		deps = append(deps, path)
	}
	sort.Strings(deps)
	fdProto.Dependency = deps

	fingerprint, err := fileFingerprint(fdProto)
	if err != nil {
		return nil, err
	}
	if ent, ok := r.entries[fullName]; ok {
		if ent.fingerprint == fingerprint {
			return ent.desc, nil
		}
		return nil, &TypeConflictError{Name: fullName, Existing: ent.file, Incoming: fdProto}
	}

	// Distinct type names can lowercase onto the same file path.
	if _, err := r.files.FindFileByPath(fdProto.GetName()); err == nil {
		return nil, schemaErrorf("type %q would reuse proto file %q, which is already registered for a different type",
			fullName, fdProto.GetName())
	}

	fd, err := protodesc.FileOptions{}.New(fdProto, poolResolver{r})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot assemble descriptor %q", fullName)
	}
	if err := r.registerFileLocked(fd, fdProto, fingerprint); err != nil {
		return nil, err
	}
	if fd.Messages().Len() > 0 {
		return fd.Messages().Get(0), nil
	}
	return fd.Enums().Get(0), nil
}

func protoFileName(pkg, name string) string {
	base := strings.ToLower(name) + ".proto"
	if pkg == "" {
		return base
	}
	return pkg + "." + base
}

// localType is a name assigned during the current build: either the type
// under construction itself or a nested type declared earlier in the walk.
// A bare name declared in two different scopes is ambiguous and can only be
// referenced fully qualified.
type localType struct {
	name      protoreflect.FullName
	enum      bool
	ambiguous bool
}

type builder struct {
	pkg      string
	registry *Registry
	imports  map[string]struct{}
	local    map[string]localType
}

func (b *builder) addLocal(key string, lt localType) {
	if existing, ok := b.local[key]; ok && existing.name != lt.name {
		lt.ambiguous = true
	}
	b.local[key] = lt
}

// fieldInfo is the builder's answer for one field type: the descriptor type
// enum, the referenced type name when the type is a message or enum, and any
// nested declarations that the enclosing message must absorb.
type fieldInfo struct {
	typ      descriptorpb.FieldDescriptorProto_Type
	typeName string
	msgs     []*descriptorpb.DescriptorProto
	enums    []*descriptorpb.EnumDescriptorProto
	mapEntry bool
}

func (b *builder) buildMessage(msgName string, m *Message, fqn protoreflect.FullName) (*descriptorpb.DescriptorProto, error) {
	// Make the message visible to its own descendants before any field is
	// built, so self-referential and mutually recursive schemas resolve.
	b.addLocal(msgName, localType{name: fqn})
	b.addLocal(string(fqn), localType{name: fqn})
	if alias := upperCamel(m.Name); m.Name != "" && alias != msgName {
		b.addLocal(alias, localType{name: fqn})
	}

	var (
		fields      []*descriptorpb.FieldDescriptorProto
		nestedMsgs  []*descriptorpb.DescriptorProto
		nestedEnums []*descriptorpb.EnumDescriptorProto
		oneofs      []*descriptorpb.OneofDescriptorProto
		optional    []*descriptorpb.FieldDescriptorProto
		fieldNames  = make(map[string]bool)
		declared    = make(map[string]bool)
		used        = make(map[int32]bool)
		cursor      = int32(1)
	)

	nextNumber := func() int32 {
		for used[cursor] || isReservedFieldNumber(cursor) {
			cursor++
		}
		used[cursor] = true
		return cursor
	}
	claimNumber := func(n int32, field string) error {
		if n <= 0 {
			return schemaErrorf("field %s.%s has invalid field number %d", msgName, field, n)
		}
		if isReservedFieldNumber(n) {
			return schemaErrorf("field %s.%s uses number %d from the reserved range [%d, %d]",
				msgName, field, n, reservedRangeStart, reservedRangeEnd)
		}
		if used[n] {
			return schemaErrorf("field number %d is already used in message %s", n, msgName)
		}
		used[n] = true
		return nil
	}
	addDecls := func(info *fieldInfo) error {
		for _, nm := range info.msgs {
			if declared[nm.GetName()] {
				return schemaErrorf("duplicate nested type %q in message %s", nm.GetName(), msgName)
			}
			declared[nm.GetName()] = true
			nestedMsgs = append(nestedMsgs, nm)
		}
		for _, ne := range info.enums {
			if declared[ne.GetName()] {
				return schemaErrorf("duplicate nested type %q in message %s", ne.GetName(), msgName)
			}
			declared[ne.GetName()] = true
			nestedEnums = append(nestedEnums, ne)
		}
		return nil
	}

	for _, f := range m.Fields {
		if f.Name == "" {
			return nil, schemaErrorf("message %s has a field with no name", msgName)
		}
		if fieldNames[f.Name] {
			return nil, schemaErrorf("duplicate field %q in message %s", f.Name, msgName)
		}
		fieldNames[f.Name] = true

		if u, ok := f.Type.(*Union); ok {
			if len(u.Variants) == 0 {
				return nil, schemaErrorf("union %q in message %s has no variants", f.Name, msgName)
			}
			// Variant members are numbered individually; a number or
			// optional marker on the union field itself has no meaning.
			if f.Number != 0 {
				return nil, schemaErrorf("field %s.%s: unions cannot take an explicit field number", msgName, f.Name)
			}
			if f.Optional {
				return nil, schemaErrorf("field %s.%s: unions cannot be optional", msgName, f.Name)
			}
			oneofIndex := int32(len(oneofs))
			oneofName := u.Discriminator
			if oneofName == "" {
				oneofName = f.Name
			}
			for _, v := range u.Variants {
				if _, isArray := v.Schema.(*Array); isArray {
					return nil, schemaErrorf("union variant %q in message %s cannot be repeated", v.Tag, msgName)
				}
				info, err := b.fieldInfo(v.Schema, v.Tag, fqn)
				if err != nil {
					return nil, err
				}
				if err := addDecls(info); err != nil {
					return nil, err
				}
				variantName := snakeCase(v.Tag)
				if fieldNames[variantName] {
					return nil, schemaErrorf("duplicate field %q in message %s", variantName, msgName)
				}
				fieldNames[variantName] = true
				fd := &descriptorpb.FieldDescriptorProto{
					Name:       proto.String(variantName),
					Number:     proto.Int32(nextNumber()),
					Label:      descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:       info.typ.Enum(),
					OneofIndex: proto.Int32(oneofIndex),
				}
				if info.typeName != "" {
					fd.TypeName = proto.String(info.typeName)
				}
				fields = append(fields, fd)
			}
			oneofs = append(oneofs, &descriptorpb.OneofDescriptorProto{Name: proto.String(oneofName)})
			continue
		}

		node := f.Type
		repeated := false
		if arr, ok := node.(*Array); ok {
			repeated = true
			node = arr.Elem
		}
		info, err := b.fieldInfo(node, f.Name, fqn)
		if err != nil {
			return nil, err
		}
		if info.mapEntry && repeated {
			return nil, schemaErrorf("field %s.%s: maps cannot be repeated", msgName, f.Name)
		}
		if err := addDecls(info); err != nil {
			return nil, err
		}

		number := f.Number
		if number != 0 {
			if err := claimNumber(number, f.Name); err != nil {
				return nil, err
			}
		} else {
			number = nextNumber()
		}

		label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
		if repeated || info.mapEntry {
			label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
		}
		fd := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.Name),
			Number: proto.Int32(number),
			Label:  label.Enum(),
			Type:   info.typ.Enum(),
		}
		if info.typeName != "" {
			fd.TypeName = proto.String(info.typeName)
		}
		fields = append(fields, fd)
		if f.Optional && label == descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL {
			optional = append(optional, fd)
		}
	}

	// Arbitrary extra keys have no direct protobuf equivalent; they are
	// captured in a trailing google.protobuf.Struct field instead.
	if m.AdditionalFields {
		if fieldNames["additionalProperties"] {
			return nil, schemaErrorf(
				"message %s cannot declare a field named %q and also allow arbitrary extra keys",
				msgName, "additionalProperties")
		}
		b.imports[structDesc.ParentFile().Path()] = struct{}{}
		fields = append(fields, &descriptorpb.FieldDescriptorProto{
			Name:     proto.String("additionalProperties"),
			Number:   proto.Int32(nextNumber()),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
			TypeName: proto.String("." + string(structDesc.FullName())),
		})
	}

	// proto3 optional: each optional field becomes the sole member of a
	// synthetic oneof, declared after all real oneofs.
	for _, fd := range optional {
		fd.OneofIndex = proto.Int32(int32(len(oneofs)))
		fd.Proto3Optional = proto.Bool(true)
		oneofs = append(oneofs, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + fd.GetName())})
	}

	return &descriptorpb.DescriptorProto{
		Name:       proto.String(msgName),
		Field:      fields,
		NestedType: nestedMsgs,
		EnumType:   nestedEnums,
		OneofDecl:  oneofs,
	}, nil
}

func (b *builder) buildEnum(enumName string, e *Enum) (*descriptorpb.EnumDescriptorProto, error) {
	if len(e.Values) == 0 {
		return nil, schemaErrorf("enum %q has no values", enumName)
	}
	if e.Values[0].Number != 0 {
		return nil, schemaErrorf("the first value of enum %q must have number zero in proto3, got %d",
			enumName, e.Values[0].Number)
	}
	values := make([]*descriptorpb.EnumValueDescriptorProto, 0, len(e.Values))
	names := make(map[string]bool, len(e.Values))
	numbers := make(map[int32]bool, len(e.Values))
	hasAlias := false
	for _, v := range e.Values {
		if v.Name == "" {
			return nil, schemaErrorf("enum %q has a value with no name", enumName)
		}
		if names[v.Name] {
			return nil, schemaErrorf("duplicate value %q in enum %q", v.Name, enumName)
		}
		names[v.Name] = true
		if numbers[v.Number] {
			hasAlias = true
		}
		numbers[v.Number] = true
		values = append(values, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v.Name),
			Number: proto.Int32(v.Number),
		})
	}
	enumProto := &descriptorpb.EnumDescriptorProto{
		Name:  proto.String(enumName),
		Value: values,
	}
	if hasAlias {
		enumProto.Options = &descriptorpb.EnumOptions{AllowAlias: proto.Bool(true)}
	}
	return enumProto, nil
}

func (b *builder) fieldInfo(node Node, nameHint string, scope protoreflect.FullName) (*fieldInfo, error) {
	switch n := node.(type) {
	case *Scalar:
		switch n.Kind {
		case Timestamp:
			b.imports[timestampDesc.ParentFile().Path()] = struct{}{}
			return &fieldInfo{
				typ:      descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
				typeName: "." + string(timestampDesc.FullName()),
			}, nil
		case Any:
			b.imports[anyDesc.ParentFile().Path()] = struct{}{}
			return &fieldInfo{
				typ:      descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
				typeName: "." + string(anyDesc.FullName()),
			}, nil
		}
		typ, ok := scalarTypes[n.Kind]
		if !ok {
			return nil, &UnsupportedTypeError{Type: fmt.Sprintf("scalar kind %d", n.Kind)}
		}
		return &fieldInfo{typ: typ}, nil

	case *Array:
		return nil, schemaErrorf("field %q: arrays cannot nest directly inside arrays or maps", nameHint)

	case *Map:
		keyType, ok := scalarTypes[n.Key]
		if !ok || n.Key == Float || n.Key == Double || n.Key == Bytes {
			return nil, schemaErrorf("field %q: map keys must be integral, boolean, or string", nameHint)
		}
		value, err := b.fieldInfo(n.Value, nameHint+"_value", scope)
		if err != nil {
			return nil, err
		}
		if value.mapEntry {
			return nil, schemaErrorf("field %q: map values cannot be maps", nameHint)
		}
		entryName := upperCamel(nameHint) + "Entry"
		valueField := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String("value"),
			Number: proto.Int32(2),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:   value.typ.Enum(),
		}
		if value.typeName != "" {
			valueField.TypeName = proto.String(value.typeName)
		}
		entry := &descriptorpb.DescriptorProto{
			Name:    proto.String(entryName),
			Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
			Field: []*descriptorpb.FieldDescriptorProto{
				{
					Name:   proto.String("key"),
					Number: proto.Int32(1),
					Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:   keyType.Enum(),
				},
				valueField,
			},
		}
		return &fieldInfo{
			typ:      descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
			typeName: "." + string(scope.Append(protoreflect.Name(entryName))),
			msgs:     append(value.msgs, entry),
			enums:    value.enums,
			mapEntry: true,
		}, nil

	case *Enum:
		name := n.Name
		if name == "" {
			name = nameHint
		}
		enumName := upperCamel(name)
		enumProto, err := b.buildEnum(enumName, n)
		if err != nil {
			return nil, err
		}
		childFqn := scope.Append(protoreflect.Name(enumName))
		b.addLocal(enumName, localType{name: childFqn, enum: true})
		b.addLocal(string(childFqn), localType{name: childFqn, enum: true})
		return &fieldInfo{
			typ:      descriptorpb.FieldDescriptorProto_TYPE_ENUM,
			typeName: "." + string(childFqn),
			enums:    []*descriptorpb.EnumDescriptorProto{enumProto},
		}, nil

	case *Message:
		name := n.Name
		if name == "" {
			name = nameHint
		}
		childName := upperCamel(name)
		childFqn := scope.Append(protoreflect.Name(childName))
		msgProto, err := b.buildMessage(childName, n, childFqn)
		if err != nil {
			return nil, err
		}
		return &fieldInfo{
			typ:      descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
			typeName: "." + string(childFqn),
			msgs:     []*descriptorpb.DescriptorProto{msgProto},
		}, nil

	case *Union:
		return nil, schemaErrorf("field %q: unions are only supported as message fields", nameHint)

	case *Reference:
		return b.resolveReference(n)

	default:
		return nil, schemaErrorf("unknown schema node %T", node)
	}
}

func (b *builder) resolveReference(ref *Reference) (*fieldInfo, error) {
	if ref.Name == "" {
		return nil, schemaErrorf("reference has no target name")
	}
	// Names assigned earlier in this build, including the type currently
	// under construction.
	for _, candidate := range []string{ref.Name, upperCamel(ref.Name)} {
		if lt, ok := b.local[candidate]; ok {
			if lt.ambiguous {
				return nil, schemaErrorf(
					"reference %q matches types in more than one scope; use the fully qualified name", ref.Name)
			}
			info := &fieldInfo{typ: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE}
			if lt.enum {
				info.typ = descriptorpb.FieldDescriptorProto_TYPE_ENUM
			}
			info.typeName = "." + string(lt.name)
			return info, nil
		}
	}
	// Previously registered types, tried verbatim and then qualified with
	// the package under construction.
	candidates := []protoreflect.FullName{protoreflect.FullName(ref.Name)}
	if b.pkg != "" && !strings.Contains(ref.Name, ".") {
		candidates = append(candidates, protoreflect.FullName(b.pkg).Append(protoreflect.Name(ref.Name)))
	}
	for _, candidate := range candidates {
		d, err := b.registry.resolveLocked(candidate)
		if err != nil {
			continue
		}
		switch t := d.(type) {
		case protoreflect.MessageDescriptor:
			b.imports[t.ParentFile().Path()] = struct{}{}
			return &fieldInfo{
				typ:      descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
				typeName: "." + string(t.FullName()),
			}, nil
		case protoreflect.EnumDescriptor:
			b.imports[t.ParentFile().Path()] = struct{}{}
			return &fieldInfo{
				typ:      descriptorpb.FieldDescriptorProto_TYPE_ENUM,
				typeName: "." + string(t.FullName()),
			}, nil
		default:
			return nil, schemaErrorf("reference %q resolves to a %s, not a message or enum",
				ref.Name, descriptorKindName(d))
		}
	}
	return nil, &MissingReferenceError{Name: ref.Name}
}

func descriptorKindName(d protoreflect.Descriptor) string {
	switch d.(type) {
	case protoreflect.FileDescriptor:
		return "file"
	case protoreflect.FieldDescriptor:
		return "field"
	case protoreflect.ServiceDescriptor:
		return "service"
	default:
		return fmt.Sprintf("%T", d)
	}
}

func isReservedFieldNumber(n int32) bool {
	return n >= reservedRangeStart && n <= reservedRangeEnd
}
