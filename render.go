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
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

const renderIndent = "  "

// WriteProtoFile renders the file containing the given descriptor as .proto
// source text. The output is deterministic and parses back to an equivalent
// file with protoc, which makes it suitable for checked-in golden files.
//
// Message and enum descriptors render their whole containing file, so
// sibling types built into the same file appear too.
func WriteProtoFile(d protoreflect.Descriptor) (string, error) {
	fd, err := containingFile(d)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("// Generated by protoshape. DO NOT EDIT.\n\n")
	fmt.Fprintf(&sb, "syntax = %q;\n", fd.Syntax().String())
	if pkg := fd.Package(); pkg != "" {
		fmt.Fprintf(&sb, "\npackage %s;\n", pkg)
	}
	if n := fd.Imports().Len(); n > 0 {
		paths := make([]string, 0, n)
		for i := 0; i < n; i++ {
			paths = append(paths, fd.Imports().Get(i).Path())
		}
		sort.Strings(paths)
		sb.WriteString("\n")
		for _, path := range paths {
			fmt.Fprintf(&sb, "import %q;\n", path)
		}
	}
	for i := 0; i < fd.Enums().Len(); i++ {
		sb.WriteString("\n")
		renderEnum(&sb, fd.Enums().Get(i), 0)
	}
	for i := 0; i < fd.Messages().Len(); i++ {
		sb.WriteString("\n")
		renderMessage(&sb, fd.Messages().Get(i), 0)
	}
	return sb.String(), nil
}

// WriteProtoFileToDir renders the file containing the given descriptor and
// writes it under dir at the file's registered path.
func WriteProtoFileToDir(d protoreflect.Descriptor, dir string) error {
	fd, err := containingFile(d)
	if err != nil {
		return err
	}
	text, err := WriteProtoFile(d)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.FromSlash(fd.Path()))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "cannot create directory for %q", path)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %q", path)
	}
	return nil
}

func containingFile(d protoreflect.Descriptor) (protoreflect.FileDescriptor, error) {
	if d == nil {
		return nil, renderErrorf("descriptor is nil")
	}
	if fd, ok := d.(protoreflect.FileDescriptor); ok {
		return fd, nil
	}
	switch d.(type) {
	case protoreflect.MessageDescriptor, protoreflect.EnumDescriptor:
	default:
		return nil, renderErrorf("cannot render a %s descriptor", descriptorKindName(d))
	}
	fd := d.ParentFile()
	if fd == nil {
		return nil, renderErrorf("descriptor %q has no containing file", d.FullName())
	}
	return fd, nil
}

func renderEnum(sb *strings.Builder, ed protoreflect.EnumDescriptor, depth int) {
	indent := strings.Repeat(renderIndent, depth)
	fmt.Fprintf(sb, "%senum %s {\n", indent, ed.Name())
	if opts, ok := ed.Options().(*descriptorpb.EnumOptions); ok && opts.GetAllowAlias() {
		fmt.Fprintf(sb, "%s%soption allow_alias = true;\n", indent, renderIndent)
	}
	for i := 0; i < ed.Values().Len(); i++ {
		v := ed.Values().Get(i)
		fmt.Fprintf(sb, "%s%s%s = %d;\n", indent, renderIndent, v.Name(), v.Number())
	}
	fmt.Fprintf(sb, "%s}\n", indent)
}

func renderMessage(sb *strings.Builder, md protoreflect.MessageDescriptor, depth int) {
	indent := strings.Repeat(renderIndent, depth)
	fmt.Fprintf(sb, "%smessage %s {\n", indent, md.Name())
	for i := 0; i < md.Enums().Len(); i++ {
		renderEnum(sb, md.Enums().Get(i), depth+1)
	}
	for i := 0; i < md.Messages().Len(); i++ {
		nested := md.Messages().Get(i)
		if nested.IsMapEntry() {
			continue // rendered as map<K, V> at the use site
		}
		renderMessage(sb, nested, depth+1)
	}
	for i := 0; i < md.Fields().Len(); i++ {
		f := md.Fields().Get(i)
		if oneof := f.ContainingOneof(); oneof != nil && !oneof.IsSynthetic() {
			continue // rendered inside its oneof block
		}
		renderField(sb, f, md, depth+1)
	}
	for i := 0; i < md.Oneofs().Len(); i++ {
		oneof := md.Oneofs().Get(i)
		if oneof.IsSynthetic() {
			continue
		}
		fmt.Fprintf(sb, "%s%soneof %s {\n", indent, renderIndent, oneof.Name())
		for j := 0; j < oneof.Fields().Len(); j++ {
			renderField(sb, oneof.Fields().Get(j), md, depth+2)
		}
		fmt.Fprintf(sb, "%s%s}\n", indent, renderIndent)
	}
	fmt.Fprintf(sb, "%s}\n", indent)
}

func renderField(sb *strings.Builder, f protoreflect.FieldDescriptor, scope protoreflect.MessageDescriptor, depth int) {
	indent := strings.Repeat(renderIndent, depth)
	var label string
	switch {
	case f.IsMap():
		// map fields carry no label
	case f.IsList():
		label = "repeated "
	case f.HasOptionalKeyword():
		label = "optional "
	}
	fmt.Fprintf(sb, "%s%s%s %s = %d;\n", indent, label, fieldTypeName(f, scope), f.Name(), f.Number())
}

func fieldTypeName(f protoreflect.FieldDescriptor, scope protoreflect.MessageDescriptor) string {
	switch {
	case f.IsMap():
		return fmt.Sprintf("map<%s, %s>", fieldTypeName(f.MapKey(), scope), fieldTypeName(f.MapValue(), scope))
	case f.Kind() == protoreflect.MessageKind || f.Kind() == protoreflect.GroupKind:
		return scopedTypeName(f.Message(), scope)
	case f.Kind() == protoreflect.EnumKind:
		return scopedTypeName(f.Enum(), scope)
	default:
		return f.Kind().String()
	}
}

// scopedTypeName uses the short name for a type declared directly inside the
// message being rendered, and the fully qualified name everywhere else.
func scopedTypeName(d protoreflect.Descriptor, scope protoreflect.MessageDescriptor) string {
	if scope != nil && d.Parent() != nil && d.Parent().FullName() == scope.FullName() {
		return string(d.Name())
	}
	return string(d.FullName())
}
