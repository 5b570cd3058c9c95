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

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// SchemaError indicates a malformed source schema: a construct that the
// front end or builder recognizes but cannot accept, such as a duplicate
// field number or a ref to an undefined definition. The schema must be
// corrected before the conversion is retried; conversions are deterministic,
// so retrying with the same input always fails the same way.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "invalid schema: " + e.Reason
}

func schemaErrorf(format string, args ...any) error {
	return &SchemaError{Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedTypeError indicates a schema construct that has no protobuf
// equivalent, such as a Go channel field or an unknown JTD type name.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("type %q has no protobuf equivalent", e.Type)
}

// MissingReferenceError indicates a reference to a type that is neither
// registered nor part of the conversion in progress.
type MissingReferenceError struct {
	Name string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("reference to unknown type %q", e.Name)
}

// TypeConflictError indicates that a name was registered twice with
// structurally different definitions. Both definitions are retained for
// diagnosis. Registering the same name with an identical definition is not
// a conflict; it is an idempotent no-op.
type TypeConflictError struct {
	Name     protoreflect.FullName
	Existing *descriptorpb.FileDescriptorProto
	Incoming *descriptorpb.FileDescriptorProto
}

func (e *TypeConflictError) Error() string {
	return fmt.Sprintf(
		"type %q is already registered with a different definition:\nexisting: %s\nincoming: %s",
		e.Name,
		prototext.MarshalOptions{}.Format(e.Existing),
		prototext.MarshalOptions{}.Format(e.Incoming),
	)
}

// RenderError indicates a descriptor that violates an assumption the
// .proto renderer requires, such as a descriptor with no containing file.
type RenderError struct {
	Reason string
}

func (e *RenderError) Error() string {
	return "cannot render proto file: " + e.Reason
}

func renderErrorf(format string, args ...any) error {
	return &RenderError{Reason: fmt.Sprintf(format, args...)}
}
