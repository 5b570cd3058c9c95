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
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Resolver can resolve symbol names and type URLs into runtime types. It is
// implemented by [Registry] as well as by protoregistry.GlobalTypes.
type Resolver interface {
	protoregistry.ExtensionTypeResolver
	protoregistry.MessageTypeResolver

	// FindEnumByName returns the enum type registered under the given
	// fully qualified name.
	FindEnumByName(enum protoreflect.FullName) (protoreflect.EnumType, error)
}

// BindMessageType turns a built message descriptor into an instantiable
// message type backed by the protobuf runtime's dynamic message support.
// Messages created from it marshal and unmarshal with the ordinary proto,
// protojson, and prototext packages.
func BindMessageType(md protoreflect.MessageDescriptor) protoreflect.MessageType {
	return dynamicpb.NewMessageType(md)
}

// BindEnumType turns a built enum descriptor into a runtime enum type.
func BindEnumType(ed protoreflect.EnumDescriptor) protoreflect.EnumType {
	return dynamicpb.NewEnumType(ed)
}

// NewMessage returns an empty dynamic message with the given descriptor.
func NewMessage(md protoreflect.MessageDescriptor) *dynamicpb.Message {
	return dynamicpb.NewMessage(md)
}
