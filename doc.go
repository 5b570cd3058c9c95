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

// Package protoshape builds protobuf descriptors at runtime from schema
// descriptions that were never compiled by protoc.
//
// Two schema front ends are provided out of the box: JSON Typedef documents
// ([ParseJTD]) and plain Go struct definitions ([StructSchema]). Both are
// normalized into the same small [Node] algebra, which [BuildDescriptor]
// converts into real protobuf descriptors, registered in a [Registry] so
// that separate conversions can reference each other's types.
//
// A finished descriptor can be handed to the protobuf runtime's dynamic
// message support ([BindMessageType]) to construct, populate, and serialize
// records without generated code, or rendered back into .proto source text
// with [WriteProtoFile].
//
// The package does not implement wire-format encoding, a .proto parser, or
// RPC service generation; those remain the job of the protobuf runtime and
// toolchain.
package protoshape
