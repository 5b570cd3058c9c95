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
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

// InputFormat supplies the [Converter] with a payload decoder. The format
// accepts a [Resolver] so that extensions and Any contents resolve against
// runtime-built types, not just compiled-in ones.
type InputFormat interface {
	WithResolver(Resolver) Unmarshaler
}

// Unmarshaler decodes a serialized payload into a message.
type Unmarshaler interface {
	Unmarshal([]byte, proto.Message) error
}

// OutputFormat supplies the [Converter] with a payload encoder.
type OutputFormat interface {
	WithResolver(Resolver) Marshaler
}

// Marshaler encodes a message into a serialized payload.
type Marshaler interface {
	Marshal(proto.Message) ([]byte, error)
}

type binaryInputFormat struct {
	proto.UnmarshalOptions
}

// BinaryInputFormat decodes the protobuf binary wire format.
func BinaryInputFormat(in proto.UnmarshalOptions) InputFormat {
	return binaryInputFormat{UnmarshalOptions: in}
}

func (x binaryInputFormat) WithResolver(in Resolver) Unmarshaler {
	x.Resolver = in
	return x
}

// BinaryOutputFormat encodes the protobuf binary wire format. Binary
// encoding never needs a resolver.
func BinaryOutputFormat(in proto.MarshalOptions) OutputFormat {
	return outputFormatWithoutResolver{Marshaler: in}
}

type jsonInputFormat struct {
	protojson.UnmarshalOptions
}

// JSONInputFormat decodes the protobuf JSON format.
func JSONInputFormat(in protojson.UnmarshalOptions) InputFormat {
	return jsonInputFormat{UnmarshalOptions: in}
}

func (x jsonInputFormat) WithResolver(in Resolver) Unmarshaler {
	x.Resolver = in
	return x
}

type jsonOutputFormat struct {
	protojson.MarshalOptions
}

// JSONOutputFormat encodes the protobuf JSON format.
func JSONOutputFormat(in protojson.MarshalOptions) OutputFormat {
	return jsonOutputFormat{MarshalOptions: in}
}

func (x jsonOutputFormat) WithResolver(in Resolver) Marshaler {
	x.Resolver = in
	return x
}

type textInputFormat struct {
	prototext.UnmarshalOptions
}

// TextInputFormat decodes the protobuf text format.
func TextInputFormat(in prototext.UnmarshalOptions) InputFormat {
	return textInputFormat{UnmarshalOptions: in}
}

func (x textInputFormat) WithResolver(in Resolver) Unmarshaler {
	x.Resolver = in
	return x
}

type textOutputFormat struct {
	prototext.MarshalOptions
}

// TextOutputFormat encodes the protobuf text format.
func TextOutputFormat(in prototext.MarshalOptions) OutputFormat {
	return textOutputFormat{MarshalOptions: in}
}

func (x textOutputFormat) WithResolver(in Resolver) Marshaler {
	x.Resolver = in
	return x
}

type inputFormatWithoutResolver struct {
	Unmarshaler
}

// InputFormatWithoutResolver wraps an [Unmarshaler] that needs no resolver.
func InputFormatWithoutResolver(in Unmarshaler) InputFormat {
	return inputFormatWithoutResolver{Unmarshaler: in}
}

func (x inputFormatWithoutResolver) WithResolver(_ Resolver) Unmarshaler {
	return x
}

type outputFormatWithoutResolver struct {
	Marshaler
}

// OutputFormatWithoutResolver wraps a [Marshaler] that needs no resolver.
func OutputFormatWithoutResolver(in Marshaler) OutputFormat {
	return outputFormatWithoutResolver{Marshaler: in}
}

func (x outputFormatWithoutResolver) WithResolver(_ Resolver) Marshaler {
	return x
}
