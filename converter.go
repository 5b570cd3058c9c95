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
	"github.com/pkg/errors"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Converter re-encodes serialized payloads of runtime-built message types
// from one protobuf format to another. It is how data described by a schema
// that only exists at runtime still gets the full binary/JSON/text treatment.
type Converter struct {
	// Resolver locates message types and any extensions or Any contents
	// they carry. If nil, [GlobalRegistry] is used.
	Resolver Resolver

	// InputFormat decodes the payload passed to ConvertMessage.
	InputFormat InputFormat

	// OutputFormat encodes the result.
	OutputFormat OutputFormat

	// Filters are applied, in order, to the decoded message before it is
	// re-encoded.
	Filters Filters
}

// ConvertMessage decodes inputData as a payload of the named message type
// and re-encodes it in the output format.
func (c *Converter) ConvertMessage(messageName string, inputData []byte) ([]byte, error) {
	if c.InputFormat == nil || c.OutputFormat == nil {
		return nil, errors.New("converter requires both an input and an output format")
	}
	resolver := c.Resolver
	if resolver == nil {
		resolver = GlobalRegistry
	}
	mt, err := resolver.FindMessageByName(protoreflect.FullName(messageName))
	if err != nil {
		return nil, errors.Wrapf(err, "message type %q is not registered", messageName)
	}
	msg := dynamicpb.NewMessage(mt.Descriptor())
	if err := c.InputFormat.WithResolver(resolver).Unmarshal(inputData, msg); err != nil {
		return nil, errors.Wrapf(err, "input cannot be unmarshaled as %q", messageName)
	}
	out := c.Filters.apply(msg)
	data, err := c.OutputFormat.WithResolver(resolver).Marshal(out.Interface())
	if err != nil {
		return nil, errors.Wrapf(err, "message %q cannot be marshaled", messageName)
	}
	return data, nil
}
