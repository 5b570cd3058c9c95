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
)

// Filter mutates or replaces a decoded message during conversion.
type Filter func(protoreflect.Message) protoreflect.Message

// Filters is a sequence of filters applied in order.
type Filters []Filter

func (f Filters) apply(msg protoreflect.Message) protoreflect.Message {
	for _, filter := range f {
		msg = filter(msg)
	}
	return msg
}

// Redact returns a [Filter] that clears, recursively, every populated field
// for which the predicate reports true. Useful for dropping sensitive data
// before a payload is re-encoded.
func Redact(predicate func(protoreflect.FieldDescriptor) bool) Filter {
	return func(msg protoreflect.Message) protoreflect.Message {
		redactMessage(msg, predicate)
		return msg
	}
}

func redactMessage(msg protoreflect.Message, predicate func(protoreflect.FieldDescriptor) bool) {
	msg.Range(func(fd protoreflect.FieldDescriptor, value protoreflect.Value) bool {
		if predicate(fd) {
			msg.Clear(fd)
			return true
		}
		switch {
		case fd.IsMap():
			if isMessageKind(fd.MapValue().Kind()) {
				value.Map().Range(func(_ protoreflect.MapKey, v protoreflect.Value) bool {
					redactMessage(v.Message(), predicate)
					return true
				})
			}
		case fd.IsList():
			if isMessageKind(fd.Kind()) {
				list := value.List()
				for i := 0; i < list.Len(); i++ {
					redactMessage(list.Get(i).Message(), predicate)
				}
			}
		case isMessageKind(fd.Kind()):
			redactMessage(value.Message(), predicate)
		}
		return true
	})
}

func isMessageKind(kind protoreflect.Kind) bool {
	return kind == protoreflect.MessageKind || kind == protoreflect.GroupKind
}
