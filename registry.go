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
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Registry is the table of all descriptors built so far, keyed by fully
// qualified name. It is the single point through which cross-schema
// references resolve, and it detects conflicting redefinitions: registering
// the same name twice is a no-op when the definitions are structurally
// identical and a [TypeConflictError] when they are not.
//
// A Registry owns the descriptors it contains for its own lifetime. It is
// safe for concurrent use; registration and resolution are serialized so a
// half-built conversion is never observable from another goroutine.
type Registry struct {
	mu      sync.Mutex
	files   *protoregistry.Files
	types   *protoregistry.Types
	entries map[protoreflect.FullName]registryEntry
}

type registryEntry struct {
	desc        protoreflect.Descriptor
	fingerprint string
	file        *descriptorpb.FileDescriptorProto
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		files:   &protoregistry.Files{},
		types:   &protoregistry.Types{},
		entries: make(map[protoreflect.FullName]registryEntry),
	}
}

// GlobalRegistry is a convenience default for single-caller use. Libraries
// should accept an explicit *Registry instead of relying on it.
var GlobalRegistry = NewRegistry()

// Resolve returns the descriptor registered under the given fully qualified
// name. Types compiled into the binary (including the well-known types) are
// found as a fallback. Returns a [MissingReferenceError] if the name is
// unknown.
func (r *Registry) Resolve(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(name)
}

func (r *Registry) resolveLocked(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	if ent, ok := r.entries[name]; ok {
		return ent.desc, nil
	}
	if d, err := r.files.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	if d, err := protoregistry.GlobalFiles.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	return nil, &MissingReferenceError{Name: string(name)}
}

// registerFileLocked adds a freshly resolved file to the registry, indexing
// every message and enum it declares (nested ones included) under the given
// fingerprint, and binding a dynamic type for each so the registry can serve
// as a [Resolver] for payload conversion.
func (r *Registry) registerFileLocked(fd protoreflect.FileDescriptor, fdProto *descriptorpb.FileDescriptorProto, fingerprint string) error {
	if err := r.files.RegisterFile(fd); err != nil {
		return errors.Wrapf(err, "cannot register file %q", fd.Path())
	}
	return r.indexTypesLocked(fd, fdProto, fingerprint)
}

type typeContainer interface {
	Enums() protoreflect.EnumDescriptors
	Messages() protoreflect.MessageDescriptors
}

func (r *Registry) indexTypesLocked(container typeContainer, fdProto *descriptorpb.FileDescriptorProto, fingerprint string) error {
	for i := 0; i < container.Enums().Len(); i++ {
		ed := container.Enums().Get(i)
		r.entries[ed.FullName()] = registryEntry{desc: ed, fingerprint: fingerprint, file: fdProto}
		if err := r.types.RegisterEnum(dynamicpb.NewEnumType(ed)); err != nil {
			return errors.Wrapf(err, "cannot bind enum type %q", ed.FullName())
		}
	}
	for i := 0; i < container.Messages().Len(); i++ {
		md := container.Messages().Get(i)
		r.entries[md.FullName()] = registryEntry{desc: md, fingerprint: fingerprint, file: fdProto}
		if err := r.types.RegisterMessage(dynamicpb.NewMessageType(md)); err != nil {
			return errors.Wrapf(err, "cannot bind message type %q", md.FullName())
		}
		if err := r.indexTypesLocked(md, fdProto, fingerprint); err != nil {
			return err
		}
	}
	return nil
}

// poolResolver adapts a locked registry for protodesc resolution, falling
// back to the types compiled into the binary for well-known imports. It must
// only be used while the registry mutex is held.
type poolResolver struct {
	r *Registry
}

func (p poolResolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	if fd, err := p.r.files.FindFileByPath(path); err == nil {
		return fd, nil
	}
	return protoregistry.GlobalFiles.FindFileByPath(path)
}

func (p poolResolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	if d, err := p.r.files.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	return protoregistry.GlobalFiles.FindDescriptorByName(name)
}

// FindMessageByName implements [Resolver] over the registry's dynamic types,
// falling back to the types compiled into the binary.
func (r *Registry) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageType, error) {
	r.mu.Lock()
	mt, err := r.types.FindMessageByName(name)
	r.mu.Unlock()
	if err == nil {
		return mt, nil
	}
	return protoregistry.GlobalTypes.FindMessageByName(name)
}

// FindMessageByURL implements [Resolver].
func (r *Registry) FindMessageByURL(url string) (protoreflect.MessageType, error) {
	r.mu.Lock()
	mt, err := r.types.FindMessageByURL(url)
	r.mu.Unlock()
	if err == nil {
		return mt, nil
	}
	return protoregistry.GlobalTypes.FindMessageByURL(url)
}

// FindEnumByName implements [Resolver].
func (r *Registry) FindEnumByName(name protoreflect.FullName) (protoreflect.EnumType, error) {
	r.mu.Lock()
	et, err := r.types.FindEnumByName(name)
	r.mu.Unlock()
	if err == nil {
		return et, nil
	}
	return protoregistry.GlobalTypes.FindEnumByName(name)
}

// FindExtensionByName implements [Resolver]. Runtime-built schemas declare
// no extensions, so this only consults the types compiled into the binary.
func (r *Registry) FindExtensionByName(name protoreflect.FullName) (protoreflect.ExtensionType, error) {
	return protoregistry.GlobalTypes.FindExtensionByName(name)
}

// FindExtensionByNumber implements [Resolver].
func (r *Registry) FindExtensionByNumber(message protoreflect.FullName, number protoreflect.FieldNumber) (protoreflect.ExtensionType, error) {
	return protoregistry.GlobalTypes.FindExtensionByNumber(message, number)
}

// fileFingerprint summarizes the structure of a built file so that repeated
// registrations under the same name can be told apart from conflicting ones.
// The builder is deterministic, so structurally equal schema models always
// produce equal fingerprints.
func fileFingerprint(fdProto *descriptorpb.FileDescriptorProto) (string, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(fdProto)
	if err != nil {
		return "", errors.Wrap(err, "cannot fingerprint file descriptor")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
