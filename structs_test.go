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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
)

type jokeSetting int32

func (jokeSetting) EnumValues() []EnumValue {
	return []EnumValue{
		{Name: "EXAM", Number: 1},
		{Name: "JOKE", Number: 2},
	}
}

type punchline struct {
	Text     string
	Rating   float64
	Setting  jokeSetting
	internal string
}

type joke struct {
	ID         int64 `protoshape:"id"`
	Teller     string
	Punchlines []punchline
	Told       time.Time
	Tags       map[string]int32
	Raw        []byte
	Note       *string
	Skipped    string `protoshape:"-"`
}

func TestStructSchemaFieldMapping(t *testing.T) {
	t.Parallel()
	d, err := BuildDescriptor("joke", "test.structs", StructSchema{Value: joke{}}, NewRegistry())
	require.NoError(t, err)
	md := d.(protoreflect.MessageDescriptor)

	require.Equal(t, protoreflect.Int64Kind, md.Fields().ByName("id").Kind())
	require.Equal(t, protoreflect.StringKind, md.Fields().ByName("teller").Kind())

	punchlines := md.Fields().ByName("punchlines")
	require.True(t, punchlines.IsList())
	require.Equal(t, protoreflect.FullName("test.structs.Joke.Punchline"), punchlines.Message().FullName())

	require.Equal(t, protoreflect.FullName("google.protobuf.Timestamp"), md.Fields().ByName("told").Message().FullName())

	tags := md.Fields().ByName("tags")
	require.True(t, tags.IsMap())
	require.Equal(t, protoreflect.StringKind, tags.MapKey().Kind())
	require.Equal(t, protoreflect.Int32Kind, tags.MapValue().Kind())

	require.Equal(t, protoreflect.BytesKind, md.Fields().ByName("raw").Kind())
	require.True(t, md.Fields().ByName("note").HasOptionalKeyword())
	require.Nil(t, md.Fields().ByName("skipped"))

	// unexported fields are not schema fields
	require.Nil(t, punchlines.Message().Fields().ByName("internal"))

	setting := punchlines.Message().Fields().ByName("setting")
	require.Equal(t, protoreflect.EnumKind, setting.Kind())
	// the Go enum has no zero value, so one is synthesized
	require.Equal(t, protoreflect.Name("PLACEHOLDER_UNSET"), setting.Enum().Values().ByNumber(0).Name())
	require.Equal(t, protoreflect.Name("EXAM"), setting.Enum().Values().ByNumber(1).Name())
}

func TestStructSchemaEnumRoot(t *testing.T) {
	t.Parallel()
	node, err := StructSchema{Value: jokeSetting(0)}.Schema()
	require.NoError(t, err)
	want := &Enum{Name: "jokeSetting", Values: []EnumValue{
		{Name: "PLACEHOLDER_UNSET", Number: 0},
		{Name: "EXAM", Number: 1},
		{Name: "JOKE", Number: 2},
	}}
	if diff := cmp.Diff(Node(want), node); diff != "" {
		t.Errorf("unexpected schema (-want +got):\n%s", diff)
	}
}

func TestStructSchemaTags(t *testing.T) {
	t.Parallel()
	type tagged struct {
		A string `protoshape:"title,5"`
		B string `protoshape:",optional"`
		C bool   `protoshape:",oneof=choice"`
		D int32  `protoshape:",oneof=choice"`
	}
	node, err := StructSchema{Value: tagged{}}.Schema()
	require.NoError(t, err)
	want := &Message{Name: "tagged", Fields: []Field{
		{Name: "title", Type: &Scalar{Kind: String}, Number: 5},
		{Name: "b", Type: &Scalar{Kind: String}, Optional: true},
		{Name: "choice", Type: &Union{
			Discriminator: "choice",
			Variants: []Variant{
				{Tag: "C", Schema: &Scalar{Kind: Bool}},
				{Tag: "D", Schema: &Scalar{Kind: Int32}},
			},
		}},
	}}
	if diff := cmp.Diff(Node(want), node); diff != "" {
		t.Errorf("unexpected schema (-want +got):\n%s", diff)
	}
}

func TestStructSchemaRecursion(t *testing.T) {
	t.Parallel()
	type treeNode struct {
		Label    string
		Children []treeNode
	}
	d, err := BuildDescriptor("tree_node", "test.structs", StructSchema{Value: treeNode{}}, NewRegistry())
	require.NoError(t, err)
	md := d.(protoreflect.MessageDescriptor)
	children := md.Fields().ByName("children")
	require.True(t, children.IsList())
	require.Equal(t, md.FullName(), children.Message().FullName())
}

func TestStructSchemaReferenceTag(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	_, err := BuildDescriptor("peer", "test.structs", SchemaOf(&Message{
		Fields: []Field{{Name: "host", Type: &Scalar{Kind: String}}},
	}), reg)
	require.NoError(t, err)

	type link struct {
		Target any `protoshape:"target,ref=test.structs.Peer"`
	}
	d, err := BuildDescriptor("link", "test.structs", StructSchema{Value: link{}}, reg)
	require.NoError(t, err)
	md := d.(protoreflect.MessageDescriptor)
	require.Equal(t, protoreflect.FullName("test.structs.Peer"), md.Fields().ByName("target").Message().FullName())
}

func TestStructSchemaUnsupportedKinds(t *testing.T) {
	t.Parallel()
	type bad struct {
		C chan int
	}
	_, err := StructSchema{Value: bad{}}.Schema()
	var unsupported *UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)

	_, err = StructSchema{Value: 42}.Schema()
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestStructSchemaInterfaceFields(t *testing.T) {
	t.Parallel()
	type envelope struct {
		Payload any
	}
	d, err := BuildDescriptor("envelope", "test.structs", StructSchema{Value: envelope{}}, NewRegistry())
	require.NoError(t, err)
	md := d.(protoreflect.MessageDescriptor)
	require.Equal(t, protoreflect.FullName("google.protobuf.Any"), md.Fields().ByName("payload").Message().FullName())
}
