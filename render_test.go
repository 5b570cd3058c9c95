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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteProtoFile(t *testing.T) {
	t.Parallel()
	parsed, err := ParseJTD([]byte(`{
		"properties": {
			"foo": {"type": "boolean"},
			"bar": {"elements": {"enum": ["EXAM", "JOKE_SETTING"]}}
		}
	}`))
	require.NoError(t, err)
	d, err := BuildDescriptor("Foo", "foobar", parsed, NewRegistry())
	require.NoError(t, err)

	text, err := WriteProtoFile(d)
	require.NoError(t, err)
	require.Equal(t, `// Generated by protoshape. DO NOT EDIT.

syntax = "proto3";

package foobar;

message Foo {
  enum Bar {
    EXAM = 0;
    JOKE_SETTING = 1;
  }
  bool foo = 1;
  repeated Bar bar = 2;
}
`, text)
}

func TestWriteProtoFileMapsAndOptionals(t *testing.T) {
	t.Parallel()
	md := buildMessageDescriptor(t, "settings", "test.render", &Message{
		Fields: []Field{
			{Name: "counts", Type: &Map{Key: String, Value: &Scalar{Kind: Int32}}},
			{Name: "note", Type: &Scalar{Kind: String}, Optional: true},
		},
	}, NewRegistry())

	text, err := WriteProtoFile(md)
	require.NoError(t, err)
	require.Contains(t, text, "map<string, int32> counts = 1;\n")
	require.Contains(t, text, "optional string note = 2;\n")
	// the synthetic oneof backing the optional field stays hidden
	require.NotContains(t, text, "_note")
}

func TestWriteProtoFileOneof(t *testing.T) {
	t.Parallel()
	md := buildMessageDescriptor(t, "shape", "test.render", &Message{
		Fields: []Field{
			{Name: "kind", Type: &Union{
				Discriminator: "kind",
				Variants: []Variant{
					{Tag: "circle", Schema: &Scalar{Kind: Double}},
					{Tag: "square", Schema: &Scalar{Kind: Double}},
				},
			}},
		},
	}, NewRegistry())

	text, err := WriteProtoFile(md)
	require.NoError(t, err)
	require.Contains(t, text, "  oneof kind {\n    double circle = 1;\n    double square = 2;\n  }\n")
}

func TestWriteProtoFileImports(t *testing.T) {
	t.Parallel()
	md := buildMessageDescriptor(t, "event", "test.render", &Message{
		Fields: []Field{
			{Name: "at", Type: &Scalar{Kind: Timestamp}},
		},
	}, NewRegistry())

	text, err := WriteProtoFile(md)
	require.NoError(t, err)
	require.Contains(t, text, "import \"google/protobuf/timestamp.proto\";\n")
	require.Contains(t, text, "google.protobuf.Timestamp at = 1;\n")
}

func TestWriteProtoFileAliasEnum(t *testing.T) {
	t.Parallel()
	d, err := BuildDescriptor("status", "test.render", SchemaOf(&Enum{
		Values: []EnumValue{
			{Name: "UNSET", Number: 0},
			{Name: "OK", Number: 1},
			{Name: "FINE", Number: 1},
		},
	}), NewRegistry())
	require.NoError(t, err)

	text, err := WriteProtoFile(d)
	require.NoError(t, err)
	require.Contains(t, text, `enum Status {
  option allow_alias = true;
  UNSET = 0;
  OK = 1;
  FINE = 1;
}
`)
}

func TestWriteProtoFileNilDescriptor(t *testing.T) {
	t.Parallel()
	_, err := WriteProtoFile(nil)
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
}

func TestWriteProtoFileToDir(t *testing.T) {
	t.Parallel()
	md := buildMessageDescriptor(t, "disk", "test.render", &Message{
		Fields: []Field{
			{Name: "path", Type: &Scalar{Kind: String}},
		},
	}, NewRegistry())

	dir := t.TempDir()
	require.NoError(t, WriteProtoFileToDir(md, dir))

	data, err := os.ReadFile(filepath.Join(dir, "test.render.disk.proto"))
	require.NoError(t, err)
	want, err := WriteProtoFile(md)
	require.NoError(t, err)
	require.Equal(t, want, string(data))
}
