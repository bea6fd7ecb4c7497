// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/bson/primitive"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

func TestTransformDocument(t *testing.T) {
	t.Run("bson.D", func(t *testing.T) {
		doc, err := transformDocument(bson.D{{Key: "foo", Value: "bar"}, {Key: "x", Value: int32(1)}})
		require.NoError(t, err)
		v, ok := doc.Lookup("foo")
		require.True(t, ok)
		assert.Equal(t, "bar", v.StringValue())
		v, ok = doc.Lookup("x")
		require.True(t, ok)
		assert.Equal(t, int32(1), v.Int32())
	})

	t.Run("bson.M", func(t *testing.T) {
		doc, err := transformDocument(bson.M{"foo": "bar"})
		require.NoError(t, err)
		v, ok := doc.Lookup("foo")
		require.True(t, ok)
		assert.Equal(t, "bar", v.StringValue())
	})

	t.Run("map[string]interface{}", func(t *testing.T) {
		doc, err := transformDocument(map[string]interface{}{"foo": "bar"})
		require.NoError(t, err)
		v, ok := doc.Lookup("foo")
		require.True(t, ok)
		assert.Equal(t, "bar", v.StringValue())
	})

	t.Run("passthrough bsoncore.Document", func(t *testing.T) {
		want := bsoncore.Document{}.Append("a", bsoncore.Int32Value(1))
		got, err := transformDocument(want)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("nil", func(t *testing.T) {
		doc, err := transformDocument(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, doc.Len())
	})

	t.Run("struct with bson tags", func(t *testing.T) {
		type inner struct {
			Name string `bson:"name"`
			Age  int32  `bson:"age"`
		}
		doc, err := transformDocument(inner{Name: "ada", Age: 36})
		require.NoError(t, err)
		v, ok := doc.Lookup("name")
		require.True(t, ok)
		assert.Equal(t, "ada", v.StringValue())
		v, ok = doc.Lookup("age")
		require.True(t, ok)
		assert.Equal(t, int32(36), v.Int32())
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := transformDocument(42)
		require.Error(t, err)
	})
}

func TestTransformValue(t *testing.T) {
	id := bson.NewObjectID()

	testCases := []struct {
		name string
		in   interface{}
		typ  bsoncore.Type
	}{
		{"string", "hello", bsoncore.TypeString},
		{"int32", int32(1), bsoncore.TypeInt32},
		{"int64", int64(1), bsoncore.TypeInt64},
		{"int", 1, bsoncore.TypeInt64},
		{"bool", true, bsoncore.TypeBoolean},
		{"ObjectID", primitive.ObjectID(id), bsoncore.TypeObjectID},
		{"nested document", bson.M{"a": 1}, bsoncore.TypeDocument},
		{"array", bson.A{1, 2}, bsoncore.TypeArray},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := transformValue(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.typ, v.Type)
		})
	}
}

func TestTransformPipeline(t *testing.T) {
	t.Run("bson.A of stages", func(t *testing.T) {
		arr, err := transformPipeline(bson.A{
			bson.D{{Key: "$match", Value: bson.D{{Key: "x", Value: int32(1)}}}},
		})
		require.NoError(t, err)
		require.Len(t, arr, 1)

		stage, ok := arr[0].DocumentOK()
		require.True(t, ok)
		_, ok = stage.Lookup("$match")
		require.True(t, ok)
	})

	t.Run("[]bson.D", func(t *testing.T) {
		arr, err := transformPipeline([]bson.D{{{Key: "$limit", Value: int32(5)}}})
		require.NoError(t, err)
		require.Len(t, arr, 1)
	})

	t.Run("not an array", func(t *testing.T) {
		_, err := transformPipeline(42)
		require.Error(t, err)
	})
}

func TestDecodeDocumentRoundTrip(t *testing.T) {
	doc, err := transformDocument(bson.M{"x": int32(1), "y": "hi"})
	require.NoError(t, err)

	var m bson.M
	require.NoError(t, decodeDocument(doc, &m))
	assert.Equal(t, int32(1), m["x"])
	assert.Equal(t, "hi", m["y"])
}

func TestIsNamespaceNotFound(t *testing.T) {
	assert.False(t, isNamespaceNotFound(nil))
}
