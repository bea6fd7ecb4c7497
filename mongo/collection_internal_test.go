// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mongocore/driver/mongo/readconcern"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/mongo/writeconcern"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

func newTestCollection(dbName, collName string) *Collection {
	db := &Database{
		client: &Client{
			readPreference: readpref.Primary(),
			readConcern:    readconcern.New(),
			writeConcern:   writeconcern.New(),
		},
		name:           dbName,
		readPreference: readpref.Primary(),
		readConcern:    readconcern.New(),
		writeConcern:   writeconcern.New(),
	}
	return db.Collection(collName)
}

func TestCollection_namespace(t *testing.T) {
	t.Parallel()

	coll := newTestCollection("foo", "bar")
	require.Equal(t, "foo.bar", coll.namespace())
}

func TestCollection_NameAndDatabase(t *testing.T) {
	t.Parallel()

	coll := newTestCollection("foo", "bar")
	require.Equal(t, "bar", coll.Name())
	require.NotNil(t, coll.Database())
	require.Equal(t, "foo", coll.Database().Name())
}

func TestCollection_Clone_copiesDefaults(t *testing.T) {
	t.Parallel()

	coll := newTestCollection("foo", "bar")
	cloned := coll.Clone()
	require.Equal(t, coll.name, cloned.name)
	require.Equal(t, coll.readPreference, cloned.readPreference)
}

func TestCollection_ensureID_generatesWhenMissing(t *testing.T) {
	t.Parallel()

	doc := bsoncore.Document{}.Append("x", bsoncore.Int32Value(1))
	withID, id, err := ensureID(doc)
	require.NoError(t, err)
	require.NotNil(t, id)

	v, ok := withID.Lookup("_id")
	require.True(t, ok)
	require.Equal(t, bsoncore.TypeObjectID, v.Type)
}

func TestCollection_ensureID_preservesExisting(t *testing.T) {
	t.Parallel()

	doc := bsoncore.Document{}.Append("_id", bsoncore.Int32Value(7)).Append("x", bsoncore.Int32Value(1))
	withID, id, err := ensureID(doc)
	require.NoError(t, err)
	require.Equal(t, int32(7), id)
	require.Equal(t, doc, withID)
}

func TestCollection_effectiveWriteConcern_withoutSession(t *testing.T) {
	t.Parallel()

	coll := newTestCollection("foo", "bar")
	require.NotNil(t, coll.effectiveWriteConcern(nil))
}
