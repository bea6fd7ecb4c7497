// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// SingleResult wraps the single-document reply of FindOne/FindOneAndUpdate/
// FindOneAndReplace/FindOneAndDelete/Database.RunCommand, deferring decode errors (and
// ErrNoDocuments) until Decode is called.
type SingleResult struct {
	doc bsoncore.Document
	err error
}

// NewSingleResultFromDocument builds a SingleResult around a document already in hand,
// for callers (RunCommand) that didn't go through a cursor.
func NewSingleResultFromDocument(doc bsoncore.Document) *SingleResult {
	return &SingleResult{doc: doc}
}

func newSingleResultFromError(err error) *SingleResult {
	return &SingleResult{err: err}
}

// Decode unmarshals the result document into v, or returns the error that produced an
// empty result (ErrNoDocuments included).
func (sr *SingleResult) Decode(v interface{}) error {
	if sr.err != nil {
		return sr.err
	}
	return decodeDocument(sr.doc, v)
}

// Raw returns the result document as bson.Raw, or the stored error.
func (sr *SingleResult) Raw() (bson.Raw, error) {
	if sr.err != nil {
		return nil, sr.err
	}
	return bson.Raw(sr.doc.String()), nil
}

// Err returns the error, if any, associated with this result.
func (sr *SingleResult) Err() error { return sr.err }
