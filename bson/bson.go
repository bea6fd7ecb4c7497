// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bson contains the document-shaped types the public API accepts for filters,
// updates, and command options. Marshaling these into wire bytes is the BSON codec's
// job (an external collaborator); this package only defines the shapes.
package bson

import (
	"fmt"

	"github.com/mongocore/driver/bson/primitive"
)

// M is an unordered document, suitable for filters where key order does not matter.
type M map[string]interface{}

// E represents a single BSON element within a D.
type E struct {
	Key   string
	Value interface{}
}

// D is an ordered document. Use D instead of M when element order matters, such as for
// sort specifications or update pipelines.
type D []E

// A is a BSON array.
type A []interface{}

// Raw is an opaque reply document as returned by the wire-protocol collaborator; callers
// that need structured access go through x/bsonx/bsoncore.Document.
type Raw []byte

// String returns a human-readable rendering of r for logging. Since encoding is out of scope here, an empty Raw renders as an empty
// document literal and a non-empty one renders as its byte length.
func (r Raw) String() string {
	if len(r) == 0 {
		return "{}"
	}
	return fmt.Sprintf("{ %d bytes }", len(r))
}

// ObjectID re-exports the primitive ObjectID type for convenience at the API surface.
type ObjectID = primitive.ObjectID

// NewObjectID returns a new ObjectID.
func NewObjectID() ObjectID { return primitive.NewObjectID() }

// Timestamp re-exports the primitive Timestamp type.
type Timestamp = primitive.Timestamp
