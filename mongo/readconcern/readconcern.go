// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package readconcern defines the read concern document appended to read commands,
// as referenced
// by x/mongo/driver/driver.go's addReadConcern.
package readconcern

import "github.com/mongocore/driver/x/bsonx/bsoncore"

// ReadConcern describes the consistency and isolation properties requested of reads.
type ReadConcern struct {
	level string
}

// New constructs a ReadConcern with no level set, used by causal-consistency read
// concern composition when only afterClusterTime needs to be conveyed.
func New() *ReadConcern { return &ReadConcern{} }

// Local requests the instance's most recent data.
func Local() *ReadConcern { return &ReadConcern{level: "local"} }

// Majority requests data acknowledged by a majority of the replica set.
func Majority() *ReadConcern { return &ReadConcern{level: "majority"} }

// Linearizable requests a linearizable read.
func Linearizable() *ReadConcern { return &ReadConcern{level: "linearizable"} }

// Snapshot requests data from a particular point in time.
func Snapshot() *ReadConcern { return &ReadConcern{level: "snapshot"} }

// Available requests data without waiting for replication, even on a sharded cluster
// during a chunk migration.
func Available() *ReadConcern { return &ReadConcern{level: "available"} }

// Level returns the configured level, or "" if none was set.
func (rc *ReadConcern) Level() string {
	if rc == nil {
		return ""
	}
	return rc.level
}

// MarshalDocument renders the read concern as a bsoncore.Document for the "readConcern"
// command field. A ReadConcern with no level produces an empty document, which is still
// meaningful: it carries afterClusterTime once the caller appends it.
func (rc *ReadConcern) MarshalDocument() (bsoncore.Document, error) {
	doc := bsoncore.NewDocumentBuilder()
	if rc != nil && rc.level != "" {
		doc = doc.Append("level", bsoncore.String(rc.level))
	}
	return doc, nil
}
