// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

// InsertOneResult is returned by Collection.InsertOne.
type InsertOneResult struct {
	// InsertedID is the _id of the inserted document.
	InsertedID interface{}
}

// InsertManyResult is returned by Collection.InsertMany.
type InsertManyResult struct {
	// InsertedIDs holds the _id of each inserted document, in request order.
	InsertedIDs []interface{}
}

// UpdateResult is returned by Collection.UpdateOne/UpdateMany/ReplaceOne.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedCount int64
	UpsertedID    interface{}
}

// DeleteResult is returned by Collection.DeleteOne/DeleteMany.
type DeleteResult struct {
	DeletedCount int64
}

// BulkWriteResult is returned by Collection.BulkWrite.
type BulkWriteResult struct {
	InsertedCount int64
	MatchedCount  int64
	ModifiedCount int64
	DeletedCount  int64
	UpsertedCount int64
	InsertedIDs   map[int64]interface{}
	UpsertedIDs   map[int64]interface{}
}

// WriteError describes a single document-level write failure, the mongo-package
// counterpart to driver.WriteError.
type WriteError struct {
	Index   int
	Code    int
	Message string
}

// Error implements the error interface.
func (we WriteError) Error() string { return we.Message }

// WriteException aggregates the document-level write errors and optional write concern
// error of a single InsertMany/UpdateMany/DeleteMany call.
type WriteException struct {
	WriteErrors       []WriteError
	WriteConcernError *WriteConcernError
}

// Error implements the error interface.
func (we WriteException) Error() string {
	if len(we.WriteErrors) > 0 {
		return we.WriteErrors[0].Message
	}
	if we.WriteConcernError != nil {
		return we.WriteConcernError.Message
	}
	return "mongo: write exception"
}

// WriteConcernError describes a writeConcernError subdocument surfaced to the caller.
type WriteConcernError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (wce WriteConcernError) Error() string { return wce.Message }

// BulkWriteException is returned by Collection.BulkWrite when one or more of the
// requested writes failed.
type BulkWriteException struct {
	WriteErrors       []BulkWriteError
	WriteConcernError *WriteConcernError
}

// Error implements the error interface.
func (bwe BulkWriteException) Error() string {
	if len(bwe.WriteErrors) > 0 {
		return bwe.WriteErrors[0].WriteError.Message
	}
	if bwe.WriteConcernError != nil {
		return bwe.WriteConcernError.Message
	}
	return "mongo: bulk write exception"
}

// BulkWriteError pairs a WriteError with the WriteModel that produced it.
type BulkWriteError struct {
	WriteError WriteError
	Request    WriteModel
}
