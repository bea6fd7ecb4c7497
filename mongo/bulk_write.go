// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

// WriteModel is implemented by the six operations Collection.BulkWrite accepts,
// the WriteModel family (InsertOneModel and friends) used to assemble a single
// ordered/unordered bulk write.
type WriteModel interface {
	writeModel()
}

// InsertOneModel inserts a single document as part of a BulkWrite call.
type InsertOneModel struct {
	Document interface{}
}

func (*InsertOneModel) writeModel() {}

// UpdateOneModel updates at most one document matching Filter as part of a BulkWrite
// call.
type UpdateOneModel struct {
	Filter       interface{}
	Update       interface{}
	ArrayFilters []interface{}
	Collation    interface{}
	Hint         interface{}
	Upsert       *bool
}

func (*UpdateOneModel) writeModel() {}

// UpdateManyModel updates every document matching Filter as part of a BulkWrite call.
type UpdateManyModel struct {
	Filter       interface{}
	Update       interface{}
	ArrayFilters []interface{}
	Collation    interface{}
	Hint         interface{}
	Upsert       *bool
}

func (*UpdateManyModel) writeModel() {}

// ReplaceOneModel replaces at most one document matching Filter as part of a BulkWrite
// call.
type ReplaceOneModel struct {
	Filter      interface{}
	Replacement interface{}
	Collation   interface{}
	Hint        interface{}
	Upsert      *bool
}

func (*ReplaceOneModel) writeModel() {}

// DeleteOneModel deletes at most one document matching Filter as part of a BulkWrite
// call.
type DeleteOneModel struct {
	Filter    interface{}
	Collation interface{}
	Hint      interface{}
}

func (*DeleteOneModel) writeModel() {}

// DeleteManyModel deletes every document matching Filter as part of a BulkWrite call.
type DeleteManyModel struct {
	Filter    interface{}
	Collation interface{}
	Hint      interface{}
}

func (*DeleteManyModel) writeModel() {}
