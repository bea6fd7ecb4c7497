// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import "github.com/mongocore/driver/x/bsonx/bsoncore"

// GetMore builds the getMore command a Cursor issues for its next batch. Like Hello it
// is not run through driver.Operation: the Cursor sends it directly on the connection
// that opened the cursor, so it carries no session, read-concern, or retry handling.
type GetMore struct {
	cursorID    int64
	collection  string
	batchSize   int32
	maxTimeMS   int64
	comment     bsoncore.Value
	hasComment  bool
}

// NewGetMore constructs a GetMore for cursorID against collection.
func NewGetMore(cursorID int64, collection string) *GetMore {
	return &GetMore{cursorID: cursorID, collection: collection}
}

// BatchSize sets the number of documents requested in this batch.
func (gm *GetMore) BatchSize(n int32) *GetMore { gm.batchSize = n; return gm }

// MaxTimeMS sets the awaitData wait time for a TailableAwait cursor's getMore.
func (gm *GetMore) MaxTimeMS(ms int64) *GetMore { gm.maxTimeMS = ms; return gm }

// Command builds the getMore command document.
func (gm *GetMore) Command() bsoncore.Document {
	cmd := bsoncore.Document{}.Append("getMore", bsoncore.Int64Value(gm.cursorID))
	cmd = cmd.Append("collection", bsoncore.String(gm.collection))
	if gm.batchSize > 0 {
		cmd = cmd.Append("batchSize", bsoncore.Int32Value(gm.batchSize))
	}
	if gm.maxTimeMS > 0 {
		cmd = cmd.Append("maxTimeMS", bsoncore.Int64Value(gm.maxTimeMS))
	}
	return cmd
}

// KillCursors builds the killCursors command a Cursor issues when it is abandoned
// before exhaustion.
type KillCursors struct {
	collection string
	ids        []int64
}

// NewKillCursors constructs a KillCursors for the given cursor ids.
func NewKillCursors(collection string, ids ...int64) *KillCursors {
	return &KillCursors{collection: collection, ids: ids}
}

// Command builds the killCursors command document.
func (kc *KillCursors) Command() bsoncore.Document {
	arr := make(bsoncore.Array, 0, len(kc.ids))
	for _, id := range kc.ids {
		arr = append(arr, bsoncore.Int64Value(id))
	}
	cmd := bsoncore.Document{}.Append("killCursors", bsoncore.String(kc.collection))
	return cmd.Append("cursors", bsoncore.ArrayValue(arr))
}
