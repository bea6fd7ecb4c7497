// Copyright (C) MongoDB, Inc. 2022-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// BatchCursor tracks the getMore-batching state of a cursor-returning operation (find,
// aggregate, listCollections): the server-chosen batchSize/limit interplay, plus a
// recorded comment and maxTimeMS. Cursor's getMore sends only the batch size derived
// here; it does not send the recorded comment or maxTimeMS.
type BatchCursor struct {
	batchSize   int32
	limit       int32
	numReturned int32
	comment     commentValue
	maxTimeMS   int64
}

// SetBatchSize sets the number of documents requested per batch.
func (bc *BatchCursor) SetBatchSize(size int32) { bc.batchSize = size }

// SetMaxTime records a maxTimeMS value, truncating to millisecond resolution. Cursor's
// getMore does not send it; a TailableAwait getMore uses Cursor.SetMaxAwaitTime instead.
func (bc *BatchCursor) SetMaxTime(d time.Duration) { bc.maxTimeMS = int64(d / time.Millisecond) }

// SetComment records a comment on the BatchCursor; Cursor's getMore does not send it. Only document-shaped
// values (bson.D, map[string]interface{}, structs) are recognized; anything else is
// dropped, since a getMore comment that isn't a document has no well-defined rendering.
func (bc *BatchCursor) SetComment(comment interface{}) { bc.comment = toCommentValue(comment) }

// calcGetMoreBatchSize works out the batchSize to send on the next getMore given the
// cursor's limit and how many documents have been returned so far. ok is false when
// numReturned has already overtaken limit, which signals a logic error upstream.
func calcGetMoreBatchSize(bc BatchCursor) (int32, bool) {
	if bc.limit == 0 {
		return bc.batchSize, true
	}

	remaining := bc.limit - bc.numReturned
	if remaining < 0 {
		return remaining, false
	}

	size := bc.batchSize
	if remaining < size {
		size = remaining
	}
	return size, true
}

// commentValue holds a rendered comment document, distinguishing "never set" / "set to
// a non-document value" (both render as the empty string) from an actual document.
type commentValue struct {
	doc   bsoncore.Document
	valid bool
}

// String renders the comment for logging, matching bsoncore.Document's debug format.
func (c commentValue) String() string {
	if !c.valid {
		return ""
	}
	return c.doc.String()
}

func toCommentValue(v interface{}) commentValue {
	switch t := v.(type) {
	case nil:
		return commentValue{}
	case bson.D:
		doc := bsoncore.NewDocumentBuilder()
		for _, e := range t {
			doc = appendCommentField(doc, e.Key, e.Value)
		}
		return commentValue{doc: doc, valid: true}
	case bson.M:
		doc := bsoncore.NewDocumentBuilder()
		for k, val := range t {
			doc = appendCommentField(doc, k, val)
		}
		return commentValue{doc: doc, valid: true}
	case map[string]interface{}:
		doc := bsoncore.NewDocumentBuilder()
		for k, val := range t {
			doc = appendCommentField(doc, k, val)
		}
		return commentValue{doc: doc, valid: true}
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Struct {
			return commentValue{}
		}
		doc := bsoncore.NewDocumentBuilder()
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := rt.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			doc = appendCommentField(doc, fieldName(field), rv.Field(i).Interface())
		}
		return commentValue{doc: doc, valid: true}
	}
}

func fieldName(f reflect.StructField) string {
	name := f.Tag.Get("bson")
	if name != "" {
		return name
	}
	return string(f.Name[0]-'A'+'a') + f.Name[1:]
}

func appendCommentField(doc bsoncore.Document, key string, val interface{}) bsoncore.Document {
	switch v := val.(type) {
	case string:
		return doc.Append(key, bsoncore.String(v))
	case int32:
		return doc.Append(key, bsoncore.Int32Value(v))
	case int64:
		return doc.Append(key, bsoncore.Int64Value(v))
	case int:
		return doc.Append(key, bsoncore.Int64Value(int64(v)))
	case bool:
		return doc.Append(key, bsoncore.Boolean(v))
	default:
		return doc.Append(key, bsoncore.String(fmt.Sprintf("%v", v)))
	}
}
