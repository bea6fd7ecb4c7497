// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
)

// Cursor iterates the results of a find/aggregate/listCollections/listIndexes call,
// wrapping the lower driver.Cursor getMore state machine (the CRUD spec) behind the
// Current/Next/Decode/All application surface.
type Cursor struct {
	bc      *driver.Cursor
	current bsoncore.Document
	err     error
}

func newCursor(bc *driver.Cursor) *Cursor {
	return &Cursor{bc: bc}
}

// Next advances the cursor to the next document, blocking on a getMore if the current
// batch is exhausted and the cursor isn't dead. It returns false once the cursor is
// exhausted or an error occurs; call Err afterward to distinguish the two.
func (c *Cursor) Next(ctx context.Context) bool {
	doc, ok, err := c.bc.Next(ctx)
	if err != nil {
		c.err = err
		return false
	}
	if !ok {
		return false
	}
	c.current = doc
	return true
}

// TryNext is like Next but returns immediately with false if no document is
// immediately available on a tailable-await cursor, instead of blocking for maxTimeMS.
func (c *Cursor) TryNext(ctx context.Context) bool {
	doc, ok, err := c.bc.TryNext(ctx)
	if err != nil {
		c.err = err
		return false
	}
	if !ok {
		return false
	}
	c.current = doc
	return true
}

// Decode unmarshals the document Next last produced into v.
func (c *Cursor) Decode(v interface{}) error {
	if c.current == nil {
		return ErrNoDocuments
	}
	return decodeDocument(c.current, v)
}

// Current is the raw document Next last produced.
func (c *Cursor) Current() bsoncore.Document { return c.current }

// Err returns the error, if any, that stopped iteration.
func (c *Cursor) Err() error { return c.err }

// ID returns the server-side cursor id, or 0 once it's been exhausted or killed.
func (c *Cursor) ID() int64 { return c.bc.ID() }

// Close kills the server-side cursor (if still alive) and releases its connection.
func (c *Cursor) Close(ctx context.Context) error {
	if c.bc.Alive() {
		_ = c.bc.Kill(ctx)
	}
	return c.bc.Close()
}

// All iterates the entire cursor, decoding every remaining document into the slice
// pointed to by results, and closes the cursor when done.
func (c *Cursor) All(ctx context.Context, results interface{}) error {
	defer c.Close(ctx)

	docs, err := c.bc.ToArray(ctx)
	if err != nil {
		return err
	}

	rv := reflect.ValueOf(results)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("mongo: results must be a pointer to a slice, got %T", results)
	}
	slice := rv.Elem()
	elemType := slice.Type().Elem()

	out := reflect.MakeSlice(slice.Type(), 0, len(docs))
	for _, doc := range docs {
		elemPtr := reflect.New(elemType)
		if err := decodeDocument(doc, elemPtr.Interface()); err != nil {
			return err
		}
		out = reflect.Append(out, elemPtr.Elem())
	}
	slice.Set(out)
	return nil
}
