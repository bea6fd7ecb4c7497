// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"errors"
	"time"

	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver/operation"
)

// CursorType distinguishes the three getMore behaviors the CRUD spec names.
type CursorType uint8

// The three cursor types.
const (
	NonTailable CursorType = iota
	Tailable
	TailableAwait
)

// CursorState is one of the four states the CRUD spec names.
type CursorState uint8

// The four cursor states.
const (
	CursorOpen CursorState = iota
	CursorBufferedOnly
	CursorExhausted
	CursorKilled
)

// ErrCursorKilled is returned by Next/TryNext once a cursor has been killed.
var ErrCursorKilled = errors.New("cursor has been killed")

// Cursor implements the getMore iteration state machine of the CRUD spec: batches
// arrive inline with the originating command, then via getMore targeted at the same
// server (and, for a pinned session, the same connection) that opened the cursor.
type Cursor struct {
	BatchCursor

	id         int64
	namespace  string
	collection string
	typ        CursorType
	maxAwaitMS int64

	server Server
	conn   Connection

	batch []bsoncore.Document
	pos   int

	state CursorState

	postBatchResumeToken bsoncore.Document
}

// NewCursor constructs a Cursor from a command's initial reply. firstBatch, cursorID,
// and ns come from the reply's "cursor" subdocument.
func NewCursor(server Server, conn Connection, ns, collection string, cursorID int64, firstBatch []bsoncore.Document, typ CursorType) *Cursor {
	c := &Cursor{
		id:         cursorID,
		namespace:  ns,
		collection: collection,
		typ:        typ,
		server:     server,
		conn:       conn,
		batch:      firstBatch,
	}
	c.numReturned = int32(len(firstBatch))
	c.setState()
	return c
}

// ID returns the server-side cursor id (0 once exhausted).
func (c *Cursor) ID() int64 { return c.id }

// Alive reports whether the cursor might still produce more results.
func (c *Cursor) Alive() bool { return c.state != CursorExhausted && c.state != CursorKilled }

func (c *Cursor) setState() {
	if c.state == CursorKilled {
		return
	}
	switch {
	case c.id != 0:
		c.state = CursorOpen
	case len(c.batch) > c.pos:
		c.state = CursorBufferedOnly
	default:
		if c.typ == NonTailable {
			c.state = CursorExhausted
		} else {
			// A tailable cursor whose id the server returned as 0 has no more data right
			// now but is not logically exhausted; it simply has nothing buffered.
			c.state = CursorBufferedOnly
		}
	}
}

// TryNext returns the next document if one is already buffered, otherwise issues at
// most one getMore.
func (c *Cursor) TryNext(ctx context.Context) (bsoncore.Document, bool, error) {
	if c.pos < len(c.batch) {
		doc := c.batch[c.pos]
		c.pos++
		return doc, true, nil
	}
	if c.state == CursorKilled {
		return nil, false, ErrCursorKilled
	}
	if c.id == 0 {
		c.setState()
		return nil, false, nil
	}
	if err := c.getMore(ctx); err != nil {
		return nil, false, err
	}
	if c.pos < len(c.batch) {
		doc := c.batch[c.pos]
		c.pos++
		return doc, true, nil
	}
	return nil, false, nil
}

// Next blocks until a document is available, the cursor is exhausted, or ctx expires
//. For TailableAwait it keeps issuing getMores, honoring
// maxAwaitTimeMS on each, as long as the server keeps the cursor open.
func (c *Cursor) Next(ctx context.Context) (bsoncore.Document, bool, error) {
	for {
		doc, ok, err := c.TryNext(ctx)
		if err != nil || ok {
			return doc, ok, err
		}
		if c.state == CursorExhausted || c.state == CursorKilled {
			return nil, false, err
		}
		if c.typ != TailableAwait {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
		}
	}
}

// ToArray drains the cursor: to exhaustion for a non-tailable cursor, or only what is
// currently available for a tailable one.
func (c *Cursor) ToArray(ctx context.Context) ([]bsoncore.Document, error) {
	var out []bsoncore.Document
	for {
		doc, ok, err := c.TryNext(ctx)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, doc)
			continue
		}
		if c.typ == NonTailable && c.state != CursorExhausted && c.state != CursorKilled {
			// Buffer drained but the server cursor is still open: fetch the next batch.
			if err := c.getMore(ctx); err != nil {
				return out, err
			}
			if c.pos >= len(c.batch) {
				return out, nil
			}
			continue
		}
		return out, nil
	}
}

func (c *Cursor) getMore(ctx context.Context) error {
	gm := operation.NewGetMore(c.id, c.collection)
	size, ok := calcGetMoreBatchSize(c.BatchCursor)
	if ok && size > 0 {
		gm = gm.BatchSize(size)
	}
	if c.typ == TailableAwait && c.maxAwaitMS > 0 {
		gm = gm.MaxTimeMS(c.maxAwaitMS)
	}

	reply, err := c.conn.RunCommand(ctx, dbNameFromNamespace(c.namespace), gm.Command())
	if err != nil {
		return err
	}
	if rerr := ExtractError(reply); rerr != nil {
		return rerr
	}

	cursorVal, ok := reply.Lookup("cursor")
	if !ok {
		return errors.New("driver: getMore reply missing cursor field")
	}
	cursorDoc, _ := cursorVal.DocumentOK()

	c.id = 0
	if v, ok := cursorDoc.Lookup("id"); ok {
		c.id, _ = v.AsInt64OK()
	}

	c.batch = nil
	c.pos = 0
	if v, ok := cursorDoc.Lookup("nextBatch"); ok {
		if arr, isArr := v.ArrayOK(); isArr {
			for _, e := range arr {
				if d, isDoc := e.DocumentOK(); isDoc {
					c.batch = append(c.batch, d)
				}
			}
		}
	}
	c.numReturned += int32(len(c.batch))

	if v, ok := cursorDoc.Lookup("postBatchResumeToken"); ok {
		if d, isDoc := v.DocumentOK(); isDoc {
			c.postBatchResumeToken = d
		}
	}

	c.setState()
	return nil
}

// newCursorFromReply builds a Cursor from a find/aggregate/listCollections-style reply's
// "cursor" subdocument, taking ownership of conn. On a malformed reply it closes conn
// and returns an error instead of leaking the checkout.
func newCursorFromReply(srv Server, conn Connection, ns, collection string, typ CursorType, reply bsoncore.Document) (*Cursor, error) {
	cursorVal, ok := reply.Lookup("cursor")
	if !ok {
		conn.Close()
		return nil, errors.New("driver: command reply missing cursor field")
	}
	cursorDoc, isDoc := cursorVal.DocumentOK()
	if !isDoc {
		conn.Close()
		return nil, errors.New("driver: command reply's cursor field is not a document")
	}

	var id int64
	if v, ok := cursorDoc.Lookup("id"); ok {
		id, _ = v.AsInt64OK()
	}

	batchKey := "firstBatch"
	if _, ok := cursorDoc.Lookup("nextBatch"); ok {
		batchKey = "nextBatch"
	}
	var firstBatch []bsoncore.Document
	if v, ok := cursorDoc.Lookup(batchKey); ok {
		if arr, isArr := v.ArrayOK(); isArr {
			for _, e := range arr {
				if d, isDoc := e.DocumentOK(); isDoc {
					firstBatch = append(firstBatch, d)
				}
			}
		}
	}

	c := NewCursor(srv, conn, ns, collection, id, firstBatch, typ)
	if v, ok := cursorDoc.Lookup("postBatchResumeToken"); ok {
		if d, isDoc := v.DocumentOK(); isDoc {
			c.postBatchResumeToken = d
		}
	}
	return c, nil
}

// PostBatchResumeToken returns the resume token attached to the most recent batch
// boundary, used by change streams to resume without replaying events.
func (c *Cursor) PostBatchResumeToken() bsoncore.Document { return c.postBatchResumeToken }

// Kill sends killCursors on the server that owns this cursor and marks it dead.
// Idempotent.
func (c *Cursor) Kill(ctx context.Context) error {
	if c.state == CursorKilled || c.id == 0 {
		c.state = CursorKilled
		return nil
	}
	kc := operation.NewKillCursors(c.collection, c.id)
	_, err := c.conn.RunCommand(ctx, dbNameFromNamespace(c.namespace), kc.Command())
	c.state = CursorKilled
	c.id = 0
	return err
}

// Close releases the pinned connection. It does not send killCursors; call Kill first
// if the server-side cursor needs to be torn down explicitly.
func (c *Cursor) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func dbNameFromNamespace(ns string) string {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[:i]
		}
	}
	return ns
}

// SetMaxAwaitTime sets the maxTimeMS sent with each TailableAwait getMore.
func (c *Cursor) SetMaxAwaitTime(d time.Duration) {
	c.maxAwaitMS = int64(d / time.Millisecond)
}
