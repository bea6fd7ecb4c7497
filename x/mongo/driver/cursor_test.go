// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"testing"
	"time"

	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

func getMoreReply(id int64, docs ...bsoncore.Document) bsoncore.Document {
	batch := make(bsoncore.Array, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, bsoncore.DocumentValue(d))
	}
	cursorDoc := bsoncore.Document{}.
		Append("id", bsoncore.Int64Value(id)).
		Append("nextBatch", bsoncore.ArrayValue(batch))
	return bsoncore.Document{}.
		Append("cursor", bsoncore.DocumentValue(cursorDoc)).
		Append("ok", bsoncore.Int32Value(1))
}

func testDoc(n int32) bsoncore.Document {
	return bsoncore.Document{}.Append("x", bsoncore.Int32Value(n))
}

// TestCursorIterationStates walks a non-tailable cursor Open -> BufferedOnly ->
// Exhausted: the first batch drains from the buffer, one getMore fetches the rest, and
// iteration ends cleanly once the server reports id 0.
func TestCursorIterationStates(t *testing.T) {
	t.Parallel()

	conn := &mockConnection{replies: []bsoncore.Document{getMoreReply(0, testDoc(2))}}
	c := NewCursor(nil, conn, "db.coll", "coll", 77, []bsoncore.Document{testDoc(1)}, NonTailable)

	doc, ok, err := c.TryNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("first TryNext: ok=%v err=%v", ok, err)
	}
	if v, _ := doc.Lookup("x"); v.Int32() != 1 {
		t.Fatalf("expected the buffered document first, got %s", doc)
	}
	if conn.calls != 0 {
		t.Fatalf("buffered read must not hit the server, saw %d calls", conn.calls)
	}

	doc, ok, err = c.TryNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("second TryNext: ok=%v err=%v", ok, err)
	}
	if v, _ := doc.Lookup("x"); v.Int32() != 2 {
		t.Fatalf("expected the getMore document second, got %s", doc)
	}
	if conn.calls != 1 {
		t.Fatalf("expected exactly one getMore, saw %d calls", conn.calls)
	}
	if gm, ok := conn.commands[0].Lookup("getMore"); !ok || gm.Int64() != 77 {
		t.Fatalf("expected getMore for cursor 77, got %s", conn.commands[0])
	}

	_, ok, err = c.TryNext(context.Background())
	if err != nil || ok {
		t.Fatalf("third TryNext should report exhaustion, ok=%v err=%v", ok, err)
	}
	if c.Alive() {
		t.Fatal("expected the cursor to be dead after the server returned id 0")
	}
}

// TestCursorToArrayDrains checks ToArray keeps issuing getMores until the server-side
// cursor is exhausted.
func TestCursorToArrayDrains(t *testing.T) {
	t.Parallel()

	conn := &mockConnection{replies: []bsoncore.Document{
		getMoreReply(77, testDoc(2)),
		getMoreReply(0, testDoc(3)),
	}}
	c := NewCursor(nil, conn, "db.coll", "coll", 77, []bsoncore.Document{testDoc(1)}, NonTailable)

	docs, err := c.ToArray(context.Background())
	if err != nil {
		t.Fatalf("ToArray returned error: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	for i, d := range docs {
		if v, _ := d.Lookup("x"); v.Int32() != int32(i+1) {
			t.Fatalf("documents out of order at %d: %s", i, d)
		}
	}
}

// TestCursorKillIdempotent checks Kill sends one killCursors and later calls are no-ops.
func TestCursorKillIdempotent(t *testing.T) {
	t.Parallel()

	conn := &mockConnection{replies: []bsoncore.Document{okReply()}}
	c := NewCursor(nil, conn, "db.coll", "coll", 77, nil, NonTailable)

	if err := c.Kill(context.Background()); err != nil {
		t.Fatalf("Kill returned error: %v", err)
	}
	if conn.calls != 1 {
		t.Fatalf("expected one killCursors, saw %d calls", conn.calls)
	}
	if _, ok := conn.commands[0].Lookup("killCursors"); !ok {
		t.Fatalf("expected a killCursors command, got %s", conn.commands[0])
	}

	if err := c.Kill(context.Background()); err != nil {
		t.Fatalf("second Kill returned error: %v", err)
	}
	if conn.calls != 1 {
		t.Fatalf("Kill is not idempotent: saw %d calls", conn.calls)
	}
	if _, _, err := c.TryNext(context.Background()); err != ErrCursorKilled {
		t.Fatalf("expected ErrCursorKilled after Kill, got %v", err)
	}
}

// TestTailableAwaitGetMoreCarriesMaxTimeMS checks the await path: maxTimeMS rides on
// every getMore for a TailableAwait cursor.
func TestTailableAwaitGetMoreCarriesMaxTimeMS(t *testing.T) {
	t.Parallel()

	conn := &mockConnection{replies: []bsoncore.Document{getMoreReply(77, testDoc(1))}}
	c := NewCursor(nil, conn, "db.coll", "coll", 77, nil, TailableAwait)
	c.SetMaxAwaitTime(1500 * time.Millisecond)

	doc, ok, err := c.TryNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("TryNext: ok=%v err=%v", ok, err)
	}
	if v, _ := doc.Lookup("x"); v.Int32() != 1 {
		t.Fatalf("unexpected document %s", doc)
	}
	mt, found := conn.commands[0].Lookup("maxTimeMS")
	if !found || mt.Int64() != 1500 {
		t.Fatalf("expected maxTimeMS=1500 on the getMore, got %s", conn.commands[0])
	}

	// The post-batch resume token surfaces as soon as the server sends one.
	tokenReply := getMoreReply(77).Set("cursor", bsoncore.DocumentValue(
		bsoncore.Document{}.
			Append("id", bsoncore.Int64Value(77)).
			Append("nextBatch", bsoncore.ArrayValue(bsoncore.Array{})).
			Append("postBatchResumeToken", bsoncore.DocumentValue(
				bsoncore.Document{}.Append("_data", bsoncore.String("r1")))),
	))
	conn.replies = append(conn.replies, tokenReply)
	if _, _, err := c.TryNext(context.Background()); err != nil {
		t.Fatalf("TryNext returned error: %v", err)
	}
	tok := c.PostBatchResumeToken()
	if tok == nil {
		t.Fatal("expected a post-batch resume token")
	}
	if v, _ := tok.Lookup("_data"); v.StringValue() != "r1" {
		t.Fatalf("unexpected resume token %s", tok)
	}
}
