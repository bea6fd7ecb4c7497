// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package session

import (
	"testing"
	"time"

	"github.com/mongocore/driver/bson/primitive"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

func TestPoolReusesSessions(t *testing.T) {
	t.Parallel()

	p := NewPool()
	ss := p.GetSession()
	if len(ss.SessionID) == 0 {
		t.Fatal("expected a freshly allocated session id")
	}
	p.ReturnSession(ss)

	again := p.GetSession()
	if string(again.SessionID) != string(ss.SessionID) {
		t.Fatal("expected the returned session to be reused")
	}
}

func TestPoolDiscardsExpiredSessions(t *testing.T) {
	t.Parallel()

	p := NewPool()
	p.SetTimeout(time.Millisecond)

	ss := p.GetSession()
	ss.LastUsed = time.Now().Add(-time.Second)
	p.ReturnSession(ss)

	again := p.GetSession()
	if string(again.SessionID) == string(ss.SessionID) {
		t.Fatal("expected the expired session to be discarded, not reused")
	}
}

func TestTimeoutFormula(t *testing.T) {
	t.Parallel()

	if got := Timeout(30); got != 0 {
		t.Fatalf("Timeout(30) = %s, want 0", got)
	}
	if got := Timeout(1); got != 0 {
		t.Fatalf("Timeout(1) = %s, want 0", got)
	}
}

func TestEndSessionReturnsToPoolOnce(t *testing.T) {
	t.Parallel()

	p := NewPool()
	c := NewClientSession(p, true)
	id := string(c.SessionID.SessionID)

	c.EndSession()
	if !c.Terminated {
		t.Fatal("expected the session to be terminated")
	}
	if err := c.AdvanceOperationTime(&primitive.Timestamp{T: 1}); err != ErrSessionEnded {
		t.Fatalf("expected ErrSessionEnded after EndSession, got %v", err)
	}

	// A second EndSession must not return the id again.
	c.EndSession()
	first := p.GetSession()
	second := p.GetSession()
	if string(first.SessionID) == id && string(second.SessionID) == id {
		t.Fatal("double EndSession returned the same id to the pool twice")
	}
}

func TestAdvanceOperationTimeIsMonotonic(t *testing.T) {
	t.Parallel()

	c := NewClientSession(NewPool(), true)

	if err := c.AdvanceOperationTime(&primitive.Timestamp{T: 5, I: 1}); err != nil {
		t.Fatalf("AdvanceOperationTime returned error: %v", err)
	}
	if err := c.AdvanceOperationTime(&primitive.Timestamp{T: 3, I: 9}); err != nil {
		t.Fatalf("AdvanceOperationTime returned error: %v", err)
	}
	if c.OperationTime.T != 5 || c.OperationTime.I != 1 {
		t.Fatalf("operation time regressed to %+v", c.OperationTime)
	}
	if err := c.AdvanceOperationTime(&primitive.Timestamp{T: 5, I: 2}); err != nil {
		t.Fatalf("AdvanceOperationTime returned error: %v", err)
	}
	if c.OperationTime.I != 2 {
		t.Fatalf("expected increment 2, got %+v", c.OperationTime)
	}
}

func clusterTimeDoc(t uint32, i uint32) ClusterTime {
	doc := bsoncore.Document{}.Append("clusterTime", bsoncore.TimestampValue(primitive.Timestamp{T: t, I: i}))
	return ClusterTime(doc.Marshal())
}

func TestMaxClusterTime(t *testing.T) {
	t.Parallel()

	older := clusterTimeDoc(10, 0)
	newer := clusterTimeDoc(20, 0)

	if got := MaxClusterTime(older, newer); string(got) != string(newer) {
		t.Fatal("expected the newer cluster time to win")
	}
	if got := MaxClusterTime(newer, older); string(got) != string(newer) {
		t.Fatal("expected the newer cluster time to win regardless of order")
	}
	if got := MaxClusterTime(nil, newer); string(got) != string(newer) {
		t.Fatal("expected a nil cluster time to lose")
	}
	same := clusterTimeDoc(20, 0)
	if got := MaxClusterTime(newer, same); string(got) != string(newer) {
		t.Fatal("expected ties to keep the first argument")
	}
}

func TestClusterClockAdvances(t *testing.T) {
	t.Parallel()

	clock := &ClusterClock{}
	clock.AdvanceClusterTime(clusterTimeDoc(5, 0))
	clock.AdvanceClusterTime(clusterTimeDoc(3, 0))

	got, ok := clusterTimestamp(clock.GetClusterTime())
	if !ok {
		t.Fatal("expected the clock to hold a readable cluster time")
	}
	if got.T != 5 {
		t.Fatalf("clock regressed to T=%d, want 5", got.T)
	}
}

func TestTransactionPinning(t *testing.T) {
	t.Parallel()

	c := NewClientSession(NewPool(), false)
	if err := c.StartTransaction(); err != nil {
		t.Fatalf("StartTransaction returned error: %v", err)
	}
	if !c.TransactionStarting() {
		t.Fatal("expected the transaction to be in the starting state")
	}
	firstTxn := c.TxnNumber

	desc := description.Server{Kind: description.Mongos}
	c.ApplyCommand(desc)
	if !c.TransactionInProgress() {
		t.Fatal("expected the transaction to be in progress after its first command")
	}
	if _, pinned := c.PinnedServer(); !pinned {
		t.Fatal("expected the session to be pinned after the first command")
	}

	c.CommitTransaction()
	if _, pinned := c.PinnedServer(); pinned {
		t.Fatal("expected commit to release the pin")
	}

	if err := c.StartTransaction(); err != nil {
		t.Fatalf("StartTransaction returned error: %v", err)
	}
	if c.TxnNumber != firstTxn+1 {
		t.Fatalf("expected the txnNumber to advance, got %d after %d", c.TxnNumber, firstTxn)
	}
}
