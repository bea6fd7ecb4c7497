// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package session implements the server session pool, causally-consistent client
// sessions, and the cluster-time gossip protocol described in the driver sessions
// spec.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/bson/primitive"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// ErrSessionEnded is returned when an operation is attempted on an ended session.
var ErrSessionEnded = errors.New("session: session has ended")

// ErrSessionsNotSupported is returned when a session is requested against a topology
// that forbids them (the driver sessions spec: "Sessions are forbidden on standalone topologies").
var ErrSessionsNotSupported = errors.New("session: sessions are not supported by this topology")

// ServerSession is an allocated logical session id together with its pool bookkeeping.
type ServerSession struct {
	SessionID  bson.Raw
	LastUsed   time.Time
	TxnNumber  int64
}

func newServerSession() *ServerSession {
	doc := bsoncore.NewDocumentBuilder().Append("id", bsoncore.ObjectIDValue(primitive.NewObjectID()))
	return &ServerSession{SessionID: bson.Raw(doc.String()), LastUsed: time.Now()}
}

func (ss *ServerSession) expired(timeout time.Duration) bool {
	return timeout > 0 && time.Since(ss.LastUsed) >= timeout
}

// Pool is a process-wide cache of ServerSessions, avoiding a startSession round trip for
// every logical session.
type Pool struct {
	mu        sync.Mutex
	sessions  []*ServerSession
	timeout   time.Duration
}

// NewPool constructs a Pool. timeout should be derived from the topology's negotiated
// logicalSessionTimeoutMinutes via Timeout.
func NewPool() *Pool { return &Pool{} }

// Timeout computes the pool eviction threshold from the driver sessions spec:
// min(logicalSessionTimeoutMinutes, 1) - 1 minute.
func Timeout(logicalSessionTimeoutMinutes int64) time.Duration {
	m := logicalSessionTimeoutMinutes
	if m > 1 {
		m = 1
	}
	d := time.Duration(m)*time.Minute - time.Minute
	if d < 0 {
		d = 0
	}
	return d
}

// SetTimeout updates the pool's eviction threshold as the topology's session timeout
// changes across heartbeats.
func (p *Pool) SetTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
}

// GetSession returns a cached session id, discarding any that have expired, or
// allocates a new one.
func (p *Pool) GetSession() *ServerSession {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.sessions) > 0 {
		ss := p.sessions[len(p.sessions)-1]
		p.sessions = p.sessions[:len(p.sessions)-1]
		if !ss.expired(p.timeout) {
			return ss
		}
	}
	return newServerSession()
}

// ReturnSession returns ss to the pool unless its TTL has elapsed, per the driver sessions spec.
func (p *Pool) ReturnSession(ss *ServerSession) {
	if ss == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ss.expired(p.timeout) {
		return
	}
	ss.LastUsed = time.Now()
	p.sessions = append(p.sessions, ss)
}

// ClusterTime is an opaque $clusterTime document gossiped between client and server.
type ClusterTime bson.Raw

// ClusterClock tracks the highest clusterTime seen across an entire client, shared by
// every session, so causally consistent reads never observe a time running backward.
type ClusterClock struct {
	mu sync.Mutex
	ct ClusterTime
}

// GetClusterTime returns the current cluster time.
func (c *ClusterClock) GetClusterTime() ClusterTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ct
}

// AdvanceClusterTime updates the clock if newTime is newer than the current value.
func (c *ClusterClock) AdvanceClusterTime(newTime ClusterTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ct = MaxClusterTime(c.ct, newTime)
}

// MaxClusterTime returns whichever of a, b carries the larger $clusterTime.clusterTime
// timestamp, keeping a on ties or when either document cannot be read.
func MaxClusterTime(a, b ClusterTime) ClusterTime {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	at, aok := clusterTimestamp(a)
	bt, bok := clusterTimestamp(b)
	if aok && bok && bt.After(at) {
		return b
	}
	return a
}

func clusterTimestamp(ct ClusterTime) (primitive.Timestamp, bool) {
	doc, err := bsoncore.Unmarshal(ct)
	if err != nil {
		return primitive.Timestamp{}, false
	}
	v, ok := doc.Lookup("clusterTime")
	if !ok {
		return primitive.Timestamp{}, false
	}
	return v.TimestampOK()
}

// Client is a logical client session: either implicit (one per operation) or explicit
// (returned by MongoClient.startSession).
type Client struct {
	SessionID *ServerSession
	ClusterTime ClusterTime
	OperationTime *primitive.Timestamp
	Consistent bool // causally consistent

	TxnNumber      int64
	RetryingCommit bool
	CurrentRc      interface{ MarshalDocument() (bsoncore.Document, error) }

	Terminated bool

	pinnedServer description.Server
	pinned       bool

	txnState transactionState
	pool     *Pool
}

type transactionState uint8

const (
	transactionNone transactionState = iota
	transactionStarting
	transactionInProgress
	transactionCommitted
	transactionAborted
)

// NewClientSession allocates a session id from pool and returns a causally-consistent
// Client by default.
func NewClientSession(pool *Pool, causallyConsistent bool) *Client {
	return &Client{
		SessionID:  pool.GetSession(),
		Consistent: causallyConsistent,
		pool:       pool,
	}
}

// EndSession returns the session id to the pool, marking the Client terminated so
// further use returns ErrSessionEnded.
func (c *Client) EndSession() {
	if c.Terminated {
		return
	}
	c.Terminated = true
	c.pool.ReturnSession(c.SessionID)
}

// TransactionStarting reports whether a transaction has been started but not yet sent
// to the server.
func (c *Client) TransactionStarting() bool { return c.txnState == transactionStarting }

// TransactionInProgress reports whether a transaction is in progress.
func (c *Client) TransactionInProgress() bool { return c.txnState == transactionInProgress }

// TransactionRunning reports whether a transaction has been started (starting or
// in-progress).
func (c *Client) TransactionRunning() bool {
	return c.txnState == transactionStarting || c.txnState == transactionInProgress
}

// StartTransaction begins a new transaction, allocating the next txnNumber and pinning
// the session to whichever server the first operation selects.
func (c *Client) StartTransaction() error {
	if c.Terminated {
		return ErrSessionEnded
	}
	c.TxnNumber++
	c.txnState = transactionStarting
	return nil
}

// ApplyCommand transitions a starting transaction to in-progress once its first command
// has been sent, and pins the session to desc.
func (c *Client) ApplyCommand(desc description.Server) {
	if c.txnState == transactionStarting {
		c.txnState = transactionInProgress
		c.pinnedServer = desc
		c.pinned = true
	}
}

// PinnedServer returns the server this session is pinned to, if any (the driver sessions spec:
// "pinned to a server once a transaction begins").
func (c *Client) PinnedServer() (description.Server, bool) { return c.pinnedServer, c.pinned }

// ClearPinnedServer releases the pin, called on commit/abort.
func (c *Client) ClearPinnedServer() {
	c.pinned = false
	c.pinnedServer = description.Server{}
}

// CommitTransaction marks the transaction committed and releases the pin.
func (c *Client) CommitTransaction() {
	c.txnState = transactionCommitted
	c.ClearPinnedServer()
}

// AbortTransaction marks the transaction aborted and releases the pin.
func (c *Client) AbortTransaction() {
	c.txnState = transactionAborted
	c.ClearPinnedServer()
}

// AdvanceClusterTime updates the session's view of $clusterTime.
func (c *Client) AdvanceClusterTime(ct bson.Raw) error {
	if c.Terminated {
		return ErrSessionEnded
	}
	c.ClusterTime = MaxClusterTime(c.ClusterTime, ClusterTime(ct))
	return nil
}

// AdvanceOperationTime updates the session's view of operationTime, used as
// afterClusterTime on the next causally consistent read.
func (c *Client) AdvanceOperationTime(ts *primitive.Timestamp) error {
	if c.Terminated {
		return ErrSessionEnded
	}
	if c.OperationTime == nil || ts.After(*c.OperationTime) {
		c.OperationTime = ts
	}
	return nil
}
