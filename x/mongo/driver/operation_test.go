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

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/bson/primitive"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/internal/logger"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver/session"
)

// mockConnection scripts one reply per RunCommand call and records the commands it saw.
type mockConnection struct {
	replies  []bsoncore.Document
	errs     []error
	commands []bsoncore.Document
	calls    int
	closed   bool
}

func (c *mockConnection) RunCommand(_ context.Context, _ string, cmd bsoncore.Document) (bsoncore.Document, error) {
	i := c.calls
	c.calls++
	c.commands = append(c.commands, cmd)
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	var reply bsoncore.Document
	if i < len(c.replies) {
		reply = c.replies[i]
	}
	return reply, err
}

func (c *mockConnection) Description() description.Server { return description.Server{} }
func (c *mockConnection) Close() error                    { c.closed = true; return nil }
func (c *mockConnection) ID() string                      { return "mock:27017" }
func (c *mockConnection) Stale() bool                     { return false }

// mockServer hands out the shared mockConnection and records ProcessError calls.
type mockServer struct {
	conn          *mockConnection
	desc          description.Server
	processedErrs []error
}

func (s *mockServer) Connection(context.Context) (Connection, error) { return s.conn, nil }
func (s *mockServer) Description() description.Server                { return s.desc }
func (s *mockServer) ProcessError(err error, _ Connection)           { s.processedErrs = append(s.processedErrs, err) }

// mockDeployment returns each server in order on successive selections.
type mockDeployment struct {
	servers    []*mockServer
	selections int
	desc       description.Topology
	log        *logger.Logger
}

func (d *mockDeployment) SelectServer(context.Context, description.ServerSelector) (Server, error) {
	srv := d.servers[d.selections%len(d.servers)]
	d.selections++
	return srv, nil
}
func (d *mockDeployment) Description() description.Topology { return d.desc }
func (d *mockDeployment) Kind() description.TopologyKind    { return d.desc.Kind }
func (d *mockDeployment) Logger() *logger.Logger            { return d.log }

func okReply() bsoncore.Document {
	return bsoncore.Document{}.Append("ok", bsoncore.Int32Value(1))
}

func retryableReply() bsoncore.Document {
	return bsoncore.Document{}.
		Append("ok", bsoncore.Int32Value(0)).
		Append("code", bsoncore.Int32Value(189)).
		Append("codeName", bsoncore.String("PrimarySteppedDown")).
		Append("errmsg", bsoncore.String("node is no longer primary")).
		Append("errorLabels", bsoncore.ArrayValue(bsoncore.Array{bsoncore.String(RetryableWriteError)}))
}

func sessionsSupportedServer(addr string) description.Server {
	return description.Server{
		Addr:                     address.Address(addr).Canonicalize(),
		Kind:                     description.RSPrimary,
		SessionTimeoutMinutesSet: true,
		SessionTimeoutMinutes:    30,
		WireVersion:              &description.VersionRange{Min: 6, Max: 17},
	}
}

// TestExecuteRetryableWrite checks the one-shot retry: the first attempt fails with a
// RetryableWriteError label, the second runs on a freshly selected server with the SAME
// txnNumber, and the failing server's SDAM error handling sees the error.
func TestExecuteRetryableWrite(t *testing.T) {
	t.Parallel()

	connA := &mockConnection{replies: []bsoncore.Document{retryableReply()}}
	connB := &mockConnection{replies: []bsoncore.Document{okReply()}}
	srvA := &mockServer{conn: connA, desc: sessionsSupportedServer("a:27017")}
	srvB := &mockServer{conn: connB, desc: sessionsSupportedServer("b:27017")}
	dep := &mockDeployment{
		servers: []*mockServer{srvA, srvB},
		desc: description.Topology{
			Kind:                     description.ReplicaSetWithPrimary,
			SessionTimeoutMinutesSet: true,
		},
	}

	sess := session.NewClientSession(session.NewPool(), false)
	op := &Operation{
		CommandName: "insert",
		Database:    "db",
		Deployment:  dep,
		Type:        Write,
		RetryMode:   RetryOnce,
		Session:     sess,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append("insert", bsoncore.String("coll")), nil
		},
	}

	reply, err := op.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute returned error after retry: %v", err)
	}
	if v, ok := reply.Lookup("ok"); !ok || v.Int32() != 1 {
		t.Fatalf("expected the retried reply, got %v", reply)
	}
	if dep.selections != 2 {
		t.Fatalf("expected two server selections, got %d", dep.selections)
	}
	if len(srvA.processedErrs) != 1 {
		t.Fatalf("expected the failing server's ProcessError to be called once, got %d", len(srvA.processedErrs))
	}

	txnA, okA := connA.commands[0].Lookup("txnNumber")
	txnB, okB := connB.commands[0].Lookup("txnNumber")
	if !okA || !okB {
		t.Fatalf("expected txnNumber on both attempts (A=%v B=%v)", okA, okB)
	}
	if txnA.Int64() != txnB.Int64() {
		t.Fatalf("txnNumber changed across the retry: %d vs %d", txnA.Int64(), txnB.Int64())
	}
}

// TestExecuteDoesNotRetryNonRetryableErrors checks that an ordinary command error
// surfaces unchanged with no second attempt.
func TestExecuteDoesNotRetryNonRetryableErrors(t *testing.T) {
	t.Parallel()

	failure := bsoncore.Document{}.
		Append("ok", bsoncore.Int32Value(0)).
		Append("code", bsoncore.Int32Value(59)).
		Append("codeName", bsoncore.String("CommandNotFound")).
		Append("errmsg", bsoncore.String("no such command"))

	conn := &mockConnection{replies: []bsoncore.Document{failure}}
	srv := &mockServer{conn: conn, desc: sessionsSupportedServer("a:27017")}
	dep := &mockDeployment{
		servers: []*mockServer{srv},
		desc: description.Topology{
			Kind:                     description.ReplicaSetWithPrimary,
			SessionTimeoutMinutesSet: true,
		},
	}

	op := &Operation{
		CommandName: "bogus",
		Database:    "db",
		Deployment:  dep,
		Type:        Read,
		RetryMode:   RetryOnce,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append("bogus", bsoncore.Int32Value(1)), nil
		},
	}

	_, err := op.Execute(context.Background())
	cmdErr, ok := err.(Error)
	if !ok {
		t.Fatalf("expected a driver.Error, got %T (%v)", err, err)
	}
	if cmdErr.Code != 59 || cmdErr.Name != "CommandNotFound" {
		t.Fatalf("unexpected error contents: %+v", cmdErr)
	}
	if dep.selections != 1 {
		t.Fatalf("expected a single selection for a non-retryable error, got %d", dep.selections)
	}
}

// TestExecuteAdvancesSessionTimes checks spec'd reply interpretation: operationTime and
// $clusterTime from the reply advance the session and shared clock.
func TestExecuteAdvancesSessionTimes(t *testing.T) {
	t.Parallel()

	ctDoc := bsoncore.Document{}.Append("clusterTime", bsoncore.TimestampValue(primitive.Timestamp{T: 42, I: 1}))
	reply := okReply().
		Append("operationTime", bsoncore.TimestampValue(primitive.Timestamp{T: 42, I: 1})).
		Append("$clusterTime", bsoncore.DocumentValue(ctDoc))

	conn := &mockConnection{replies: []bsoncore.Document{reply}}
	srv := &mockServer{conn: conn, desc: sessionsSupportedServer("a:27017")}
	dep := &mockDeployment{
		servers: []*mockServer{srv},
		desc: description.Topology{
			Kind:                     description.ReplicaSetWithPrimary,
			SessionTimeoutMinutesSet: true,
		},
	}

	sess := session.NewClientSession(session.NewPool(), true)
	clock := &session.ClusterClock{}
	op := &Operation{
		CommandName: "find",
		Database:    "db",
		Deployment:  dep,
		Type:        Read,
		Session:     sess,
		Clock:       clock,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append("find", bsoncore.String("coll")), nil
		},
	}

	if _, err := op.Execute(context.Background()); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if sess.OperationTime == nil || sess.OperationTime.T != 42 {
		t.Fatalf("expected operationTime T=42 on the session, got %+v", sess.OperationTime)
	}
	if len(clock.GetClusterTime()) == 0 {
		t.Fatal("expected the cluster clock to advance")
	}
}

// chanSink is a LogSink that forwards every message name to a channel so tests can
// observe the async print listener without sleeping.
type chanSink struct {
	ch chan string
}

func (s chanSink) Info(_ int, msg string, _ ...interface{}) { s.ch <- msg }

func expectLog(t *testing.T, ch chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected log %q, got %q", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for log %q", want)
	}
}

// TestExecuteEmitsCommandLogs checks the command logging component: an Operation run
// against a Deployment carrying a logger emits Command started/succeeded messages
// through the print listener.
func TestExecuteEmitsCommandLogs(t *testing.T) {
	t.Parallel()

	sink := chanSink{ch: make(chan string, 16)}
	log := logger.New(sink, 0, map[logger.Component]logger.Level{
		logger.ComponentCommand: logger.LevelDebug,
	})
	logger.StartPrintListener(log)
	defer log.Close()

	conn := &mockConnection{replies: []bsoncore.Document{okReply()}}
	srv := &mockServer{conn: conn, desc: sessionsSupportedServer("a:27017")}
	dep := &mockDeployment{
		servers: []*mockServer{srv},
		desc: description.Topology{
			Kind:                     description.ReplicaSetWithPrimary,
			SessionTimeoutMinutesSet: true,
		},
		log: log,
	}

	op := &Operation{
		CommandName: "ping",
		Database:    "admin",
		Deployment:  dep,
		Type:        Read,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append("ping", bsoncore.Int32Value(1)), nil
		},
	}
	if _, err := op.Execute(context.Background()); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	expectLog(t, sink.ch, "Command started")
	expectLog(t, sink.ch, "Command succeeded")
}

// TestExtractErrorWriteErrors checks writeErrors/writeConcernError interpretation.
func TestExtractErrorWriteErrors(t *testing.T) {
	t.Parallel()

	reply := okReply().Append("writeErrors", bsoncore.ArrayValue(bsoncore.Array{
		bsoncore.DocumentValue(bsoncore.Document{}.
			Append("index", bsoncore.Int32Value(0)).
			Append("code", bsoncore.Int32Value(11000)).
			Append("errmsg", bsoncore.String("duplicate key"))),
	}))

	err := ExtractError(reply)
	wce, ok := err.(WriteCommandError)
	if !ok {
		t.Fatalf("expected WriteCommandError, got %T (%v)", err, err)
	}
	if len(wce.WriteErrors) != 1 || wce.WriteErrors[0].Code != 11000 {
		t.Fatalf("unexpected write errors: %+v", wce.WriteErrors)
	}
}
