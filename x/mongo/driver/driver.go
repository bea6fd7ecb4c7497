// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver runs a single logical operation end to end: server selection,
// connection checkout, command construction, reply interpretation, and the one-shot
// retry rule of the retryable writes spec, operating on bsoncore.Document
// command/reply values.
package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/event"
	"github.com/mongocore/driver/internal/logger"
	"github.com/mongocore/driver/mongo/readconcern"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/mongo/writeconcern"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver/session"
)

// currentRequestID is the process-wide monotonic counter behind every command's
// requestId, shared by monitoring events and command logs.
var currentRequestID int64

func nextRequestID() int64 { return atomic.AddInt64(&currentRequestID, 1) }

// ErrDocumentTooLarge occurs when a document larger than the server's maximum accepted
// size is passed to an insert command.
var ErrDocumentTooLarge = errors.New("an inserted document is too large")

// Deployment is implemented by types that can select a server from a topology.
type Deployment interface {
	SelectServer(context.Context, description.ServerSelector) (Server, error)
	Description() description.Topology
	Kind() description.TopologyKind
}

// Server represents one MongoDB server: something that can hand out connections and
// report the server it was last observed to be.
type Server interface {
	Connection(context.Context) (Connection, error)
	Description() description.Server
}

// ErrorProcessor is implemented by Server handles that fold an in-flight operation's
// error back into SDAM state: marking the server Unknown on a "not writable primary" /
// "node is recovering" / network error and clearing its pool where the SDAM
// error-handling rules require it. The topology package's server implements this.
type ErrorProcessor interface {
	ProcessError(err error, conn Connection)
}

// Connection represents a checked-out connection to a MongoDB server. RunCommand sends
// cmd and returns the decoded reply as a single document-level round trip; framing the
// bytes is the wire layer's job.
type Connection interface {
	RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error)
	Description() description.Server
	Close() error
	ID() string
	// Stale reports whether this connection was established before the pool's current
	// generation, so SDAM error handling can ignore errors from a
	// connection a prior clear() has already invalidated.
	Stale() bool
}

// RetryMode specifies how retries are handled for an Operation.
type RetryMode uint

// The supported retry modes.
const (
	RetryNone RetryMode = iota
	RetryOnce
	RetryContext
)

// Enabled reports whether this mode enables retrying at all.
func (rm RetryMode) Enabled() bool { return rm == RetryOnce || rm == RetryContext }

// Type distinguishes a read operation (retryReads) from a write operation
// (retryWrites), since the retryable writes spec applies different eligibility rules to each.
type Type uint8

// The two operation types that matter for retry eligibility.
const (
	Write Type = iota
	Read
)

// CommandFn builds the operation's command document given the selected server and
// session, appending anything beyond the standard envelope (lsid, txnNumber,
// readConcern, writeConcern, $clusterTime, readPreference) that this package adds.
type CommandFn func(desc description.Server) (bsoncore.Document, error)

// Operation describes and runs one logical operation end to end.
type Operation struct {
	CommandName string
	Database    string
	Deployment  Deployment
	Selector    description.ServerSelector
	ReadPref    *readpref.ReadPref
	ReadConcern *readconcern.ReadConcern
	WriteConcern *writeconcern.WriteConcern
	Session     *session.Client
	Clock       *session.ClusterClock
	Type        Type
	RetryMode   RetryMode
	Command     CommandFn

	// ServerAPI, when non-nil, is appended to every command as apiVersion/apiStrict/
	// apiDeprecationErrors.
	ServerAPI *ServerAPIOptions

	Monitor *event.CommandMonitor

	// retryWrite records, for the duration of one Execute, that this write allocated a
	// txnNumber and must send it on every attempt so the server can enforce
	// exactly-once across the retry.
	retryWrite bool

	// logger is resolved from the Deployment at Execute time, so every Operation built
	// against a Topology emits command logs without each call site threading one.
	logger *logger.Logger
}

// LoggerProvider is implemented by Deployments that carry a structured logger
// (topology.Topology does); Operation resolves it once per execution.
type LoggerProvider interface {
	Logger() *logger.Logger
}

func deploymentLogger(d Deployment) *logger.Logger {
	if lp, ok := d.(LoggerProvider); ok {
		return lp.Logger()
	}
	return nil
}

func (op *Operation) canLogCommand() bool {
	return op.logger != nil && op.logger.Is(logger.LevelDebug, logger.ComponentCommand)
}

// ServerAPIOptions pins a MongoDB Stable API version on every command.
type ServerAPIOptions struct {
	ServerAPIVersion  string
	Strict            bool
	DeprecationErrors bool
}

func defaultSelector(rp *readpref.ReadPref, t Type) description.ServerSelector {
	if t == Write {
		return description.WriteSelector
	}
	if rp == nil {
		rp = readpref.Primary()
	}
	return description.CompositeSelector([]description.ServerSelector{
		description.ReadPrefSelector(rp),
		description.LatencySelector(15 * time.Millisecond),
	})
}

// Execute runs the operation, retrying once on a retryable error per the retryable writes spec.
func (op *Operation) Execute(ctx context.Context) (bsoncore.Document, error) {
	op.logger = deploymentLogger(op.Deployment)
	selector := op.Selector
	if selector == nil {
		selector = defaultSelector(op.ReadPref, op.Type)
	}

	srv, err := op.Deployment.SelectServer(ctx, selector)
	if err != nil {
		return nil, err
	}

	conn, err := srv.Connection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	retrySupported := op.retrySupported(op.Deployment.Description(), srv.Description())
	op.retryWrite = false
	if retrySupported && op.Type == Write && op.Session != nil {
		op.Session.TxnNumber++
		op.retryWrite = true
	}

	reply, err := op.roundTrip(ctx, conn, srv.Description())
	if err == nil {
		err = ExtractError(reply)
	}
	if err != nil {
		processError(srv, err, conn)
	}
	if err == nil || !op.RetryMode.Enabled() || !retrySupported || !Retryable(err) {
		return reply, err
	}

	srv2, selErr := op.Deployment.SelectServer(ctx, selector)
	if selErr != nil {
		return nil, err // the original error is more informative than a fresh selection timeout.
	}
	conn2, connErr := srv2.Connection(ctx)
	if connErr != nil {
		return nil, err
	}
	defer conn2.Close()

	reply2, err2 := op.roundTrip(ctx, conn2, srv2.Description())
	if err2 == nil {
		err2 = ExtractError(reply2)
	}
	if err2 != nil {
		processError(srv2, err2, conn2)
	}
	return reply2, err2
}

// processError hands err to the selected server's SDAM error handling, when the
// Deployment's Server type supports it (the SDAM markServerUnknown / pool-clear
// triggers).
func processError(srv Server, err error, conn Connection) {
	if ep, ok := srv.(ErrorProcessor); ok {
		ep.ProcessError(err, conn)
	}
}

// ExecuteCursor runs a cursor-opening command (find, aggregate, listCollections, ...)
// and, on success, keeps this call's connection checked out inside the returned Cursor
// so later getMores target the same server/connection pair that opened it.
func (op *Operation) ExecuteCursor(ctx context.Context, ns, collection string, typ CursorType) (*Cursor, error) {
	op.logger = deploymentLogger(op.Deployment)
	selector := op.Selector
	if selector == nil {
		selector = defaultSelector(op.ReadPref, op.Type)
	}

	srv, err := op.Deployment.SelectServer(ctx, selector)
	if err != nil {
		return nil, err
	}
	conn, err := srv.Connection(ctx)
	if err != nil {
		return nil, err
	}

	retrySupported := op.retrySupported(op.Deployment.Description(), srv.Description())

	reply, err := op.roundTrip(ctx, conn, srv.Description())
	if err == nil {
		err = ExtractError(reply)
	}
	if err != nil {
		processError(srv, err, conn)
		conn.Close()
		if !op.RetryMode.Enabled() || !retrySupported || !Retryable(err) {
			return nil, err
		}

		srv2, selErr := op.Deployment.SelectServer(ctx, selector)
		if selErr != nil {
			return nil, err
		}
		conn2, connErr := srv2.Connection(ctx)
		if connErr != nil {
			return nil, err
		}
		reply2, err2 := op.roundTrip(ctx, conn2, srv2.Description())
		if err2 == nil {
			err2 = ExtractError(reply2)
		}
		if err2 != nil {
			processError(srv2, err2, conn2)
			conn2.Close()
			return nil, err2
		}
		return newCursorFromReply(srv2, conn2, ns, collection, typ, reply2)
	}

	return newCursorFromReply(srv, conn, ns, collection, typ, reply)
}

func (op *Operation) roundTrip(ctx context.Context, conn Connection, desc description.Server) (bsoncore.Document, error) {
	cmd, err := op.buildCommand(desc)
	if err != nil {
		return nil, err
	}

	requestID := nextRequestID()
	start := time.Now()
	if op.Monitor != nil && op.Monitor.Started != nil {
		op.Monitor.Started(event.CommandStartedEvent{
			Command:      cmd,
			DatabaseName: op.Database,
			CommandName:  op.CommandName,
			RequestID:    requestID,
			ConnectionID: conn.ID(),
		})
	}
	if op.canLogCommand() {
		op.logger.Print(logger.LevelDebug, logger.CommandStartedMessage{
			RequestID:          requestID,
			DriverConnectionID: conn.ID(),
			CommandName:        op.CommandName,
			DatabaseName:       op.Database,
			Command:            cmd.String(),
		})
	}

	reply, err := conn.RunCommand(ctx, op.Database, cmd)
	duration := time.Since(start)

	if err != nil {
		if op.Monitor != nil && op.Monitor.Failed != nil {
			op.Monitor.Failed(event.CommandFailedEvent{
				Duration: duration, CommandName: op.CommandName, RequestID: requestID, ConnectionID: conn.ID(), Failure: err,
			})
		}
		if op.canLogCommand() {
			op.logger.Print(logger.LevelDebug, logger.CommandFailedMessage{
				RequestID:          requestID,
				DriverConnectionID: conn.ID(),
				CommandName:        op.CommandName,
				DurationMS:         duration.Milliseconds(),
				Failure:            err.Error(),
			})
		}
		// A connection-level failure is labeled NetworkError so retry eligibility and
		// SDAM error handling treat it uniformly with server-reported errors. Context
		// cancellation is the caller's doing and never retried.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = Error{Message: err.Error(), Labels: []string{NetworkError}, Wrapped: err}
		}
		return reply, err
	}

	if op.Monitor != nil && op.Monitor.Succeeded != nil {
		op.Monitor.Succeeded(event.CommandSucceededEvent{
			Duration: duration, CommandName: op.CommandName, RequestID: requestID, ConnectionID: conn.ID(), Reply: reply,
		})
	}
	if op.canLogCommand() {
		op.logger.Print(logger.LevelDebug, logger.CommandSucceededMessage{
			RequestID:          requestID,
			DriverConnectionID: conn.ID(),
			CommandName:        op.CommandName,
			DurationMS:         duration.Milliseconds(),
			Reply:              reply.String(),
		})
	}

	if uerr := updateClusterTimes(op.Session, op.Clock, reply); uerr != nil {
		return reply, uerr
	}
	if uerr := updateOperationTime(op.Session, reply); uerr != nil {
		return reply, uerr
	}

	return reply, nil
}

func (op *Operation) buildCommand(desc description.Server) (bsoncore.Document, error) {
	cmd, err := op.Command(desc)
	if err != nil {
		return nil, err
	}

	cmd, err = addReadConcern(cmd, op.ReadConcern, op.Session, desc)
	if err != nil {
		return nil, err
	}
	cmd, err = addWriteConcern(cmd, op.WriteConcern)
	if err != nil {
		return nil, err
	}
	cmd, err = addSession(cmd, op.Session, desc, op.retryWrite)
	if err != nil {
		return nil, err
	}
	cmd = addClusterTime(cmd, op.Session, op.Clock, desc)
	cmd = addServerAPI(cmd, op.ServerAPI)

	return cmd, nil
}

// retrySupported implements the retryable writes spec's eligibility rules: a
// retryable write is supported if the server supports sessions, the operation is not
// within a transaction, and the write is acknowledged.
func (op *Operation) retrySupported(tdesc description.Topology, desc description.Server) bool {
	if op.Type == Read {
		return tdesc.SessionTimeoutMinutesSet && desc.WireVersion != nil
	}
	return tdesc.SessionTimeoutMinutesSet &&
		tdesc.Kind != description.Single &&
		desc.SessionTimeoutMinutesSet &&
		op.Session != nil &&
		!(op.Session.TransactionInProgress() || op.Session.TransactionStarting()) &&
		writeconcern.AckWrite(op.WriteConcern)
}

func addReadConcern(cmd bsoncore.Document, rc *readconcern.ReadConcern, sess *session.Client, desc description.Server) (bsoncore.Document, error) {
	if sess != nil && sess.TransactionStarting() && sess.CurrentRc != nil {
		doc, err := sess.CurrentRc.MarshalDocument()
		if err != nil {
			return cmd, err
		}
		return cmd.Append("readConcern", bsoncore.DocumentValue(doc)), nil
	}

	if rc == nil {
		if sess == nil || !sess.Consistent || sess.OperationTime == nil {
			return cmd, nil
		}
		rc = readconcern.New()
	}

	doc, err := rc.MarshalDocument()
	if err != nil {
		return cmd, err
	}

	if sess != nil && sess.Consistent && sess.OperationTime != nil {
		doc = doc.Append("afterClusterTime", bsoncore.TimestampValue(*sess.OperationTime))
	}

	if len(doc) == 0 {
		return cmd, nil
	}
	return cmd.Append("readConcern", bsoncore.DocumentValue(doc)), nil
}

func addWriteConcern(cmd bsoncore.Document, wc *writeconcern.WriteConcern) (bsoncore.Document, error) {
	doc, err := wc.MarshalDocument()
	if err == writeconcern.ErrEmptyWriteConcern {
		return cmd, nil
	}
	if err != nil {
		return cmd, err
	}
	return cmd.Append("writeConcern", bsoncore.DocumentValue(doc)), nil
}

func addSession(cmd bsoncore.Document, sess *session.Client, desc description.Server, retryWrite bool) (bsoncore.Document, error) {
	if sess == nil || !desc.SessionTimeoutMinutesSet {
		return cmd, nil
	}
	if sess.Terminated {
		return cmd, session.ErrSessionEnded
	}

	cmd = cmd.Append("lsid", bsoncore.BinaryValue(sess.SessionID.SessionID))

	if sess.TransactionRunning() || sess.RetryingCommit {
		cmd = cmd.Append("txnNumber", bsoncore.Int64Value(sess.TxnNumber))
		if sess.TransactionStarting() {
			cmd = cmd.Append("startTransaction", bsoncore.Boolean(true))
		}
		cmd = cmd.Append("autocommit", bsoncore.Boolean(false))
	} else if retryWrite {
		cmd = cmd.Append("txnNumber", bsoncore.Int64Value(sess.TxnNumber))
	}

	sess.ApplyCommand(desc)

	return cmd, nil
}

func addClusterTime(cmd bsoncore.Document, sess *session.Client, clock *session.ClusterClock, desc description.Server) bsoncore.Document {
	if clock == nil && sess == nil {
		return cmd
	}
	if !desc.SessionTimeoutMinutesSet {
		return cmd
	}

	var ct session.ClusterTime
	if clock != nil {
		ct = clock.GetClusterTime()
	}
	if sess != nil {
		ct = session.MaxClusterTime(ct, sess.ClusterTime)
	}
	if len(ct) == 0 {
		return cmd
	}
	return cmd.Append("$clusterTime", bsoncore.BinaryValue(ct))
}

func addServerAPI(cmd bsoncore.Document, api *ServerAPIOptions) bsoncore.Document {
	if api == nil {
		return cmd
	}
	cmd = cmd.Append("apiVersion", bsoncore.String(api.ServerAPIVersion))
	if api.Strict {
		cmd = cmd.Append("apiStrict", bsoncore.Boolean(true))
	}
	if api.DeprecationErrors {
		cmd = cmd.Append("apiDeprecationErrors", bsoncore.Boolean(true))
	}
	return cmd
}

func updateClusterTimes(sess *session.Client, clock *session.ClusterClock, reply bsoncore.Document) error {
	v, ok := reply.Lookup("$clusterTime")
	if !ok {
		return nil
	}
	var ct session.ClusterTime
	if b, isBin := v.BinaryValueOK(); isBin {
		ct = session.ClusterTime(b)
	} else if doc, isDoc := v.DocumentOK(); isDoc {
		ct = session.ClusterTime(doc.Marshal())
	} else {
		return nil
	}

	if sess != nil {
		if err := sess.AdvanceClusterTime(bson.Raw(ct)); err != nil {
			return err
		}
	}
	if clock != nil {
		clock.AdvanceClusterTime(ct)
	}
	return nil
}

func updateOperationTime(sess *session.Client, reply bsoncore.Document) error {
	if sess == nil {
		return nil
	}
	v, ok := reply.Lookup("operationTime")
	if !ok {
		return nil
	}
	ts, ok := v.TimestampOK()
	if !ok {
		return nil
	}
	return sess.AdvanceOperationTime(&ts)
}

// ExtractError interprets a decoded command reply, returning nil if ok:1, or an Error /
// WriteCommandError describing the failure.
func ExtractError(reply bsoncore.Document) error {
	okVal, hasOK := reply.Lookup("ok")
	ok := hasOK && okVal.IsNumber() && truthyNumber(okVal)

	var wcErr WriteCommandError
	if arr, exists := reply.Lookup("writeErrors"); exists {
		if a, isArr := arr.ArrayOK(); isArr {
			for _, v := range a {
				doc, isDoc := v.DocumentOK()
				if !isDoc {
					continue
				}
				var we WriteError
				if idx, ok := doc.Lookup("index"); ok {
					we.Index, _ = idx.AsInt64OK()
				}
				if code, ok := doc.Lookup("code"); ok {
					we.Code, _ = code.AsInt64OK()
				}
				if msg, ok := doc.Lookup("errmsg"); ok {
					we.Message, _ = msg.StringValueOK()
				}
				wcErr.WriteErrors = append(wcErr.WriteErrors, we)
			}
		}
	}
	if v, exists := reply.Lookup("writeConcernError"); exists {
		if doc, isDoc := v.DocumentOK(); isDoc {
			wce := &WriteConcernError{}
			if code, ok := doc.Lookup("code"); ok {
				wce.Code, _ = code.AsInt64OK()
			}
			if msg, ok := doc.Lookup("errmsg"); ok {
				wce.Message, _ = msg.StringValueOK()
			}
			wcErr.WriteConcernError = wce
		}
	}
	if labels, exists := reply.Lookup("errorLabels"); exists {
		if a, isArr := labels.ArrayOK(); isArr {
			for _, v := range a {
				if s, isStr := v.StringValueOK(); isStr {
					wcErr.Labels = append(wcErr.Labels, s)
				}
			}
		}
	}

	if !ok {
		var code int32
		if v, exists := reply.Lookup("code"); exists {
			code = v.Int32()
		}
		var name, msg string
		if v, exists := reply.Lookup("codeName"); exists {
			name, _ = v.StringValueOK()
		}
		if v, exists := reply.Lookup("errmsg"); exists {
			msg, _ = v.StringValueOK()
		}
		if msg == "" {
			msg = "command failed"
		}
		return Error{Code: code, Message: msg, Name: name, Labels: wcErr.Labels}
	}

	if len(wcErr.WriteErrors) > 0 || wcErr.WriteConcernError != nil {
		return wcErr
	}
	return nil
}

func truthyNumber(v bsoncore.Value) bool {
	switch v.Type {
	case bsoncore.TypeInt32:
		return v.Int32() == 1
	case bsoncore.TypeInt64:
		return v.Int64() == 1
	case bsoncore.TypeDouble:
		return v.Double() == 1
	default:
		return false
	}
}
