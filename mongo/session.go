// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"errors"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/bson/primitive"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/mongo/options"
	"github.com/mongocore/driver/mongo/readconcern"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/mongo/writeconcern"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
	"github.com/mongocore/driver/x/mongo/driver/session"
)

// ErrWrongClient is returned by SessionContext operations run against a Client other
// than the one that started the session.
var ErrWrongClient = errors.New("mongo: session was started from a different client")

// Session represents an explicit client session, carried through SessionContext into
// every operation that accepts one, per the driver sessions spec.
type Session interface {
	StartTransaction(...*options.TransactionOptions) error
	CommitTransaction(context.Context) error
	AbortTransaction(context.Context) error
	WithTransaction(ctx context.Context, fn func(sessCtx SessionContext) (interface{}, error), opts ...*options.TransactionOptions) (interface{}, error)
	EndSession(context.Context)
	ClusterTime() bson.Raw
	AdvanceClusterTime(bson.Raw) error
	OperationTime() *primitive.Timestamp
}

// SessionContext carries a Session alongside a context.Context, the combination every
// session-aware CRUD method accepts.
type SessionContext interface {
	context.Context
	Session
}

type sessionImpl struct {
	context.Context
	client *session.Client
	c      *Client

	txnReadPreference *readpref.ReadPref
	txnReadConcern    *readconcern.ReadConcern
	txnWriteConcern   *writeconcern.WriteConcern
}

func newSessionImpl(ctx context.Context, c *Client, cs *session.Client) *sessionImpl {
	return &sessionImpl{Context: ctx, client: cs, c: c}
}

// StartTransaction implements Session.
func (s *sessionImpl) StartTransaction(opts ...*options.TransactionOptions) error {
	s.txnReadPreference = s.c.readPreference
	s.txnReadConcern = s.c.readConcern
	s.txnWriteConcern = s.c.writeConcern
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.ReadPreference != nil {
			s.txnReadPreference = o.ReadPreference
		}
		if o.ReadConcern != nil {
			s.txnReadConcern = o.ReadConcern
		}
		if o.WriteConcern != nil {
			s.txnWriteConcern = o.WriteConcern
		}
	}
	return s.client.StartTransaction()
}

// CommitTransaction implements Session, sending commitTransaction to the pinned server.
func (s *sessionImpl) CommitTransaction(ctx context.Context) error {
	if !s.client.TransactionInProgress() && !s.client.TransactionStarting() {
		return errors.New("mongo: no transaction started")
	}
	err := s.runTxnCommand(ctx, "commitTransaction", s.txnWriteConcern)
	s.client.CommitTransaction()
	return err
}

// AbortTransaction implements Session, sending abortTransaction to the pinned server
// and swallowing any error per the driver sessions spec (abort is best-effort).
func (s *sessionImpl) AbortTransaction(ctx context.Context) error {
	_ = s.runTxnCommand(ctx, "abortTransaction", s.txnWriteConcern)
	s.client.AbortTransaction()
	return nil
}

func (s *sessionImpl) runTxnCommand(ctx context.Context, name string, wc *writeconcern.WriteConcern) error {
	if !s.client.TransactionRunning() {
		return nil
	}
	selector := description.ServerSelector(description.WriteSelector)
	if pinned, ok := s.client.PinnedServer(); ok {
		selector = description.AddrSelector(pinned.Addr)
	}
	op := &driver.Operation{
		CommandName:  name,
		Database:     "admin",
		Deployment:   s.c.deployment,
		Selector:     selector,
		Type:         driver.Write,
		Session:      s.client,
		WriteConcern: wc,
		Monitor:      s.c.monitor,
		ServerAPI:    s.c.serverAPI,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append(name, bsoncore.Int32Value(1)), nil
		},
	}
	_, err := op.Execute(ctx)
	return err
}

// WithTransaction runs fn inside a transaction, committing on success and aborting on
// error. Retries a commit that fails with
// UnknownTransactionCommitResult once.
func (s *sessionImpl) WithTransaction(ctx context.Context, fn func(SessionContext) (interface{}, error), opts ...*options.TransactionOptions) (interface{}, error) {
	if err := s.StartTransaction(opts...); err != nil {
		return nil, err
	}
	sessCtx := &sessionImpl{Context: ctx, client: s.client, c: s.c,
		txnReadPreference: s.txnReadPreference, txnReadConcern: s.txnReadConcern, txnWriteConcern: s.txnWriteConcern}

	result, err := fn(sessCtx)
	if err != nil {
		_ = s.AbortTransaction(ctx)
		return nil, err
	}

	err = s.CommitTransaction(ctx)
	if err != nil {
		var de driver.Error
		if errors.As(err, &de) && de.HasErrorLabel(driver.UnknownTransactionCommitResult) {
			err = s.CommitTransaction(ctx)
		}
	}
	return result, err
}

// EndSession implements Session.
func (s *sessionImpl) EndSession(context.Context) { s.client.EndSession() }

// ClusterTime implements Session.
func (s *sessionImpl) ClusterTime() bson.Raw {
	return bson.Raw(s.client.ClusterTime)
}

// AdvanceClusterTime implements Session.
func (s *sessionImpl) AdvanceClusterTime(ct bson.Raw) error {
	return s.client.AdvanceClusterTime(ct)
}

// OperationTime implements Session; returns nil if the session hasn't observed one yet.
func (s *sessionImpl) OperationTime() *primitive.Timestamp { return s.client.OperationTime }

// UseSession starts an implicit session and runs fn with it bound to ctx, ending the
// session when fn returns, per the driver sessions spec.
func (c *Client) UseSession(ctx context.Context, fn func(SessionContext) error) error {
	return c.UseSessionWithOptions(ctx, options.Session(), fn)
}

// UseSessionWithOptions is UseSession with explicit SessionOptions.
func (c *Client) UseSessionWithOptions(ctx context.Context, opts *options.SessionOptions, fn func(SessionContext) error) error {
	cs, err := c.StartSession(opts)
	if err != nil {
		return err
	}
	sessCtx := newSessionImpl(ctx, c, cs)
	defer sessCtx.EndSession(ctx)
	return fn(sessCtx)
}
