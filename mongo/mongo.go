// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongo is the application-facing client: Client/Database/Collection wrap the
// lower x/mongo/driver packages (server selection, connection pooling, operation
// execution, cursors, sessions) behind the familiar collection-method API.
package mongo

import (
	"context"
	"errors"
	"strings"

	"github.com/mongocore/driver/connstring"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/event"
	"github.com/mongocore/driver/internal/logger"
	"github.com/mongocore/driver/mongo/options"
	"github.com/mongocore/driver/mongo/readconcern"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/mongo/writeconcern"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
	"github.com/mongocore/driver/x/mongo/driver/auth"
	"github.com/mongocore/driver/x/mongo/driver/session"
	"github.com/mongocore/driver/x/mongo/driver/topology"
)

// ErrNoDocuments is returned by FindOne/FindOneAnd* when the filter matches nothing.
var ErrNoDocuments = errors.New("mongo: no documents in result")

// ErrClientDisconnected is returned by ListDatabases, ListDatabaseNames, Ping,
// StartSession, and Watch when called after Disconnect.
var ErrClientDisconnected = errors.New("mongo: client is disconnected")

// ErrUnacknowledgedWrite is returned by APIs that need a server-reported result (e.g.
// InsertedID, ModifiedCount) when the effective write concern is unacknowledged.
var ErrUnacknowledgedWrite = errors.New("mongo: write result unavailable for an unacknowledged write concern")

// Client is a handle to a MongoDB deployment, wrapping one topology.Topology and the
// defaults every Database/Collection derived from it inherits.
type Client struct {
	deployment *topology.Topology

	readPreference *readpref.ReadPref
	readConcern    *readconcern.ReadConcern
	writeConcern   *writeconcern.WriteConcern
	retryWrites    bool
	retryReads     bool
	serverAPI      *driver.ServerAPIOptions
	monitor        *event.CommandMonitor
	logger         *logger.Logger

	connected bool
}

// Connect parses uri, builds a Topology from it, starts monitoring, and returns a
// ready Client.
func Connect(ctx context.Context, opts ...*options.ClientOptions) (*Client, error) {
	merged := options.MergeClientOptions(opts...)

	cs, err := connstring.Parse(merged.GetURI())
	if err != nil {
		return nil, err
	}

	c := &Client{
		readPreference: readpref.Primary(),
		readConcern:    readconcern.New(),
		writeConcern:   writeconcern.New(),
		retryWrites:    !cs.RetryWritesSet || cs.RetryWrites,
		retryReads:     true,
	}
	if merged.ReadPreference != nil {
		c.readPreference = merged.ReadPreference
	}
	if merged.ReadConcern != nil {
		c.readConcern = merged.ReadConcern
	}
	if merged.WriteConcern != nil {
		c.writeConcern = merged.WriteConcern
	}
	if merged.RetryWrites != nil {
		c.retryWrites = *merged.RetryWrites
	}
	if merged.RetryReads != nil {
		c.retryReads = *merged.RetryReads
	}
	c.monitor = merged.Monitor

	connOpts := []topology.ConnectionOption{
		topology.WithConnectionAppName(merged.GetAppName()),
	}
	if cs.Username != "" || merged.Auth != nil {
		cred := credentialFromOptions(cs, merged.Auth)
		connOpts = append(connOpts, topology.WithConnectionCredential(cred))
	}
	if merged.TLSConfig != nil {
		connOpts = append(connOpts, topology.WithTLSConfig(merged.TLSConfig))
	}

	serverOpts := []topology.ServerOption{
		topology.WithServerConnectionOptions(connOpts...),
		topology.WithServerAppName(merged.GetAppName()),
	}
	if len(cs.Compressors) > 0 {
		serverOpts = append(serverOpts, topology.WithCompressors(cs.Compressors...))
	}
	if cs.ZlibCompressionLevelSet {
		serverOpts = append(serverOpts, topology.WithZlibCompressionLevel(cs.ZlibCompressionLevel))
	}
	if merged.MaxPoolSize != nil {
		serverOpts = append(serverOpts, topology.WithMaxConnections(*merged.MaxPoolSize))
	}
	if merged.MinPoolSize != nil {
		serverOpts = append(serverOpts, topology.WithMinConnections(*merged.MinPoolSize))
	}
	if merged.HeartbeatInterval != nil {
		serverOpts = append(serverOpts, topology.WithHeartbeatInterval(*merged.HeartbeatInterval))
	}
	if merged.PoolMonitor != nil {
		serverOpts = append(serverOpts, topology.WithServerPoolMonitor(merged.PoolMonitor))
	}

	// Component log levels are sourced from the MONGODB_LOG_*/MONGODB_LOGGING_*
	// environment variables; with none set every component is off and the listener
	// discards messages without formatting them.
	c.logger = logger.New(nil, 0, nil)
	logger.StartPrintListener(c.logger)

	topoOpts := []topology.Option{
		topology.WithURI(merged.GetURI()),
		topology.WithSeedList(cs.Hosts...),
		topology.WithReplicaSetName(cs.ReplicaSet),
		topology.WithLoadBalanced(cs.LoadBalanced),
		topology.WithTopologyServerOptions(serverOpts...),
		topology.WithLogger(c.logger),
	}
	if merged.ServerSelectionTimeout != nil {
		topoOpts = append(topoOpts, topology.WithServerSelectionTimeout(*merged.ServerSelectionTimeout))
	}
	if merged.PoolMonitor != nil || merged.ServerMonitor != nil {
		topoOpts = append(topoOpts, topology.WithTopologyServerMonitor(merged.ServerMonitor))
	}

	topo, err := topology.New(topoOpts...)
	if err != nil {
		c.logger.Close()
		return nil, err
	}
	if err := topo.Connect(); err != nil {
		c.logger.Close()
		return nil, err
	}

	c.deployment = topo
	c.connected = true
	return c, nil
}

func credentialFromOptions(cs *connstring.ConnString, opt *options.Credential) *auth.Credential {
	cred := &auth.Credential{
		Username:   cs.Username,
		Password:   cs.Password,
		AuthSource: cs.AuthSource,
		AuthMechanism: cs.AuthMechanism,
	}
	if opt != nil {
		if opt.Username != "" {
			cred.Username = opt.Username
		}
		if opt.Password != "" {
			cred.Password = opt.Password
		}
		if opt.AuthSource != "" {
			cred.AuthSource = opt.AuthSource
		}
		if opt.AuthMechanism != "" {
			cred.AuthMechanism = opt.AuthMechanism
		}
	}
	return cred
}

// Database returns a handle to the named database, inheriting this client's defaults.
func (c *Client) Database(name string, opts ...*options.DatabaseOptions) *Database {
	db := &Database{
		client:         c,
		name:           name,
		readPreference: c.readPreference,
		readConcern:    c.readConcern,
		writeConcern:   c.writeConcern,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.ReadPreference != nil {
			db.readPreference = o.ReadPreference
		}
		if o.ReadConcern != nil {
			db.readConcern = o.ReadConcern
		}
		if o.WriteConcern != nil {
			db.writeConcern = o.WriteConcern
		}
	}
	return db
}

// ListDatabaseNames returns the names of the databases on the deployment.
func (c *Client) ListDatabaseNames(ctx context.Context, filter interface{}) ([]string, error) {
	dbs, err := c.ListDatabases(ctx, filter)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dbs))
	for _, d := range dbs {
		names = append(names, d)
	}
	return names, nil
}

// ListDatabases runs listDatabases against the admin database and returns the database
// names found.
func (c *Client) ListDatabases(ctx context.Context, filter interface{}) ([]string, error) {
	if !c.connected {
		return nil, ErrClientDisconnected
	}
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return nil, err
	}

	op := &driver.Operation{
		CommandName: "listDatabases",
		Database:    "admin",
		Deployment:  c.deployment,
		Type:        driver.Read,
		ReadPref:    readpref.Primary(),
		Monitor:     c.monitor,
		ServerAPI:   c.serverAPI,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("listDatabases", bsoncore.Int32Value(1))
			if len(filterDoc) > 0 {
				cmd = cmd.Append("filter", bsoncore.DocumentValue(filterDoc))
			}
			return cmd, nil
		},
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	dbsVal, ok := reply.Lookup("databases")
	if !ok {
		return names, nil
	}
	arr, _ := dbsVal.ArrayOK()
	for _, v := range arr {
		doc, ok := v.DocumentOK()
		if !ok {
			continue
		}
		if nameVal, ok := doc.Lookup("name"); ok {
			if name, ok := nameVal.StringValueOK(); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// Ping sends a ping command to the server matched by rp (default primary-preferred), failing if
// none responds within ctx.
func (c *Client) Ping(ctx context.Context, rp *readpref.ReadPref) error {
	if !c.connected {
		return ErrClientDisconnected
	}
	if rp == nil {
		rp = readpref.PrimaryPreferred()
	}
	op := &driver.Operation{
		CommandName: "ping",
		Database:    "admin",
		Deployment:  c.deployment,
		Type:        driver.Read,
		ReadPref:    rp,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append("ping", bsoncore.Int32Value(1)), nil
		},
	}
	_, err := op.Execute(ctx)
	return err
}

// StartSession starts a new, unbound client session for causal consistency and
// (eventually) multi-document transactions, per the driver sessions spec.
func (c *Client) StartSession(opts ...*options.SessionOptions) (*session.Client, error) {
	if !c.connected {
		return nil, ErrClientDisconnected
	}
	if !c.deployment.Description().SessionsSupported() {
		return nil, session.ErrSessionsNotSupported
	}
	causallyConsistent := true
	for _, o := range opts {
		if o != nil && o.CausalConsistency != nil {
			causallyConsistent = *o.CausalConsistency
		}
	}
	return session.NewClientSession(c.deployment.SessionPool(), causallyConsistent), nil
}

// Disconnect closes every connection in the deployment's pools, stops monitoring, and
// shuts down the log print listener.
func (c *Client) Disconnect(ctx context.Context) error {
	if !c.connected {
		return nil
	}
	c.connected = false
	err := c.deployment.Disconnect(ctx)
	if c.logger != nil {
		c.logger.Close()
	}
	return err
}

// Watch opens a deployment-wide change stream.
func (c *Client) Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (*ChangeStream, error) {
	if !c.connected {
		return nil, ErrClientDisconnected
	}
	return newChangeStream(ctx, changeStreamSource{client: c}, pipeline, opts...)
}

// sessionFromContext extracts the session.Client bound to ctx by UseSession/
// UseSessionWithOptions, returning nil when ctx carries no session (the implicit-session
// case every CRUD method falls back to).
func sessionFromContext(ctx context.Context) *session.Client {
	if si, ok := ctx.(*sessionImpl); ok {
		return si.client
	}
	return nil
}

func isNamespaceNotFound(err error) bool {
	var de driver.Error
	return errors.As(err, &de) && de.Code == 26
}

func dbAndCollFromNamespace(ns string) (string, string) {
	i := strings.IndexByte(ns, '.')
	if i < 0 {
		return ns, ""
	}
	return ns[:i], ns[i+1:]
}
