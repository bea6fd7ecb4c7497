// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"

	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/mongo/options"
	"github.com/mongocore/driver/mongo/readconcern"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/mongo/writeconcern"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
	"github.com/mongocore/driver/x/mongo/driver/session"
)

// Database is a handle to a named MongoDB database, the parent of every Collection
// derived from it.
type Database struct {
	client         *Client
	name           string
	readPreference *readpref.ReadPref
	readConcern    *readconcern.ReadConcern
	writeConcern   *writeconcern.WriteConcern
}

// Client returns the Client this Database was derived from.
func (db *Database) Client() *Client { return db.client }

// Name returns the database's name.
func (db *Database) Name() string { return db.name }

// ReadPreference returns the database's read preference.
func (db *Database) ReadPreference() *readpref.ReadPref { return db.readPreference }

// ReadConcern returns the database's read concern.
func (db *Database) ReadConcern() *readconcern.ReadConcern { return db.readConcern }

// WriteConcern returns the database's write concern.
func (db *Database) WriteConcern() *writeconcern.WriteConcern { return db.writeConcern }

// Collection returns a handle to the named collection, inheriting this database's
// defaults unless overridden by opts.
func (db *Database) Collection(name string, opts ...*options.CollectionOptions) *Collection {
	coll := &Collection{
		db:             db,
		name:           name,
		readPreference: db.readPreference,
		readConcern:    db.readConcern,
		writeConcern:   db.writeConcern,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.ReadPreference != nil {
			coll.readPreference = o.ReadPreference
		}
		if o.ReadConcern != nil {
			coll.readConcern = o.ReadConcern
		}
		if o.WriteConcern != nil {
			coll.writeConcern = o.WriteConcern
		}
	}
	return coll
}

func (db *Database) selector(sess *session.Client) description.ServerSelector {
	if sess != nil {
		if pinned, ok := sess.PinnedServer(); ok {
			return description.AddrSelector(pinned.Addr)
		}
	}
	return nil
}

func (db *Database) effectiveWriteConcern(sess *session.Client) *writeconcern.WriteConcern {
	if sess != nil && sess.TransactionRunning() {
		return nil
	}
	return db.writeConcern
}

// RunCommand runs cmd against the database, targeting the primary unless opts supplies a
// read preference, per the server selection spec.
func (db *Database) RunCommand(ctx context.Context, cmd interface{}, opts ...*options.RunCmdOptionsBuilder) *SingleResult {
	cmdDoc, err := transformDocument(cmd)
	if err != nil {
		return newSingleResultFromError(err)
	}
	args := &options.RunCmdOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.ArgsSetters() {
			if err := setter(args); err != nil {
				return newSingleResultFromError(err)
			}
		}
	}
	rp := readpref.Primary()
	if args.ReadPreference != nil {
		rp = args.ReadPreference
	}

	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName: firstKey(cmdDoc),
		Database:    db.name,
		Deployment:  db.client.deployment,
		Selector:    db.selector(sess),
		ReadPref:    rp,
		Type:        driver.Read,
		Session:     sess,
		Clock:       db.client.deployment.Clock(),
		ServerAPI:   db.client.serverAPI,
		Monitor:     db.client.monitor,
		Command:     func(description.Server) (bsoncore.Document, error) { return cmdDoc, nil },
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return newSingleResultFromError(err)
	}
	return NewSingleResultFromDocument(reply)
}

// RunCommandCursor is like RunCommand but for commands whose reply is a cursor
// document (e.g. aggregate run through RunCommand).
func (db *Database) RunCommandCursor(ctx context.Context, cmd interface{}, opts ...*options.RunCmdOptionsBuilder) (*Cursor, error) {
	cmdDoc, err := transformDocument(cmd)
	if err != nil {
		return nil, err
	}
	args := &options.RunCmdOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.ArgsSetters() {
			if err := setter(args); err != nil {
				return nil, err
			}
		}
	}
	rp := readpref.Primary()
	if args.ReadPreference != nil {
		rp = args.ReadPreference
	}

	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName: firstKey(cmdDoc),
		Database:    db.name,
		Deployment:  db.client.deployment,
		Selector:    db.selector(sess),
		ReadPref:    rp,
		Type:        driver.Read,
		Session:     sess,
		Clock:       db.client.deployment.Clock(),
		ServerAPI:   db.client.serverAPI,
		Monitor:     db.client.monitor,
		Command:     func(description.Server) (bsoncore.Document, error) { return cmdDoc, nil },
	}
	bc, err := op.ExecuteCursor(ctx, db.name, "", driver.NonTailable)
	if err != nil {
		return nil, err
	}
	return newCursor(bc), nil
}

// Drop drops the database, ignoring the server's "ns not found" error if it never
// existed.
func (db *Database) Drop(ctx context.Context) error {
	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName:  "dropDatabase",
		Database:     db.name,
		Deployment:   db.client.deployment,
		Selector:     db.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        db.client.deployment.Clock(),
		WriteConcern: db.effectiveWriteConcern(sess),
		ServerAPI:    db.client.serverAPI,
		Monitor:      db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append("dropDatabase", bsoncore.Int32Value(1)), nil
		},
	}
	_, err := op.Execute(ctx)
	if isNamespaceNotFound(err) {
		return nil
	}
	return err
}

// ListCollectionNames returns the names of the collections in the database matching
// filter.
func (db *Database) ListCollectionNames(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptionsBuilder) ([]string, error) {
	nameOnlyOpts := append([]*options.ListCollectionsOptionsBuilder{options.ListCollections().SetNameOnly(true)}, opts...)
	cursor, err := db.ListCollections(ctx, filter, nameOnlyOpts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var spec struct {
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&spec); err != nil {
			return nil, err
		}
		names = append(names, spec.Name)
	}
	return names, cursor.Err()
}

// ListCollections runs listCollections against the database, returning a Cursor over
// the matching collection specifications.
func (db *Database) ListCollections(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptionsBuilder) (*Cursor, error) {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return nil, err
	}

	args := &options.ListCollectionsOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.ArgsSetters() {
			if err := setter(args); err != nil {
				return nil, err
			}
		}
	}

	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName: "listCollections",
		Database:    db.name,
		Deployment:  db.client.deployment,
		Selector:    db.selector(sess),
		ReadPref:    readpref.Primary(),
		Type:        driver.Read,
		Session:     sess,
		Clock:       db.client.deployment.Clock(),
		ServerAPI:   db.client.serverAPI,
		Monitor:     db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("listCollections", bsoncore.Int32Value(1))
			if len(filterDoc) > 0 {
				cmd = cmd.Append("filter", bsoncore.DocumentValue(filterDoc))
			}
			if args.NameOnly != nil {
				cmd = cmd.Append("nameOnly", bsoncore.Boolean(*args.NameOnly))
			}
			if args.AuthorizedCollections != nil {
				cmd = cmd.Append("authorizedCollections", bsoncore.Boolean(*args.AuthorizedCollections))
			}
			if args.BatchSize != nil {
				cursorDoc := bsoncore.Document{}.Append("batchSize", bsoncore.Int32Value(*args.BatchSize))
				cmd = cmd.Append("cursor", bsoncore.DocumentValue(cursorDoc))
			}
			return cmd, nil
		},
	}
	bc, err := op.ExecuteCursor(ctx, db.name, "", driver.NonTailable)
	if err != nil {
		return nil, err
	}
	return newCursor(bc), nil
}

// CreateCollection explicitly creates a collection, e.g. to configure it as capped
// (createCollection, drop, and friends).
func (db *Database) CreateCollection(ctx context.Context, name string, opts ...*options.CreateCollectionOptionsBuilder) error {
	args := &options.CreateCollectionOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.ArgsSetters() {
			if err := setter(args); err != nil {
				return err
			}
		}
	}

	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName:  "create",
		Database:     db.name,
		Deployment:   db.client.deployment,
		Selector:     db.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        db.client.deployment.Clock(),
		WriteConcern: db.effectiveWriteConcern(sess),
		ServerAPI:    db.client.serverAPI,
		Monitor:      db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("create", bsoncore.String(name))
			if args.Capped != nil && *args.Capped {
				cmd = cmd.Append("capped", bsoncore.Boolean(true))
				if args.SizeInBytes != nil {
					cmd = cmd.Append("size", bsoncore.Int64Value(*args.SizeInBytes))
				}
				if args.MaxDocuments != nil {
					cmd = cmd.Append("max", bsoncore.Int64Value(*args.MaxDocuments))
				}
			}
			return cmd, nil
		},
	}
	_, err := op.Execute(ctx)
	return err
}

// Watch opens a database-wide change stream, per the change streams spec.
func (db *Database) Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (*ChangeStream, error) {
	return newChangeStream(ctx, changeStreamSource{client: db.client, db: db}, pipeline, opts...)
}

func firstKey(doc bsoncore.Document) string {
	if len(doc) == 0 {
		return ""
	}
	return doc[0].Key
}
