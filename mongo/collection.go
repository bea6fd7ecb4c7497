// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"fmt"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/mongo/options"
	"github.com/mongocore/driver/mongo/readconcern"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/mongo/writeconcern"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
	"github.com/mongocore/driver/x/mongo/driver/session"
)

// Collection is a handle to a MongoDB collection, the primary CRUD surface, built on
// the same driver.Operation pipeline Database uses.
type Collection struct {
	db             *Database
	name           string
	readPreference *readpref.ReadPref
	readConcern    *readconcern.ReadConcern
	writeConcern   *writeconcern.WriteConcern
}

// Name returns the collection's name.
func (coll *Collection) Name() string { return coll.name }

// Database returns the Database this Collection was derived from.
func (coll *Collection) Database() *Database { return coll.db }

// ReadPreference returns the collection's read preference.
func (coll *Collection) ReadPreference() *readpref.ReadPref { return coll.readPreference }

// ReadConcern returns the collection's read concern.
func (coll *Collection) ReadConcern() *readconcern.ReadConcern { return coll.readConcern }

// WriteConcern returns the collection's write concern.
func (coll *Collection) WriteConcern() *writeconcern.WriteConcern { return coll.writeConcern }

// Clone returns a copy of this Collection with opts applied over its current defaults.
func (coll *Collection) Clone(opts ...*options.CollectionOptions) *Collection {
	clone := &Collection{
		db:             coll.db,
		name:           coll.name,
		readPreference: coll.readPreference,
		readConcern:    coll.readConcern,
		writeConcern:   coll.writeConcern,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.ReadPreference != nil {
			clone.readPreference = o.ReadPreference
		}
		if o.ReadConcern != nil {
			clone.readConcern = o.ReadConcern
		}
		if o.WriteConcern != nil {
			clone.writeConcern = o.WriteConcern
		}
	}
	return clone
}

func (coll *Collection) namespace() string { return coll.db.name + "." + coll.name }

func (coll *Collection) selector(sess *session.Client) description.ServerSelector {
	return coll.db.selector(sess)
}

func (coll *Collection) effectiveWriteConcern(sess *session.Client) *writeconcern.WriteConcern {
	if sess != nil && sess.TransactionRunning() {
		return nil
	}
	return coll.writeConcern
}

// Indexes returns the IndexView for managing this collection's indexes.
func (coll *Collection) Indexes() IndexView { return IndexView{coll: coll} }

// Drop drops the collection, ignoring the server's "ns not found" error if it never
// existed.
func (coll *Collection) Drop(ctx context.Context) error {
	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName:  "drop",
		Database:     coll.db.name,
		Deployment:   coll.db.client.deployment,
		Selector:     coll.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        coll.db.client.deployment.Clock(),
		WriteConcern: coll.effectiveWriteConcern(sess),
		ServerAPI:    coll.db.client.serverAPI,
		Monitor:      coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append("drop", bsoncore.String(coll.name)), nil
		},
	}
	_, err := op.Execute(ctx)
	if isNamespaceNotFound(err) {
		return nil
	}
	return err
}

// Watch opens a change stream scoped to this collection, per the change streams spec.
func (coll *Collection) Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (*ChangeStream, error) {
	return newChangeStream(ctx, changeStreamSource{client: coll.db.client, db: coll.db, coll: coll}, pipeline, opts...)
}

// valueOrDocument renders v as a scalar string Value if it is a string, or else as a
// document Value, covering the comment/hint option shapes a command can accept either
// way.
func valueOrDocument(v interface{}) (bsoncore.Value, error) {
	if s, ok := v.(string); ok {
		return bsoncore.String(s), nil
	}
	doc, err := transformDocument(v)
	if err != nil {
		return bsoncore.Value{}, err
	}
	return bsoncore.DocumentValue(doc), nil
}

func collationDocument(c *options.Collation) bsoncore.Document {
	if c == nil {
		return nil
	}
	doc := bsoncore.NewDocumentBuilder()
	if c.Locale != "" {
		doc = doc.Append("locale", bsoncore.String(c.Locale))
	}
	if c.CaseLevel {
		doc = doc.Append("caseLevel", bsoncore.Boolean(true))
	}
	if c.CaseFirst != "" {
		doc = doc.Append("caseFirst", bsoncore.String(c.CaseFirst))
	}
	if c.Strength != 0 {
		doc = doc.Append("strength", bsoncore.Int32Value(int32(c.Strength)))
	}
	if c.NumericOrdering {
		doc = doc.Append("numericOrdering", bsoncore.Boolean(true))
	}
	if c.Alternate != "" {
		doc = doc.Append("alternate", bsoncore.String(c.Alternate))
	}
	if c.MaxVariable != "" {
		doc = doc.Append("maxVariable", bsoncore.String(c.MaxVariable))
	}
	if c.Normalization {
		doc = doc.Append("normalization", bsoncore.Boolean(true))
	}
	if c.Backwards {
		doc = doc.Append("backwards", bsoncore.Boolean(true))
	}
	return doc
}

// Find runs a find command against the collection, returning a Cursor over the
// matching documents.
func (coll *Collection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptionsBuilder) (*Cursor, error) {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return nil, err
	}
	args := &options.FindOptions{}
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

	typ := driver.NonTailable
	switch {
	case args.Tailable != nil && *args.Tailable && args.AwaitData != nil && *args.AwaitData:
		typ = driver.TailableAwait
	case args.Tailable != nil && *args.Tailable:
		typ = driver.Tailable
	}

	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName: "find",
		Database:    coll.db.name,
		Deployment:  coll.db.client.deployment,
		Selector:    coll.selector(sess),
		ReadPref:    coll.readPreference,
		ReadConcern: coll.readConcern,
		Type:        driver.Read,
		Session:     sess,
		Clock:       coll.db.client.deployment.Clock(),
		ServerAPI:   coll.db.client.serverAPI,
		Monitor:     coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("find", bsoncore.String(coll.name))
			if len(filterDoc) > 0 {
				cmd = cmd.Append("filter", bsoncore.DocumentValue(filterDoc))
			}
			if args.Sort != nil {
				sortDoc, err := transformDocument(args.Sort)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("sort", bsoncore.DocumentValue(sortDoc))
			}
			if args.Projection != nil {
				projDoc, err := transformDocument(args.Projection)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("projection", bsoncore.DocumentValue(projDoc))
			}
			if args.Skip != nil {
				cmd = cmd.Append("skip", bsoncore.Int64Value(*args.Skip))
			}
			if args.Limit != nil {
				cmd = cmd.Append("limit", bsoncore.Int64Value(*args.Limit))
			}
			if args.BatchSize != nil {
				cmd = cmd.Append("batchSize", bsoncore.Int32Value(*args.BatchSize))
			}
			if args.Collation != nil {
				cmd = cmd.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
			}
			if args.Comment != nil {
				v, err := valueOrDocument(args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			if args.Hint != nil {
				v, err := valueOrDocument(args.Hint)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("hint", v)
			}
			if args.MaxTime != nil {
				cmd = cmd.Append("maxTimeMS", bsoncore.Int64Value(int64(*args.MaxTime/1e6)))
			}
			if args.NoCursorTimeout != nil {
				cmd = cmd.Append("noCursorTimeout", bsoncore.Boolean(*args.NoCursorTimeout))
			}
			if args.Tailable != nil {
				cmd = cmd.Append("tailable", bsoncore.Boolean(*args.Tailable))
			}
			if args.AwaitData != nil {
				cmd = cmd.Append("awaitData", bsoncore.Boolean(*args.AwaitData))
			}
			if args.AllowDiskUse != nil {
				cmd = cmd.Append("allowDiskUse", bsoncore.Boolean(*args.AllowDiskUse))
			}
			return cmd, nil
		},
	}
	if coll.db.client.retryReads {
		op.RetryMode = driver.RetryOnce
	}
	bc, err := op.ExecuteCursor(ctx, coll.namespace(), coll.name, typ)
	if err != nil {
		return nil, err
	}
	return newCursor(bc), nil
}

// FindOne runs find with an implicit limit of 1, returning a SingleResult.
func (coll *Collection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptionsBuilder) *SingleResult {
	args := &options.FindOneOptions{}
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

	findArgs := options.Find().SetLimit(-1)
	if args.Sort != nil {
		findArgs = findArgs.SetSort(args.Sort)
	}
	if args.Projection != nil {
		findArgs = findArgs.SetProjection(args.Projection)
	}
	if args.Skip != nil {
		findArgs = findArgs.SetSkip(*args.Skip)
	}
	if args.Collation != nil {
		findArgs = findArgs.SetCollation(args.Collation)
	}
	if args.Comment != nil {
		findArgs = findArgs.SetComment(args.Comment)
	}
	if args.Hint != nil {
		findArgs = findArgs.SetHint(args.Hint)
	}

	cursor, err := coll.Find(ctx, filter, findArgs)
	if err != nil {
		return newSingleResultFromError(err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return newSingleResultFromError(err)
		}
		return newSingleResultFromError(ErrNoDocuments)
	}
	return NewSingleResultFromDocument(cursor.Current())
}

// Aggregate runs pipeline against the collection, returning a Cursor over the results.
func (coll *Collection) Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptionsBuilder) (*Cursor, error) {
	stages, err := transformPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	args := &options.AggregateOptions{}
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
		CommandName: "aggregate",
		Database:    coll.db.name,
		Deployment:  coll.db.client.deployment,
		Selector:    coll.selector(sess),
		ReadPref:    coll.readPreference,
		ReadConcern: coll.readConcern,
		Type:        driver.Read,
		Session:     sess,
		Clock:       coll.db.client.deployment.Clock(),
		ServerAPI:   coll.db.client.serverAPI,
		Monitor:     coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("aggregate", bsoncore.String(coll.name))
			cmd = cmd.Append("pipeline", bsoncore.ArrayValue(stages))
			cursorDoc := bsoncore.Document{}
			if args.BatchSize != nil {
				cursorDoc = cursorDoc.Append("batchSize", bsoncore.Int32Value(*args.BatchSize))
			}
			cmd = cmd.Append("cursor", bsoncore.DocumentValue(cursorDoc))
			if args.AllowDiskUse != nil {
				cmd = cmd.Append("allowDiskUse", bsoncore.Boolean(*args.AllowDiskUse))
			}
			if args.BypassDocumentValidation != nil {
				cmd = cmd.Append("bypassDocumentValidation", bsoncore.Boolean(*args.BypassDocumentValidation))
			}
			if args.Collation != nil {
				cmd = cmd.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
			}
			if args.Comment != nil {
				v, err := valueOrDocument(args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			if args.Hint != nil {
				v, err := valueOrDocument(args.Hint)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("hint", v)
			}
			if args.MaxTime != nil {
				cmd = cmd.Append("maxTimeMS", bsoncore.Int64Value(int64(*args.MaxTime/1e6)))
			}
			return cmd, nil
		},
	}
	if coll.db.client.retryReads {
		op.RetryMode = driver.RetryOnce
	}
	bc, err := op.ExecuteCursor(ctx, coll.namespace(), coll.name, driver.NonTailable)
	if err != nil {
		return nil, err
	}
	return newCursor(bc), nil
}

// aggregateCount runs filter through a $match/$count pipeline and returns the "n" field
// of the sole result document, or 0 if the pipeline produced nothing.
func (coll *Collection) aggregateCount(ctx context.Context, filter interface{}, opts ...*options.CountOptionsBuilder) (int64, error) {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return 0, err
	}
	args := &options.CountOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.ArgsSetters() {
			if err := setter(args); err != nil {
				return 0, err
			}
		}
	}

	pipeline := bsoncore.Array{}
	matchStage := bsoncore.Document{}.Append("$match", bsoncore.DocumentValue(filterDoc))
	pipeline = append(pipeline, bsoncore.DocumentValue(matchStage))
	if args.Skip != nil {
		pipeline = append(pipeline, bsoncore.DocumentValue(bsoncore.Document{}.Append("$skip", bsoncore.Int64Value(*args.Skip))))
	}
	if args.Limit != nil {
		pipeline = append(pipeline, bsoncore.DocumentValue(bsoncore.Document{}.Append("$limit", bsoncore.Int64Value(*args.Limit))))
	}
	pipeline = append(pipeline, bsoncore.DocumentValue(bsoncore.Document{}.Append("$count", bsoncore.String("n"))))

	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName: "aggregate",
		Database:    coll.db.name,
		Deployment:  coll.db.client.deployment,
		Selector:    coll.selector(sess),
		ReadPref:    coll.readPreference,
		ReadConcern: coll.readConcern,
		Type:        driver.Read,
		Session:     sess,
		Clock:       coll.db.client.deployment.Clock(),
		ServerAPI:   coll.db.client.serverAPI,
		Monitor:     coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("aggregate", bsoncore.String(coll.name))
			cmd = cmd.Append("pipeline", bsoncore.ArrayValue(pipeline))
			cmd = cmd.Append("cursor", bsoncore.DocumentValue(bsoncore.Document{}))
			if args.Collation != nil {
				cmd = cmd.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
			}
			if args.Hint != nil {
				v, err := valueOrDocument(args.Hint)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("hint", v)
			}
			if args.Comment != nil {
				v, err := valueOrDocument(args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			return cmd, nil
		},
	}
	bc, err := op.ExecuteCursor(ctx, coll.namespace(), coll.name, driver.NonTailable)
	if err != nil {
		return 0, err
	}
	defer bc.Close()
	docs, err := bc.ToArray(ctx)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	n, ok := docs[0].Lookup("n")
	if !ok {
		return 0, nil
	}
	count, _ := n.AsInt64OK()
	return count, nil
}

// CountDocuments returns the exact number of documents matching filter, implemented as
// a $match/$count aggregate rather than the estimated count command.
func (coll *Collection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptionsBuilder) (int64, error) {
	return coll.aggregateCount(ctx, filter, opts...)
}

// EstimatedDocumentCount returns the server's fast, metadata-based estimate of the
// collection's size.
func (coll *Collection) EstimatedDocumentCount(ctx context.Context) (int64, error) {
	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName: "count",
		Database:    coll.db.name,
		Deployment:  coll.db.client.deployment,
		Selector:    coll.selector(sess),
		ReadPref:    coll.readPreference,
		ReadConcern: coll.readConcern,
		Type:        driver.Read,
		Session:     sess,
		Clock:       coll.db.client.deployment.Clock(),
		ServerAPI:   coll.db.client.serverAPI,
		Monitor:     coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			return bsoncore.Document{}.Append("count", bsoncore.String(coll.name)), nil
		},
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return 0, err
	}
	n, ok := reply.Lookup("n")
	if !ok {
		return 0, nil
	}
	count, _ := n.AsInt64OK()
	return count, nil
}

// Distinct returns the distinct values of fieldName among documents matching filter.
func (coll *Collection) Distinct(ctx context.Context, fieldName string, filter interface{}, opts ...*options.DistinctOptionsBuilder) ([]interface{}, error) {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return nil, err
	}
	args := &options.DistinctOptions{}
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
		CommandName: "distinct",
		Database:    coll.db.name,
		Deployment:  coll.db.client.deployment,
		Selector:    coll.selector(sess),
		ReadPref:    coll.readPreference,
		ReadConcern: coll.readConcern,
		Type:        driver.Read,
		Session:     sess,
		Clock:       coll.db.client.deployment.Clock(),
		ServerAPI:   coll.db.client.serverAPI,
		Monitor:     coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("distinct", bsoncore.String(coll.name))
			cmd = cmd.Append("key", bsoncore.String(fieldName))
			if len(filterDoc) > 0 {
				cmd = cmd.Append("query", bsoncore.DocumentValue(filterDoc))
			}
			if args.Collation != nil {
				cmd = cmd.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
			}
			if args.Comment != nil {
				v, err := valueOrDocument(args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			return cmd, nil
		},
	}
	if coll.db.client.retryReads {
		op.RetryMode = driver.RetryOnce
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return nil, err
	}
	valuesVal, ok := reply.Lookup("values")
	if !ok {
		return nil, nil
	}
	arr, _ := valuesVal.ArrayOK()
	out := make([]interface{}, 0, len(arr))
	for _, v := range arr {
		gv, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, gv)
	}
	return out, nil
}

// ensureID returns doc with an "_id" element appended if it did not already carry one,
// along with the (possibly generated) id rendered back as a Go value for the result type.
func ensureID(doc bsoncore.Document) (bsoncore.Document, interface{}, error) {
	if v, ok := doc.Lookup("_id"); ok {
		gv, err := decodeValue(v)
		return doc, gv, err
	}
	id := bson.NewObjectID()
	return doc.Append("_id", bsoncore.ObjectIDValue(id)), id, nil
}

// InsertOne inserts a single document, assigning it an ObjectID _id if it doesn't
// already have one.
func (coll *Collection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptionsBuilder) (*InsertOneResult, error) {
	doc, err := transformDocument(document)
	if err != nil {
		return nil, err
	}
	doc, insertedID, err := ensureID(doc)
	if err != nil {
		return nil, err
	}

	args := &options.InsertOneOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.OptionsSetters() {
			if err := setter(args); err != nil {
				return nil, err
			}
		}
	}

	sess := sessionFromContext(ctx)
	wc := coll.effectiveWriteConcern(sess)
	op := &driver.Operation{
		CommandName:  "insert",
		Database:     coll.db.name,
		Deployment:   coll.db.client.deployment,
		Selector:     coll.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        coll.db.client.deployment.Clock(),
		WriteConcern: wc,
		ServerAPI:    coll.db.client.serverAPI,
		Monitor:      coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("insert", bsoncore.String(coll.name))
			cmd = cmd.Append("documents", bsoncore.ArrayValue(bsoncore.Array{bsoncore.DocumentValue(doc)}))
			if args.BypassDocumentValidation != nil {
				cmd = cmd.Append("bypassDocumentValidation", bsoncore.Boolean(*args.BypassDocumentValidation))
			}
			if args.Comment != nil {
				v, err := valueOrDocument(args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			return cmd, nil
		},
	}
	if coll.db.client.retryWrites {
		op.RetryMode = driver.RetryOnce
	}
	_, err = op.Execute(ctx)
	if err != nil {
		return nil, toWriteException(err)
	}
	if !writeconcern.AckWrite(wc) {
		return &InsertOneResult{}, ErrUnacknowledgedWrite
	}
	return &InsertOneResult{InsertedID: insertedID}, nil
}

// InsertMany inserts multiple documents, assigning an ObjectID _id to any that don't
// already carry one.
func (coll *Collection) InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptionsBuilder) (*InsertManyResult, error) {
	if len(documents) == 0 {
		return nil, fmt.Errorf("mongo: InsertMany requires at least one document")
	}

	docs := make(bsoncore.Array, 0, len(documents))
	ids := make([]interface{}, 0, len(documents))
	for _, d := range documents {
		doc, err := transformDocument(d)
		if err != nil {
			return nil, err
		}
		doc, id, err := ensureID(doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, bsoncore.DocumentValue(doc))
		ids = append(ids, id)
	}

	args := &options.InsertManyOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.OptionsSetters() {
			if err := setter(args); err != nil {
				return nil, err
			}
		}
	}
	ordered := options.DefaultOrdered
	if args.Ordered != nil {
		ordered = *args.Ordered
	}

	sess := sessionFromContext(ctx)
	wc := coll.effectiveWriteConcern(sess)
	op := &driver.Operation{
		CommandName:  "insert",
		Database:     coll.db.name,
		Deployment:   coll.db.client.deployment,
		Selector:     coll.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        coll.db.client.deployment.Clock(),
		WriteConcern: wc,
		ServerAPI:    coll.db.client.serverAPI,
		Monitor:      coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("insert", bsoncore.String(coll.name))
			cmd = cmd.Append("documents", bsoncore.ArrayValue(docs))
			cmd = cmd.Append("ordered", bsoncore.Boolean(ordered))
			if args.BypassDocumentValidation != nil {
				cmd = cmd.Append("bypassDocumentValidation", bsoncore.Boolean(*args.BypassDocumentValidation))
			}
			if args.Comment != nil {
				v, err := valueOrDocument(args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			return cmd, nil
		},
	}
	if coll.db.client.retryWrites && ordered {
		op.RetryMode = driver.RetryOnce
	}
	_, err := op.Execute(ctx)
	if err != nil {
		return nil, toWriteException(err)
	}
	if !writeconcern.AckWrite(wc) {
		return &InsertManyResult{}, ErrUnacknowledgedWrite
	}
	return &InsertManyResult{InsertedIDs: ids}, nil
}

func (coll *Collection) update(ctx context.Context, filter, update interface{}, arrayFilters []interface{}, multi bool, args *options.UpdateOptions) (*UpdateResult, error) {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return nil, err
	}
	updateDoc, err := transformDocument(update)
	if err != nil {
		return nil, err
	}

	sess := sessionFromContext(ctx)
	wc := coll.effectiveWriteConcern(sess)
	op := &driver.Operation{
		CommandName:  "update",
		Database:     coll.db.name,
		Deployment:   coll.db.client.deployment,
		Selector:     coll.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        coll.db.client.deployment.Clock(),
		WriteConcern: wc,
		ServerAPI:    coll.db.client.serverAPI,
		Monitor:      coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			u := bsoncore.Document{}.Append("q", bsoncore.DocumentValue(filterDoc))
			u = u.Append("u", bsoncore.DocumentValue(updateDoc))
			u = u.Append("multi", bsoncore.Boolean(multi))
			if args.Upsert != nil {
				u = u.Append("upsert", bsoncore.Boolean(*args.Upsert))
			}
			if len(arrayFilters) > 0 {
				af := make(bsoncore.Array, 0, len(arrayFilters))
				for _, f := range arrayFilters {
					fd, err := transformDocument(f)
					if err != nil {
						return nil, err
					}
					af = append(af, bsoncore.DocumentValue(fd))
				}
				u = u.Append("arrayFilters", bsoncore.ArrayValue(af))
			}
			if args.Collation != nil {
				u = u.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
			}
			if args.Hint != nil {
				v, err := valueOrDocument(args.Hint)
				if err != nil {
					return nil, err
				}
				u = u.Append("hint", v)
			}

			cmd := bsoncore.Document{}.Append("update", bsoncore.String(coll.name))
			cmd = cmd.Append("updates", bsoncore.ArrayValue(bsoncore.Array{bsoncore.DocumentValue(u)}))
			if args.BypassDocumentValidation != nil {
				cmd = cmd.Append("bypassDocumentValidation", bsoncore.Boolean(*args.BypassDocumentValidation))
			}
			if args.Comment != nil {
				v, err := valueOrDocument(args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			return cmd, nil
		},
	}
	if coll.db.client.retryWrites && !multi {
		op.RetryMode = driver.RetryOnce
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return nil, toWriteException(err)
	}
	if !writeconcern.AckWrite(wc) {
		return &UpdateResult{}, ErrUnacknowledgedWrite
	}
	return parseUpdateResult(reply), nil
}

func parseUpdateResult(reply bsoncore.Document) *UpdateResult {
	res := &UpdateResult{}
	if v, ok := reply.Lookup("n"); ok {
		res.MatchedCount, _ = v.AsInt64OK()
	}
	if v, ok := reply.Lookup("nModified"); ok {
		res.ModifiedCount, _ = v.AsInt64OK()
	}
	if v, ok := reply.Lookup("upserted"); ok {
		if arr, isArr := v.ArrayOK(); isArr && len(arr) > 0 {
			res.UpsertedCount = int64(len(arr))
			res.MatchedCount -= res.UpsertedCount
			if doc, isDoc := arr[0].DocumentOK(); isDoc {
				if idVal, ok := doc.Lookup("_id"); ok {
					res.UpsertedID, _ = decodeValue(idVal)
				}
			}
		}
	}
	return res
}

// UpdateOne applies update to at most one document matching filter.
func (coll *Collection) UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptionsBuilder) (*UpdateResult, error) {
	args := &options.UpdateOptions{}
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
	return coll.update(ctx, filter, update, args.ArrayFilters, false, args)
}

// UpdateMany applies update to every document matching filter.
func (coll *Collection) UpdateMany(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptionsBuilder) (*UpdateResult, error) {
	args := &options.UpdateOptions{}
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
	return coll.update(ctx, filter, update, args.ArrayFilters, true, args)
}

// ReplaceOne replaces at most one document matching filter with replacement.
func (coll *Collection) ReplaceOne(ctx context.Context, filter, replacement interface{}, opts ...*options.UpdateOptionsBuilder) (*UpdateResult, error) {
	args := &options.UpdateOptions{}
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
	return coll.update(ctx, filter, replacement, nil, false, args)
}

func (coll *Collection) delete(ctx context.Context, filter interface{}, multi bool, args *options.DeleteOptions) (*DeleteResult, error) {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return nil, err
	}
	limit := int32(1)
	if multi {
		limit = 0
	}

	sess := sessionFromContext(ctx)
	wc := coll.effectiveWriteConcern(sess)
	op := &driver.Operation{
		CommandName:  "delete",
		Database:     coll.db.name,
		Deployment:   coll.db.client.deployment,
		Selector:     coll.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        coll.db.client.deployment.Clock(),
		WriteConcern: wc,
		ServerAPI:    coll.db.client.serverAPI,
		Monitor:      coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			d := bsoncore.Document{}.Append("q", bsoncore.DocumentValue(filterDoc))
			d = d.Append("limit", bsoncore.Int32Value(limit))
			if args.Collation != nil {
				d = d.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
			}
			if args.Hint != nil {
				v, err := valueOrDocument(args.Hint)
				if err != nil {
					return nil, err
				}
				d = d.Append("hint", v)
			}

			cmd := bsoncore.Document{}.Append("delete", bsoncore.String(coll.name))
			cmd = cmd.Append("deletes", bsoncore.ArrayValue(bsoncore.Array{bsoncore.DocumentValue(d)}))
			if args.Comment != nil {
				v, err := valueOrDocument(args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			return cmd, nil
		},
	}
	if coll.db.client.retryWrites {
		op.RetryMode = driver.RetryOnce
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return nil, toWriteException(err)
	}
	if !writeconcern.AckWrite(wc) {
		return &DeleteResult{}, ErrUnacknowledgedWrite
	}
	res := &DeleteResult{}
	if v, ok := reply.Lookup("n"); ok {
		res.DeletedCount, _ = v.AsInt64OK()
	}
	return res, nil
}

// DeleteOne removes at most one document matching filter.
func (coll *Collection) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptionsBuilder) (*DeleteResult, error) {
	args := &options.DeleteOptions{}
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
	return coll.delete(ctx, filter, false, args)
}

// DeleteMany removes every document matching filter.
func (coll *Collection) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptionsBuilder) (*DeleteResult, error) {
	args := &options.DeleteOptions{}
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
	return coll.delete(ctx, filter, true, args)
}

func (coll *Collection) findAndModify(ctx context.Context, build func(cmd bsoncore.Document) (bsoncore.Document, error)) *SingleResult {
	sess := sessionFromContext(ctx)
	wc := coll.effectiveWriteConcern(sess)
	op := &driver.Operation{
		CommandName:  "findAndModify",
		Database:     coll.db.name,
		Deployment:   coll.db.client.deployment,
		Selector:     coll.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        coll.db.client.deployment.Clock(),
		WriteConcern: wc,
		ServerAPI:    coll.db.client.serverAPI,
		Monitor:      coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			return build(bsoncore.Document{}.Append("findAndModify", bsoncore.String(coll.name)))
		},
	}
	if coll.db.client.retryWrites {
		op.RetryMode = driver.RetryOnce
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return newSingleResultFromError(toWriteException(err))
	}
	v, ok := reply.Lookup("value")
	if !ok {
		return newSingleResultFromError(ErrNoDocuments)
	}
	doc, isDoc := v.DocumentOK()
	if !isDoc || len(doc) == 0 {
		return newSingleResultFromError(ErrNoDocuments)
	}
	return NewSingleResultFromDocument(doc)
}

// FindOneAndUpdate applies update to the first document matching filter and returns it
// (before or after the update, per ReturnDocument).
func (coll *Collection) FindOneAndUpdate(ctx context.Context, filter, update interface{}, opts ...*options.FindOneAndUpdateOptionsBuilder) *SingleResult {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return newSingleResultFromError(err)
	}
	updateDoc, err := transformDocument(update)
	if err != nil {
		return newSingleResultFromError(err)
	}
	args := &options.FindOneAndUpdateOptions{}
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

	return coll.findAndModify(ctx, func(cmd bsoncore.Document) (bsoncore.Document, error) {
		cmd = cmd.Append("query", bsoncore.DocumentValue(filterDoc))
		cmd = cmd.Append("update", bsoncore.DocumentValue(updateDoc))
		if args.ReturnDocument != nil && *args.ReturnDocument == options.After {
			cmd = cmd.Append("new", bsoncore.Boolean(true))
		}
		if args.Upsert != nil {
			cmd = cmd.Append("upsert", bsoncore.Boolean(*args.Upsert))
		}
		if args.Sort != nil {
			sortDoc, err := transformDocument(args.Sort)
			if err != nil {
				return nil, err
			}
			cmd = cmd.Append("sort", bsoncore.DocumentValue(sortDoc))
		}
		if args.Projection != nil {
			projDoc, err := transformDocument(args.Projection)
			if err != nil {
				return nil, err
			}
			cmd = cmd.Append("fields", bsoncore.DocumentValue(projDoc))
		}
		if len(args.ArrayFilters) > 0 {
			af := make(bsoncore.Array, 0, len(args.ArrayFilters))
			for _, f := range args.ArrayFilters {
				fd, err := transformDocument(f)
				if err != nil {
					return nil, err
				}
				af = append(af, bsoncore.DocumentValue(fd))
			}
			cmd = cmd.Append("arrayFilters", bsoncore.ArrayValue(af))
		}
		if args.Collation != nil {
			cmd = cmd.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
		}
		if args.BypassDocumentValidation != nil {
			cmd = cmd.Append("bypassDocumentValidation", bsoncore.Boolean(*args.BypassDocumentValidation))
		}
		return cmd, nil
	})
}

// FindOneAndReplace replaces the first document matching filter and returns it (before
// or after the replacement, per ReturnDocument).
func (coll *Collection) FindOneAndReplace(ctx context.Context, filter, replacement interface{}, opts ...*options.FindOneAndReplaceOptionsBuilder) *SingleResult {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return newSingleResultFromError(err)
	}
	replDoc, err := transformDocument(replacement)
	if err != nil {
		return newSingleResultFromError(err)
	}
	args := &options.FindOneAndReplaceOptions{}
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

	return coll.findAndModify(ctx, func(cmd bsoncore.Document) (bsoncore.Document, error) {
		cmd = cmd.Append("query", bsoncore.DocumentValue(filterDoc))
		cmd = cmd.Append("update", bsoncore.DocumentValue(replDoc))
		if args.ReturnDocument != nil && *args.ReturnDocument == options.After {
			cmd = cmd.Append("new", bsoncore.Boolean(true))
		}
		if args.Upsert != nil {
			cmd = cmd.Append("upsert", bsoncore.Boolean(*args.Upsert))
		}
		if args.Sort != nil {
			sortDoc, err := transformDocument(args.Sort)
			if err != nil {
				return nil, err
			}
			cmd = cmd.Append("sort", bsoncore.DocumentValue(sortDoc))
		}
		if args.Projection != nil {
			projDoc, err := transformDocument(args.Projection)
			if err != nil {
				return nil, err
			}
			cmd = cmd.Append("fields", bsoncore.DocumentValue(projDoc))
		}
		if args.Collation != nil {
			cmd = cmd.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
		}
		if args.BypassDocumentValidation != nil {
			cmd = cmd.Append("bypassDocumentValidation", bsoncore.Boolean(*args.BypassDocumentValidation))
		}
		return cmd, nil
	})
}

// FindOneAndDelete removes the first document matching filter and returns it.
func (coll *Collection) FindOneAndDelete(ctx context.Context, filter interface{}, opts ...*options.FindOneAndDeleteOptionsBuilder) *SingleResult {
	filterDoc, err := transformDocument(filter)
	if err != nil {
		return newSingleResultFromError(err)
	}
	args := &options.FindOneAndDeleteOptions{}
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

	return coll.findAndModify(ctx, func(cmd bsoncore.Document) (bsoncore.Document, error) {
		cmd = cmd.Append("query", bsoncore.DocumentValue(filterDoc))
		cmd = cmd.Append("remove", bsoncore.Boolean(true))
		if args.Sort != nil {
			sortDoc, err := transformDocument(args.Sort)
			if err != nil {
				return nil, err
			}
			cmd = cmd.Append("sort", bsoncore.DocumentValue(sortDoc))
		}
		if args.Projection != nil {
			projDoc, err := transformDocument(args.Projection)
			if err != nil {
				return nil, err
			}
			cmd = cmd.Append("fields", bsoncore.DocumentValue(projDoc))
		}
		if args.Collation != nil {
			cmd = cmd.Append("collation", bsoncore.DocumentValue(collationDocument(args.Collation)))
		}
		return cmd, nil
	})
}

// toWriteException translates a driver.WriteCommandError into the mongo package's
// WriteException, leaving any other error (selection timeouts, network errors) as-is.
func toWriteException(err error) error {
	wce, ok := err.(driver.WriteCommandError)
	if !ok {
		return err
	}
	we := WriteException{}
	for _, e := range wce.WriteErrors {
		we.WriteErrors = append(we.WriteErrors, WriteError{Index: int(e.Index), Code: int(e.Code), Message: e.Message})
	}
	if wce.WriteConcernError != nil {
		we.WriteConcernError = &WriteConcernError{Code: int(wce.WriteConcernError.Code), Message: wce.WriteConcernError.Message}
	}
	return we
}

// BulkWrite executes models against the collection. Ordered bulk writes (the default)
// stop at the first failing model; unordered writes run every model and aggregate every
// failure into the returned BulkWriteException.
func (coll *Collection) BulkWrite(ctx context.Context, models []WriteModel, opts ...*options.BulkWriteOptions) (*BulkWriteResult, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("mongo: BulkWrite requires at least one model")
	}

	args := &options.BulkWriteArgs{}
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
	ordered := options.DefaultOrdered
	if args.Ordered != nil {
		ordered = *args.Ordered
	}

	result := &BulkWriteResult{
		InsertedIDs: map[int64]interface{}{},
		UpsertedIDs: map[int64]interface{}{},
	}
	var bwe BulkWriteException

	for i, model := range models {
		var modelErr error
		switch m := model.(type) {
		case *InsertOneModel:
			res, err := coll.InsertOne(ctx, m.Document)
			if err == nil {
				result.InsertedCount++
				result.InsertedIDs[int64(i)] = res.InsertedID
			}
			modelErr = err
		case *UpdateOneModel:
			uArgs := options.Update()
			if m.Upsert != nil {
				uArgs = uArgs.SetUpsert(*m.Upsert)
			}
			res, err := coll.UpdateOne(ctx, m.Filter, m.Update, uArgs)
			if err == nil {
				result.MatchedCount += res.MatchedCount
				result.ModifiedCount += res.ModifiedCount
				result.UpsertedCount += res.UpsertedCount
				if res.UpsertedID != nil {
					result.UpsertedIDs[int64(i)] = res.UpsertedID
				}
			}
			modelErr = err
		case *UpdateManyModel:
			uArgs := options.Update()
			if m.Upsert != nil {
				uArgs = uArgs.SetUpsert(*m.Upsert)
			}
			res, err := coll.UpdateMany(ctx, m.Filter, m.Update, uArgs)
			if err == nil {
				result.MatchedCount += res.MatchedCount
				result.ModifiedCount += res.ModifiedCount
				result.UpsertedCount += res.UpsertedCount
				if res.UpsertedID != nil {
					result.UpsertedIDs[int64(i)] = res.UpsertedID
				}
			}
			modelErr = err
		case *ReplaceOneModel:
			rArgs := options.Replace()
			if m.Upsert != nil {
				rArgs = rArgs.SetUpsert(*m.Upsert)
			}
			res, err := coll.ReplaceOne(ctx, m.Filter, m.Replacement, rArgs)
			if err == nil {
				result.MatchedCount += res.MatchedCount
				result.ModifiedCount += res.ModifiedCount
				result.UpsertedCount += res.UpsertedCount
				if res.UpsertedID != nil {
					result.UpsertedIDs[int64(i)] = res.UpsertedID
				}
			}
			modelErr = err
		case *DeleteOneModel:
			res, err := coll.DeleteOne(ctx, m.Filter)
			if err == nil {
				result.DeletedCount += res.DeletedCount
			}
			modelErr = err
		case *DeleteManyModel:
			res, err := coll.DeleteMany(ctx, m.Filter)
			if err == nil {
				result.DeletedCount += res.DeletedCount
			}
			modelErr = err
		default:
			modelErr = fmt.Errorf("mongo: unsupported WriteModel %T", model)
		}

		if modelErr == nil {
			continue
		}
		if we, ok := modelErr.(WriteException); ok {
			for _, e := range we.WriteErrors {
				bwe.WriteErrors = append(bwe.WriteErrors, BulkWriteError{WriteError: e, Request: model})
			}
			if we.WriteConcernError != nil {
				bwe.WriteConcernError = we.WriteConcernError
			}
		} else {
			bwe.WriteErrors = append(bwe.WriteErrors, BulkWriteError{
				WriteError: WriteError{Index: i, Message: modelErr.Error()},
				Request:    model,
			})
		}
		if ordered {
			break
		}
	}

	if len(bwe.WriteErrors) > 0 || bwe.WriteConcernError != nil {
		return result, bwe
	}
	return result, nil
}
