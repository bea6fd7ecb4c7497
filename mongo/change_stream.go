// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"errors"

	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/mongo/options"
	"github.com/mongocore/driver/mongo/readconcern"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
	"github.com/mongocore/driver/x/mongo/driver/session"
)

// errors the server reports that make a change stream non-resumable.
const errorInterrupted int32 = 11601
const errorCappedPositionLost int32 = 136
const errorCursorKilled int32 = 237
const errorMaxTimeMSExpired int32 = 50

// ErrMissingResumeToken indicates that a change stream notification from the server did
// not contain a resume token.
var ErrMissingResumeToken = errors.New("mongo: cannot provide resume functionality when the resume token is missing")

// changeStreamSource identifies the scope a ChangeStream watches: a single collection,
// a whole database, or the entire deployment.
type changeStreamSource struct {
	client *Client
	db     *Database
	coll   *Collection
}

func (s changeStreamSource) databaseName() string {
	if s.db != nil {
		return s.db.name
	}
	return "admin"
}

func (s changeStreamSource) collectionOrOne() bsoncore.Value {
	if s.coll != nil {
		return bsoncore.String(s.coll.name)
	}
	return bsoncore.Int32Value(1)
}

func (s changeStreamSource) selector(sess *session.Client) description.ServerSelector {
	if sess != nil {
		if pinned, ok := sess.PinnedServer(); ok {
			return description.AddrSelector(pinned.Addr)
		}
	}
	return nil
}

func (s changeStreamSource) readPreference() *readpref.ReadPref {
	switch {
	case s.coll != nil:
		return s.coll.readPreference
	case s.db != nil:
		return s.db.readPreference
	default:
		return s.client.readPreference
	}
}

func (s changeStreamSource) readConcern() *readconcern.ReadConcern {
	switch {
	case s.coll != nil:
		return s.coll.readConcern
	case s.db != nil:
		return s.db.readConcern
	default:
		return s.client.readConcern
	}
}

// ChangeStream exposes the notifications of a MongoDB change stream as a Cursor-like
// iterator, transparently resuming the underlying aggregate cursor across resumable
// errors per the change streams spec resumability invariant.
type ChangeStream struct {
	source       changeStreamSource
	pipeline     bsoncore.Array
	args         *options.ChangeStreamArgs
	sess         *session.Client
	ownsSession  bool
	cursor       *driver.Cursor
	current      bsoncore.Document
	resumeToken  bsoncore.Document
	invalidated  bool
	err          error
}

func (cs *ChangeStream) changeStreamStageDoc() bsoncore.Document {
	doc := bsoncore.NewDocumentBuilder()
	if cs.source.coll == nil && cs.source.db == nil {
		doc = doc.Append("allChangesForCluster", bsoncore.Boolean(true))
	}
	if cs.args.FullDocument != nil {
		doc = doc.Append("fullDocument", bsoncore.String(string(*cs.args.FullDocument)))
	}
	if cs.args.FullDocumentBeforeChange != nil {
		doc = doc.Append("fullDocumentBeforeChange", bsoncore.String(string(*cs.args.FullDocumentBeforeChange)))
	}
	if cs.args.ShowExpandedEvents != nil {
		doc = doc.Append("showExpandedEvents", bsoncore.Boolean(*cs.args.ShowExpandedEvents))
	}
	switch {
	case cs.resumeToken != nil:
		doc = doc.Append("resumeAfter", bsoncore.DocumentValue(cs.resumeToken))
	case cs.args.StartAfter != nil:
		sa, err := transformDocument(cs.args.StartAfter)
		if err == nil {
			doc = doc.Append("startAfter", bsoncore.DocumentValue(sa))
		}
	case cs.args.ResumeAfter != nil:
		ra, err := transformDocument(cs.args.ResumeAfter)
		if err == nil {
			doc = doc.Append("resumeAfter", bsoncore.DocumentValue(ra))
		}
	case cs.args.StartAtOperationTime != nil:
		doc = doc.Append("startAtOperationTime", bsoncore.TimestampValue(*cs.args.StartAtOperationTime))
	}
	for k, v := range cs.args.CustomPipeline {
		fv, err := transformValue(v)
		if err == nil {
			doc = doc.Append(k, fv)
		}
	}
	return doc
}

func (cs *ChangeStream) runAggregate(ctx context.Context) error {
	stageDoc := cs.changeStreamStageDoc()
	fullPipeline := bsoncore.Array{bsoncore.DocumentValue(bsoncore.Document{}.Append("$changeStream", bsoncore.DocumentValue(stageDoc)))}
	fullPipeline = append(fullPipeline, cs.pipeline...)

	op := &driver.Operation{
		CommandName: "aggregate",
		Database:    cs.source.databaseName(),
		Deployment:  cs.source.client.deployment,
		Selector:    cs.source.selector(cs.sess),
		ReadPref:    cs.source.readPreference(),
		ReadConcern: cs.source.readConcern(),
		Type:        driver.Read,
		Session:     cs.sess,
		Clock:       cs.source.client.deployment.Clock(),
		ServerAPI:   cs.source.client.serverAPI,
		Monitor:     cs.source.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("aggregate", cs.source.collectionOrOne())
			cmd = cmd.Append("pipeline", bsoncore.ArrayValue(fullPipeline))
			cursorDoc := bsoncore.Document{}
			if cs.args.BatchSize != nil {
				cursorDoc = cursorDoc.Append("batchSize", bsoncore.Int32Value(*cs.args.BatchSize))
			}
			cmd = cmd.Append("cursor", bsoncore.DocumentValue(cursorDoc))
			if cs.args.Collation != nil {
				cmd = cmd.Append("collation", bsoncore.DocumentValue(collationDocument(cs.args.Collation)))
			}
			if cs.args.Comment != nil {
				v, err := valueOrDocument(cs.args.Comment)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("comment", v)
			}
			for k, v := range cs.args.Custom {
				fv, err := transformValue(v)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append(k, fv)
			}
			return cmd, nil
		},
	}

	ns := cs.source.databaseName()
	collName := ""
	if cs.source.coll != nil {
		ns = cs.source.coll.namespace()
		collName = cs.source.coll.name
	}
	bc, err := op.ExecuteCursor(ctx, ns, collName, driver.TailableAwait)
	if err != nil {
		return err
	}
	if cs.args.MaxAwaitTime != nil {
		bc.SetMaxAwaitTime(*cs.args.MaxAwaitTime)
	}
	cs.cursor = bc
	if tok := bc.PostBatchResumeToken(); tok != nil {
		cs.resumeToken = tok
	}
	return nil
}

// newChangeStream opens the initial aggregate for source, returning a ready ChangeStream
// positioned before the first event.
func newChangeStream(ctx context.Context, source changeStreamSource, pipeline interface{}, opts ...*options.ChangeStreamOptions) (*ChangeStream, error) {
	stages, err := transformPipeline(pipeline)
	if err != nil {
		return nil, err
	}

	args := &options.ChangeStreamArgs{}
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
	ownsSession := false
	if sess == nil {
		sess = session.NewClientSession(source.client.deployment.SessionPool(), false)
		ownsSession = true
	}

	cs := &ChangeStream{
		source:      source,
		pipeline:    stages,
		args:        args,
		sess:        sess,
		ownsSession: ownsSession,
	}
	if err := cs.runAggregate(ctx); err != nil {
		if ownsSession {
			sess.EndSession()
		}
		return nil, err
	}
	return cs, nil
}

func isNonResumableChangeStreamError(err error) bool {
	var de driver.Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == errorInterrupted || de.Code == errorCappedPositionLost ||
		de.Code == errorCursorKilled || de.Code == errorMaxTimeMSExpired
}

// Next advances the stream to the next change event, transparently resuming the
// underlying cursor once if the server reports a resumable error, per the change streams spec.
// A server-sent invalidate event terminates the stream: no resume is attempted past it.
func (cs *ChangeStream) Next(ctx context.Context) bool {
	doc, ok, err := cs.cursor.Next(ctx)
	if err == nil && ok {
		return cs.setCurrent(doc)
	}
	if err == nil {
		if tok := cs.cursor.PostBatchResumeToken(); tok != nil {
			cs.resumeToken = tok
		}
		return false
	}
	if cs.invalidated || isNonResumableChangeStreamError(err) {
		cs.err = err
		return false
	}

	if cs.cursor.Alive() {
		_ = cs.cursor.Kill(ctx)
	}
	_ = cs.cursor.Close()
	if rerunErr := cs.runAggregate(ctx); rerunErr != nil {
		cs.err = rerunErr
		return false
	}

	doc, ok, err = cs.cursor.Next(ctx)
	if err != nil {
		cs.err = err
		return false
	}
	if !ok {
		return false
	}
	return cs.setCurrent(doc)
}

func (cs *ChangeStream) setCurrent(doc bsoncore.Document) bool {
	idVal, ok := doc.Lookup("_id")
	if !ok {
		cs.err = ErrMissingResumeToken
		return false
	}
	tokenDoc, isDoc := idVal.DocumentOK()
	if !isDoc {
		cs.err = ErrMissingResumeToken
		return false
	}
	cs.resumeToken = tokenDoc
	cs.current = doc
	if v, ok := doc.Lookup("operationType"); ok {
		if opType, isStr := v.StringValueOK(); isStr && opType == "invalidate" {
			cs.invalidated = true
		}
	}
	return true
}

// Decode unmarshals the event Next last produced into v.
func (cs *ChangeStream) Decode(v interface{}) error {
	if cs.current == nil {
		return ErrNoDocuments
	}
	return decodeDocument(cs.current, v)
}

// Current is the raw event document Next last produced.
func (cs *ChangeStream) Current() bsoncore.Document { return cs.current }

// ResumeToken returns the resume token of the most recently received event, or the
// cursor's post-batch resume token when that was recorded later (on opening the stream,
// or when a batch ends with no further event).
func (cs *ChangeStream) ResumeToken() bsoncore.Document { return cs.resumeToken }

// Err returns the error, if any, that stopped iteration.
func (cs *ChangeStream) Err() error { return cs.err }

// ID returns the server-side cursor id backing this stream.
func (cs *ChangeStream) ID() int64 { return cs.cursor.ID() }

// Close kills the underlying cursor and ends any session this stream created for
// itself.
func (cs *ChangeStream) Close(ctx context.Context) error {
	var err error
	if cs.cursor.Alive() {
		err = cs.cursor.Kill(ctx)
	}
	_ = cs.cursor.Close()
	if cs.ownsSession {
		cs.sess.EndSession()
	}
	return err
}
