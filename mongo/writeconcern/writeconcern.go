// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package writeconcern defines the write concern document appended to write commands,
// as referenced
// by x/mongo/driver/driver.go's addWriteConcern.
package writeconcern

import (
	"errors"
	"time"

	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// ErrEmptyWriteConcern is returned by MarshalDocument when a WriteConcern has no fields
// set, signaling the caller to omit the writeConcern option entirely.
var ErrEmptyWriteConcern = errors.New("a write concern must have at least one field set")

// WriteConcern describes the level of acknowledgement requested from MongoDB for write
// operations.
type WriteConcern struct {
	w        interface{} // string ("majority") or int32
	wSet     bool
	journal  bool
	journalSet bool
	wtimeout time.Duration
}

// Option configures a WriteConcern.
type Option func(*WriteConcern)

// New constructs a WriteConcern from options.
func New(opts ...Option) *WriteConcern {
	wc := &WriteConcern{}
	for _, opt := range opts {
		opt(wc)
	}
	return wc
}

// W requests acknowledgement from w members (or the tag set name "majority").
func W(w interface{}) Option {
	return func(wc *WriteConcern) { wc.w, wc.wSet = w, true }
}

// J requests the server wait for the on-disk journal to be written.
func J(j bool) Option {
	return func(wc *WriteConcern) { wc.journal, wc.journalSet = j, true }
}

// WTimeout bounds how long the server waits for acknowledgement.
func WTimeout(d time.Duration) Option {
	return func(wc *WriteConcern) { wc.wtimeout = d }
}

// Majority returns a WriteConcern requiring acknowledgement from a majority of the
// replica set's voting members.
func Majority() *WriteConcern { return New(W("majority")) }

// AckWrite reports whether wc requests server acknowledgement at all. A nil
// WriteConcern acknowledges by default.
func AckWrite(wc *WriteConcern) bool {
	if wc == nil {
		return true
	}
	if w, ok := wc.w.(int32); ok {
		return w != 0
	}
	if w, ok := wc.w.(int); ok {
		return w != 0
	}
	return true
}

// MarshalDocument renders the write concern as a bsoncore.Document for the "writeConcern"
// command field.
func (wc *WriteConcern) MarshalDocument() (bsoncore.Document, error) {
	if wc == nil || (!wc.wSet && !wc.journalSet && wc.wtimeout == 0) {
		return nil, ErrEmptyWriteConcern
	}

	doc := bsoncore.NewDocumentBuilder()
	if wc.wSet {
		switch w := wc.w.(type) {
		case string:
			doc = doc.Append("w", bsoncore.String(w))
		case int32:
			doc = doc.Append("w", bsoncore.Int32Value(w))
		case int:
			doc = doc.Append("w", bsoncore.Int32Value(int32(w)))
		}
	}
	if wc.journalSet {
		doc = doc.Append("j", bsoncore.Boolean(wc.journal))
	}
	if wc.wtimeout > 0 {
		doc = doc.Append("wtimeout", bsoncore.Int64Value(int64(wc.wtimeout/time.Millisecond)))
	}
	return doc, nil
}
