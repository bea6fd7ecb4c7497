// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"testing"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/mongo/options"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
)

// TestChangeStreamStageResumePreference checks the $changeStream stage construction:
// once a stream has observed a resume token, it wins over any configured
// startAfter/resumeAfter/startAtOperationTime, so a resumed aggregate picks up exactly
// where the stream left off.
func TestChangeStreamStageResumePreference(t *testing.T) {
	t.Parallel()

	token := bsoncore.Document{}.Append("_data", bsoncore.String("r2"))
	cs := &ChangeStream{
		source:      changeStreamSource{},
		args:        &options.ChangeStreamArgs{ResumeAfter: bson.D{{Key: "_data", Value: "r0"}}},
		resumeToken: token,
	}

	stage := cs.changeStreamStageDoc()
	v, ok := stage.Lookup("resumeAfter")
	if !ok {
		t.Fatalf("expected resumeAfter in the stage, got %s", stage)
	}
	doc, _ := v.DocumentOK()
	if data, _ := doc.Lookup("_data"); data.StringValue() != "r2" {
		t.Fatalf("expected the observed token r2 to win, got %s", doc)
	}
	if _, ok := stage.Lookup("startAtOperationTime"); ok {
		t.Fatal("startAtOperationTime must not be sent alongside a resume token")
	}
}

// TestChangeStreamStageUsesConfiguredResumeAfter checks the cold-start path: with no
// observed token yet, the caller's resumeAfter option is sent as-is.
func TestChangeStreamStageUsesConfiguredResumeAfter(t *testing.T) {
	t.Parallel()

	cs := &ChangeStream{
		source: changeStreamSource{},
		args:   &options.ChangeStreamArgs{ResumeAfter: bson.D{{Key: "_data", Value: "r0"}}},
	}

	stage := cs.changeStreamStageDoc()
	v, ok := stage.Lookup("resumeAfter")
	if !ok {
		t.Fatalf("expected resumeAfter in the stage, got %s", stage)
	}
	doc, _ := v.DocumentOK()
	if data, _ := doc.Lookup("_data"); data.StringValue() != "r0" {
		t.Fatalf("expected the configured token r0, got %s", doc)
	}
}

// TestIsNonResumableChangeStreamError pins the non-resumable code set: Interrupted,
// CappedPositionLost, CursorKilled, and MaxTimeMSExpired terminate the stream, while
// network-level errors such as HostUnreachable resume.
func TestIsNonResumableChangeStreamError(t *testing.T) {
	t.Parallel()

	nonResumable := []int32{11601, 136, 237, 50}
	for _, code := range nonResumable {
		if !isNonResumableChangeStreamError(driver.Error{Code: code}) {
			t.Fatalf("expected code %d to be non-resumable", code)
		}
	}

	hostUnreachable := driver.Error{Code: 6, Message: "host unreachable"}
	if isNonResumableChangeStreamError(hostUnreachable) {
		t.Fatal("expected HostUnreachable to be resumable")
	}
	networkErr := driver.Error{Message: "connection reset", Labels: []string{driver.NetworkError}}
	if isNonResumableChangeStreamError(networkErr) {
		t.Fatal("expected a network error to be resumable")
	}
}
