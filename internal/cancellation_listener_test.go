// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package internal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestCancellationListenerAbortsOnCancel checks that cancelling the watched context
// invokes the abort callback and that StopListening still unblocks the listener.
func TestCancellationListenerAbortsOnCancel(t *testing.T) {
	t.Parallel()

	listener := NewCancellationListener()
	ctx, cancel := context.WithCancel(context.Background())

	aborted := make(chan struct{})
	go listener.Listen(ctx, func() { close(aborted) })

	cancel()
	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("abort callback was not invoked after cancellation")
	}

	stopped := make(chan struct{})
	go func() {
		listener.StopListening()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("StopListening did not return after an aborted Listen")
	}
}

// TestCancellationListenerStopWithoutCancel checks the clean-exit path: stopping the
// listener without any cancellation must not invoke the abort callback.
func TestCancellationListenerStopWithoutCancel(t *testing.T) {
	t.Parallel()

	listener := NewCancellationListener()

	var aborts int32
	done := make(chan struct{})
	go func() {
		listener.Listen(context.Background(), func() { atomic.AddInt32(&aborts, 1) })
		close(done)
	}()

	listener.StopListening()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after StopListening")
	}
	if atomic.LoadInt32(&aborts) != 0 {
		t.Fatalf("abort callback invoked %d times without cancellation", aborts)
	}
}
