// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"errors"
	"fmt"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/description"
)

// ErrSubscribeAfterClosed is returned when a caller attempts to subscribe to a closed
// Server or Topology.
var ErrSubscribeAfterClosed = errors.New("cannot subscribe after close")

// ErrTopologyClosed is returned when a method is called on a closed Topology.
var ErrTopologyClosed = errors.New("topology is closed")

// ErrTopologyConnected is returned when Connect is called on an already-connected
// Topology.
var ErrTopologyConnected = errors.New("topology is connected or connecting")

// ErrServerClosed occurs when a connection is requested from a Server after it has been
// closed.
var ErrServerClosed = errors.New("server is closed")

// ErrServerConnected occurs when Connect is called on a Server that is already
// connected.
var ErrServerConnected = errors.New("server is connected")

// ErrWaitQueueTimeout occurs when a connection checkout waits longer than the pool's
// configured wait queue timeout.
var ErrWaitQueueTimeout = errors.New("timed out while checking out a connection")

// ErrPoolClosed is returned when a connection is requested from a pool that has been
// disconnected.
var ErrPoolClosed = errors.New("connection pool is closed")

// ErrServerSelectionTimeout occurs when no server satisfying a ServerSelector appears
// before the selection deadline.
var ErrServerSelectionTimeout = errors.New("server selection timeout")

// ConnectionError represents a connection-level failure: dialing, the TLS handshake,
// the hello/handshake command, authentication, or writing or reading a later command
// on an established connection.
type ConnectionError struct {
	Address address.Address
	Wrapped error
	init    bool
}

// Error implements the error interface.
func (e ConnectionError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("connection(%s) error: %s", e.Address, e.Wrapped)
	}
	return fmt.Sprintf("connection(%s) error", e.Address)
}

// Unwrap supports errors.Is/As against the underlying cause.
func (e ConnectionError) Unwrap() error { return e.Wrapped }

// ServerSelectionError wraps a server-selection failure (timeout or a selector error)
// together with the topology description observed at failure time.
type ServerSelectionError struct {
	Wrapped error
	Desc    description.Topology
}

// Error implements the error interface.
func (e ServerSelectionError) Error() string {
	return fmt.Sprintf("server selection error: %s, current topology: { %s }", e.Wrapped, e.Desc.Kind)
}

// Unwrap supports errors.Is/As against the underlying cause (typically
// ErrServerSelectionTimeout or a context error).
func (e ServerSelectionError) Unwrap() error { return e.Wrapped }
