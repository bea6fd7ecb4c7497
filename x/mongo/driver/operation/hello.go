// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package operation builds the individual commands the driver issues
// (hello, getMore, killCursors) outside the generic driver.Operation pipeline.
package operation

import (
	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// Hello builds the handshake/heartbeat command and parses its reply. It
// is run directly against a connection by the monitoring loop rather than through
// driver.Operation, since a heartbeat owns the connection's lifetime itself instead of
// checking it out from a pool.
type Hello struct {
	appname      string
	compressors  []string
	loadBalanced bool

	apiVersion           string
	apiStrict            bool
	apiDeprecationErrors bool
}

// NewHello constructs a Hello.
func NewHello() *Hello { return &Hello{} }

// AppName sets the application name reported in the client metadata.
func (h *Hello) AppName(appname string) *Hello {
	h.appname = appname
	return h
}

// Compressors sets the compressors this client offers to negotiate.
func (h *Hello) Compressors(compressors []string) *Hello {
	h.compressors = compressors
	return h
}

// LoadBalanced marks this command as running over a load-balanced connection.
func (h *Hello) LoadBalanced(lb bool) *Hello {
	h.loadBalanced = lb
	return h
}

// ServerAPI pins a Stable API version on the handshake.
func (h *Hello) ServerAPI(version string, strict, deprecationErrors bool) *Hello {
	h.apiVersion = version
	h.apiStrict = strict
	h.apiDeprecationErrors = deprecationErrors
	return h
}

// Command builds the hello command document.
func (h *Hello) Command() bsoncore.Document {
	cmd := bsoncore.Document{}.Append("hello", bsoncore.Int32Value(1))
	cmd = cmd.Append("helloOk", bsoncore.Boolean(true))
	if h.appname != "" {
		meta := bsoncore.Document{}.Append("application",
			bsoncore.DocumentValue(bsoncore.Document{}.Append("name", bsoncore.String(h.appname))))
		cmd = cmd.Append("client", bsoncore.DocumentValue(meta))
	}
	if len(h.compressors) > 0 {
		arr := make(bsoncore.Array, 0, len(h.compressors))
		for _, c := range h.compressors {
			arr = append(arr, bsoncore.String(c))
		}
		cmd = cmd.Append("compression", bsoncore.ArrayValue(arr))
	}
	if h.loadBalanced {
		cmd = cmd.Append("loadBalanced", bsoncore.Boolean(true))
	}
	if h.apiVersion != "" {
		cmd = cmd.Append("apiVersion", bsoncore.String(h.apiVersion))
		if h.apiStrict {
			cmd = cmd.Append("apiStrict", bsoncore.Boolean(true))
		}
		if h.apiDeprecationErrors {
			cmd = cmd.Append("apiDeprecationErrors", bsoncore.Boolean(true))
		}
	}
	return cmd
}

// ParseReply interprets a hello reply into a Server description.
func (h *Hello) ParseReply(addr address.Address, reply bsoncore.Document) description.Server {
	return description.NewServer(addr, reply)
}
