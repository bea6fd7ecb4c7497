// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/internal"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
	"github.com/mongocore/driver/x/mongo/driver/auth"
)

// errNotConnected is returned when RunCommand is attempted before connect has
// established a socket (always a programming error in this package, never the caller's).
var errNotConnected = errors.New("connection: not connected")

// connection is one dialed socket to a single server address. It is the thing pool.go
// checks in and out; Connection below is the driver.Connection adapter handed to
// application code.
type connection struct {
	addr       address.Address
	poolID     uint64
	generation uint64

	cfg         *connectionConfig
	maxIdleTime time.Duration

	nc   net.Conn
	desc description.Server

	// compressor is the wire-message compressor negotiated during the handshake
	// (the connection string spec compressors option), empty when none was negotiated. It is only
	// set once authentication completes, so handshake and auth commands themselves are
	// always sent uncompressed, matching the real wire-compression spec.
	compressor string

	connectDone chan struct{}
	connectErr  error

	// cancellationListener watches the operation context during each socket round trip
	// so a cancelled in-flight RPC closes the connection instead of leaving the reply
	// to be misread by the next operation.
	cancellationListener *internal.CancellationListener

	lastUsed time.Time

	mu     sync.Mutex
	closed bool
}

func newConnection(ctx context.Context, addr address.Address, opts ...ConnectionOption) (*connection, error) {
	cfg := newConnectionConfig(opts...)
	return &connection{
		addr:                 addr,
		cfg:                  cfg,
		connectDone:          make(chan struct{}),
		cancellationListener: internal.NewCancellationListener(),
		lastUsed:             time.Now(),
	}, nil
}

// connect dials the socket and runs the hello handshake in the background, recording
// the result for wait to observe.
func (c *connection) connect(ctx context.Context) {
	go func() {
		defer close(c.connectDone)

		timeout := c.cfg.connectTimeout(30 * time.Second)
		dialer := &net.Dialer{Timeout: timeout}

		var nc net.Conn
		var err error
		if c.addr.Network() == "unix" {
			nc, err = dialer.DialContext(ctx, "unix", string(c.addr))
		} else {
			nc, err = dialer.DialContext(ctx, "tcp", string(c.addr))
		}
		if err != nil {
			c.connectErr = ConnectionError{Address: c.addr, Wrapped: err, init: true}
			if c.cfg.errorCallback != nil {
				c.cfg.errorCallback(c.connectErr)
			}
			return
		}
		if c.cfg.tlsConfig != nil {
			tlsConn := tls.Client(nc, c.cfg.tlsConfig)
			if hsErr := tlsConn.HandshakeContext(ctx); hsErr != nil {
				c.connectErr = ConnectionError{Address: c.addr, Wrapped: hsErr, init: true}
				if c.cfg.errorCallback != nil {
					c.cfg.errorCallback(c.connectErr)
				}
				nc.Close()
				return
			}
			nc = tlsConn
		}
		c.nc = nc

		helloCmd := buildHelloCommand(c.cfg.appname, c.cfg.compressors)
		reply, err := c.roundTrip(ctx, "admin", helloCmd, timeout)
		if err != nil {
			c.connectErr = ConnectionError{Address: c.addr, Wrapped: err}
			if c.cfg.errorCallback != nil {
				c.cfg.errorCallback(c.connectErr)
			}
			nc.Close()
			return
		}
		c.desc = description.NewServer(c.addr, reply)

		var serverCompressors []string
		if compVal, ok := reply.Lookup("compression"); ok {
			if arr, ok := compVal.ArrayOK(); ok {
				for _, v := range arr {
					if name, ok := v.StringValueOK(); ok {
						serverCompressors = append(serverCompressors, name)
					}
				}
			}
		}
		negotiated := negotiateCompressor(c.cfg.compressors, serverCompressors)

		if c.cfg.credential != nil {
			authenticator, authErr := auth.CreateAuthenticator(c.cfg.credential, nil)
			if authErr != nil {
				c.connectErr = ConnectionError{Address: c.addr, Wrapped: authErr}
				if c.cfg.errorCallback != nil {
					c.cfg.errorCallback(c.connectErr)
				}
				nc.Close()
				return
			}
			runCmd := func(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error) {
				return c.roundTrip(ctx, db, cmd, timeout)
			}
			if authErr := authenticator.Auth(ctx, runCmd); authErr != nil {
				c.connectErr = ConnectionError{Address: c.addr, Wrapped: authErr}
				if c.cfg.errorCallback != nil {
					c.cfg.errorCallback(c.connectErr)
				}
				nc.Close()
				return
			}
		}

		c.compressor = negotiated
	}()
}

// wait blocks until connect has finished, returning any handshake error.
func (c *connection) wait() error {
	<-c.connectDone
	return c.connectErr
}

// RunCommand sends cmd over the socket and returns the decoded reply, implementing
// driver.Connection for application commands.
func (c *connection) RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error) {
	timeout := c.cfg.readTimeout(0)
	reply, err := c.roundTrip(ctx, db, cmd, timeout)
	c.lastUsed = time.Now()
	return reply, err
}

func (c *connection) roundTrip(ctx context.Context, db string, cmd bsoncore.Document, timeout time.Duration) (bsoncore.Document, error) {
	if c.nc == nil {
		return nil, ConnectionError{Address: c.addr, Wrapped: errNotConnected}
	}
	if timeout > 0 {
		c.nc.SetDeadline(time.Now().Add(timeout))
		defer c.nc.SetDeadline(time.Time{})
	}
	if dl, ok := ctx.Deadline(); ok {
		c.nc.SetDeadline(dl)
		defer c.nc.SetDeadline(time.Time{})
	}

	// A cancelled context mid-RPC closes the socket: the server-side work may still
	// complete, but the reply must never be left for the next operation to misread.
	go c.cancellationListener.Listen(ctx, func() { _ = c.close() })
	defer c.cancellationListener.StopListening()

	req := cmd.Append("$db", bsoncore.String(db))
	if err := c.writeFrame(req.Marshal()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, ConnectionError{Address: c.addr, Wrapped: err}
	}
	body, err := c.readFrame()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, ConnectionError{Address: c.addr, Wrapped: err}
	}
	reply, err := bsoncore.Unmarshal(body)
	if err != nil {
		return nil, ConnectionError{Address: c.addr, Wrapped: err}
	}
	return reply, nil
}

// frame tags identifying whether writeFrame/readFrame's payload is compressed, and with
// which algorithm (the connection string spec compressors option, negotiated in connect()).
const (
	frameUncompressed byte = 0
	frameSnappy       byte = 1
	frameZlib         byte = 2
	frameZstd         byte = 3
)

func compressorFrameTag(name string) byte {
	switch name {
	case compressorSnappy:
		return frameSnappy
	case compressorZlib:
		return frameZlib
	case compressorZstd:
		return frameZstd
	default:
		return frameUncompressed
	}
}

func frameTagCompressor(tag byte) string {
	switch tag {
	case frameSnappy:
		return compressorSnappy
	case frameZlib:
		return compressorZlib
	case frameZstd:
		return compressorZstd
	default:
		return ""
	}
}

// writeFrame compresses body with the negotiated compressor (if any) and writes it as
// [tag byte][uncompressed length uint32][payload length uint32][payload], the minimal
// framing this module's own client/server ends agree on for OP_COMPRESSED-equivalent
// messages; the real wire protocol's byte layout lives in the wire layer.
func (c *connection) writeFrame(body []byte) error {
	payload := body
	tag := frameUncompressed
	if c.compressor != "" {
		compressed, err := compressPayload(c.compressor, body, c.cfg.zlibLevel)
		if err != nil {
			return err
		}
		payload = compressed
		tag = compressorFrameTag(c.compressor)
	}

	var header [9]byte
	header[0] = tag
	binary.LittleEndian.PutUint32(header[1:5], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[5:9], uint32(len(payload)))
	if _, err := c.nc.Write(header[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(payload)
	return err
}

// readFrame reverses writeFrame.
func (c *connection) readFrame() ([]byte, error) {
	var header [9]byte
	if _, err := io.ReadFull(c.nc, header[:]); err != nil {
		return nil, err
	}
	tag := header[0]
	payloadLen := binary.LittleEndian.Uint32(header[5:9])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		return nil, err
	}
	if tag == frameUncompressed {
		return payload, nil
	}
	return decompressPayload(frameTagCompressor(tag), payload)
}

// Description returns the server description observed during this connection's
// handshake.
func (c *connection) Description() description.Server { return c.desc }

// ID identifies this connection for command-monitoring events.
func (c *connection) ID() string { return c.addr.String() }

// Stale always reports false: a bare connection holds no reference to its pool's
// current generation. Connection.Stale, the adapter handed to operations, makes that
// comparison.
func (c *connection) Stale() bool { return false }

// close releases the underlying socket. Safe to call more than once.
func (c *connection) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.nc != nil {
		return c.nc.Close()
	}
	return nil
}

// expired reports whether this connection has sat idle longer than the pool's
// configured maxIdleTime.
func (c *connection) expired() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return true
	}
	if c.maxIdleTime <= 0 {
		return false
	}
	return time.Since(c.lastUsed) > c.maxIdleTime
}

// Connection adapts a checked-out *connection into driver.Connection for application
// operations, returning it to the pool on Close rather than closing the socket.
type Connection struct {
	conn *connection
	pool *pool
	once sync.Once
}

var _ driver.Connection = (*Connection)(nil)

func (c *Connection) RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error) {
	return c.conn.RunCommand(ctx, db, cmd)
}

func (c *Connection) Description() description.Server { return c.conn.Description() }

func (c *Connection) ID() string { return c.conn.ID() }

func (c *Connection) Stale() bool { return c.conn.generation != c.pool.getGeneration() }

// Close returns the underlying connection to the pool. Subsequent calls are no-ops.
func (c *Connection) Close() error {
	c.once.Do(func() { c.pool.put(c.conn) })
	return nil
}

func buildHelloCommand(appname string, compressors []string) bsoncore.Document {
	cmd := bsoncore.Document{}.Append("hello", bsoncore.Int32Value(1))
	cmd = cmd.Append("helloOk", bsoncore.Boolean(true))
	if appname != "" {
		meta := bsoncore.Document{}.Append("application",
			bsoncore.DocumentValue(bsoncore.Document{}.Append("name", bsoncore.String(appname))))
		cmd = cmd.Append("client", bsoncore.DocumentValue(meta))
	}
	if len(compressors) > 0 {
		arr := make(bsoncore.Array, 0, len(compressors))
		for _, comp := range compressors {
			arr = append(arr, bsoncore.String(comp))
		}
		cmd = cmd.Append("compression", bsoncore.ArrayValue(arr))
	}
	return cmd
}
