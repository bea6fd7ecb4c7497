// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/mongocore/driver/event"
	"github.com/mongocore/driver/internal/logger"
	"github.com/mongocore/driver/x/mongo/driver/auth"
	"github.com/mongocore/driver/x/mongo/driver/session"
)

// config holds the options that govern a Topology's behavior. SRV resolution happens
// once, earlier, in connstring.Parse: by the time seedList reaches here it is already
// the resolved host set, so this config has no SRV-specific knobs of its own.
type config struct {
	uri                    string
	mode                   MonitorMode
	replicaSetName         string
	seedList               []string
	loadBalanced           bool
	serverSelectionTimeout time.Duration
	serverOpts             []ServerOption
	serverMonitor          *event.ServerMonitor
	logger                 *logger.Logger
}

// Option configures a Topology.
type Option func(*config) error

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		mode:                   AutomaticMode,
		serverSelectionTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithURI records the original connection string on the config; nothing in this
// package reads it.
func WithURI(uri string) Option {
	return func(cfg *config) error { cfg.uri = uri; return nil }
}

// WithSeedList sets the initial host list.
func WithSeedList(hosts ...string) Option {
	return func(cfg *config) error { cfg.seedList = hosts; return nil }
}

// WithReplicaSetName sets the expected replica set name, initializing the topology kind
// to ReplicaSetNoPrimary.
func WithReplicaSetName(name string) Option {
	return func(cfg *config) error { cfg.replicaSetName = name; return nil }
}

// WithMode sets whether this Topology monitors a full deployment or connects directly to
// a single server.
func WithMode(mode MonitorMode) Option {
	return func(cfg *config) error { cfg.mode = mode; return nil }
}

// WithLoadBalanced marks the topology as a load balancer front end, skipping server
// monitoring entirely.
func WithLoadBalanced(lb bool) Option {
	return func(cfg *config) error { cfg.loadBalanced = lb; return nil }
}

// WithServerSelectionTimeout bounds how long SelectServer waits.
func WithServerSelectionTimeout(d time.Duration) Option {
	return func(cfg *config) error { cfg.serverSelectionTimeout = d; return nil }
}

// WithTopologyServerOptions appends options applied to every Server this topology
// creates.
func WithTopologyServerOptions(opts ...ServerOption) Option {
	return func(cfg *config) error { cfg.serverOpts = append(cfg.serverOpts, opts...); return nil }
}

// WithTopologyServerMonitor installs the SDAM event callbacks.
func WithTopologyServerMonitor(m *event.ServerMonitor) Option {
	return func(cfg *config) error { cfg.serverMonitor = m; return nil }
}

// WithLogger installs the structured logger component logs are emitted through. The
// Topology forwards it to every Server it creates, and Operations resolve it via
// Topology.Logger.
func WithLogger(log *logger.Logger) Option {
	return func(cfg *config) error { cfg.logger = log; return nil }
}

// serverConfig holds the options that govern a single Server's monitoring loop and
// connection pool.
type serverConfig struct {
	heartbeatInterval         time.Duration
	heartbeatTimeout          time.Duration
	minConns                  uint64
	maxConns                  uint64
	connectionPoolMaxIdleTime time.Duration
	waitQueueTimeout          time.Duration
	poolMonitor               *event.PoolMonitor
	serverMonitor             *event.ServerMonitor
	connectionOpts            []ConnectionOption
	appname                   string
	compressors               []string
	zlibLevel                 int
	clock                     *session.ClusterClock
	serverAPI                 *serverAPIOptions
	logger                    *logger.Logger
}

type serverAPIOptions struct {
	version           string
	strict            bool
	deprecationErrors bool
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig) error

func newServerConfig(opts ...ServerOption) (*serverConfig, error) {
	cfg := &serverConfig{
		heartbeatInterval: 10 * time.Second,
		heartbeatTimeout:  10 * time.Second,
		minConns:          0,
		maxConns:          100,
		zlibLevel:         -1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithHeartbeatInterval sets how often the monitoring goroutine sends a hello command
//.
func WithHeartbeatInterval(d time.Duration) ServerOption {
	return func(cfg *serverConfig) error {
		if d < minHeartbeatInterval {
			d = minHeartbeatInterval
		}
		cfg.heartbeatInterval = d
		return nil
	}
}

// WithHeartbeatTimeout bounds how long a single heartbeat may take.
func WithHeartbeatTimeout(d time.Duration) ServerOption {
	return func(cfg *serverConfig) error { cfg.heartbeatTimeout = d; return nil }
}

// WithMinConnections sets the pool's minPoolSize.
func WithMinConnections(n uint64) ServerOption {
	return func(cfg *serverConfig) error { cfg.minConns = n; return nil }
}

// WithMaxConnections sets the pool's maxPoolSize.
func WithMaxConnections(n uint64) ServerOption {
	return func(cfg *serverConfig) error { cfg.maxConns = n; return nil }
}

// WithConnectionPoolMaxIdleTime sets how long an idle connection may sit in the pool
// before it is closed.
func WithConnectionPoolMaxIdleTime(d time.Duration) ServerOption {
	return func(cfg *serverConfig) error { cfg.connectionPoolMaxIdleTime = d; return nil }
}

// WithWaitQueueTimeout bounds how long Connection() waits for a pooled connection.
func WithWaitQueueTimeout(d time.Duration) ServerOption {
	return func(cfg *serverConfig) error { cfg.waitQueueTimeout = d; return nil }
}

// WithServerPoolMonitor installs the connection pool event callbacks.
func WithServerPoolMonitor(m *event.PoolMonitor) ServerOption {
	return func(cfg *serverConfig) error { cfg.poolMonitor = m; return nil }
}

// WithServerMonitor installs the heartbeat event callbacks.
func WithServerMonitor(m *event.ServerMonitor) ServerOption {
	return func(cfg *serverConfig) error { cfg.serverMonitor = m; return nil }
}

// WithServerConnectionOptions appends options applied to every Connection this server
// dials.
func WithServerConnectionOptions(opts ...ConnectionOption) ServerOption {
	return func(cfg *serverConfig) error { cfg.connectionOpts = append(cfg.connectionOpts, opts...); return nil }
}

// WithServerAppName sets the client application name reported in the hello handshake.
func WithServerAppName(name string) ServerOption {
	return func(cfg *serverConfig) error { cfg.appname = name; return nil }
}

// WithCompressors sets the client's offered wire-protocol compressors, negotiated
// against the server's own list during the handshake.
func WithCompressors(names ...string) ServerOption {
	return func(cfg *serverConfig) error { cfg.compressors = names; return nil }
}

// WithZlibCompressionLevel sets the level offered to zlib.NewWriterLevel when "zlib"
// wins compressor negotiation (the connection string spec zlibCompressionLevel option).
func WithZlibCompressionLevel(level int) ServerOption {
	return func(cfg *serverConfig) error {
		if level < -1 || level > 9 {
			return fmt.Errorf("topology: zlibCompressionLevel must be in [-1, 9], got %d", level)
		}
		cfg.zlibLevel = level
		return nil
	}
}

// WithServerClusterClock shares a single ClusterClock across every server in a
// deployment so $clusterTime gossips consistently.
func WithServerClusterClock(clock *session.ClusterClock) ServerOption {
	return func(cfg *serverConfig) error { cfg.clock = clock; return nil }
}

// WithServerLogger installs the structured logger this server's monitor and pool emit
// topology/connection component logs through.
func WithServerLogger(log *logger.Logger) ServerOption {
	return func(cfg *serverConfig) error { cfg.logger = log; return nil }
}

// WithServerAPI pins a Stable API version on every command this server's connections
// send.
func WithServerAPI(version string, strict, deprecationErrors bool) ServerOption {
	return func(cfg *serverConfig) error {
		cfg.serverAPI = &serverAPIOptions{version: version, strict: strict, deprecationErrors: deprecationErrors}
		return nil
	}
}

// connectionConfig holds per-connection options, grounded on server.go's
// WithConnectTimeout/WithReadTimeout/WithWriteTimeout/WithMonitor usage.
type connectionConfig struct {
	connectTimeout func(time.Duration) time.Duration
	readTimeout    func(time.Duration) time.Duration
	writeTimeout   func(time.Duration) time.Duration
	tlsConfig      *tls.Config
	monitor        func(*event.CommandMonitor) *event.CommandMonitor
	appname        string
	compressors    []string
	zlibLevel      int
	errorCallback  func(error)
	credential     *auth.Credential
}

// ConnectionOption configures a connection.
type ConnectionOption func(*connectionConfig)

func newConnectionConfig(opts ...ConnectionOption) *connectionConfig {
	cfg := &connectionConfig{
		connectTimeout: func(time.Duration) time.Duration { return 30 * time.Second },
		readTimeout:    func(d time.Duration) time.Duration { return d },
		writeTimeout:   func(d time.Duration) time.Duration { return d },
		zlibLevel:      -1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithConnectTimeout overrides the dial timeout.
func WithConnectTimeout(fn func(time.Duration) time.Duration) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.connectTimeout = fn }
}

// WithReadTimeout overrides the per-read deadline.
func WithReadTimeout(fn func(time.Duration) time.Duration) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.readTimeout = fn }
}

// WithWriteTimeout overrides the per-write deadline.
func WithWriteTimeout(fn func(time.Duration) time.Duration) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.writeTimeout = fn }
}

// WithTLSConfig enables TLS on the connection's socket.
func WithTLSConfig(cfg2 *tls.Config) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.tlsConfig = cfg2 }
}

// WithMonitor overrides the command-monitoring callbacks for this connection, used by
// the heartbeat path to suppress monitoring of its own hello commands.
func WithMonitor(fn func(*event.CommandMonitor) *event.CommandMonitor) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.monitor = fn }
}

// WithHandshakeErrorCallback registers a callback invoked when the initial handshake
// fails, used by Server.ProcessHandshakeError to feed SDAM error handling.
func WithHandshakeErrorCallback(fn func(error)) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.errorCallback = fn }
}

// WithConnectionAppName sets the application name reported in this connection's own
// handshake, independent of any command-level client metadata.
func WithConnectionAppName(name string) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.appname = name }
}

// WithConnectionCompressors sets the compressors this connection offers during its
// handshake.
func WithConnectionCompressors(names []string) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.compressors = names }
}

// WithConnectionZlibLevel sets the compression level passed to zlib.NewWriterLevel when
// "zlib" wins compressor negotiation (the connection string spec zlibCompressionLevel option).
func WithConnectionZlibLevel(level int) ConnectionOption {
	return func(cfg *connectionConfig) {
		if level < -1 || level > 9 {
			level = -1
		}
		cfg.zlibLevel = level
	}
}

// WithConnectionCredential authenticates every connection dialed with these options
// immediately after the hello handshake completes.
func WithConnectionCredential(cred *auth.Credential) ConnectionOption {
	return func(cfg *connectionConfig) { cfg.credential = cred }
}
