// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/event"
	"github.com/mongocore/driver/internal/logger"
	"github.com/mongocore/driver/x/mongo/driver"
	"github.com/mongocore/driver/x/mongo/driver/operation"
)

const minHeartbeatInterval = 500 * time.Millisecond

// SelectedServer represents a specific server that was selected during server selection.
// It carries the kind of the topology it was selected from, since that affects how
// results are interpreted.
type SelectedServer struct {
	*Server

	Kind description.TopologyKind
}

// TopologyKind reports the TopologyKind the deployment had at selection time, which
// decides e.g. whether the executor applies mongos passthrough behavior.
func (ss *SelectedServer) TopologyKind() description.TopologyKind { return ss.Kind }

// These constants represent the connection states of a server.
const (
	disconnected int32 = iota
	disconnecting
	connected
	connecting
	initialized
)

func connectionStateString(state int32) string {
	switch state {
	case 0:
		return "Disconnected"
	case 1:
		return "Disconnecting"
	case 2:
		return "Connected"
	case 3:
		return "Connecting"
	case 4:
		return "Initialized"
	}
	return ""
}

// Server monitors a single server within a topology and hands out connections to it
// from its pool.
type Server struct {
	cfg             *serverConfig
	address         address.Address
	connectionstate int32

	pool *pool

	done          chan struct{}
	checkNow      chan struct{}
	disconnecting chan struct{}
	closewg       sync.WaitGroup

	desc                   atomic.Value // holds a description.Server
	updateTopologyCallback atomic.Value
	averageRTTSet          bool
	averageRTT             time.Duration

	subLock             sync.Mutex
	subscribers         map[uint64]chan description.Server
	currentSubscriberID uint64
	subscriptionsClosed bool

	processErrorLock sync.Mutex
}

// updateTopologyCallback is called when a freshly produced description.Server should be
// folded into the parent Topology; it returns the description that should actually be
// stored on this Server (which may have been adjusted by the topology's FSM).
type updateTopologyCallback func(description.Server) description.Server

// ConnectServer creates a new Server and connects it.
func ConnectServer(addr address.Address, updateCallback updateTopologyCallback, opts ...ServerOption) (*Server, error) {
	srvr, err := NewServer(addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := srvr.Connect(updateCallback); err != nil {
		return nil, err
	}
	return srvr, nil
}

// NewServer creates a new server. The address is monitored on an internal goroutine once
// Connect is called.
func NewServer(addr address.Address, opts ...ServerOption) (*Server, error) {
	cfg, err := newServerConfig(opts...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		address: addr,

		done:          make(chan struct{}),
		checkNow:      make(chan struct{}, 1),
		disconnecting: make(chan struct{}),

		subscribers: make(map[uint64]chan description.Server),
	}
	s.desc.Store(description.NewDefaultServer(addr))

	pc := poolConfig{
		Address:     addr,
		MinPoolSize: cfg.minConns,
		MaxPoolSize: cfg.maxConns,
		MaxIdleTime: cfg.connectionPoolMaxIdleTime,
		WaitTimeout: cfg.waitQueueTimeout,
		PoolMonitor: cfg.poolMonitor,
		Logger:      cfg.logger,
	}

	connectionOpts := append(append([]ConnectionOption{}, cfg.connectionOpts...),
		WithHandshakeErrorCallback(s.ProcessHandshakeError),
		WithConnectionAppName(cfg.appname),
		WithConnectionCompressors(cfg.compressors),
		WithConnectionZlibLevel(cfg.zlibLevel),
	)
	s.pool, err = newPool(pc, connectionOpts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Connect starts the monitoring goroutine and the connection pool's background filler.
// It must be called before a Server can be used.
func (s *Server) Connect(updateCallback updateTopologyCallback) error {
	if !atomic.CompareAndSwapInt32(&s.connectionstate, disconnected, connected) {
		return ErrServerConnected
	}
	s.desc.Store(description.NewDefaultServer(s.address))
	s.updateTopologyCallback.Store(updateCallback)
	go s.update()
	s.closewg.Add(1)
	return s.pool.connect()
}

// Disconnect stops the monitoring goroutine (cancelling an in-progress heartbeat if ctx
// expires first) and closes the pool's idle connections. It does not wait for
// checked-out connections; each is closed when it is returned to the disconnected pool.
func (s *Server) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connectionstate, connected, disconnecting) {
		return ErrServerClosed
	}

	s.updateTopologyCallback.Store((updateTopologyCallback)(nil))

	select {
	case <-ctx.Done():
		close(s.disconnecting)
		s.done <- struct{}{}
	case s.done <- struct{}{}:
	}
	if err := s.pool.disconnect(ctx); err != nil {
		return err
	}

	s.closewg.Wait()
	atomic.StoreInt32(&s.connectionstate, disconnected)
	return nil
}

// Connection checks out a connection to this server.
func (s *Server) Connection(ctx context.Context) (driver.Connection, error) {
	if s.pool.monitor != nil {
		s.pool.publish(event.ConnectionCheckOutStarted, 0, "")
	}

	if atomic.LoadInt32(&s.connectionstate) != connected {
		return nil, ErrServerClosed
	}

	connImpl, err := s.pool.get(ctx)
	if err != nil {
		return nil, err
	}

	return &Connection{conn: connImpl, pool: s.pool}, nil
}

// ProcessHandshakeError implements SDAM error handling for errors that occur before a
// connection finishes its handshake.
func (s *Server) ProcessHandshakeError(err error) {
	if err == nil {
		return
	}
	wrapped := unwrapConnectionError(err)
	if wrapped == nil {
		return
	}
	desc := description.NewServerFromError(s.address, wrapped, s.Description().TopologyVersion)
	s.updateDescription(desc)
	s.pool.clear()
}

// ProcessError handles SDAM error handling for errors reported by an in-flight
// application operation, implementing the "not writable primary" / "node is
// recovering" rules.
func (s *Server) ProcessError(err error, conn driver.Connection) {
	s.processErrorLock.Lock()
	defer s.processErrorLock.Unlock()

	if err == nil || conn.Stale() {
		return
	}
	desc := conn.Description()

	if cerr, ok := err.(driver.Error); ok && (cerr.NodeIsRecovering() || cerr.NotPrimary()) {
		if description.CompareTopologyVersion(desc.TopologyVersion, cerr.TopologyVersion) >= 0 {
			return
		}
		s.updateDescription(description.NewServerFromError(s.address, err, cerr.TopologyVersion))
		s.RequestImmediateCheck()
		if cerr.NodeIsShuttingDown() || desc.WireVersion == nil || desc.WireVersion.Max < 8 {
			s.pool.clear()
		}
		return
	}
	if wcerr, ok := err.(driver.WriteConcernError); ok && (wcerr.NodeIsRecovering() || wcerr.NotPrimary()) {
		if description.CompareTopologyVersion(desc.TopologyVersion, wcerr.TopologyVersion) >= 0 {
			return
		}
		s.updateDescription(description.NewServerFromError(s.address, err, wcerr.TopologyVersion))
		s.RequestImmediateCheck()
		if wcerr.NodeIsShuttingDown() || desc.WireVersion == nil || desc.WireVersion.Max < 8 {
			s.pool.clear()
		}
		return
	}

	wrapped := unwrapConnectionError(err)
	if wrapped == nil {
		return
	}
	if netErr, ok := wrapped.(net.Error); ok && netErr.Timeout() {
		return
	}
	if wrapped == context.Canceled || wrapped == context.DeadlineExceeded {
		return
	}

	s.updateDescription(description.NewServerFromError(s.address, err, desc.TopologyVersion))
	s.pool.clear()
}

// Description returns a description of the server as of the last heartbeat.
func (s *Server) Description() description.Server {
	return s.desc.Load().(description.Server)
}

// OperationCount reports how many connections to this server are currently checked
// out, the signal the server selection spec's two-way tie-break ranks candidates by.
func (s *Server) OperationCount() int64 { return s.pool.operationCount() }

// SelectedDescription returns a description.SelectedServer with Kind Single, useful for
// one-off commands run outside normal server selection.
func (s *Server) SelectedDescription() description.SelectedServer {
	return description.SelectedServer{Server: s.Description(), Kind: description.Single}
}

// Subscribe returns a ServerSubscription whose channel receives every description this
// server produces from here on, pre-populated with the current description.
func (s *Server) Subscribe() (*ServerSubscription, error) {
	if atomic.LoadInt32(&s.connectionstate) != connected {
		return nil, ErrSubscribeAfterClosed
	}
	ch := make(chan description.Server, 1)
	ch <- s.desc.Load().(description.Server)

	s.subLock.Lock()
	defer s.subLock.Unlock()
	if s.subscriptionsClosed {
		return nil, ErrSubscribeAfterClosed
	}
	id := s.currentSubscriberID
	s.subscribers[id] = ch
	s.currentSubscriberID++

	return &ServerSubscription{C: ch, s: s, id: id}, nil
}

// RequestImmediateCheck causes the monitoring goroutine to heartbeat immediately instead
// of waiting out the heartbeat interval.
func (s *Server) RequestImmediateCheck() {
	select {
	case s.checkNow <- struct{}{}:
	default:
	}
}

func (s *Server) update() {
	defer s.closewg.Done()
	heartbeatTicker := time.NewTicker(s.cfg.heartbeatInterval)
	rateLimiter := time.NewTicker(minHeartbeatInterval)
	defer heartbeatTicker.Stop()
	defer rateLimiter.Stop()
	checkNow := s.checkNow
	done := s.done

	var conn *connection
	var desc description.Server

	desc, conn = s.heartbeat(nil)
	s.updateDescription(desc)

	closeServer := func() {
		s.subLock.Lock()
		for id, c := range s.subscribers {
			close(c)
			delete(s.subscribers, id)
		}
		s.subscriptionsClosed = true
		s.subLock.Unlock()
		if conn != nil {
			conn.close()
		}
	}

	for {
		select {
		case <-done:
			closeServer()
			return
		default:
		}

		select {
		case <-heartbeatTicker.C:
		case <-checkNow:
		case <-done:
			closeServer()
			return
		}

		select {
		case <-rateLimiter.C:
		case <-done:
			closeServer()
			return
		}

		desc, conn = s.heartbeat(conn)
		s.updateDescription(desc)
	}
}

// updateDescription folds a freshly observed description.Server into this server's
// current description, runs it through the topology callback, and notifies
// subscribers.
func (s *Server) updateDescription(desc description.Server) {
	defer func() { _ = recover() }()

	if callback, ok := s.updateTopologyCallback.Load().(updateTopologyCallback); ok && callback != nil {
		desc = callback(desc)
	}
	s.desc.Store(desc)

	s.subLock.Lock()
	for _, c := range s.subscribers {
		select {
		case <-c:
		default:
		}
		c <- desc
	}
	s.subLock.Unlock()
}

// heartbeat sends a hello command to the server, either over conn (re-run on an
// existing connection) or by dialing a fresh one, and returns the resulting
// description together with the connection used.
func (s *Server) heartbeat(conn *connection) (description.Server, *connection) {
	const maxRetry = 2
	var saved error
	var desc description.Server
	var set bool

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
		case <-s.disconnecting:
			cancel()
		}
	}()

	for i := 1; i <= maxRetry; i++ {
		if conn != nil && conn.expired() {
			conn.close()
			conn = nil
		}

		if conn == nil {
			opts := append([]ConnectionOption{
				WithConnectTimeout(func(time.Duration) time.Duration { return s.cfg.heartbeatTimeout }),
				WithReadTimeout(func(time.Duration) time.Duration { return s.cfg.heartbeatTimeout }),
				WithWriteTimeout(func(time.Duration) time.Duration { return s.cfg.heartbeatTimeout }),
				WithMonitor(func(*event.CommandMonitor) *event.CommandMonitor { return nil }),
			}, s.cfg.connectionOpts...)

			now := time.Now()
			s.publishHeartbeatStarted()
			var err error
			conn, err = newConnection(ctx, s.address, opts...)
			if err == nil {
				conn.connect(ctx)
				err = conn.wait()
			}
			if err != nil {
				s.publishHeartbeatFailed(time.Since(now), err)
				saved = err
				s.pool.clear()
				conn = nil
				if s.Description().Kind == description.Unknown {
					break
				}
				continue
			}

			desc = conn.Description()
			desc = desc.SetAverageRTT(s.updateAverageRTT(time.Since(now)))
			desc.HeartbeatInterval = s.cfg.heartbeatInterval
			s.publishHeartbeatSucceeded(time.Since(now), desc)
			set = true
			break
		}

		now := time.Now()
		s.publishHeartbeatStarted()
		hello := operation.NewHello().AppName(s.cfg.appname).Compressors(s.cfg.compressors)
		if s.cfg.serverAPI != nil {
			hello = hello.ServerAPI(s.cfg.serverAPI.version, s.cfg.serverAPI.strict, s.cfg.serverAPI.deprecationErrors)
		}
		reply, err := conn.RunCommand(ctx, "admin", hello.Command())
		if err == nil {
			err = driver.ExtractError(reply)
		}
		if err != nil {
			s.publishHeartbeatFailed(time.Since(now), err)
			saved = err
			conn.close()
			conn = nil
			s.pool.clear()
			if s.Description().Kind == description.Unknown {
				break
			}
			continue
		}

		desc = hello.ParseReply(s.address, reply)
		desc = desc.SetAverageRTT(s.updateAverageRTT(time.Since(now)))
		desc.HeartbeatInterval = s.cfg.heartbeatInterval
		s.publishHeartbeatSucceeded(time.Since(now), reply)
		set = true
		break
	}

	if !set {
		desc = description.NewServerFromError(s.address, saved, s.Description().TopologyVersion)
	}

	return desc, conn
}

func (s *Server) publishHeartbeatStarted() {
	if s.cfg.serverMonitor == nil || s.cfg.serverMonitor.ServerHeartbeatStarted == nil {
		return
	}
	s.cfg.serverMonitor.ServerHeartbeatStarted(&event.ServerHeartbeatStartedEvent{
		ConnectionID: s.address.String(),
	})
}

func (s *Server) publishHeartbeatSucceeded(dur time.Duration, reply interface{}) {
	s.logHeartbeat("Server heartbeat succeeded")
	if s.cfg.serverMonitor == nil || s.cfg.serverMonitor.ServerHeartbeatSucceeded == nil {
		return
	}
	s.cfg.serverMonitor.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{
		DurationNanos: dur.Nanoseconds(),
		Reply:         reply,
		ConnectionID:  s.address.String(),
	})
}

func (s *Server) publishHeartbeatFailed(dur time.Duration, err error) {
	s.logHeartbeat("Server heartbeat failed")
	if s.cfg.serverMonitor == nil || s.cfg.serverMonitor.ServerHeartbeatFailed == nil {
		return
	}
	s.cfg.serverMonitor.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{
		DurationNanos: dur.Nanoseconds(),
		Failure:       err,
		ConnectionID:  s.address.String(),
	})
}

func (s *Server) logHeartbeat(text string) {
	if s.cfg.logger == nil || !s.cfg.logger.Is(logger.LevelDebug, logger.ComponentTopology) {
		return
	}
	s.cfg.logger.Print(logger.LevelDebug, logger.TopologyMessage{
		Address: s.address.String(),
		Text:    text,
	})
}

func (s *Server) updateAverageRTT(delay time.Duration) time.Duration {
	if !s.averageRTTSet {
		s.averageRTT = delay
		s.averageRTTSet = true
	} else {
		const alpha = 0.2
		s.averageRTT = time.Duration(alpha*float64(delay) + (1-alpha)*float64(s.averageRTT))
	}
	return s.averageRTT
}

// String implements fmt.Stringer.
func (s *Server) String() string {
	desc := s.Description()
	connState := atomic.LoadInt32(&s.connectionstate)
	str := fmt.Sprintf("Addr: %s, Type: %s, State: %s", s.address, desc.Kind, connectionStateString(connState))
	if len(desc.Tags) != 0 {
		str += fmt.Sprintf(", Tag sets: %s", desc.Tags)
	}
	if connState == connected {
		str += fmt.Sprintf(", Average RTT: %d", desc.AverageRTT)
	}
	if desc.LastError != nil {
		str += fmt.Sprintf(", Last error: %s", desc.LastError)
	}
	return str
}

// ServerSubscription is a subscription to a Server's description updates.
type ServerSubscription struct {
	C  <-chan description.Server
	s  *Server
	id uint64
}

// Unsubscribe stops this subscription and closes its channel.
func (ss *ServerSubscription) Unsubscribe() error {
	ss.s.subLock.Lock()
	defer ss.s.subLock.Unlock()
	if ss.s.subscriptionsClosed {
		return nil
	}
	ch, ok := ss.s.subscribers[ss.id]
	if !ok {
		return nil
	}
	close(ch)
	delete(ss.s.subscribers, ss.id)
	return nil
}

// unwrapConnectionError returns the cause wrapped by a ConnectionError (however deeply
// it is nested inside a driver.Error), or nil if err does not wrap one.
func unwrapConnectionError(err error) error {
	if connErr, ok := err.(ConnectionError); ok {
		return connErr.Wrapped
	}
	driverErr, ok := err.(driver.Error)
	if !ok || !driverErr.NetworkError() {
		return nil
	}
	if connErr, ok := driverErr.Wrapped.(ConnectionError); ok {
		return connErr.Wrapped
	}
	return nil
}
