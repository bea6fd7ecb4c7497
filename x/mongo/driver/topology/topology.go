// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology implements the TopologyManager (the SDAM spec): it owns one Server
// monitor per known address, folds each freshly observed ServerDescription through the
// SDAM transition table (fsm.go), and serves ServerSelector.SelectServer requests
// against the resulting TopologyDescription.
package topology

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/bson/primitive"
	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/event"
	"github.com/mongocore/driver/internal/csot"
	"github.com/mongocore/driver/internal/logger"
	"github.com/mongocore/driver/x/mongo/driver"
	"github.com/mongocore/driver/x/mongo/driver/session"
)

// MonitorMode selects whether a Topology runs full SDAM monitoring or connects directly
// to a single server without discovering the rest of a deployment.
type MonitorMode uint8

// The two monitor modes a Topology can run in.
const (
	AutomaticMode MonitorMode = iota
	SingleMode
)

// Topology holds the current TopologyDescription behind a mutex-protected cell and
// applies SDAM transitions as each Server's monitor reports a new description. It
// implements driver.Deployment, so an Operation selects and runs against it directly.
type Topology struct {
	cfg *config
	id  primitive.ObjectID

	connectionstate int32

	mu      sync.RWMutex
	fsm     *fsm
	servers map[address.Address]*Server

	subLock             sync.Mutex
	subscribers         map[uint64]chan description.Topology
	currentSubscriberID uint64
	subscriptionsClosed bool

	sessionPool *session.Pool
	clock       *session.ClusterClock

	done chan struct{}
}

// New constructs a Topology from the supplied options. It does not start monitoring;
// call Connect for that.
func New(opts ...Option) (*Topology, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	t := &Topology{
		cfg:         cfg,
		id:          primitive.NewObjectID(),
		servers:     make(map[address.Address]*Server),
		subscribers: make(map[uint64]chan description.Topology),
		sessionPool: session.NewPool(),
		clock:       &session.ClusterClock{},
		done:        make(chan struct{}),
	}
	t.fsm = newFSM()
	t.fsm.Kind = initialKind(cfg)
	if cfg.replicaSetName != "" {
		t.fsm.SetName = cfg.replicaSetName
	}
	return t, nil
}

// initialKind derives the starting TopologyKind from config, per the SDAM spec's
// initial-type rules.
func initialKind(cfg *config) description.TopologyKind {
	switch {
	case cfg.loadBalanced:
		return description.LoadBalanced
	case cfg.replicaSetName != "":
		return description.ReplicaSetNoPrimary
	case cfg.mode == SingleMode || len(cfg.seedList) == 1:
		return description.Single
	default:
		return description.UnknownTopology
	}
}

// Connect starts a Server monitor for every seed address (or, in LoadBalanced mode, a
// single synthetic LoadBalancer server that never runs its own monitor).
func (t *Topology) Connect() error {
	if !atomic.CompareAndSwapInt32(&t.connectionstate, 0, 1) {
		return ErrTopologyConnected
	}

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.TopologyOpening != nil {
		t.cfg.serverMonitor.TopologyOpening(&event.TopologyOpeningEvent{TopologyID: t.id.Hex()})
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fsm.Kind == description.LoadBalanced {
		addr := address.Address(t.cfg.seedList[0]).Canonicalize()
		t.fsm.addServer(addr)
		desc := description.NewDefaultServer(addr)
		desc.Kind = description.LoadBalancer
		t.fsm.setServer(desc)
		srv, err := t.connectServer(addr)
		if err != nil {
			return err
		}
		t.servers[addr] = srv
		return nil
	}

	for _, h := range t.cfg.seedList {
		addr := address.Address(h).Canonicalize()
		t.fsm.addServer(addr)
		srv, err := t.connectServer(addr)
		if err != nil {
			return err
		}
		t.servers[addr] = srv
	}
	return nil
}

func (t *Topology) connectServer(addr address.Address) (*Server, error) {
	opts := append(append([]ServerOption{}, t.cfg.serverOpts...), WithServerClusterClock(t.clock))
	if t.cfg.serverMonitor != nil {
		opts = append(opts, WithServerMonitor(t.cfg.serverMonitor))
	}
	if t.cfg.logger != nil {
		opts = append(opts, WithServerLogger(t.cfg.logger))
	}
	srv, err := NewServer(addr, opts...)
	if err != nil {
		return nil, err
	}
	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.ServerOpening != nil {
		t.cfg.serverMonitor.ServerOpening(&event.ServerOpeningEvent{Address: addr.String(), TopologyID: t.id.Hex()})
	}
	if err := srv.Connect(t.apply); err != nil {
		return nil, err
	}
	return srv, nil
}

// apply is the updateTopologyCallback every Server invokes with its latest heartbeat
// result. It runs the description through the FSM, adds/removes Server monitors to
// match the resulting member set, and publishes change events. It returns the
// description the calling Server should store for
// itself, which may differ from desc (e.g. a stale primary demoted to Unknown).
func (t *Topology) apply(desc description.Server) description.Server {
	t.mu.Lock()

	prev := t.fsm.Topology
	prevServer, hadServer := prev.Server(desc.Addr)
	newTopo, stored := t.fsm.apply(desc)

	var toAdd, toRemove []address.Address
	known := make(map[address.Address]bool, len(newTopo.Servers))
	for _, s := range newTopo.Servers {
		known[s.Addr] = true
		if _, ok := t.servers[s.Addr]; !ok {
			toAdd = append(toAdd, s.Addr)
		}
	}
	for addr := range t.servers {
		if !known[addr] {
			toRemove = append(toRemove, addr)
		}
	}
	changed := !prev.Equal(newTopo)
	t.mu.Unlock()

	for _, addr := range toRemove {
		t.removeServer(addr)
	}
	for _, addr := range toAdd {
		t.mu.Lock()
		if _, ok := t.servers[addr]; !ok {
			srv, err := t.connectServer(addr)
			if err == nil {
				t.servers[addr] = srv
			}
		}
		t.mu.Unlock()
	}

	if hadServer && !prevServer.Equal(stored) {
		t.publishServerChanged(prevServer, stored)
		t.logTopology("Server description changed", desc.Addr)
	}
	if changed {
		t.publishTopologyChanged(prev, newTopo)
		t.logTopology("Topology description changed", desc.Addr)
		t.broadcast(newTopo)
	}

	return stored
}

func (t *Topology) logTopology(text string, addr address.Address) {
	if t.cfg.logger == nil || !t.cfg.logger.Is(logger.LevelDebug, logger.ComponentTopology) {
		return
	}
	t.cfg.logger.Print(logger.LevelDebug, logger.TopologyMessage{
		TopologyID: t.id.Hex(),
		Address:    addr.String(),
		Text:       text,
	})
}

func (t *Topology) publishServerChanged(prev, next description.Server) {
	if t.cfg.serverMonitor == nil || t.cfg.serverMonitor.ServerDescriptionChanged == nil {
		return
	}
	t.cfg.serverMonitor.ServerDescriptionChanged(&event.ServerDescriptionChangedEvent{
		Address:             next.Addr.String(),
		TopologyID:          t.id.Hex(),
		PreviousDescription: prev,
		NewDescription:      next,
	})
}

func (t *Topology) removeServer(addr address.Address) {
	t.mu.Lock()
	srv, ok := t.servers[addr]
	if ok {
		delete(t.servers, addr)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Disconnect(ctx)
	}()
	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.ServerClosed != nil {
		t.cfg.serverMonitor.ServerClosed(&event.ServerClosedEvent{Address: addr.String(), TopologyID: t.id.Hex()})
	}
}

func (t *Topology) publishTopologyChanged(prev, next description.Topology) {
	if t.cfg.serverMonitor == nil || t.cfg.serverMonitor.TopologyDescriptionChanged == nil {
		return
	}
	t.cfg.serverMonitor.TopologyDescriptionChanged(&event.TopologyDescriptionChangedEvent{
		TopologyID:          t.id.Hex(),
		PreviousDescription: prev,
		NewDescription:      next,
	})
}

// Disconnect stops every Server monitor and releases the Topology.
func (t *Topology) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.connectionstate, 1, 0) {
		return ErrTopologyClosed
	}

	t.mu.Lock()
	servers := make([]*Server, 0, len(t.servers))
	for _, s := range t.servers {
		servers = append(servers, s)
	}
	t.servers = make(map[address.Address]*Server)
	t.mu.Unlock()

	for _, s := range servers {
		_ = s.Disconnect(ctx)
	}

	t.subLock.Lock()
	for id, c := range t.subscribers {
		close(c)
		delete(t.subscribers, id)
	}
	t.subscriptionsClosed = true
	t.subLock.Unlock()

	if t.cfg.serverMonitor != nil && t.cfg.serverMonitor.TopologyClosed != nil {
		t.cfg.serverMonitor.TopologyClosed(&event.TopologyClosedEvent{TopologyID: t.id.Hex()})
	}
	return nil
}

// Description returns the current TopologyDescription snapshot.
func (t *Topology) Description() description.Topology {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d := t.fsm.Topology
	d.ID = t.id
	return d
}

// Kind returns the current TopologyKind.
func (t *Topology) Kind() description.TopologyKind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fsm.Kind
}

// subscribe returns a channel that receives every TopologyDescription this Topology
// produces from here on, pre-populated with the current snapshot.
func (t *Topology) subscribe() (chan description.Topology, uint64, error) {
	ch := make(chan description.Topology, 1)
	ch <- t.Description()

	t.subLock.Lock()
	defer t.subLock.Unlock()
	if t.subscriptionsClosed {
		return nil, 0, ErrSubscribeAfterClosed
	}
	id := t.currentSubscriberID
	t.subscribers[id] = ch
	t.currentSubscriberID++
	return ch, id, nil
}

func (t *Topology) unsubscribe(id uint64) {
	t.subLock.Lock()
	defer t.subLock.Unlock()
	if c, ok := t.subscribers[id]; ok {
		close(c)
		delete(t.subscribers, id)
	}
}

func (t *Topology) broadcast(desc description.Topology) {
	t.subLock.Lock()
	defer t.subLock.Unlock()
	for _, c := range t.subscribers {
		select {
		case <-c:
		default:
		}
		c <- desc
	}
}

// SelectServer implements the server selection spec: it filters+ranks the current
// TopologyDescription against sel, blocking (re-checking on every topology change or
// at worst every minHeartbeatInterval) until a suitable server appears or the
// selection deadline passes.
func (t *Topology) SelectServer(ctx context.Context, sel description.ServerSelector) (driver.Server, error) {
	var cancel context.CancelFunc
	ctx, cancel = csot.WithServerSelectionTimeout(ctx, t.cfg.serverSelectionTimeout)
	defer cancel()

	ch, id, err := t.subscribe()
	if err != nil {
		return nil, err
	}
	defer t.unsubscribe(id)

	timer := time.NewTimer(minHeartbeatInterval)
	defer timer.Stop()

	t.logSelection("Server selection started", nil)
	for {
		current := t.Description()
		if current.CompatibilityErr != nil {
			t.logSelection("Server selection failed", current.CompatibilityErr)
			return nil, ServerSelectionError{Wrapped: current.CompatibilityErr, Desc: current}
		}

		candidates, err := sel.SelectServer(current, current.Servers)
		if err != nil {
			t.logSelection("Server selection failed", err)
			return nil, ServerSelectionError{Wrapped: err, Desc: current}
		}
		if len(candidates) > 0 {
			t.mu.RLock()
			inFlight := func(s description.Server) int64 {
				if srv, ok := t.servers[s.Addr]; ok {
					return srv.OperationCount()
				}
				return 0
			}
			picked := description.PickTwoInFlight(candidates, inFlight)
			srv, ok := t.servers[picked.Addr]
			t.mu.RUnlock()
			if ok {
				t.logSelection("Server selection succeeded", nil)
				return &SelectedServer{Server: srv, Kind: current.Kind}, nil
			}
		}

		select {
		case <-ctx.Done():
			t.logSelection("Server selection failed", ErrServerSelectionTimeout)
			return nil, ServerSelectionError{Wrapped: ErrServerSelectionTimeout, Desc: current}
		case <-ch:
		case <-timer.C:
			timer.Reset(minHeartbeatInterval)
		}
	}
}

func (t *Topology) logSelection(text string, failure error) {
	if t.cfg.logger == nil || !t.cfg.logger.Is(logger.LevelDebug, logger.ComponentServerSelection) {
		return
	}
	msg := logger.ServerSelectionMessage{TopologyID: t.id.Hex(), Text: text}
	if failure != nil {
		msg.Failure = failure.Error()
	}
	t.cfg.logger.Print(logger.LevelDebug, msg)
}

// Logger exposes the structured logger configured via WithLogger; driver.Operation
// resolves it through the LoggerProvider interface to emit command logs.
func (t *Topology) Logger() *logger.Logger { return t.cfg.logger }

// SessionPool exposes the process-wide ServerSession pool used by session.NewClientSession.
func (t *Topology) SessionPool() *session.Pool { return t.sessionPool }

// Clock exposes the ClusterClock every Server on this Topology shares.
func (t *Topology) Clock() *session.ClusterClock { return t.clock }
