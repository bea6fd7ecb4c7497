// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/event"
	"github.com/mongocore/driver/internal/logger"
)

const (
	poolDisconnected int32 = iota
	poolConnected
	poolDisconnecting
)

// poolConfig collects the options pool needs from serverConfig.
type poolConfig struct {
	Address     address.Address
	MinPoolSize uint64
	MaxPoolSize uint64
	MaxIdleTime time.Duration
	WaitTimeout time.Duration
	PoolMonitor *event.PoolMonitor
	Logger      *logger.Logger
}

// pool is the connection pool for a single Server (the CMAP spec): a bounded set of
// connections checked out for the duration of one operation and returned afterward,
// with a generation counter so Server.ProcessError/clear can invalidate every
// connection established before a detected failure without affecting newer ones.
type pool struct {
	address address.Address
	monitor *event.PoolMonitor
	logger  *logger.Logger

	minSize     uint64
	maxSize     uint64
	maxIdleTime time.Duration
	waitTimeout time.Duration

	sem *semaphore.Weighted

	connOpts []ConnectionOption

	generation uint64 // atomic
	inUse      int64  // atomic: checked-out connections, feeds the selector's two-way tie-break (the CMAP spec)

	mu      sync.Mutex
	idle    []*connection
	state   int32
	nextID  uint64

	fillerDone chan struct{}
	fillerWG   sync.WaitGroup
}

func newPool(pc poolConfig, connOpts ...ConnectionOption) (*pool, error) {
	maxSize := pc.MaxPoolSize
	if maxSize == 0 {
		maxSize = 100
	}
	return &pool{
		address:     pc.Address,
		monitor:     pc.PoolMonitor,
		logger:      pc.Logger,
		minSize:     pc.MinPoolSize,
		maxSize:     maxSize,
		maxIdleTime: pc.MaxIdleTime,
		waitTimeout: pc.WaitTimeout,
		sem:         semaphore.NewWeighted(int64(maxSize)),
		connOpts:    connOpts,
		fillerDone:  make(chan struct{}),
	}, nil
}

func (p *pool) publish(typ string, connID uint64, reason string) {
	if p.logger != nil && p.logger.Is(logger.LevelDebug, logger.ComponentConnection) {
		p.logger.Print(logger.LevelDebug, logger.ConnectionMessage{
			Address: p.address.String(),
			Text:    typ,
			Reason:  reason,
		})
	}
	if p.monitor == nil || p.monitor.Event == nil {
		return
	}
	p.monitor.Event(&event.PoolEvent{
		Type:         typ,
		Address:      p.address.String(),
		ConnectionID: connID,
		Reason:       reason,
		PoolOptions:  &event.PoolOptions{MaxPoolSize: p.maxSize, MinPoolSize: p.minSize},
	})
}

func (p *pool) connect() error {
	if !atomic.CompareAndSwapInt32(&p.state, poolDisconnected, poolConnected) {
		return nil
	}
	p.publish(event.PoolCreated, 0, "")
	atomic.AddUint64(&p.generation, 1)

	if p.minSize > 0 {
		p.fillerWG.Add(1)
		go p.fill()
	}
	return nil
}

// fill maintains minPoolSize by opening idle connections in the background,
// independent of any in-flight checkout.
func (p *pool) fill() {
	defer p.fillerWG.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.fillerDone:
			return
		case <-ticker.C:
		}
		for uint64(len(p.idleSnapshot())) < p.minSize && atomic.LoadInt32(&p.state) == poolConnected {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			conn, err := p.newConn(ctx)
			cancel()
			if err != nil {
				break
			}
			p.mu.Lock()
			p.idle = append(p.idle, conn)
			p.mu.Unlock()
		}
	}
}

func (p *pool) idleSnapshot() []*connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*connection(nil), p.idle...)
}

func (p *pool) getGeneration() uint64 { return atomic.LoadUint64(&p.generation) }

func (p *pool) newConn(ctx context.Context) (*connection, error) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	conn, err := newConnection(ctx, p.address, p.connOpts...)
	if err != nil {
		return nil, err
	}
	conn.poolID = id
	conn.generation = p.getGeneration()
	conn.maxIdleTime = p.maxIdleTime
	conn.connect(ctx)
	if err := conn.wait(); err != nil {
		return nil, err
	}
	return conn, nil
}

// get checks out a connection, reusing an idle one from the pool when available.
func (p *pool) get(ctx context.Context) (*connection, error) {
	if atomic.LoadInt32(&p.state) != poolConnected {
		return nil, ErrPoolClosed
	}

	waitCtx := ctx
	if p.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.waitTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		p.publish(event.ConnectionCheckOutFailed, 0, "timeout")
		return nil, ErrWaitQueueTimeout
	}

	p.mu.Lock()
	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()

		if conn.expired() || conn.generation != p.getGeneration() {
			conn.close()
			p.mu.Lock()
			continue
		}
		atomic.AddInt64(&p.inUse, 1)
		p.publish(event.ConnectionCheckedOut, conn.poolID, "")
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.newConn(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	atomic.AddInt64(&p.inUse, 1)
	p.publish(event.ConnectionCreated, conn.poolID, "")
	p.publish(event.ConnectionCheckedOut, conn.poolID, "")
	return conn, nil
}

// operationCount returns the number of connections currently checked out, the in-flight
// signal the server selection spec ranks candidates by.
func (p *pool) operationCount() int64 { return atomic.LoadInt64(&p.inUse) }

// put returns conn to the pool's idle list, unless it is stale or the pool is full.
func (p *pool) put(conn *connection) {
	defer p.sem.Release(1)
	atomic.AddInt64(&p.inUse, -1)
	p.publish(event.ConnectionCheckedIn, conn.poolID, "")

	if atomic.LoadInt32(&p.state) != poolConnected || conn.expired() || conn.generation != p.getGeneration() {
		conn.close()
		p.publish(event.ConnectionClosed, conn.poolID, "stale")
		return
	}

	p.mu.Lock()
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// clear invalidates every connection outstanding or idle by bumping the generation
// counter, without blocking for in-use connections to finish (the CMAP spec's pool
// clearing on a primary-losing or network error).
func (p *pool) clear() {
	atomic.AddUint64(&p.generation, 1)
	p.publish(event.PoolCleared, 0, "")

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.close()
	}
}

func (p *pool) disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.state, poolConnected, poolDisconnecting) {
		return nil
	}
	close(p.fillerDone)
	p.fillerWG.Wait()

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, c := range idle {
		c.close()
	}

	atomic.StoreInt32(&p.state, poolDisconnected)
	p.publish(event.PoolClosedEvent, 0, "")
	return nil
}
