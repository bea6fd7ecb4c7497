// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"errors"
	"math"
	"time"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/internal/randutil"
	"github.com/mongocore/driver/mongo/readpref"
)

// ErrServerSelectionTimeout is returned when no suitable server is found before the
// selection deadline.
var ErrServerSelectionTimeout = errors.New("server selection timeout")

// random is a package-global locked random source used for the two-way tie-break
// below, shared by every selection on this process.
var random = randutil.NewLockedRand()

// ServerSelector filters and ranks the servers of a TopologyDescription. Implementations
// must be safe to call repeatedly against successive snapshots while a selection is in
// progress.
type ServerSelector interface {
	SelectServer(Topology, []Server) ([]Server, error)
}

// ServerSelectorFunc adapts a function to the ServerSelector interface.
type ServerSelectorFunc func(Topology, []Server) ([]Server, error)

// SelectServer implements ServerSelector.
func (f ServerSelectorFunc) SelectServer(t Topology, candidates []Server) ([]Server, error) {
	return f(t, candidates)
}

// WriteSelector selects the servers eligible to receive a write: the sole mongos/server
// for Sharded/Single/LoadBalanced, or the replica set primary (writes always go to a
// writable server).
var WriteSelector ServerSelector = ServerSelectorFunc(func(t Topology, candidates []Server) ([]Server, error) {
	switch t.Kind {
	case Sharded, Single, LoadBalanced:
		return candidates, nil
	default:
		var out []Server
		for _, s := range candidates {
			if s.Kind == RSPrimary {
				out = append(out, s)
			}
		}
		return out, nil
	}
})

// ReadPrefSelector builds the server selection spec's candidate-set filter for the
// given read preference.
func ReadPrefSelector(rp *readpref.ReadPref) ServerSelector {
	return ServerSelectorFunc(func(t Topology, candidates []Server) ([]Server, error) {
		if t.CompatibilityErr != nil {
			return nil, t.CompatibilityErr
		}

		switch t.Kind {
		case Sharded:
			var out []Server
			for _, s := range candidates {
				if s.Kind == Mongos {
					out = append(out, s)
				}
			}
			return out, nil
		case Single, LoadBalanced:
			return candidates, nil
		}

		// Replica set: map mode to the candidate set per the server selection spec table.
		var primary *Server
		var secondaries []Server
		for i := range candidates {
			switch candidates[i].Kind {
			case RSPrimary:
				primary = &candidates[i]
			case RSSecondary:
				secondaries = append(secondaries, candidates[i])
			}
		}

		mode := readpref.PrimaryMode
		if rp != nil {
			mode = rp.Mode()
		}

		var selected []Server
		switch mode {
		case readpref.PrimaryMode:
			if primary != nil {
				selected = []Server{*primary}
			}
		case readpref.SecondaryMode:
			selected = secondaries
		case readpref.PrimaryPreferredMode:
			if primary != nil {
				selected = []Server{*primary}
			} else {
				selected = secondaries
			}
		case readpref.SecondaryPreferredMode:
			if len(secondaries) > 0 {
				selected = secondaries
			} else if primary != nil {
				selected = []Server{*primary}
			}
		case readpref.NearestMode:
			if primary != nil {
				selected = append(selected, *primary)
			}
			selected = append(selected, secondaries...)
		}

		if rp != nil {
			if maxStaleness, ok := rp.MaxStaleness(); ok && maxStaleness > 0 {
				selected = filterByStaleness(selected, primary, maxStaleness)
			}
			if tagSets := rp.TagSets(); len(tagSets) > 0 {
				selected = filterByTagSets(selected, tagSets, mode)
			}
		}

		return selected, nil
	})
}

// filterByStaleness implements the max staleness spec. Only RSSecondary members are
// subject to the filter; a primary candidate, if present in `selected`, always survives.
func filterByStaleness(selected []Server, primary *Server, maxStaleness time.Duration) []Server {
	var maxSecondaryLastWrite time.Time
	for _, s := range selected {
		if s.Kind == RSSecondary && s.LastWriteDate.After(maxSecondaryLastWrite) {
			maxSecondaryLastWrite = s.LastWriteDate
		}
	}

	var out []Server
	for _, s := range selected {
		if s.Kind != RSSecondary {
			out = append(out, s)
			continue
		}

		var staleness time.Duration
		if primary != nil {
			staleness = (s.LastUpdateTime.Sub(s.LastWriteDate)) -
				(primary.LastUpdateTime.Sub(primary.LastWriteDate)) +
				s.HeartbeatInterval
		} else {
			staleness = maxSecondaryLastWrite.Sub(s.LastWriteDate) + s.HeartbeatInterval
		}

		if staleness <= roundUp(maxStaleness) {
			out = append(out, s)
		}
	}
	return out
}

func roundUp(d time.Duration) time.Duration {
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

// filterByTagSets implements the server selection spec: the first tag set with at least one
// matching candidate wins; if none match, the result is empty.
func filterByTagSets(selected []Server, tagSets []readpref.TagSet, mode readpref.Mode) []Server {
	if mode == readpref.PrimaryMode {
		return selected
	}
	for _, ts := range tagSets {
		var matched []Server
		for _, s := range selected {
			if s.MatchesTagSet(ts) {
				matched = append(matched, s)
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	return nil
}

// LatencySelector implements the server selection spec: the latency window.
func LatencySelector(localThreshold time.Duration) ServerSelector {
	return ServerSelectorFunc(func(_ Topology, candidates []Server) ([]Server, error) {
		if len(candidates) == 0 {
			return candidates, nil
		}

		min := candidates[0].AverageRTT
		for _, s := range candidates[1:] {
			if s.AverageRTT < min {
				min = s.AverageRTT
			}
		}

		var out []Server
		for _, s := range candidates {
			if s.AverageRTT <= min+localThreshold {
				out = append(out, s)
			}
		}
		return out, nil
	})
}

// CompositeSelector runs each selector in sequence, feeding each one's output into the
// next, mirroring the pipeline ReadPref -> Latency used by the public driver surface.
func CompositeSelector(selectors []ServerSelector) ServerSelector {
	return ServerSelectorFunc(func(t Topology, candidates []Server) ([]Server, error) {
		var err error
		for _, sel := range selectors {
			candidates, err = sel.SelectServer(t, candidates)
			if err != nil {
				return nil, err
			}
			if len(candidates) == 0 {
				return candidates, nil
			}
		}
		return candidates, nil
	})
}

// AddrSelector selects only the candidate whose address matches addr, used to route an
// operation back to the mongos/server a session has pinned for a transaction.
func AddrSelector(addr address.Address) ServerSelector {
	return ServerSelectorFunc(func(_ Topology, candidates []Server) ([]Server, error) {
		for _, s := range candidates {
			if s.Addr == addr {
				return []Server{s}, nil
			}
		}
		return nil, nil
	})
}

// PickTwoInFlight implements the server selection spec: the two-way random choice
// tie-break, picking the candidate with fewer in-flight operations. inFlight reports
// the current operationCount for a server address (fed by the connection pool).
func PickTwoInFlight(candidates []Server, inFlight func(Server) int64) Server {
	if len(candidates) == 1 {
		return candidates[0]
	}

	i := random.Intn(len(candidates))
	j := random.Intn(len(candidates) - 1)
	if j >= i {
		j++
	}

	a, b := candidates[i], candidates[j]
	if inFlight(b) < inFlight(a) {
		return b
	}
	return a
}
