// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/bson/primitive"
)

// Topology is an immutable snapshot of an entire deployment (the SDAM spec's
// TopologyDescription).
type Topology struct {
	Kind    TopologyKind
	Servers []Server

	SetName         string
	MaxSetVersion   uint32
	MaxSetVersionSet bool
	MaxElectionID   primitive.ObjectID
	MaxElectionIDSet bool

	CompatibilityErr error

	SessionTimeoutMinutes    int64
	SessionTimeoutMinutesSet bool

	ID primitive.ObjectID
}

// SelectedServer pairs a Server snapshot with the TopologyKind the deployment had at
// selection time, since some callers (e.g. the mongos-passthrough read preference
// rules) need both together.
type SelectedServer struct {
	Server
	Kind TopologyKind
}

// Server returns the Server description for addr, and whether it was present.
func (t Topology) Server(addr address.Address) (Server, bool) {
	for _, s := range t.Servers {
		if s.Addr == addr {
			return s, true
		}
	}
	return Server{}, false
}

// Primary returns the replica-set primary, if there is exactly one.
func (t Topology) Primary() (Server, bool) {
	for _, s := range t.Servers {
		if s.Kind == RSPrimary {
			return s, true
		}
	}
	return Server{}, false
}

// Secondaries returns the replica-set secondaries.
func (t Topology) Secondaries() []Server {
	var out []Server
	for _, s := range t.Servers {
		if s.Kind == RSSecondary {
			out = append(out, s)
		}
	}
	return out
}

// Equal reports whether two TopologyDescriptions are equal for change-publication
// purposes: same Kind, same server set, and each server Equal per the SDAM spec.
func (t Topology) Equal(other Topology) bool {
	if t.Kind != other.Kind || len(t.Servers) != len(other.Servers) {
		return false
	}
	for _, s := range t.Servers {
		o, ok := other.Server(s.Addr)
		if !ok || !s.Equal(o) {
			return false
		}
	}
	return true
}

// SessionsSupported reports whether server-side sessions may be used at all (the driver
// sessions spec: "Sessions are forbidden on standalone topologies"). It is false only
// for a Single topology whose server is a Standalone or which has no server yet; the
// logical session timeout is not consulted.
func (t Topology) SessionsSupported() bool {
	return t.Kind != Single || (len(t.Servers) > 0 && t.Servers[0].Kind != Standalone)
}

// minSessionTimeout computes the invariant described in the driver sessions spec: the minimum
// logicalSessionTimeoutMinutes across all data-bearing servers, or unset if any
// data-bearing server reports none.
func minSessionTimeout(servers []Server) (int64, bool) {
	var (
		min    int64
		minSet bool
	)
	for _, s := range servers {
		if !s.Kind.DataBearing() {
			continue
		}
		if !s.SessionTimeoutMinutesSet {
			return 0, false
		}
		if !minSet || s.SessionTimeoutMinutes < min {
			min = s.SessionTimeoutMinutes
			minSet = true
		}
	}
	return min, minSet
}
