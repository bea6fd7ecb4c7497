// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"fmt"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/description"
)

// fsm holds the working TopologyDescription that apply mutates one server description
// at a time, implementing the Server Discovery and Monitoring transition table.
type fsm struct {
	description.Topology
}

func newFSM() *fsm {
	return &fsm{Topology: description.Topology{Kind: description.UnknownTopology}}
}

func (f *fsm) findServer(addr address.Address) (int, bool) {
	for i, s := range f.Servers {
		if s.Addr == addr {
			return i, true
		}
	}
	return -1, false
}

func (f *fsm) addServer(addr address.Address) {
	if _, ok := f.findServer(addr); ok {
		return
	}
	f.Servers = append(f.Servers, description.NewDefaultServer(addr))
}

func (f *fsm) removeServerByAddr(addr address.Address) {
	for i, s := range f.Servers {
		if s.Addr == addr {
			f.Servers = append(f.Servers[:i], f.Servers[i+1:]...)
			return
		}
	}
}

// apply runs one incoming server description through the transition table and returns
// the resulting Topology snapshot together with the Server description actually stored
// (which may differ from desc, e.g. when a stale electionId/setVersion causes it to be
// downgraded to Unknown).
func (f *fsm) apply(desc description.Server) (description.Topology, description.Server) {
	idx, ok := f.findServer(desc.Addr)
	if !ok {
		return f.Topology, desc
	}

	switch f.Kind {
	case description.UnknownTopology:
		f.applyToUnknown(desc)
	case description.Sharded:
		f.applyToSharded(desc)
	case description.ReplicaSetNoPrimary:
		f.applyToReplicaSetNoPrimary(desc)
	case description.ReplicaSetWithPrimary:
		f.applyToReplicaSetWithPrimary(desc)
	case description.Single:
		f.Servers[idx] = desc
	case description.LoadBalanced:
		f.Servers[idx] = desc
	}

	f.SessionTimeoutMinutes, f.SessionTimeoutMinutesSet = f.computeSessionTimeout()
	f.CompatibilityErr = f.checkCompatibility()

	stored, _ := f.Server(desc.Addr)
	if _, stillPresent := f.findServer(desc.Addr); !stillPresent {
		stored = desc
	}
	return f.Topology, stored
}

func (f *fsm) setServer(desc description.Server) {
	idx, ok := f.findServer(desc.Addr)
	if !ok {
		return
	}
	f.Servers[idx] = desc
}

// checkCompatibility implements the SDAM spec's wire-version rule: any present server
// whose version range does not overlap the driver's makes the whole deployment
// incompatible, and subsequent selections fail immediately.
func (f *fsm) checkCompatibility() error {
	for _, s := range f.Servers {
		if s.Kind == description.Unknown || s.WireVersion == nil {
			continue
		}
		if s.WireVersion.Max < description.SupportedWireVersions.Min {
			return fmt.Errorf(
				"server at %s reports wire version %d, but this version of the driver requires "+
					"at least %d (MongoDB %s)",
				s.Addr, s.WireVersion.Max, description.SupportedWireVersions.Min,
				description.MinSupportedMongoDBVersion,
			)
		}
		if s.WireVersion.Min > description.SupportedWireVersions.Max {
			return fmt.Errorf(
				"server at %s requires wire version %d, but this version of the driver only supports up to %d",
				s.Addr, s.WireVersion.Min, description.SupportedWireVersions.Max,
			)
		}
	}
	return nil
}

func (f *fsm) computeSessionTimeout() (int64, bool) {
	var (
		min    int64
		minSet bool
	)
	for _, s := range f.Servers {
		if !s.Kind.DataBearing() {
			continue
		}
		if !s.SessionTimeoutMinutesSet {
			return 0, false
		}
		if !minSet || s.SessionTimeoutMinutes < min {
			min, minSet = s.SessionTimeoutMinutes, true
		}
	}
	return min, minSet
}

func (f *fsm) applyToUnknown(desc description.Server) {
	switch desc.Kind {
	case description.Standalone:
		if len(f.Servers) == 1 {
			f.Kind = description.Single
			f.setServer(desc)
			return
		}
		// A standalone among a multi-host seed list is not part of this deployment.
		f.removeServerByAddr(desc.Addr)
	case description.Mongos:
		f.Kind = description.Sharded
		f.setServer(desc)
	case description.RSPrimary:
		f.Kind = description.ReplicaSetWithPrimary
		f.updateRSFromPrimary(desc)
	case description.RSSecondary, description.RSArbiter, description.RSOther:
		f.Kind = description.ReplicaSetNoPrimary
		f.updateRSWithoutPrimary(desc)
	default:
		f.setServer(desc)
	}
}

func (f *fsm) applyToSharded(desc description.Server) {
	switch desc.Kind {
	case description.Mongos, description.Unknown:
		f.setServer(desc)
	default:
		f.removeServerByAddr(desc.Addr)
	}
}

func (f *fsm) applyToReplicaSetNoPrimary(desc description.Server) {
	switch desc.Kind {
	case description.Standalone, description.Mongos:
		f.removeServerByAddr(desc.Addr)
	case description.RSPrimary:
		f.Kind = description.ReplicaSetWithPrimary
		f.updateRSFromPrimary(desc)
	case description.RSSecondary, description.RSArbiter, description.RSOther:
		f.updateRSWithoutPrimary(desc)
	default:
		f.setServer(desc)
	}
}

func (f *fsm) applyToReplicaSetWithPrimary(desc description.Server) {
	switch desc.Kind {
	case description.RSPrimary:
		f.updateRSFromPrimary(desc)
	case description.RSSecondary, description.RSArbiter, description.RSOther:
		f.setServer(desc)
		f.checkIfHasPrimary()
	default:
		f.removeServerByAddr(desc.Addr)
		f.checkIfHasPrimary()
	}
}

// updateRSFromPrimary implements the SDAM spec's updateRSFromPrimary transition: stale
// (setName/electionId/setVersion) primaries are demoted to Unknown and ignored; a fresh
// primary replaces any previously recorded primary and reconciles the member list against
// the primary's own Hosts/Passives/Arbiters, so at most one primary is ever recorded.
func (f *fsm) updateRSFromPrimary(desc description.Server) {
	if f.SetName == "" {
		f.SetName = desc.SetName
	} else if f.SetName != desc.SetName {
		f.removeServerByAddr(desc.Addr)
		f.checkIfHasPrimary()
		return
	}

	if desc.SetVersionSet && desc.ElectionIDSet {
		if f.MaxSetVersionSet && f.MaxElectionIDSet {
			if f.MaxSetVersion > desc.SetVersion ||
				(f.MaxSetVersion == desc.SetVersion && compareObjectID(f.MaxElectionID, desc.ElectionID) > 0) {
				// Stale primary: demote to Unknown and drop it rather than accepting it.
				f.setServer(description.NewDefaultServer(desc.Addr))
				f.checkIfHasPrimary()
				return
			}
		}
		f.MaxElectionID, f.MaxElectionIDSet = desc.ElectionID, true
		f.MaxSetVersion, f.MaxSetVersionSet = desc.SetVersion, true
	}

	for i, s := range f.Servers {
		if s.Kind == description.RSPrimary && s.Addr != desc.Addr {
			f.Servers[i] = description.NewDefaultServer(s.Addr)
		}
	}
	f.setServer(desc)

	known := make(map[address.Address]bool, len(desc.AllHosts()))
	for _, h := range desc.AllHosts() {
		known[h] = true
		if _, ok := f.findServer(h); !ok {
			f.addServer(h)
		}
	}
	for _, s := range append([]description.Server(nil), f.Servers...) {
		if s.Addr != desc.Addr && !known[s.Addr] {
			f.removeServerByAddr(s.Addr)
		}
	}

	f.checkIfHasPrimary()
}

// updateRSWithoutPrimary implements the no-primary-yet transition: the first
// secondary/arbiter/other seen fixes the replica set name, and every member it names is
// added as an Unknown placeholder until its own heartbeat arrives.
func (f *fsm) updateRSWithoutPrimary(desc description.Server) {
	if f.SetName == "" {
		f.SetName = desc.SetName
	} else if f.SetName != desc.SetName {
		f.removeServerByAddr(desc.Addr)
		return
	}

	f.setServer(desc)

	for _, h := range desc.AllHosts() {
		if _, ok := f.findServer(h); !ok {
			f.addServer(h)
		}
	}

	if desc.Primary != "" {
		if _, ok := f.findServer(desc.Primary); !ok {
			f.addServer(desc.Primary)
		}
	}
}

func (f *fsm) checkIfHasPrimary() {
	if _, ok := f.Primary(); ok {
		f.Kind = description.ReplicaSetWithPrimary
		return
	}
	f.Kind = description.ReplicaSetNoPrimary
}

func compareObjectID(a, b interface{ Hex() string }) int {
	ah, bh := a.Hex(), b.Hex()
	switch {
	case ah < bh:
		return -1
	case ah > bh:
		return 1
	default:
		return 0
	}
}
