// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/description"
)

// TestFSMReplicaSetElection walks the fsm through a primary election and checks the
// resulting snapshot is internally consistent.
func TestFSMReplicaSetElection(t *testing.T) {
	t.Parallel()

	primaryAddr := address.Address("node1:27017").Canonicalize()
	secondaryAddr := address.Address("node2:27017").Canonicalize()

	f := newFSM()
	f.addServer(primaryAddr)
	f.addServer(secondaryAddr)
	f.Kind = description.ReplicaSetNoPrimary

	primary := description.Server{
		Addr:    primaryAddr,
		Kind:    description.RSPrimary,
		SetName: "rs0",
		Hosts:   []address.Address{primaryAddr, secondaryAddr},
	}

	topo, stored := f.apply(primary)

	if diff := cmp.Diff(description.RSPrimary, stored.Kind); diff != "" {
		t.Fatalf("stored server kind mismatch (-want +got):\n%s\nfull state: %s", diff, spew.Sdump(topo))
	}
	if topo.Kind != description.ReplicaSetWithPrimary {
		t.Fatalf("expected ReplicaSetWithPrimary, got %s\nfull state: %s", topo.Kind, spew.Sdump(topo))
	}

	p, ok := topo.Primary()
	if !ok || p.Addr != primaryAddr {
		t.Fatalf("expected exactly one primary at %v, got %+v (ok=%v)", primaryAddr, p, ok)
	}

	for _, s := range topo.Servers {
		if s.SetName != "" && s.SetName != topo.SetName {
			t.Fatalf("server %v has setName %q, topology has %q", s.Addr, s.SetName, topo.SetName)
		}
	}
}

// TestFSMStalePrimaryDemoted checks that a primary reporting a stale (setVersion,
// electionId) pair is demoted to Unknown rather than accepted.
func TestFSMStalePrimaryDemoted(t *testing.T) {
	t.Parallel()

	addrA := address.Address("a:27017").Canonicalize()
	addrB := address.Address("b:27017").Canonicalize()

	f := newFSM()
	f.addServer(addrA)
	f.addServer(addrB)
	f.Kind = description.ReplicaSetNoPrimary

	newer := description.Server{
		Addr: addrA, Kind: description.RSPrimary, SetName: "rs0",
		SetVersion: 2, SetVersionSet: true, ElectionIDSet: true,
		Hosts: []address.Address{addrA, addrB},
	}
	topo, _ := f.apply(newer)
	if topo.Kind != description.ReplicaSetWithPrimary {
		t.Fatalf("setup failed: expected ReplicaSetWithPrimary, got %s", topo.Kind)
	}

	stale := description.Server{
		Addr: addrB, Kind: description.RSPrimary, SetName: "rs0",
		SetVersion: 1, SetVersionSet: true, ElectionIDSet: true,
		Hosts: []address.Address{addrA, addrB},
	}
	topo, stored := f.apply(stale)

	if stored.Kind != description.Unknown {
		t.Fatalf("expected stale primary to be demoted to Unknown, got %s\nfull state: %s", stored.Kind, spew.Sdump(topo))
	}
	p, ok := topo.Primary()
	if !ok || p.Addr != addrA {
		t.Fatalf("expected original primary %v to remain, got %+v (ok=%v)", addrA, p, ok)
	}
}

// TestFSMWireVersionCompatibility checks that a server advertising only an ancient wire
// version flags the whole deployment incompatible, and that the error clears once the
// server catches up.
func TestFSMWireVersionCompatibility(t *testing.T) {
	t.Parallel()

	addr := address.Address("old:27017").Canonicalize()

	f := newFSM()
	f.addServer(addr)
	f.Kind = description.Single

	ancient := description.Server{
		Addr: addr, Kind: description.Standalone,
		WireVersion: &description.VersionRange{Min: 0, Max: 2},
	}
	topo, _ := f.apply(ancient)
	if topo.CompatibilityErr == nil {
		t.Fatalf("expected a compatibility error for maxWireVersion=2, got none\nfull state: %s", spew.Sdump(topo))
	}

	modern := description.Server{
		Addr: addr, Kind: description.Standalone,
		WireVersion: &description.VersionRange{Min: 6, Max: 17},
	}
	topo, _ = f.apply(modern)
	if topo.CompatibilityErr != nil {
		t.Fatalf("expected the compatibility error to clear, got %v", topo.CompatibilityErr)
	}
}

// TestFSMServerSetEquality checks the server set tracks exactly
// the primary's own Hosts/Passives/Arbiters once one is elected, comparing full
// snapshots with go-cmp (ignoring the monotonic ID field).
func TestFSMServerSetEquality(t *testing.T) {
	t.Parallel()

	addrA := address.Address("a:27017").Canonicalize()
	addrB := address.Address("b:27017").Canonicalize()
	addrC := address.Address("c:27017").Canonicalize()

	f := newFSM()
	f.addServer(addrA)
	f.Kind = description.ReplicaSetNoPrimary

	primary := description.Server{
		Addr: addrA, Kind: description.RSPrimary, SetName: "rs0",
		Hosts: []address.Address{addrA, addrB, addrC},
	}
	topo, _ := f.apply(primary)

	gotAddrs := make(map[address.Address]bool, len(topo.Servers))
	for _, s := range topo.Servers {
		gotAddrs[s.Addr] = true
	}
	wantAddrs := map[address.Address]bool{addrA: true, addrB: true, addrC: true}

	if diff := cmp.Diff(wantAddrs, gotAddrs, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("server set mismatch (-want +got):\n%s\nfull state: %s", diff, spew.Sdump(topo))
	}
}
