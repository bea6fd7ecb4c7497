// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/mongo/readpref"
)

func rsTopology(servers ...Server) Topology {
	return Topology{Kind: ReplicaSetWithPrimary, Servers: servers, SetName: "rs0"}
}

func member(addr string, kind ServerKind, rtt time.Duration) Server {
	return Server{
		Addr:          address.Address(addr).Canonicalize(),
		Kind:          kind,
		SetName:       "rs0",
		AverageRTT:    rtt,
		AverageRTTSet: true,
	}
}

func candidateAddrs(servers []Server) map[address.Address]bool {
	out := make(map[address.Address]bool, len(servers))
	for _, s := range servers {
		out[s.Addr] = true
	}
	return out
}

// TestNearestLatencyWindow runs the five-node replica set from the selection rules:
// primary at 10ms, secondaries at 12/18/40/60ms, localThresholdMS=15, mode nearest.
// Only servers within minRTT+15ms survive the window.
func TestNearestLatencyWindow(t *testing.T) {
	t.Parallel()

	p := member("p:27017", RSPrimary, 10*time.Millisecond)
	s1 := member("s1:27017", RSSecondary, 12*time.Millisecond)
	s2 := member("s2:27017", RSSecondary, 18*time.Millisecond)
	s3 := member("s3:27017", RSSecondary, 40*time.Millisecond)
	s4 := member("s4:27017", RSSecondary, 60*time.Millisecond)
	topo := rsTopology(p, s1, s2, s3, s4)

	sel := CompositeSelector([]ServerSelector{
		ReadPrefSelector(readpref.Nearest()),
		LatencySelector(15 * time.Millisecond),
	})

	got, err := sel.SelectServer(topo, topo.Servers)
	if err != nil {
		t.Fatalf("SelectServer returned error: %v", err)
	}

	want := candidateAddrs([]Server{p, s1, s2})
	if diff := cmp.Diff(want, candidateAddrs(got), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("latency window mismatch (-want +got):\n%s", diff)
	}

	// The tie-break must never return a server outside the window.
	inFlight := func(Server) int64 { return 0 }
	for i := 0; i < 100; i++ {
		picked := PickTwoInFlight(got, inFlight)
		if !want[picked.Addr] {
			t.Fatalf("PickTwoInFlight returned %v, outside the latency window", picked.Addr)
		}
	}
}

// TestLatencyFilterIdempotent applies the latency window twice and checks the candidate
// set does not change.
func TestLatencyFilterIdempotent(t *testing.T) {
	t.Parallel()

	servers := []Server{
		member("a:27017", RSSecondary, 5*time.Millisecond),
		member("b:27017", RSSecondary, 14*time.Millisecond),
		member("c:27017", RSSecondary, 90*time.Millisecond),
	}
	sel := LatencySelector(15 * time.Millisecond)

	once, err := sel.SelectServer(Topology{}, servers)
	if err != nil {
		t.Fatalf("first application returned error: %v", err)
	}
	twice, err := sel.SelectServer(Topology{}, once)
	if err != nil {
		t.Fatalf("second application returned error: %v", err)
	}
	if diff := cmp.Diff(candidateAddrs(once), candidateAddrs(twice)); diff != "" {
		t.Fatalf("latency filter is not idempotent (-first +second):\n%s", diff)
	}
}

// TestPrimaryModeReturnsUniquePrimary checks the universal property: mode=primary with
// no tag sets and no staleness bound selects exactly the one primary.
func TestPrimaryModeReturnsUniquePrimary(t *testing.T) {
	t.Parallel()

	p := member("p:27017", RSPrimary, 10*time.Millisecond)
	topo := rsTopology(
		p,
		member("s1:27017", RSSecondary, 2*time.Millisecond),
		member("s2:27017", RSSecondary, 3*time.Millisecond),
	)

	got, err := ReadPrefSelector(readpref.Primary()).SelectServer(topo, topo.Servers)
	if err != nil {
		t.Fatalf("SelectServer returned error: %v", err)
	}
	if len(got) != 1 || got[0].Addr != p.Addr {
		t.Fatalf("expected only the primary %v, got %v", p.Addr, candidateAddrs(got))
	}
}

// TestMaxStalenessFilter checks the staleness arithmetic with a primary present: a
// secondary 100s behind with a 10s heartbeat has staleness 110s, so it survives a 120s
// bound and is filtered by a 90s bound.
func TestMaxStalenessFilter(t *testing.T) {
	t.Parallel()

	now := time.Now()
	lastWrite := now.Add(-time.Minute)

	p := member("p:27017", RSPrimary, 10*time.Millisecond)
	p.LastUpdateTime = now
	p.LastWriteDate = lastWrite
	p.LastWriteDateSet = true

	s := member("s:27017", RSSecondary, 10*time.Millisecond)
	s.LastUpdateTime = now
	s.LastWriteDate = lastWrite.Add(-100 * time.Second)
	s.LastWriteDateSet = true
	s.HeartbeatInterval = 10 * time.Second

	topo := rsTopology(p, s)

	cases := []struct {
		name         string
		maxStaleness time.Duration
		wantSurvives bool
	}{
		{"above staleness", 120 * time.Second, true},
		{"below staleness", 90 * time.Second, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rp, err := readpref.New(readpref.SecondaryMode, readpref.WithMaxStaleness(tc.maxStaleness))
			if err != nil {
				t.Fatalf("readpref.New returned error: %v", err)
			}
			got, err := ReadPrefSelector(rp).SelectServer(topo, topo.Servers)
			if err != nil {
				t.Fatalf("SelectServer returned error: %v", err)
			}
			survived := candidateAddrs(got)[s.Addr]
			if survived != tc.wantSurvives {
				t.Fatalf("maxStaleness=%s: secondary survived=%v, want %v", tc.maxStaleness, survived, tc.wantSurvives)
			}
		})
	}
}

// TestTagSetFilterOrder checks that tag sets are tried in order and the first set with
// any match wins.
func TestTagSetFilterOrder(t *testing.T) {
	t.Parallel()

	east := member("east:27017", RSSecondary, 5*time.Millisecond)
	east.Tags = map[string]string{"dc": "east"}
	west := member("west:27017", RSSecondary, 5*time.Millisecond)
	west.Tags = map[string]string{"dc": "west"}
	topo := Topology{Kind: ReplicaSetNoPrimary, Servers: []Server{east, west}, SetName: "rs0"}

	rp, err := readpref.New(readpref.SecondaryMode, readpref.WithTagSets(
		readpref.TagSet{{Name: "dc", Value: "north"}},
		readpref.TagSet{{Name: "dc", Value: "west"}},
	))
	if err != nil {
		t.Fatalf("readpref.New returned error: %v", err)
	}

	got, err := ReadPrefSelector(rp).SelectServer(topo, topo.Servers)
	if err != nil {
		t.Fatalf("SelectServer returned error: %v", err)
	}
	if len(got) != 1 || got[0].Addr != west.Addr {
		t.Fatalf("expected the second tag set to match %v, got %v", west.Addr, candidateAddrs(got))
	}

	// No tag set matching at all leaves the candidate list empty.
	rp, err = readpref.New(readpref.SecondaryMode, readpref.WithTagSets(
		readpref.TagSet{{Name: "dc", Value: "north"}},
	))
	if err != nil {
		t.Fatalf("readpref.New returned error: %v", err)
	}
	got, err = ReadPrefSelector(rp).SelectServer(topo, topo.Servers)
	if err != nil {
		t.Fatalf("SelectServer returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates for an unmatched tag set, got %v", candidateAddrs(got))
	}
}

// TestPickTwoInFlightPrefersIdle checks the two-way tie-break always lands on the
// candidate with fewer in-flight operations when only two candidates exist.
func TestPickTwoInFlightPrefersIdle(t *testing.T) {
	t.Parallel()

	busy := member("busy:27017", RSSecondary, 5*time.Millisecond)
	idle := member("idle:27017", RSSecondary, 5*time.Millisecond)
	counts := map[address.Address]int64{busy.Addr: 7, idle.Addr: 0}
	inFlight := func(s Server) int64 { return counts[s.Addr] }

	for i := 0; i < 100; i++ {
		picked := PickTwoInFlight([]Server{busy, idle}, inFlight)
		if picked.Addr != idle.Addr {
			t.Fatalf("expected the idle server, got %v", picked.Addr)
		}
	}
}

// TestWriteSelector checks writes route to the primary on replica sets and pass through
// on sharded/single topologies.
func TestWriteSelector(t *testing.T) {
	t.Parallel()

	p := member("p:27017", RSPrimary, 0)
	topo := rsTopology(p, member("s:27017", RSSecondary, 0))
	got, err := WriteSelector.SelectServer(topo, topo.Servers)
	if err != nil {
		t.Fatalf("SelectServer returned error: %v", err)
	}
	if len(got) != 1 || got[0].Addr != p.Addr {
		t.Fatalf("expected only the primary, got %v", candidateAddrs(got))
	}

	mongos := Server{Addr: address.Address("q:27017").Canonicalize(), Kind: Mongos}
	sharded := Topology{Kind: Sharded, Servers: []Server{mongos}}
	got, err = WriteSelector.SelectServer(sharded, sharded.Servers)
	if err != nil {
		t.Fatalf("SelectServer returned error: %v", err)
	}
	if len(got) != 1 || got[0].Addr != mongos.Addr {
		t.Fatalf("expected the mongos to pass through, got %v", candidateAddrs(got))
	}
}

// TestSecondaryPreferredFallsBackToPrimary checks the candidate table's
// secondaryPreferred row: secondaries when available, otherwise the primary.
func TestSecondaryPreferredFallsBackToPrimary(t *testing.T) {
	t.Parallel()

	p := member("p:27017", RSPrimary, 0)
	topo := rsTopology(p)

	got, err := ReadPrefSelector(readpref.SecondaryPreferred()).SelectServer(topo, topo.Servers)
	if err != nil {
		t.Fatalf("SelectServer returned error: %v", err)
	}
	if len(got) != 1 || got[0].Addr != p.Addr {
		t.Fatalf("expected fallback to the primary, got %v", candidateAddrs(got))
	}
}
