// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"time"

	"github.com/mongocore/driver/address"
	"github.com/mongocore/driver/bson/primitive"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// TopologyVersion tracks the monotonically increasing (processId, counter) pair a
// server reports so that SDAM error handling can tell a stale error apart from a fresh
// one (the SDAM spec's topologyVersion handling).
type TopologyVersion struct {
	ProcessID primitive.ObjectID
	Counter   int64
}

// CompareTopologyVersion returns -1, 0, or 1 as a compares before, the same as, or
// after b. A nil TopologyVersion compares as older than any non-nil one.
func CompareTopologyVersion(a, b *TopologyVersion) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.ProcessID != b.ProcessID:
		return -1
	case a.Counter < b.Counter:
		return -1
	case a.Counter > b.Counter:
		return 1
	default:
		return 0
	}
}

// VersionRange represents the inclusive [Min, Max] wire version range a server supports.
type VersionRange struct {
	Min int32
	Max int32
}

// SupportedWireVersions is the range of wire protocol versions this driver can speak.
// A deployment containing a server whose own range does not overlap it is flagged with
// a compatibility error.
var SupportedWireVersions = VersionRange{Min: 6, Max: 21}

// MinSupportedMongoDBVersion is the oldest server release SupportedWireVersions.Min
// corresponds to, for error messages.
const MinSupportedMongoDBVersion = "3.6"

// Supports reports whether v falls within the range.
func (vr VersionRange) Supports(v int32) bool { return v >= vr.Min && v <= vr.Max }

// Server is an immutable snapshot of one server's state as of its last heartbeat
//.
type Server struct {
	Addr address.Address

	Kind              ServerKind
	AverageRTT        time.Duration
	AverageRTTSet     bool
	LastUpdateTime    time.Time
	LastWriteDate     time.Time
	LastWriteDateSet  bool
	HeartbeatInterval time.Duration

	WireVersion *VersionRange

	Me        address.Address
	Hosts     []address.Address
	Passives  []address.Address
	Arbiters  []address.Address
	Tags      map[string]string
	SetName   string
	SetVersion uint32
	SetVersionSet bool
	ElectionID primitive.ObjectID
	ElectionIDSet bool
	Primary    address.Address

	SessionTimeoutMinutes       int64
	SessionTimeoutMinutesSet    bool
	TopologyVersion             *TopologyVersion
	LastError                   error

	Compressors []string
}

// NewDefaultServer returns the zero-value Unknown description for a freshly-added
// server address, before its first heartbeat has completed.
func NewDefaultServer(addr address.Address) Server {
	return Server{Addr: addr, Kind: Unknown, LastUpdateTime: time.Time{}}
}

// NewServerFromError returns an Unknown Server description carrying err, used both by
// a failed heartbeat and by SDAM error-handling on an application operation
// (the SDAM spec's error handling rules).
func NewServerFromError(addr address.Address, err error, tv *TopologyVersion) Server {
	return Server{
		Addr:            addr,
		Kind:            Unknown,
		LastError:       err,
		LastUpdateTime:  time.Now(),
		TopologyVersion: tv,
	}
}

// NewServer interprets a hello/isMaster command reply into a Server description
//.
func NewServer(addr address.Address, reply bsoncore.Document) Server {
	s := Server{
		Addr:           addr,
		Kind:           Standalone,
		LastUpdateTime: time.Now(),
		Tags:           map[string]string{},
	}

	if v, ok := reply.Lookup("ok"); ok {
		if n, isNum := v.AsInt64OK(); isNum && n == 0 {
			s.Kind = Unknown
			return s
		}
	}

	isReplicaSet := false
	if v, ok := reply.Lookup("setName"); ok {
		if name, isStr := v.StringValueOK(); isStr {
			s.SetName = name
			isReplicaSet = true
		}
	}

	isMaster := boolField(reply, "ismaster") || boolField(reply, "isWritablePrimary")
	isSecondary := boolField(reply, "secondary")
	isArbiter := boolField(reply, "arbiterOnly")
	isHidden := boolField(reply, "hidden")

	switch {
	case boolField(reply, "isreplicaset"):
		s.Kind = RSGhost
	case isReplicaSet && isMaster:
		s.Kind = RSPrimary
	case isReplicaSet && isSecondary:
		s.Kind = RSSecondary
	case isReplicaSet && isArbiter:
		s.Kind = RSArbiter
	case isReplicaSet:
		s.Kind = RSOther
	}
	_ = isHidden
	if v, ok := reply.Lookup("msg"); ok {
		if msg, isStr := v.StringValueOK(); isStr && msg == "isdbgrid" {
			s.Kind = Mongos
		}
	}

	if v, ok := reply.Lookup("me"); ok {
		if me, isStr := v.StringValueOK(); isStr {
			s.Me = address.Address(me).Canonicalize()
		}
	}
	s.Hosts = addressArray(reply, "hosts")
	s.Passives = addressArray(reply, "passives")
	s.Arbiters = addressArray(reply, "arbiters")

	if v, ok := reply.Lookup("primary"); ok {
		if p, isStr := v.StringValueOK(); isStr {
			s.Primary = address.Address(p).Canonicalize()
		}
	}

	if v, ok := reply.Lookup("minWireVersion"); ok {
		min, _ := v.AsInt64OK()
		s.WireVersion = &VersionRange{Min: int32(min)}
	}
	if v, ok := reply.Lookup("maxWireVersion"); ok {
		max, _ := v.AsInt64OK()
		if s.WireVersion == nil {
			s.WireVersion = &VersionRange{}
		}
		s.WireVersion.Max = int32(max)
	}

	if v, ok := reply.Lookup("tags"); ok {
		if doc, isDoc := v.DocumentOK(); isDoc {
			for _, e := range doc {
				if sv, isStr := e.Value.StringValueOK(); isStr {
					s.Tags[e.Key] = sv
				}
			}
		}
	}

	if v, ok := reply.Lookup("setVersion"); ok {
		if n, isNum := v.AsInt64OK(); isNum {
			s.SetVersion, s.SetVersionSet = uint32(n), true
		}
	}
	if v, ok := reply.Lookup("electionId"); ok {
		s.ElectionID, s.ElectionIDSet = v.ObjectID(), true
	}

	if v, ok := reply.Lookup("logicalSessionTimeoutMinutes"); ok {
		if n, isNum := v.AsInt64OK(); isNum {
			s.SessionTimeoutMinutes, s.SessionTimeoutMinutesSet = n, true
		}
	}

	if v, ok := reply.Lookup("topologyVersion"); ok {
		if doc, isDoc := v.DocumentOK(); isDoc {
			tv := &TopologyVersion{}
			if pid, ok := doc.Lookup("processId"); ok {
				tv.ProcessID = pid.ObjectID()
			}
			if c, ok := doc.Lookup("counter"); ok {
				tv.Counter = c.Int64()
			}
			s.TopologyVersion = tv
		}
	}

	if v, ok := reply.Lookup("compression"); ok {
		if arr, isArr := v.ArrayOK(); isArr {
			for _, e := range arr {
				if sv, isStr := e.StringValueOK(); isStr {
					s.Compressors = append(s.Compressors, sv)
				}
			}
		}
	}

	return s
}

func boolField(reply bsoncore.Document, key string) bool {
	v, ok := reply.Lookup(key)
	if !ok {
		return false
	}
	b, _ := v.BooleanOK()
	return b
}

func addressArray(reply bsoncore.Document, key string) []address.Address {
	v, ok := reply.Lookup(key)
	if !ok {
		return nil
	}
	arr, isArr := v.ArrayOK()
	if !isArr {
		return nil
	}
	out := make([]address.Address, 0, len(arr))
	for _, e := range arr {
		if s, isStr := e.StringValueOK(); isStr {
			out = append(out, address.Address(s).Canonicalize())
		}
	}
	return out
}

// SetAverageRTT returns a copy of s with the average round-trip time set.
func (s Server) SetAverageRTT(rtt time.Duration) Server {
	s.AverageRTT = rtt
	s.AverageRTTSet = true
	return s
}

// AllHosts returns the union of Hosts, Passives, and Arbiters -- the complete set of
// replica set members this server is aware of.
func (s Server) AllHosts() []address.Address {
	out := make([]address.Address, 0, len(s.Hosts)+len(s.Passives)+len(s.Arbiters))
	out = append(out, s.Hosts...)
	out = append(out, s.Passives...)
	out = append(out, s.Arbiters...)
	return out
}

// Equal reports whether two ServerDescriptions are equal for change-publication
// purposes: address, kind, wire versions, me, hosts/passives/arbiters, tags, set
// name and version, election id, primary, session timeout, and error must match.
// AverageRTT, LastUpdateTime, LastWriteDate, HeartbeatInterval, TopologyVersion, and
// Compressors are not compared.
func (s Server) Equal(other Server) bool {
	if s.Addr != other.Addr ||
		s.Kind != other.Kind ||
		s.Me != other.Me ||
		s.SetName != other.SetName ||
		s.SetVersionSet != other.SetVersionSet ||
		s.SetVersion != other.SetVersion ||
		s.ElectionIDSet != other.ElectionIDSet ||
		s.ElectionID != other.ElectionID ||
		s.Primary != other.Primary ||
		s.SessionTimeoutMinutesSet != other.SessionTimeoutMinutesSet ||
		s.SessionTimeoutMinutes != other.SessionTimeoutMinutes {
		return false
	}
	if (s.WireVersion == nil) != (other.WireVersion == nil) {
		return false
	}
	if s.WireVersion != nil && *s.WireVersion != *other.WireVersion {
		return false
	}
	if (s.LastError == nil) != (other.LastError == nil) {
		return false
	}
	if s.LastError != nil && other.LastError != nil && s.LastError.Error() != other.LastError.Error() {
		return false
	}
	if !stringMapEqual(s.Tags, other.Tags) {
		return false
	}
	if !addrSliceEqual(s.Hosts, other.Hosts) || !addrSliceEqual(s.Passives, other.Passives) ||
		!addrSliceEqual(s.Arbiters, other.Arbiters) {
		return false
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func addrSliceEqual(a, b []address.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MatchesTagSet reports whether the server's tags are a superset of every key/value
// pair in ts.
func (s Server) MatchesTagSet(ts readpref.TagSet) bool {
	for _, t := range ts {
		if v, ok := s.Tags[t.Name]; !ok || v != t.Value {
			return false
		}
	}
	return true
}
