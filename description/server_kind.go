// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package description holds the immutable snapshots (ServerDescription,
// TopologyDescription) that the rest of the core reasons about, and the selector
// machinery that filters and ranks them for a given read preference.
package description

// ServerKind represents the kind of a server as derived from its latest hello/isMaster
// reply.
type ServerKind uint32

// These constants are the possible kinds of servers.
const (
	Unknown ServerKind = iota
	Standalone
	RSMember
	RSGhost
	RSPrimary
	RSSecondary
	RSArbiter
	RSOther
	Mongos
	LoadBalancer
	PossiblePrimary
)

// String implements the Stringer interface.
func (kind ServerKind) String() string {
	switch kind {
	case Standalone:
		return "Standalone"
	case RSMember:
		return "RSMember"
	case RSGhost:
		return "RSGhost"
	case RSPrimary:
		return "RSPrimary"
	case RSSecondary:
		return "RSSecondary"
	case RSArbiter:
		return "RSArbiter"
	case RSOther:
		return "RSOther"
	case Mongos:
		return "Mongos"
	case LoadBalancer:
		return "LoadBalancer"
	case PossiblePrimary:
		return "PossiblePrimary"
	default:
		return "Unknown"
	}
}

// DataBearing reports whether a server of this kind stores application data and
// therefore contributes to logicalSessionTimeoutMinutes aggregation.
func (kind ServerKind) DataBearing() bool {
	switch kind {
	case Standalone, RSPrimary, RSSecondary, Mongos, LoadBalancer:
		return true
	default:
		return false
	}
}
