// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

// TopologyKind represents the kind of a deployment.
type TopologyKind uint32

// These constants are the possible kinds of topology. UnknownTopology is the zero
// value; it is named distinctly from ServerKind's Unknown to keep both enumerations in
// this package without a name collision.
const (
	UnknownTopology TopologyKind = iota
	Single
	ReplicaSet
	ReplicaSetNoPrimary
	ReplicaSetWithPrimary
	Sharded
	LoadBalanced
)

// String implements the Stringer interface.
func (kind TopologyKind) String() string {
	switch kind {
	case Single:
		return "Single"
	case ReplicaSet:
		return "ReplicaSet"
	case ReplicaSetNoPrimary:
		return "ReplicaSetNoPrimary"
	case ReplicaSetWithPrimary:
		return "ReplicaSetWithPrimary"
	case Sharded:
		return "Sharded"
	case LoadBalanced:
		return "LoadBalanced"
	default:
		return "Unknown"
	}
}
