// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package primitive contains the BSON scalar value types that the core
// uses as identifiers and clocks; it does not implement the BSON codec.
package primitive

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// ObjectID is a 12-byte BSON object id: a 4-byte timestamp, a 5-byte random process
// identifier, and a 3-byte monotonic counter.
type ObjectID [12]byte

var objectIDCounter = randomUint32()
var processUnique = processUniqueBytes()

// NewObjectID returns a new ObjectID seeded with the current time.
func NewObjectID() ObjectID {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	copy(b[4:9], processUnique[:])
	putUint24(b[9:12], atomic.AddUint32(&objectIDCounter, 1))
	return b
}

// IsZero reports whether id is the zero ObjectID.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// Hex returns the hex encoding of the ObjectID.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id ObjectID) String() string {
	return fmt.Sprintf("ObjectID(%q)", id.Hex())
}

// ObjectIDFromHex parses a 24-character hex string into an ObjectID.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != 12 {
		return id, fmt.Errorf("primitive: invalid ObjectID length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func processUniqueBytes() [5]byte {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return b
}

// Timestamp represents a BSON timestamp value: a non-decreasing (T, I) pair used for
// majority write concern acknowledgement and operationTime tracking.
type Timestamp struct {
	T uint32
	I uint32
}

// After reports whether ts happened strictly after other.
func (ts Timestamp) After(other Timestamp) bool {
	if ts.T != other.T {
		return ts.T > other.T
	}
	return ts.I > other.I
}

// CompareTimestamp orders two timestamps; used to compute max(clusterTime, operationTime).
func CompareTimestamp(a, b Timestamp) int {
	switch {
	case a.T != b.T:
		if a.T < b.T {
			return -1
		}
		return 1
	case a.I != b.I:
		if a.I < b.I {
			return -1
		}
		return 1
	default:
		return 0
	}
}
