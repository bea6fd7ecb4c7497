// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package readpref defines read preference modes, tag sets, and the staleness
// constraints used by server selection.
package readpref

import (
	"errors"
	"time"
)

// Mode represents a read preference mode as described in the server selection spec candidate
// table.
type Mode uint8

// The read preference modes.
const (
	PrimaryMode Mode = iota
	PrimaryPreferredMode
	SecondaryMode
	SecondaryPreferredMode
	NearestMode
)

// String implements the Stringer interface.
func (m Mode) String() string {
	switch m {
	case PrimaryMode:
		return "primary"
	case PrimaryPreferredMode:
		return "primaryPreferred"
	case SecondaryMode:
		return "secondary"
	case SecondaryPreferredMode:
		return "secondaryPreferred"
	case NearestMode:
		return "nearest"
	default:
		return "unknown"
	}
}

// ModeFromString parses the connection-string readPreference value.
func ModeFromString(s string) (Mode, error) {
	switch s {
	case "primary":
		return PrimaryMode, nil
	case "primaryPreferred":
		return PrimaryPreferredMode, nil
	case "secondary":
		return SecondaryMode, nil
	case "secondaryPreferred":
		return SecondaryPreferredMode, nil
	case "nearest":
		return NearestMode, nil
	default:
		return 0, errors.New("readpref: unknown mode " + s)
	}
}

// Tag is a single key/value read preference tag.
type Tag struct {
	Name  string
	Value string
}

// TagSet is an ordered set of tags that must all be present on a candidate server.
type TagSet []Tag

// smallestMaxStalenessSeconds is the floor the max staleness spec imposes.
const smallestMaxStalenessSeconds = 90

// idleWritePeriodSeconds is the idle-write period constant from the max staleness spec.
const idleWritePeriodSeconds = 10

// ReadPref pairs a Mode with optional tag sets and a maximum staleness bound.
type ReadPref struct {
	mode           Mode
	tagSets        []TagSet
	maxStaleness   time.Duration
	maxStalenessSet bool
}

// New constructs a ReadPref with the given mode and options.
func New(mode Mode, opts ...Option) (*ReadPref, error) {
	rp := &ReadPref{mode: mode}
	for _, opt := range opts {
		if err := opt(rp); err != nil {
			return nil, err
		}
	}
	if err := rp.validate(); err != nil {
		return nil, err
	}
	return rp, nil
}

// Option configures a ReadPref.
type Option func(*ReadPref) error

// WithTagSets sets the candidate tag sets, tried in order.
func WithTagSets(tagSets ...TagSet) Option {
	return func(rp *ReadPref) error {
		rp.tagSets = tagSets
		return nil
	}
}

// WithMaxStaleness sets the maximum acceptable secondary staleness.
func WithMaxStaleness(d time.Duration) Option {
	return func(rp *ReadPref) error {
		rp.maxStaleness = d
		rp.maxStalenessSet = true
		return nil
	}
}

func (rp *ReadPref) validate() error {
	if rp.mode == PrimaryMode {
		if len(rp.tagSets) > 0 {
			return errors.New("readpref: a non-empty tag set is not allowed with mode primary")
		}
		if rp.maxStalenessSet && rp.maxStaleness > 0 {
			return errors.New("readpref: a positive maxStalenessSeconds is not allowed with mode primary")
		}
	}
	if rp.maxStalenessSet && rp.maxStaleness > 0 && rp.maxStaleness < smallestMaxStalenessSeconds*time.Second {
		return errors.New("readpref: maxStalenessSeconds must be at least 90")
	}
	return nil
}

// ValidateForReplicaSet additionally enforces the heartbeat-derived floor from
// the max staleness spec: maxStalenessSeconds >= max(90, heartbeatFrequencyMS/1000 + 10).
func (rp *ReadPref) ValidateForReplicaSet(heartbeatFrequency time.Duration) error {
	if !rp.maxStalenessSet || rp.maxStaleness <= 0 {
		return nil
	}
	floor := heartbeatFrequency + idleWritePeriodSeconds*time.Second
	if floor < smallestMaxStalenessSeconds*time.Second {
		floor = smallestMaxStalenessSeconds * time.Second
	}
	if rp.maxStaleness < floor {
		return errors.New("readpref: maxStalenessSeconds is too small for the configured heartbeatFrequencyMS")
	}
	return nil
}

// Mode returns the read preference mode.
func (rp *ReadPref) Mode() Mode { return rp.mode }

// TagSets returns the configured tag sets.
func (rp *ReadPref) TagSets() []TagSet { return rp.tagSets }

// MaxStaleness returns the configured max staleness and whether one was set.
func (rp *ReadPref) MaxStaleness() (time.Duration, bool) { return rp.maxStaleness, rp.maxStalenessSet }

// Primary returns a ReadPref with mode primary.
func Primary() *ReadPref { rp, _ := New(PrimaryMode); return rp }

// PrimaryPreferred returns a ReadPref with mode primaryPreferred.
func PrimaryPreferred(opts ...Option) *ReadPref { rp, _ := New(PrimaryPreferredMode, opts...); return rp }

// Secondary returns a ReadPref with mode secondary.
func Secondary(opts ...Option) *ReadPref { rp, _ := New(SecondaryMode, opts...); return rp }

// SecondaryPreferred returns a ReadPref with mode secondaryPreferred.
func SecondaryPreferred(opts ...Option) *ReadPref { rp, _ := New(SecondaryPreferredMode, opts...); return rp }

// Nearest returns a ReadPref with mode nearest.
func Nearest(opts ...Option) *ReadPref { rp, _ := New(NearestMode, opts...); return rp }
