// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"testing"
	"time"

	"github.com/mongocore/driver/address"
)

// TestUpdateAverageRTT checks the exponentially weighted moving average: the first
// sample is stored directly, every later one contributes with weight 0.2.
func TestUpdateAverageRTT(t *testing.T) {
	t.Parallel()

	s, err := NewServer(address.Address("rtt:27017").Canonicalize())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}

	first := s.updateAverageRTT(100 * time.Millisecond)
	if first != 100*time.Millisecond {
		t.Fatalf("first sample should be stored directly, got %s", first)
	}

	second := s.updateAverageRTT(200 * time.Millisecond)
	want := time.Duration(0.2*float64(200*time.Millisecond) + 0.8*float64(100*time.Millisecond))
	if second != want {
		t.Fatalf("second sample: got %s, want %s", second, want)
	}

	third := s.updateAverageRTT(50 * time.Millisecond)
	want = time.Duration(0.2*float64(50*time.Millisecond) + 0.8*float64(want))
	if third != want {
		t.Fatalf("third sample: got %s, want %s", third, want)
	}
}
