// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testutil provides the shared test fixtures the mongo package's internal
// tests use to reach a live or mocked deployment.
package testutil

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mongocore/driver/connstring"
	"github.com/mongocore/driver/event"
	"github.com/mongocore/driver/mongo/options"
)

var connectionString *connstring.ConnString
var connectionStringOnce sync.Once
var connectionStringErr error

// AddOptionsToURI appends connection string options to a URI.
func AddOptionsToURI(uri string, opts ...string) string {
	if !strings.ContainsRune(uri, '?') {
		if uri[len(uri)-1] != '/' {
			uri += "/"
		}
		uri += "?"
	} else {
		uri += "&"
	}
	for _, opt := range opts {
		uri += opt
	}
	return uri
}

// AddTLSConfigToURI checks for the environment variable indicating that the tests are
// being run against a TLS-enabled server, and if so, returns a new URI with the
// necessary configuration.
func AddTLSConfigToURI(uri string) string {
	caFile := os.Getenv("MONGOCORE_CA_FILE")
	if len(caFile) == 0 {
		return uri
	}
	return AddOptionsToURI(uri, "ssl=true&sslCertificateAuthorityFile=", caFile)
}

// AddCompressorToURI checks for the environment variable indicating that the tests are
// being run with compression enabled. If so, it returns a new URI with the necessary
// configuration.
func AddCompressorToURI(uri string) string {
	comp := os.Getenv("MONGOCORE_COMPRESSOR")
	if len(comp) == 0 {
		return uri
	}
	return AddOptionsToURI(uri, "compressors=", comp)
}

func mongodbURI(t *testing.T) string {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	uri = AddTLSConfigToURI(uri)
	uri = AddCompressorToURI(uri)
	return uri
}

// ClientOptions builds ClientOptions pointed at the locally configured deployment, with
// monitor attached if non-nil.
func ClientOptions(t *testing.T, monitor *event.CommandMonitor) *options.ClientOptions {
	opts := options.Client(mongodbURI(t))
	if monitor != nil {
		opts = opts.SetMonitor(monitor)
	}
	return opts
}

// ColName gets a collection name that should be unique to the currently executing test.
func ColName(t *testing.T) string {
	// Get this indirectly to avoid copying a mutex.
	v := reflect.Indirect(reflect.ValueOf(t))
	name := v.FieldByName("name")
	return name.String()
}

// ConnString gets the globally configured connection string.
func ConnString(t *testing.T) *connstring.ConnString {
	connectionStringOnce.Do(func() {
		connectionString, connectionStringErr = connstring.Parse(mongodbURI(t))
	})
	require.NoError(t, connectionStringErr)
	return connectionString
}

// GetConnString parses the locally configured connection string without a *testing.T,
// for use from non-test helpers.
func GetConnString() (*connstring.ConnString, error) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	uri = AddTLSConfigToURI(uri)
	return connstring.Parse(uri)
}

// DBName gets the globally configured database name, unique per test process since
// ConnString carries no database component of its own.
func DBName(t *testing.T) string {
	return fmt.Sprintf("mongocore-test-%d", os.Getpid())
}

// CompareVersions compares two version number strings (positive integers separated by
// periods). Comparisons are done to the lesser precision of the two versions: 3.2 is
// considered equal to 3.2.11.
//
// Returns a positive int if v1 > v2, negative if v1 < v2, 0 if equal.
func CompareVersions(t *testing.T, v1, v2 string) int {
	n1 := strings.Split(v1, ".")
	n2 := strings.Split(v2, ".")

	for i := 0; i < int(math.Min(float64(len(n1)), float64(len(n2)))); i++ {
		i1, err := strconv.Atoi(n1[i])
		require.NoError(t, err)

		i2, err := strconv.Atoi(n2[i])
		require.NoError(t, err)

		if diff := i1 - i2; diff != 0 {
			return diff
		}
	}
	return 0
}
