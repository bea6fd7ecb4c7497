// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"crypto/tls"
	"time"

	"github.com/mongocore/driver/event"
	"github.com/mongocore/driver/mongo/readconcern"
	"github.com/mongocore/driver/mongo/readpref"
	"github.com/mongocore/driver/mongo/writeconcern"
)

// Collation specifies string-comparison rules for operations that accept one, per
// the server's collation parameter.
type Collation struct {
	Locale          string
	CaseLevel       bool
	CaseFirst       string
	Strength        int
	NumericOrdering bool
	Alternate       string
	MaxVariable     string
	Normalization   bool
	Backwards       bool
}

// FullDocument controls how much of a changed document a change stream event includes.
type FullDocument string

// The FullDocument settings the change streams spec names.
const (
	Default       FullDocument = "default"
	Off           FullDocument = "off"
	UpdateLookup  FullDocument = "updateLookup"
	Required      FullDocument = "required"
	WhenAvailable FullDocument = "whenAvailable"
)

// Credential holds the authentication parameters that can be set on ClientOptions
// directly instead of embedded in the connection string's userinfo.
type Credential struct {
	AuthMechanism           string
	AuthMechanismProperties map[string]string
	AuthSource              string
	Username                string
	Password                string
	PasswordSet             bool
}

// ClientOptions configures a Client returned by Connect (the connection string's parsed
// connection parameters applied at the API surface).
type ClientOptions struct {
	URI                    string
	AppName                *string
	Auth                   *Credential
	ReadPreference         *readpref.ReadPref
	ReadConcern            *readconcern.ReadConcern
	WriteConcern           *writeconcern.WriteConcern
	RetryWrites            *bool
	RetryReads             *bool
	MaxPoolSize            *uint64
	MinPoolSize            *uint64
	ServerSelectionTimeout *time.Duration
	HeartbeatInterval      *time.Duration
	Monitor                *event.CommandMonitor
	PoolMonitor            *event.PoolMonitor
	ServerMonitor          *event.ServerMonitor
	TLSConfig              *tls.Config
}

// Client returns a new, empty ClientOptions pinned to uri.
func Client(uri string) *ClientOptions {
	return &ClientOptions{URI: uri}
}

// GetURI returns the configured URI, or the default local deployment if unset.
func (c *ClientOptions) GetURI() string {
	if c == nil || c.URI == "" {
		return "mongodb://localhost:27017"
	}
	return c.URI
}

// GetAppName returns the configured application name, or the empty string.
func (c *ClientOptions) GetAppName() string {
	if c == nil || c.AppName == nil {
		return ""
	}
	return *c.AppName
}

// SetAppName sets the application name reported during the hello handshake.
func (c *ClientOptions) SetAppName(name string) *ClientOptions { c.AppName = &name; return c }

// SetAuth sets explicit authentication parameters, overriding any userinfo in the URI.
func (c *ClientOptions) SetAuth(cred Credential) *ClientOptions { c.Auth = &cred; return c }

// SetReadPreference sets the default read preference for databases/collections derived
// from this client.
func (c *ClientOptions) SetReadPreference(rp *readpref.ReadPref) *ClientOptions {
	c.ReadPreference = rp
	return c
}

// SetReadConcern sets the default read concern.
func (c *ClientOptions) SetReadConcern(rc *readconcern.ReadConcern) *ClientOptions {
	c.ReadConcern = rc
	return c
}

// SetWriteConcern sets the default write concern.
func (c *ClientOptions) SetWriteConcern(wc *writeconcern.WriteConcern) *ClientOptions {
	c.WriteConcern = wc
	return c
}

// SetRetryWrites toggles retryable writes.
func (c *ClientOptions) SetRetryWrites(b bool) *ClientOptions { c.RetryWrites = &b; return c }

// SetRetryReads toggles retryable reads.
func (c *ClientOptions) SetRetryReads(b bool) *ClientOptions { c.RetryReads = &b; return c }

// SetMaxPoolSize sets the connection pool's maxPoolSize.
func (c *ClientOptions) SetMaxPoolSize(n uint64) *ClientOptions { c.MaxPoolSize = &n; return c }

// SetMinPoolSize sets the connection pool's minPoolSize.
func (c *ClientOptions) SetMinPoolSize(n uint64) *ClientOptions { c.MinPoolSize = &n; return c }

// SetServerSelectionTimeout bounds how long server selection waits.
func (c *ClientOptions) SetServerSelectionTimeout(d time.Duration) *ClientOptions {
	c.ServerSelectionTimeout = &d
	return c
}

// SetHeartbeatInterval sets how often each server's monitor sends a hello.
func (c *ClientOptions) SetHeartbeatInterval(d time.Duration) *ClientOptions {
	c.HeartbeatInterval = &d
	return c
}

// SetMonitor installs command-monitoring event callbacks.
func (c *ClientOptions) SetMonitor(m *event.CommandMonitor) *ClientOptions { c.Monitor = m; return c }

// SetPoolMonitor installs connection-pool event callbacks.
func (c *ClientOptions) SetPoolMonitor(m *event.PoolMonitor) *ClientOptions { c.PoolMonitor = m; return c }

// SetServerMonitor installs SDAM event callbacks.
func (c *ClientOptions) SetServerMonitor(m *event.ServerMonitor) *ClientOptions {
	c.ServerMonitor = m
	return c
}

// SetTLSConfig enables TLS on every connection this client dials, e.g. a client
// certificate loaded with auth.LoadX509KeyPair for MONGODB-X509 authentication.
func (c *ClientOptions) SetTLSConfig(cfg *tls.Config) *ClientOptions { c.TLSConfig = cfg; return c }

// MergeClientOptions combines a slice of ClientOptions into a single one, with later
// non-nil fields overriding earlier ones, the same variadic-options merge idiom used
// across this package.
func MergeClientOptions(opts ...*ClientOptions) *ClientOptions {
	merged := &ClientOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.URI != "" {
			merged.URI = o.URI
		}
		if o.AppName != nil {
			merged.AppName = o.AppName
		}
		if o.Auth != nil {
			merged.Auth = o.Auth
		}
		if o.ReadPreference != nil {
			merged.ReadPreference = o.ReadPreference
		}
		if o.ReadConcern != nil {
			merged.ReadConcern = o.ReadConcern
		}
		if o.WriteConcern != nil {
			merged.WriteConcern = o.WriteConcern
		}
		if o.RetryWrites != nil {
			merged.RetryWrites = o.RetryWrites
		}
		if o.RetryReads != nil {
			merged.RetryReads = o.RetryReads
		}
		if o.MaxPoolSize != nil {
			merged.MaxPoolSize = o.MaxPoolSize
		}
		if o.MinPoolSize != nil {
			merged.MinPoolSize = o.MinPoolSize
		}
		if o.ServerSelectionTimeout != nil {
			merged.ServerSelectionTimeout = o.ServerSelectionTimeout
		}
		if o.HeartbeatInterval != nil {
			merged.HeartbeatInterval = o.HeartbeatInterval
		}
		if o.Monitor != nil {
			merged.Monitor = o.Monitor
		}
		if o.PoolMonitor != nil {
			merged.PoolMonitor = o.PoolMonitor
		}
		if o.ServerMonitor != nil {
			merged.ServerMonitor = o.ServerMonitor
		}
		if o.TLSConfig != nil {
			merged.TLSConfig = o.TLSConfig
		}
	}
	return merged
}

// DatabaseOptions configures a Database derived from a Client.
type DatabaseOptions struct {
	ReadPreference *readpref.ReadPref
	ReadConcern    *readconcern.ReadConcern
	WriteConcern   *writeconcern.WriteConcern
}

// Database returns a new, empty DatabaseOptions.
func Database() *DatabaseOptions { return &DatabaseOptions{} }

// SetReadPreference overrides the database's read preference.
func (d *DatabaseOptions) SetReadPreference(rp *readpref.ReadPref) *DatabaseOptions {
	d.ReadPreference = rp
	return d
}

// SetReadConcern overrides the database's read concern.
func (d *DatabaseOptions) SetReadConcern(rc *readconcern.ReadConcern) *DatabaseOptions {
	d.ReadConcern = rc
	return d
}

// SetWriteConcern overrides the database's write concern.
func (d *DatabaseOptions) SetWriteConcern(wc *writeconcern.WriteConcern) *DatabaseOptions {
	d.WriteConcern = wc
	return d
}

// CollectionOptions configures a Collection derived from a Database.
type CollectionOptions struct {
	ReadPreference *readpref.ReadPref
	ReadConcern    *readconcern.ReadConcern
	WriteConcern   *writeconcern.WriteConcern
}

// Collection returns a new, empty CollectionOptions.
func Collection() *CollectionOptions { return &CollectionOptions{} }

// SetReadPreference overrides the collection's read preference.
func (c *CollectionOptions) SetReadPreference(rp *readpref.ReadPref) *CollectionOptions {
	c.ReadPreference = rp
	return c
}

// SetReadConcern overrides the collection's read concern.
func (c *CollectionOptions) SetReadConcern(rc *readconcern.ReadConcern) *CollectionOptions {
	c.ReadConcern = rc
	return c
}

// SetWriteConcern overrides the collection's write concern.
func (c *CollectionOptions) SetWriteConcern(wc *writeconcern.WriteConcern) *CollectionOptions {
	c.WriteConcern = wc
	return c
}

// SessionOptions configures a session started with Client.StartSession.
type SessionOptions struct {
	CausalConsistency *bool
	DefaultReadPreference *readpref.ReadPref
}

// Session returns a new, empty SessionOptions.
func Session() *SessionOptions { return &SessionOptions{} }

// SetCausalConsistency toggles causal consistency (the driver sessions spec); defaults to true.
func (s *SessionOptions) SetCausalConsistency(b bool) *SessionOptions {
	s.CausalConsistency = &b
	return s
}

// TransactionOptions configures a multi-document transaction.
type TransactionOptions struct {
	ReadPreference *readpref.ReadPref
	ReadConcern    *readconcern.ReadConcern
	WriteConcern   *writeconcern.WriteConcern
}

// Transaction returns a new, empty TransactionOptions.
func Transaction() *TransactionOptions { return &TransactionOptions{} }

// SetReadConcern overrides the transaction's read concern.
func (t *TransactionOptions) SetReadConcern(rc *readconcern.ReadConcern) *TransactionOptions {
	t.ReadConcern = rc
	return t
}

// SetWriteConcern overrides the transaction's write concern.
func (t *TransactionOptions) SetWriteConcern(wc *writeconcern.WriteConcern) *TransactionOptions {
	t.WriteConcern = wc
	return t
}
