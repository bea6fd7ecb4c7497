// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connstring parses a MongoDB connection string (the connection string spec) into a
// ConnString, the structured configuration the rest of the core builds on.
package connstring

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/mongocore/driver/internal/randutil"
)

// Scheme is the connection string's URI scheme.
type Scheme string

// The two recognized schemes.
const (
	SchemeMongoDB    Scheme = "mongodb"
	SchemeMongoDBSRV Scheme = "mongodb+srv"
)

const smallestMaxStalenessSeconds = 90

// AuthMechanismProperty is a single K:V pair from authMechanismProperties.
type AuthMechanismProperty struct {
	Key   string
	Value string
}

// ConnString is the parsed form of a connection string.
type ConnString struct {
	Original string
	Scheme   Scheme

	Username string
	Password string
	HasPassword bool

	Hosts []string

	ReplicaSet string

	AuthSource              string
	AuthMechanism           string
	AuthMechanismProperties []AuthMechanismProperty

	RetryWrites    bool
	RetryWritesSet bool

	ReadConcernLevel string

	W           string
	WTimeoutMS  int64
	WTimeoutSet bool
	Journal     bool
	JournalSet  bool

	ReadPreference     string
	ReadPreferenceTags []map[string]string

	MaxStaleness    int64
	MaxStalenessSet bool

	ServerSelectionTimeoutMS int64
	HeartbeatFrequencyMS     int64
	LocalThresholdMS         int64

	LoadBalanced bool

	AppName string

	Compressors           []string
	ZlibCompressionLevel   int
	ZlibCompressionLevelSet bool

	SRVServiceName string
	SRVMaxHosts    int
}

// Parse parses s into a ConnString, applying the validation rules of the connection string spec.
func Parse(s string) (*ConnString, error) {
	cs := &ConnString{Original: s}

	scheme, rest, err := splitScheme(s)
	if err != nil {
		return nil, err
	}
	cs.Scheme = scheme

	if strings.Count(rest, "?") > 1 {
		return nil, invalidArg("duplicate ? in connection string")
	}

	authority, pathAndQuery, _ := strings.Cut(rest, "/")

	userinfo, hostPart := authority, ""
	if i := strings.LastIndex(authority, "@"); i >= 0 {
		userinfo, hostPart = authority[:i], authority[i+1:]
	} else {
		hostPart = authority
	}

	if userinfo != authority {
		if err := parseUserinfo(cs, userinfo); err != nil {
			return nil, err
		}
	}

	hosts, err := parseHosts(hostPart)
	if err != nil {
		return nil, err
	}
	cs.Hosts = hosts

	if cs.Scheme == SchemeMongoDBSRV {
		if len(hosts) != 1 {
			return nil, invalidArg("mongodb+srv requires exactly one host")
		}
		if strings.Contains(hosts[0], ":") {
			return nil, invalidArg("mongodb+srv does not permit a port")
		}
	}

	srvOriginalHost := ""
	if cs.Scheme == SchemeMongoDBSRV {
		srvOriginalHost = hosts[0]
	}

	dbPart, query, _ := strings.Cut(pathAndQuery, "?")
	if dbPart != "" {
		db, err := url.QueryUnescape(strings.TrimPrefix(dbPart, "/"))
		if err != nil {
			return nil, invalidArg("invalid percent-encoding in defaultAuthDb")
		}
		if cs.AuthSource == "" {
			cs.AuthSource = db
		}
	}

	if err := parseOptions(cs, query); err != nil {
		return nil, err
	}

	if err := applyMechanismDefaults(cs); err != nil {
		return nil, err
	}

	if srvOriginalHost != "" {
		if err := resolveSRV(cs, srvOriginalHost, query != ""); err != nil {
			return nil, err
		}
	}

	return cs, nil
}

// resolveSRV performs the single DNS SRV (and, if present, TXT) resolution step a
// mongodb+srv:// URI requires to discover its seed list. This is a one-time lookup,
// not a background re-poll loop. host is the original SRV hostname with its
// "mongodb+srv://" scheme already stripped; hadQuery reports whether the URI itself
// carried a query string, so TXT-record options only fill in what the caller left
// unset.
func resolveSRV(cs *ConnString, host string, hadQuery bool) error {
	serviceName := cs.SRVServiceName
	if serviceName == "" {
		serviceName = "mongodb"
	}

	_, srvAddrs, err := net.LookupSRV(serviceName, "tcp", host)
	if err != nil {
		return invalidArg("SRV lookup failed for " + host + ": " + err.Error())
	}
	if len(srvAddrs) == 0 {
		return invalidArg("SRV lookup for " + host + " returned no records")
	}

	parentDomain := host
	if i := strings.Index(host, "."); i >= 0 {
		parentDomain = host[i+1:]
	}

	hosts := make([]string, 0, len(srvAddrs))
	for _, a := range srvAddrs {
		target := strings.TrimSuffix(a.Target, ".")
		if !strings.HasSuffix(strings.ToLower(target), "."+strings.ToLower(parentDomain)) &&
			!strings.EqualFold(target, parentDomain) {
			return invalidArg("SRV record target " + target + " is not a subdomain of " + parentDomain)
		}
		hosts = append(hosts, fmt.Sprintf("%s:%d", target, a.Port))
	}

	if cs.SRVMaxHosts > 0 && len(hosts) > cs.SRVMaxHosts {
		randutil.Shared().Shuffle(len(hosts), func(i, j int) { hosts[i], hosts[j] = hosts[j], hosts[i] })
		hosts = hosts[:cs.SRVMaxHosts]
	}
	cs.Hosts = hosts

	if recs, err := net.LookupTXT(host); err == nil && len(recs) > 0 {
		if err := applySRVTXTOptions(cs, recs[0], hadQuery); err != nil {
			return err
		}
	}
	return nil
}

// applySRVTXTOptions merges authSource/replicaSet/loadBalanced from a SRV URI's TXT
// record, per the mechanism defaults table, never overriding a value
// the URI's own query string already set.
func applySRVTXTOptions(cs *ConnString, txt string, hadQuery bool) error {
	values, err := url.ParseQuery(txt)
	if err != nil {
		return invalidArg("malformed SRV TXT record options")
	}
	for key, vals := range values {
		switch key {
		case "authSource":
			if cs.AuthSource == "" {
				cs.AuthSource = vals[len(vals)-1]
			}
		case "replicaSet":
			if cs.ReplicaSet == "" {
				cs.ReplicaSet = vals[len(vals)-1]
			}
		case "loadBalanced":
			if !hadQuery {
				b, err := strconv.ParseBool(vals[len(vals)-1])
				if err != nil {
					return invalidArg("loadBalanced must be a boolean")
				}
				cs.LoadBalanced = b
			}
		}
	}
	return nil
}

func splitScheme(s string) (Scheme, string, error) {
	switch {
	case strings.HasPrefix(s, string(SchemeMongoDBSRV)+"://"):
		return SchemeMongoDBSRV, strings.TrimPrefix(s, string(SchemeMongoDBSRV)+"://"), nil
	case strings.HasPrefix(s, string(SchemeMongoDB)+"://"):
		return SchemeMongoDB, strings.TrimPrefix(s, string(SchemeMongoDB)+"://"), nil
	default:
		return "", "", invalidArg("unknown or missing scheme")
	}
}

func parseUserinfo(cs *ConnString, userinfo string) error {
	if strings.Contains(userinfo, "/") {
		return invalidArg("unescaped / in authority")
	}

	user, pass, hasPass := strings.Cut(userinfo, ":")

	decodedUser, err := url.QueryUnescape(user)
	if err != nil {
		return invalidArg("invalid percent-encoding in username")
	}
	cs.Username = decodedUser

	if hasPass {
		decodedPass, err := url.QueryUnescape(pass)
		if err != nil {
			return invalidArg("invalid percent-encoding in password")
		}
		cs.Password = decodedPass
		cs.HasPassword = true
	}
	return nil
}

func parseHosts(hostPart string) ([]string, error) {
	if hostPart == "" {
		return nil, invalidArg("at least one host is required")
	}

	var hosts []string
	for _, h := range strings.Split(hostPart, ",") {
		if h == "" {
			return nil, invalidArg("empty host in host list")
		}
		if strings.Contains(h, "/") {
			return nil, invalidArg("unescaped / in authority")
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func parseOptions(cs *ConnString, query string) error {
	if query == "" {
		return nil
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return invalidArg("malformed option string")
	}

	for key, vals := range values {
		val := vals[len(vals)-1]

		switch key {
		case "replicaSet":
			cs.ReplicaSet = val
		case "authSource":
			cs.AuthSource = val
		case "authMechanism":
			cs.AuthMechanism = val
		case "authMechanismProperties":
			props, err := parseAuthMechanismProperties(val)
			if err != nil {
				return err
			}
			cs.AuthMechanismProperties = props
		case "retryWrites":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return invalidArg("retryWrites must be a boolean")
			}
			cs.RetryWrites, cs.RetryWritesSet = b, true
		case "readConcernLevel":
			cs.ReadConcernLevel = val
		case "w":
			cs.W = val
		case "wtimeoutMS":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return invalidArg("wtimeoutMS must be an integer")
			}
			cs.WTimeoutMS, cs.WTimeoutSet = n, true
		case "journal":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return invalidArg("journal must be a boolean")
			}
			cs.Journal, cs.JournalSet = b, true
		case "readPreference":
			cs.ReadPreference = val
		case "readPreferenceTags":
			for _, tagVal := range vals {
				cs.ReadPreferenceTags = append(cs.ReadPreferenceTags, parseTagSet(tagVal))
			}
		case "maxStalenessSeconds":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return invalidArg("maxStalenessSeconds must be an integer")
			}
			if n > 0 && n < smallestMaxStalenessSeconds {
				return invalidArg(fmt.Sprintf("maxStalenessSeconds must be at least %d", smallestMaxStalenessSeconds))
			}
			cs.MaxStaleness, cs.MaxStalenessSet = n, true
		case "serverSelectionTimeoutMS":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return invalidArg("serverSelectionTimeoutMS must be an integer")
			}
			cs.ServerSelectionTimeoutMS = n
		case "heartbeatFrequencyMS":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return invalidArg("heartbeatFrequencyMS must be an integer")
			}
			cs.HeartbeatFrequencyMS = n
		case "localThresholdMS":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return invalidArg("localThresholdMS must be an integer")
			}
			cs.LocalThresholdMS = n
		case "loadBalanced":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return invalidArg("loadBalanced must be a boolean")
			}
			cs.LoadBalanced = b
		case "appName":
			cs.AppName = val
		case "compressors":
			names := strings.Split(val, ",")
			for _, n := range names {
				if !validCompressor(n) {
					return invalidArg("invalid compressor name " + n)
				}
			}
			cs.Compressors = names
		case "zlibCompressionLevel":
			n, err := strconv.Atoi(val)
			if err != nil || n < -1 || n > 9 {
				return invalidArg("zlibCompressionLevel must be in [-1, 9]")
			}
			cs.ZlibCompressionLevel, cs.ZlibCompressionLevelSet = n, true
		case "srvServiceName":
			cs.SRVServiceName = val
		case "srvMaxHosts":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return invalidArg("srvMaxHosts must be a non-negative integer")
			}
			cs.SRVMaxHosts = n
		}
	}

	if cs.LoadBalanced && len(cs.Hosts) != 1 {
		return invalidArg("loadBalanced requires exactly one host")
	}

	return nil
}

func validCompressor(name string) bool {
	switch name {
	case "snappy", "zlib", "zstd":
		return true
	default:
		return false
	}
}

func parseTagSet(val string) map[string]string {
	tags := make(map[string]string)
	for _, kv := range strings.Split(val, ",") {
		k, v, ok := strings.Cut(kv, ":")
		if ok {
			tags[k] = v
		}
	}
	return tags
}

func parseAuthMechanismProperties(val string) ([]AuthMechanismProperty, error) {
	var props []AuthMechanismProperty
	for _, kv := range strings.Split(val, ",") {
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			return nil, invalidArg("malformed authMechanismProperties entry " + kv)
		}
		props = append(props, AuthMechanismProperty{Key: k, Value: v})
	}
	return props, nil
}

// applyMechanismDefaults fills in AuthSource and validates mechanism-specific
// constraints from the connection string spec mechanism table.
func applyMechanismDefaults(cs *ConnString) error {
	switch cs.AuthMechanism {
	case "":
		return nil
	case "SCRAM-SHA-1", "SCRAM-SHA-256":
		if cs.AuthSource == "" {
			cs.AuthSource = "admin"
		}
		if cs.Username == "" {
			return invalidArg("username is required for " + cs.AuthMechanism)
		}
	case "PLAIN":
		if cs.AuthSource == "" {
			cs.AuthSource = "$external"
		}
		if cs.Username == "" || !cs.HasPassword {
			return invalidArg("username and password are required for PLAIN")
		}
	case "GSSAPI":
		cs.AuthSource = "$external"
		if cs.Username == "" {
			return invalidArg("username is required for GSSAPI")
		}
		hasServiceName := false
		for _, p := range cs.AuthMechanismProperties {
			if p.Key == "SERVICE_NAME" {
				hasServiceName = true
			}
		}
		if !hasServiceName {
			cs.AuthMechanismProperties = append(cs.AuthMechanismProperties,
				AuthMechanismProperty{Key: "SERVICE_NAME", Value: "mongodb"})
		}
	case "MONGODB-X509":
		if cs.AuthSource != "" && cs.AuthSource != "$external" {
			return invalidArg("authSource must be $external for MONGODB-X509")
		}
		cs.AuthSource = "$external"
		if cs.HasPassword {
			return invalidArg("password is not permitted for MONGODB-X509")
		}
	}

	if (cs.AuthMechanism == "MONGODB-X509" || cs.AuthMechanism == "GSSAPI") &&
		cs.AuthSource != "$external" {
		return invalidArg(cs.AuthMechanism + " requires authSource=$external")
	}

	return nil
}

// Error is returned for every connection-string validation failure.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "connstring: " + e.Reason }

func invalidArg(reason string) error { return &Error{Reason: reason} }
