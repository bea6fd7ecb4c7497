// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package auth implements credentials and handshake authentication: negotiating and
// running a SASL conversation against a freshly connected server before it is handed
// back to the pool.
package auth

import (
	"context"
	"fmt"

	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// Credential holds the authentication parameters parsed from a connection string's
// userinfo and authMechanism/authSource query parameters.
type Credential struct {
	AuthMechanism           string
	AuthMechanismProperties map[string]string
	AuthSource              string
	Username                string
	Password                string
	PasswordSet             bool
}

// RunCommandFunc sends cmd against db on the connection currently being authenticated.
type RunCommandFunc func(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error)

// Authenticator runs one mechanism's SASL (or command-based) conversation.
type Authenticator interface {
	Auth(ctx context.Context, run RunCommandFunc) error
}

// The SASL mechanism names this package implements directly.
const (
	SCRAMSHA1   = "SCRAM-SHA-1"
	SCRAMSHA256 = "SCRAM-SHA-256"
	Plain       = "PLAIN"
)

// CreateAuthenticator builds the Authenticator named by cred.AuthMechanism. For an empty
// mechanism it picks from saslSupportedMechs: SCRAM-SHA-256 when listed, SCRAM-SHA-1
// otherwise. A nil saslSupportedMechs selects SCRAM-SHA-256 without any negotiation.
// The topology package's connection handshake does not request saslSupportedMechs and
// passes nil, so connections it opens with an empty mechanism always use SCRAM-SHA-256.
func CreateAuthenticator(cred *Credential, saslSupportedMechs []string) (Authenticator, error) {
	mechanism := cred.AuthMechanism
	if mechanism == "" {
		mechanism = SCRAMSHA256
		if saslSupportedMechs != nil {
			mechanism = SCRAMSHA1
			for _, m := range saslSupportedMechs {
				if m == SCRAMSHA256 {
					mechanism = SCRAMSHA256
					break
				}
			}
		}
	}

	source := cred.AuthSource
	if source == "" {
		source = "admin"
	}

	switch mechanism {
	case SCRAMSHA1:
		return newScramAuthenticator(cred.Username, cred.Password, source, scramSHA1)
	case SCRAMSHA256:
		return newScramAuthenticator(cred.Username, cred.Password, source, scramSHA256)
	case Plain:
		return &plainAuthenticator{username: cred.Username, password: cred.Password, source: source}, nil
	case MongoDBX509:
		return newX509Authenticator(cred.Username), nil
	default:
		return nil, fmt.Errorf("auth: unsupported mechanism %q", mechanism)
	}
}
