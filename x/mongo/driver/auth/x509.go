// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/youmark/pkcs8"

	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// MongoDBX509 is the mechanism name the connection string's credential table recognizes for
// client-certificate authentication.
const MongoDBX509 = "MONGODB-X509"

// x509Authenticator runs the MONGODB-X509 "Auth" command against $external: the
// client's identity is the certificate already presented during the TLS handshake, so
// there is no SASL conversation, only a single command confirming it. No password is
// permitted for this mechanism.
type x509Authenticator struct {
	username string
}

func newX509Authenticator(username string) Authenticator {
	return &x509Authenticator{username: username}
}

func (a *x509Authenticator) Auth(ctx context.Context, run RunCommandFunc) error {
	cmd := bsoncore.Document{}.
		Append("authenticate", bsoncore.Int32Value(1)).
		Append("mechanism", bsoncore.String(MongoDBX509))
	if a.username != "" {
		cmd = cmd.Append("user", bsoncore.String(a.username))
	}
	if _, err := run(ctx, "$external", cmd); err != nil {
		return fmt.Errorf("auth: x509: %w", err)
	}
	return nil
}

// LoadX509KeyPair builds a tls.Certificate from PEM-encoded certificate and private-key
// material for use as the client certificate MONGODB-X509 authenticates against.
// Passphrase-protected keys are expected in PKCS#8 form (the shape produced by
// `openssl pkcs8 -topk8`); crypto/tls.X509KeyPair cannot decrypt those on its own, which
// is exactly the gap youmark/pkcs8 fills. An empty passphrase
// falls back to the stdlib parser unchanged.
func LoadX509KeyPair(certPEM, keyPEM, passphrase []byte) (tls.Certificate, error) {
	if len(passphrase) == 0 {
		return tls.X509KeyPair(certPEM, keyPEM)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return tls.Certificate{}, fmt.Errorf("auth: no PEM block found in private key")
	}
	key, err := pkcs8.ParsePKCS8PrivateKey(keyBlock.Bytes, passphrase)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("auth: decrypt pkcs8 private key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return tls.Certificate{}, fmt.Errorf("auth: no PEM block found in certificate")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("auth: parse certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certBlock.Bytes},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
