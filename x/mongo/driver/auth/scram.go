// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"fmt"

	"github.com/xdg-go/scram"

	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

type scramHash uint8

const (
	scramSHA1 scramHash = iota
	scramSHA256
)

// scramAuthenticator runs the SCRAM-SHA-1/SCRAM-SHA-256 SASL conversation, delegating
// the cryptographic steps to xdg-go/scram and only handling the MongoDB saslStart/
// saslContinue command envelope itself.
type scramAuthenticator struct {
	username string
	source   string
	client   *scram.Client
	hash     scramHash
}

func newScramAuthenticator(username, password, source string, hash scramHash) (Authenticator, error) {
	var fn scram.HashGeneratorFcn
	if hash == scramSHA256 {
		fn = scram.SHA256
	} else {
		fn = scram.SHA1
	}
	client, err := fn.NewClient(username, password, "")
	if err != nil {
		return nil, fmt.Errorf("auth: scram client: %w", err)
	}
	return &scramAuthenticator{username: username, source: source, client: client, hash: hash}, nil
}

func (a *scramAuthenticator) mechanismName() string {
	if a.hash == scramSHA256 {
		return SCRAMSHA256
	}
	return SCRAMSHA1
}

// Auth drives saslStart followed by as many saslContinue round trips as the server
// requires, ending only once the client has
// itself validated the server's final SCRAM signature.
func (a *scramAuthenticator) Auth(ctx context.Context, run RunCommandFunc) error {
	conv := a.client.NewConversation()

	clientFirst, err := conv.Step("")
	if err != nil {
		return fmt.Errorf("auth: scram step 0: %w", err)
	}

	reply, err := run(ctx, a.source, bsoncore.Document{}.
		Append("saslStart", bsoncore.Int32Value(1)).
		Append("mechanism", bsoncore.String(a.mechanismName())).
		Append("payload", bsoncore.BinaryValue([]byte(clientFirst))).
		Append("autoAuthorize", bsoncore.Int32Value(1)))
	if err != nil {
		return fmt.Errorf("auth: saslStart: %w", err)
	}

	for {
		doneVal, _ := reply.Lookup("done")
		serverDone, _ := doneVal.BooleanOK()
		if serverDone {
			break
		}

		payloadVal, ok := reply.Lookup("payload")
		if !ok {
			return fmt.Errorf("auth: sasl reply missing payload")
		}
		serverPayload, _ := payloadVal.BinaryValueOK()

		clientNext, err := conv.Step(string(serverPayload))
		if err != nil {
			return fmt.Errorf("auth: scram step: %w", err)
		}

		conversationID, _ := reply.Lookup("conversationId")

		reply, err = run(ctx, a.source, bsoncore.Document{}.
			Append("saslContinue", bsoncore.Int32Value(1)).
			Append("conversationId", conversationID).
			Append("payload", bsoncore.BinaryValue([]byte(clientNext))))
		if err != nil {
			return fmt.Errorf("auth: saslContinue: %w", err)
		}
	}

	if !conv.Done() {
		return fmt.Errorf("auth: scram conversation ended before the client validated the server signature")
	}
	return nil
}
