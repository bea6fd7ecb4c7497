// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"fmt"

	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// plainAuthenticator implements PLAIN (LDAP proxy auth), a single-round-trip SASL
// mechanism.
type plainAuthenticator struct {
	username string
	password string
	source   string
}

func (a *plainAuthenticator) Auth(ctx context.Context, run RunCommandFunc) error {
	payload := fmt.Sprintf("\x00%s\x00%s", a.username, a.password)

	reply, err := run(ctx, a.source, bsoncore.Document{}.
		Append("saslStart", bsoncore.Int32Value(1)).
		Append("mechanism", bsoncore.String(Plain)).
		Append("payload", bsoncore.BinaryValue([]byte(payload))).
		Append("autoAuthorize", bsoncore.Int32Value(1)))
	if err != nil {
		return fmt.Errorf("auth: saslStart: %w", err)
	}

	done, _ := reply.Lookup("done")
	if ok, _ := done.BooleanOK(); !ok {
		return fmt.Errorf("auth: PLAIN expected a single-step conversation")
	}
	return nil
}
