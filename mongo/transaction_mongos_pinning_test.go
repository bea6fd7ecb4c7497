// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/internal/testutil"
)

func shouldSkipMongosPinningTests(t *testing.T) bool {
	return os.Getenv("TOPOLOGY") != "sharded_cluster"
}

// TestMongosPinning exercises the transactions spec's mongos pinning rule: a session pins to
// the mongos it started a transaction against, and unpins once that transaction ends.
func TestMongosPinning(t *testing.T) {
	if shouldSkipMongosPinningTests(t) {
		t.Skip("not running against a sharded cluster")
	}

	ctx := context.Background()
	client, err := Connect(ctx, testutil.ClientOptions(t, nil))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(ctx) }()

	if len(client.deployment.Description().Servers) < 2 {
		t.Skip("not enough mongoses")
	}

	db := client.Database(testutil.DBName(t))
	coll := db.Collection(testutil.ColName(t))

	t.Run("pinsDuringTransactionThenUnpins", func(t *testing.T) {
		err := client.UseSession(ctx, func(sctx SessionContext) error {
			if err := sctx.StartTransaction(); err != nil {
				return err
			}
			if _, err := coll.InsertOne(sctx, bson.M{"x": 1}); err != nil {
				return err
			}
			_, pinned := sctx.(*sessionImpl).client.PinnedServer()
			require.True(t, pinned, "expected the session to be pinned during the transaction")
			if err := sctx.CommitTransaction(sctx); err != nil {
				return err
			}
			_, pinned = sctx.(*sessionImpl).client.PinnedServer()
			require.False(t, pinned, "expected the session to be unpinned after the commit")
			return nil
		})
		require.NoError(t, err)
	})
}
