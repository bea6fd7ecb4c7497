// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongocore/driver/mongo/options"
)

// applyFindOpts mirrors the setter-merging loop Collection.Find runs over its
// ...*options.FindOptionsBuilder variadic: later builders win.
func applyFindOpts(opts ...*options.FindOptionsBuilder) (*options.FindOptions, error) {
	args := &options.FindOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.ArgsSetters() {
			if err := setter(args); err != nil {
				return nil, err
			}
		}
	}
	return args, nil
}

func TestFindOptionsBuilder_merging(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		got, err := applyFindOpts(options.Find().SetSkip(1))
		require.NoError(t, err)
		require.NotNil(t, got.Skip)
		assert.Equal(t, int64(1), *got.Skip)
	})

	t.Run("later builder wins", func(t *testing.T) {
		got, err := applyFindOpts(options.Find().SetSkip(1), options.Find().SetSkip(2))
		require.NoError(t, err)
		require.NotNil(t, got.Skip)
		assert.Equal(t, int64(2), *got.Skip)
	})

	t.Run("nil entries are skipped", func(t *testing.T) {
		got, err := applyFindOpts(nil, options.Find().SetSkip(1), nil, options.Find().SetSkip(2), nil)
		require.NoError(t, err)
		require.NotNil(t, got.Skip)
		assert.Equal(t, int64(2), *got.Skip)
	})

	t.Run("no options", func(t *testing.T) {
		got, err := applyFindOpts()
		require.NoError(t, err)
		assert.Nil(t, got.Skip)
	})
}

func TestCountOptionsBuilder_merging(t *testing.T) {
	args := &options.CountOptions{}
	for _, o := range []*options.CountOptionsBuilder{options.Count().SetLimit(5), options.Count().SetSkip(2)} {
		for _, setter := range o.ArgsSetters() {
			require.NoError(t, setter(args))
		}
	}
	require.NotNil(t, args.Limit)
	require.NotNil(t, args.Skip)
	assert.Equal(t, int64(5), *args.Limit)
	assert.Equal(t, int64(2), *args.Skip)
}

func TestIndexOptionsBuilder_merging(t *testing.T) {
	args := &options.IndexOptions{}
	for _, setter := range options.Index().SetUnique(true).SetName("idx_x").OptionsSetters() {
		require.NoError(t, setter(args))
	}
	require.NotNil(t, args.Unique)
	require.True(t, *args.Unique)
	require.NotNil(t, args.Name)
	assert.Equal(t, "idx_x", *args.Name)
}
