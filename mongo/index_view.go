// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mongocore/driver/description"
	"github.com/mongocore/driver/mongo/options"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
	"github.com/mongocore/driver/x/mongo/driver"
)

// ErrInvalidIndexValue indicates that an index model's Keys document has a value that
// isn't a recognized index direction or type.
var ErrInvalidIndexValue = errors.New("mongo: invalid index value")

// ErrMultipleIndexDrop indicates that IndexView.DropOne was asked to drop every index
// via "*"; use DropAll instead.
var ErrMultipleIndexDrop = errors.New("mongo: multiple indexes would be dropped")

// IndexView manages the indexes of the collection it was derived from.
type IndexView struct {
	coll *Collection
}

// IndexModel describes a single index to create.
type IndexModel struct {
	Keys    interface{}
	Options *options.IndexOptions
}

func indexOptionsDocument(o *options.IndexOptions) bsoncore.Document {
	doc := bsoncore.NewDocumentBuilder()
	if o == nil {
		return doc
	}
	if o.ExpireAfterSeconds != nil {
		doc = doc.Append("expireAfterSeconds", bsoncore.Int32Value(*o.ExpireAfterSeconds))
	}
	if o.Sparse != nil {
		doc = doc.Append("sparse", bsoncore.Boolean(*o.Sparse))
	}
	if o.Unique != nil {
		doc = doc.Append("unique", bsoncore.Boolean(*o.Unique))
	}
	if o.Version != nil {
		doc = doc.Append("v", bsoncore.Int32Value(*o.Version))
	}
	if o.DefaultLanguage != nil {
		doc = doc.Append("default_language", bsoncore.String(*o.DefaultLanguage))
	}
	if o.LanguageOverride != nil {
		doc = doc.Append("language_override", bsoncore.String(*o.LanguageOverride))
	}
	if o.TextVersion != nil {
		doc = doc.Append("textIndexVersion", bsoncore.Int32Value(*o.TextVersion))
	}
	if o.SphereVersion != nil {
		doc = doc.Append("2dsphereIndexVersion", bsoncore.Int32Value(*o.SphereVersion))
	}
	if o.Bits != nil {
		doc = doc.Append("bits", bsoncore.Int32Value(*o.Bits))
	}
	if o.Max != nil {
		doc = doc.Append("max", bsoncore.Double(*o.Max))
	}
	if o.Min != nil {
		doc = doc.Append("min", bsoncore.Double(*o.Min))
	}
	if o.BucketSize != nil {
		doc = doc.Append("bucketSize", bsoncore.Int32Value(*o.BucketSize))
	}
	if o.Hidden != nil {
		doc = doc.Append("hidden", bsoncore.Boolean(*o.Hidden))
	}
	if o.Collation != nil {
		doc = doc.Append("collation", bsoncore.DocumentValue(collationDocument(o.Collation)))
	}
	return doc
}

// generateIndexName builds the server's default "<field>_<direction>_..." index name
// from a key document (field_direction joined by underscores).
func generateIndexName(keys bsoncore.Document) (string, error) {
	var parts []string
	for _, elem := range keys {
		var value string
		switch {
		case elem.Value.Type == bsoncore.TypeInt32:
			value = fmt.Sprintf("%d", elem.Value.Int32())
		case elem.Value.Type == bsoncore.TypeInt64:
			i, _ := elem.Value.AsInt64OK()
			value = fmt.Sprintf("%d", i)
		case elem.Value.Type == bsoncore.TypeDouble:
			value = fmt.Sprintf("%v", elem.Value.Double())
		case elem.Value.Type == bsoncore.TypeString:
			s, _ := elem.Value.StringValueOK()
			value = s
		default:
			return "", ErrInvalidIndexValue
		}
		parts = append(parts, elem.Key, value)
	}
	return strings.Join(parts, "_"), nil
}

func buildIndexDocument(model IndexModel) (bsoncore.Document, string, error) {
	keysDoc, err := transformDocument(model.Keys)
	if err != nil {
		return nil, "", err
	}
	name := ""
	if model.Options != nil && model.Options.Name != nil {
		name = *model.Options.Name
	} else {
		name, err = generateIndexName(keysDoc)
		if err != nil {
			return nil, "", err
		}
	}

	index := bsoncore.Document{}.Append("key", bsoncore.DocumentValue(keysDoc))
	index = index.Append("name", bsoncore.String(name))
	for _, elem := range indexOptionsDocument(model.Options) {
		index = index.Append(elem.Key, elem.Value)
	}
	return index, name, nil
}

// List returns a Cursor over the specifications of every index on the collection.
func (iv IndexView) List(ctx context.Context, opts ...*options.ListIndexesOptionsBuilder) (*Cursor, error) {
	args := &options.ListIndexesOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.OptionsSetters() {
			if err := setter(args); err != nil {
				return nil, err
			}
		}
	}

	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName: "listIndexes",
		Database:    iv.coll.db.name,
		Deployment:  iv.coll.db.client.deployment,
		Selector:    iv.coll.selector(sess),
		Type:        driver.Read,
		Session:     sess,
		Clock:       iv.coll.db.client.deployment.Clock(),
		ServerAPI:   iv.coll.db.client.serverAPI,
		Monitor:     iv.coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("listIndexes", bsoncore.String(iv.coll.name))
			if args.BatchSize != nil {
				cursorDoc := bsoncore.Document{}.Append("batchSize", bsoncore.Int32Value(*args.BatchSize))
				cmd = cmd.Append("cursor", bsoncore.DocumentValue(cursorDoc))
			}
			return cmd, nil
		},
	}
	bc, err := op.ExecuteCursor(ctx, iv.coll.namespace(), iv.coll.name, driver.NonTailable)
	if err != nil {
		return nil, err
	}
	return newCursor(bc), nil
}

// CreateOne creates a single index described by model, returning its name.
func (iv IndexView) CreateOne(ctx context.Context, model IndexModel, opts ...*options.CreateIndexesOptionsBuilder) (string, error) {
	names, err := iv.CreateMany(ctx, []IndexModel{model}, opts...)
	if err != nil {
		return "", err
	}
	return names[0], nil
}

// CreateMany creates the indexes described by models, returning their names.
func (iv IndexView) CreateMany(ctx context.Context, models []IndexModel, opts ...*options.CreateIndexesOptionsBuilder) ([]string, error) {
	names := make([]string, 0, len(models))
	indexes := make(bsoncore.Array, 0, len(models))
	for _, model := range models {
		indexDoc, name, err := buildIndexDocument(model)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		indexes = append(indexes, bsoncore.DocumentValue(indexDoc))
	}

	args := &options.CreateIndexesOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		for _, setter := range o.OptionsSetters() {
			if err := setter(args); err != nil {
				return nil, err
			}
		}
	}

	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName:  "createIndexes",
		Database:     iv.coll.db.name,
		Deployment:   iv.coll.db.client.deployment,
		Selector:     iv.coll.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        iv.coll.db.client.deployment.Clock(),
		WriteConcern: iv.coll.effectiveWriteConcern(sess),
		ServerAPI:    iv.coll.db.client.serverAPI,
		Monitor:      iv.coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("createIndexes", bsoncore.String(iv.coll.name))
			cmd = cmd.Append("indexes", bsoncore.ArrayValue(indexes))
			if args.CommitQuorum != nil {
				v, err := transformValue(args.CommitQuorum)
				if err != nil {
					return nil, err
				}
				cmd = cmd.Append("commitQuorum", v)
			}
			return cmd, nil
		},
	}
	if _, err := op.Execute(ctx); err != nil {
		return nil, err
	}
	return names, nil
}

func (iv IndexView) dropIndexes(ctx context.Context, index string) error {
	sess := sessionFromContext(ctx)
	op := &driver.Operation{
		CommandName:  "dropIndexes",
		Database:     iv.coll.db.name,
		Deployment:   iv.coll.db.client.deployment,
		Selector:     iv.coll.selector(sess),
		Type:         driver.Write,
		Session:      sess,
		Clock:        iv.coll.db.client.deployment.Clock(),
		WriteConcern: iv.coll.effectiveWriteConcern(sess),
		ServerAPI:    iv.coll.db.client.serverAPI,
		Monitor:      iv.coll.db.client.monitor,
		Command: func(description.Server) (bsoncore.Document, error) {
			cmd := bsoncore.Document{}.Append("dropIndexes", bsoncore.String(iv.coll.name))
			cmd = cmd.Append("index", bsoncore.String(index))
			return cmd, nil
		},
	}
	_, err := op.Execute(ctx)
	return err
}

// DropOne drops the index named name.
func (iv IndexView) DropOne(ctx context.Context, name string, opts ...*options.DropIndexesOptionsBuilder) error {
	if name == "*" {
		return ErrMultipleIndexDrop
	}
	return iv.dropIndexes(ctx, name)
}

// DropAll drops every index on the collection except the default _id index.
func (iv IndexView) DropAll(ctx context.Context, opts ...*options.DropIndexesOptionsBuilder) error {
	return iv.dropIndexes(ctx, "*")
}
