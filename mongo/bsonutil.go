// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"fmt"
	"reflect"

	"github.com/mongocore/driver/bson"
	"github.com/mongocore/driver/bson/primitive"
	"github.com/mongocore/driver/x/bsonx/bsoncore"
)

// transformDocument renders the allowable filter/update/pipeline-stage shapes (bson.D,
// bson.M, map[string]interface{}, a passthrough bsoncore.Document, or an arbitrary
// exported struct) into the bsoncore.Document the driver package sends on the wire.
// Marshaling arbitrary struct tags is the BSON codec's job (an external
// collaborator); this only covers the shapes the command builders in this package
// themselves construct or accept directly from callers.
func transformDocument(v interface{}) (bsoncore.Document, error) {
	if v == nil {
		return bsoncore.Document{}, nil
	}
	switch t := v.(type) {
	case bsoncore.Document:
		return t, nil
	case bson.D:
		doc := bsoncore.NewDocumentBuilder()
		for _, e := range t {
			val, err := transformValue(e.Value)
			if err != nil {
				return nil, err
			}
			doc = doc.Append(e.Key, val)
		}
		return doc, nil
	case bson.M:
		doc := bsoncore.NewDocumentBuilder()
		for k, fv := range t {
			val, err := transformValue(fv)
			if err != nil {
				return nil, err
			}
			doc = doc.Append(k, val)
		}
		return doc, nil
	case map[string]interface{}:
		return transformDocument(bson.M(t))
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("mongo: cannot transform %T into a document", v)
		}
		doc := bsoncore.NewDocumentBuilder()
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := rt.Field(i)
			if field.PkgPath != "" {
				continue
			}
			val, err := transformValue(rv.Field(i).Interface())
			if err != nil {
				return nil, err
			}
			doc = doc.Append(bsonFieldName(field), val)
		}
		return doc, nil
	}
}

func bsonFieldName(f reflect.StructField) string {
	if name := f.Tag.Get("bson"); name != "" {
		return name
	}
	return string(f.Name[0]-'A'+'a') + f.Name[1:]
}

// transformValue renders a single field/element value, recursing into nested
// document/array shapes.
func transformValue(v interface{}) (bsoncore.Value, error) {
	switch t := v.(type) {
	case nil:
		return bsoncore.Value{}, nil
	case string:
		return bsoncore.String(t), nil
	case int32:
		return bsoncore.Int32Value(t), nil
	case int64:
		return bsoncore.Int64Value(t), nil
	case int:
		return bsoncore.Int64Value(int64(t)), nil
	case bool:
		return bsoncore.Boolean(t), nil
	case primitive.ObjectID:
		return bsoncore.ObjectIDValue(t), nil
	case bson.D, bson.M, map[string]interface{}:
		doc, err := transformDocument(t)
		if err != nil {
			return bsoncore.Value{}, err
		}
		return bsoncore.DocumentValue(doc), nil
	case bson.A:
		arr := make(bsoncore.Array, 0, len(t))
		for _, e := range t {
			ev, err := transformValue(e)
			if err != nil {
				return bsoncore.Value{}, err
			}
			arr = append(arr, ev)
		}
		return bsoncore.ArrayValue(arr), nil
	case []interface{}:
		return transformValue(bson.A(t))
	default:
		return bsoncore.Value{}, fmt.Errorf("mongo: unsupported value type %T", v)
	}
}

// decodeDocument renders a bsoncore.Document reply into v, the counterpart to
// transformDocument used by Cursor.Decode/SingleResult.Decode. Supported targets are
// *bsoncore.Document, *bson.Raw, *bson.D, *bson.M, and a pointer to a struct whose
// exported fields cover string/int32/int64/float64/bool/primitive.ObjectID/bson.M/
// bson.A shapes. Nested documents decode as bson.M, so a struct field of type bson.D is
// left unset. Decoding into anything richer is the BSON codec's job (an external
// collaborator).
func decodeDocument(doc bsoncore.Document, v interface{}) error {
	switch t := v.(type) {
	case *bsoncore.Document:
		*t = doc
		return nil
	case *bson.Raw:
		*t = bson.Raw(doc.String())
		return nil
	case *bson.D:
		d := make(bson.D, 0, len(doc))
		for _, e := range doc {
			gv, err := decodeValue(e.Value)
			if err != nil {
				return err
			}
			d = append(d, bson.E{Key: e.Key, Value: gv})
		}
		*t = d
		return nil
	case *bson.M:
		m := make(bson.M, len(doc))
		for _, e := range doc {
			gv, err := decodeValue(e.Value)
			if err != nil {
				return err
			}
			m[e.Key] = gv
		}
		*t = m
		return nil
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Ptr || rv.IsNil() {
			return fmt.Errorf("mongo: Decode requires a non-nil pointer, got %T", v)
		}
		rv = rv.Elem()
		if rv.Kind() != reflect.Struct {
			return fmt.Errorf("mongo: cannot decode a document into %T", v)
		}
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := rt.Field(i)
			if field.PkgPath != "" {
				continue
			}
			val, ok := doc.Lookup(bsonFieldName(field))
			if !ok {
				continue
			}
			gv, err := decodeValue(val)
			if err != nil {
				return err
			}
			if gv == nil {
				continue
			}
			fv := reflect.ValueOf(gv)
			if fv.Type().AssignableTo(rv.Field(i).Type()) {
				rv.Field(i).Set(fv)
			} else if fv.Type().ConvertibleTo(rv.Field(i).Type()) {
				rv.Field(i).Set(fv.Convert(rv.Field(i).Type()))
			}
		}
		return nil
	}
}

func decodeValue(v bsoncore.Value) (interface{}, error) {
	switch v.Type {
	case bsoncore.TypeString:
		return v.StringValue(), nil
	case bsoncore.TypeInt32:
		return v.Int32(), nil
	case bsoncore.TypeInt64:
		return v.Int64(), nil
	case bsoncore.TypeDouble:
		return v.Double(), nil
	case bsoncore.TypeBoolean:
		return v.Boolean(), nil
	case bsoncore.TypeObjectID:
		return v.ObjectID(), nil
	case bsoncore.TypeDocument:
		m := bson.M{}
		for _, e := range v.Document() {
			gv, err := decodeValue(e.Value)
			if err != nil {
				return nil, err
			}
			m[e.Key] = gv
		}
		return m, nil
	case bsoncore.TypeArray:
		a := make(bson.A, 0, len(v.Array()))
		for _, e := range v.Array() {
			gv, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			a = append(a, gv)
		}
		return a, nil
	case bsoncore.TypeTimestamp:
		t, i := v.Timestamp()
		return primitive.Timestamp{T: t, I: i}, nil
	case bsoncore.TypeBinary:
		b, _ := v.BinaryValueOK()
		return b, nil
	default:
		return nil, nil
	}
}

// transformPipeline renders an aggregation pipeline, accepting a bson.A of stages, a
// []bson.D, or a []interface{} of document-shaped stages.
func transformPipeline(pipeline interface{}) (bsoncore.Array, error) {
	var stages []interface{}
	switch t := pipeline.(type) {
	case bson.A:
		stages = t
	case []bson.D:
		for _, d := range t {
			stages = append(stages, d)
		}
	case []interface{}:
		stages = t
	default:
		return nil, fmt.Errorf("mongo: pipeline must be an array of documents, got %T", pipeline)
	}

	arr := make(bsoncore.Array, 0, len(stages))
	for _, stage := range stages {
		doc, err := transformDocument(stage)
		if err != nil {
			return nil, err
		}
		arr = append(arr, bsoncore.DocumentValue(doc))
	}
	return arr, nil
}
