// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bsoncore models the command/reply documents that cross the wire-protocol
// boundary. The BSON value model and its binary encoding are an external collaborator
// an external collaborator; this package only gives the core something concrete to build,
// inspect, and pass to that collaborator's runCommand(conn, db, cmd, opts) entry point.
package bsoncore

import (
	"fmt"
	"strings"

	"github.com/mongocore/driver/bson/primitive"
)

// Element is a single key/value pair within a Document, stored in insertion order so
// that command documents serialize the way the server expects (e.g. "aggregate" first).
type Element struct {
	Key   string
	Value Value
}

// Value is the set of scalar and composite value kinds a command or reply document can
// hold. Exactly one of the typed fields is meaningful for a given Type.
type Value struct {
	Type    Type
	strval  string
	i32     int32
	i64     int64
	f64     float64
	boolval bool
	doc     Document
	arr     Array
	oid     primitive.ObjectID
	ts      primitive.Timestamp
	bin     []byte
}

// Type enumerates the value kinds Value can hold.
type Type uint8

// Value kinds.
const (
	TypeNull Type = iota
	TypeString
	TypeInt32
	TypeInt64
	TypeDouble
	TypeBoolean
	TypeDocument
	TypeArray
	TypeObjectID
	TypeTimestamp
	TypeBinary
)

// Document is an ordered set of elements — the command/reply representation the core
// builds, sends to the wire-protocol collaborator, and reads replies back into.
type Document []Element

// Array is an ordered list of values.
type Array []Value

// NewDocumentBuilder returns an empty Document ready to be appended to.
func NewDocumentBuilder() Document { return Document{} }

// Append returns a new Document with the given key/value appended.
func (d Document) Append(key string, v Value) Document {
	return append(d, Element{Key: key, Value: v})
}

// Set returns a Document with key set to v, replacing any existing element with that key.
func (d Document) Set(key string, v Value) Document {
	for i := range d {
		if d[i].Key == key {
			out := make(Document, len(d))
			copy(out, d)
			out[i].Value = v
			return out
		}
	}
	return d.Append(key, v)
}

// Lookup returns the value for key, or the zero Value and false if absent.
func (d Document) Lookup(key string) (Value, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// LookupErr behaves like Lookup but returns an error instead of a bool.
func (d Document) LookupErr(key string) (Value, error) {
	v, ok := d.Lookup(key)
	if !ok {
		return Value{}, fmt.Errorf("bsoncore: key %q not found", key)
	}
	return v, nil
}

// Index returns the element at position i.
func (d Document) Index(i int) Element { return d[i] }

// Len returns the number of elements.
func (d Document) Len() int { return len(d) }

// String implements a debug rendering of the document, used by logging and test failure
// output. It renders every element; any truncation (internal/logger's MaxDocumentLength)
// happens in the logger, not here.
func (d Document) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.Key)
		b.WriteString(": ")
		b.WriteString(e.Value.String())
	}
	b.WriteByte('}')
	return b.String()
}

// String renders a Value for debugging/logging purposes only.
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return fmt.Sprintf("%q", v.strval)
	case TypeInt32:
		return fmt.Sprintf("%d", v.i32)
	case TypeInt64:
		return fmt.Sprintf("%d", v.i64)
	case TypeDouble:
		return fmt.Sprintf("%v", v.f64)
	case TypeBoolean:
		return fmt.Sprintf("%v", v.boolval)
	case TypeDocument:
		return v.doc.String()
	case TypeArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeObjectID:
		return v.oid.Hex()
	case TypeTimestamp:
		return fmt.Sprintf("Timestamp(%d,%d)", v.ts.T, v.ts.I)
	case TypeBinary:
		return fmt.Sprintf("Binary(%d bytes)", len(v.bin))
	default:
		return "null"
	}
}

// StringValue returns the Value as a Go string.
func (v Value) StringValue() string { return v.strval }

// StringValueOK returns the Value as a string, and whether it held one.
func (v Value) StringValueOK() (string, bool) {
	if v.Type != TypeString {
		return "", false
	}
	return v.strval, true
}

// BinaryValueOK returns the Value as raw bytes, and whether it held a binary.
func (v Value) BinaryValueOK() ([]byte, bool) {
	if v.Type != TypeBinary {
		return nil, false
	}
	return v.bin, true
}

// Int32 returns the Value as an int32.
func (v Value) Int32() int32 { return v.i32 }

// Int32OK returns the Value as an int32, and whether it held one.
func (v Value) Int32OK() (int32, bool) {
	if v.Type != TypeInt32 {
		return 0, false
	}
	return v.i32, true
}

// Int64 returns the Value as an int64.
func (v Value) Int64() int64 { return v.i64 }

// AsInt64OK coerces an Int32, Int64, or Double Value to int64; a Double is truncated
// toward zero.
func (v Value) AsInt64OK() (int64, bool) {
	switch v.Type {
	case TypeInt64:
		return v.i64, true
	case TypeInt32:
		return int64(v.i32), true
	case TypeDouble:
		return int64(v.f64), true
	default:
		return 0, false
	}
}

// Double returns the Value as a float64.
func (v Value) Double() float64 { return v.f64 }

// Boolean returns the Value as a bool.
func (v Value) Boolean() bool { return v.boolval }

// BooleanOK returns the Value as a bool, and whether it held one.
func (v Value) BooleanOK() (bool, bool) {
	if v.Type != TypeBoolean {
		return false, false
	}
	return v.boolval, true
}

// Document returns the Value as a Document.
func (v Value) Document() Document { return v.doc }

// DocumentOK returns the Value as a Document, and whether it held one.
func (v Value) DocumentOK() (Document, bool) {
	if v.Type != TypeDocument {
		return nil, false
	}
	return v.doc, true
}

// Array returns the Value as an Array.
func (v Value) Array() Array { return v.arr }

// ArrayOK returns the Value as an Array, and whether it held one.
func (v Value) ArrayOK() (Array, bool) {
	if v.Type != TypeArray {
		return nil, false
	}
	return v.arr, true
}

// ObjectID returns the Value as an ObjectID.
func (v Value) ObjectID() primitive.ObjectID { return v.oid }

// Timestamp returns the (T, I) pair of a TypeTimestamp Value.
func (v Value) Timestamp() (uint32, uint32) { return v.ts.T, v.ts.I }

// TimestampOK returns the Value as a primitive.Timestamp, and whether it held one.
func (v Value) TimestampOK() (primitive.Timestamp, bool) {
	if v.Type != TypeTimestamp {
		return primitive.Timestamp{}, false
	}
	return v.ts, true
}

// IsNumber reports whether the value is one of the numeric types.
func (v Value) IsNumber() bool {
	switch v.Type {
	case TypeInt32, TypeInt64, TypeDouble:
		return true
	default:
		return false
	}
}

// Constructors. These mirror the append-style helpers of the real bsoncore package
// closely enough that call sites built against it read the same, without committing
// this core to an actual BSON binary encoding (an explicit external collaborator).

// String constructs a string Value.
func String(s string) Value { return Value{Type: TypeString, strval: s} }

// Int32Value constructs an int32 Value.
func Int32Value(i int32) Value { return Value{Type: TypeInt32, i32: i} }

// Int64Value constructs an int64 Value.
func Int64Value(i int64) Value { return Value{Type: TypeInt64, i64: i} }

// Double constructs a float64 Value.
func Double(f float64) Value { return Value{Type: TypeDouble, f64: f} }

// Boolean constructs a bool Value.
func Boolean(b bool) Value { return Value{Type: TypeBoolean, boolval: b} }

// DocumentValue wraps a Document as a Value.
func DocumentValue(d Document) Value { return Value{Type: TypeDocument, doc: d} }

// ArrayValue wraps an Array as a Value.
func ArrayValue(a Array) Value { return Value{Type: TypeArray, arr: a} }

// ObjectIDValue wraps an ObjectID as a Value.
func ObjectIDValue(id primitive.ObjectID) Value { return Value{Type: TypeObjectID, oid: id} }

// TimestampValue wraps a primitive.Timestamp as a Value.
func TimestampValue(ts primitive.Timestamp) Value {
	return Value{Type: TypeTimestamp, ts: ts}
}

// BinaryValue wraps raw bytes as a Value.
func BinaryValue(b []byte) Value { return Value{Type: TypeBinary, bin: b} }

// Null is the null Value.
var Null = Value{Type: TypeNull}
