// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/mongocore/driver/bson/primitive"
)

func uint64FromFloat(f float64) uint64 { return math.Float64bits(f) }
func floatFromUint64(u uint64) float64 { return math.Float64frombits(u) }

// This file gives topology.connection something concrete to write to and read from a
// net.Conn. It is NOT the MongoDB wire protocol or BSON's binary encoding — both are the
// external collaborator out of scope for this module. A
// connection still has to put bytes on a socket, so this is the minimal self-consistent
// framing this module's own client and server ends agree on.

// Marshal returns d's element-encoding without the length-prefix framing WriteTo adds,
// for callers (e.g. wire compression) that need to wrap the payload bytes themselves.
func (d Document) Marshal() []byte {
	var body []byte
	for _, e := range d {
		body = appendElement(body, e)
	}
	return body
}

// Unmarshal parses a Document from the element-encoding produced by Marshal.
func Unmarshal(buf []byte) (Document, error) {
	doc, _, err := parseElements(buf)
	return doc, err
}

// WriteTo encodes d to w as a length-prefixed sequence of tagged elements.
func (d Document) WriteTo(w io.Writer) error {
	body := d.Marshal()

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrom decodes a Document previously written with WriteTo.
func ReadFrom(r io.Reader) (Document, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[:])
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return Unmarshal(body)
}

func appendElement(buf []byte, e Element) []byte {
	buf = appendString(buf, e.Key)
	buf = append(buf, byte(e.Value.Type))
	switch e.Value.Type {
	case TypeString:
		buf = appendString(buf, e.Value.strval)
	case TypeInt32:
		buf = appendUint32(buf, uint32(e.Value.i32))
	case TypeInt64:
		buf = appendUint64(buf, uint64(e.Value.i64))
	case TypeDouble:
		buf = appendUint64(buf, uint64FromFloat(e.Value.f64))
	case TypeBoolean:
		if e.Value.boolval {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case TypeDocument:
		var inner []byte
		for _, ie := range e.Value.doc {
			inner = appendElement(inner, ie)
		}
		buf = appendUint32(buf, uint32(len(inner)))
		buf = append(buf, inner...)
	case TypeArray:
		var inner []byte
		for i, av := range e.Value.arr {
			inner = appendElement(inner, Element{Key: fmt.Sprintf("%d", i), Value: av})
		}
		buf = appendUint32(buf, uint32(len(inner)))
		buf = append(buf, inner...)
	case TypeObjectID:
		buf = append(buf, e.Value.oid[:]...)
	case TypeTimestamp:
		buf = appendUint32(buf, e.Value.ts.T)
		buf = appendUint32(buf, e.Value.ts.I)
	case TypeBinary:
		buf = appendUint32(buf, uint32(len(e.Value.bin)))
		buf = append(buf, e.Value.bin...)
	}
	return buf
}

func parseElements(buf []byte) (Document, []byte, error) {
	var doc Document
	for len(buf) > 0 {
		key, rest, err := readString(buf)
		if err != nil {
			return nil, nil, err
		}
		buf = rest
		if len(buf) < 1 {
			return nil, nil, io.ErrUnexpectedEOF
		}
		typ := Type(buf[0])
		buf = buf[1:]

		var v Value
		v.Type = typ
		switch typ {
		case TypeString:
			v.strval, buf, err = readString(buf)
		case TypeInt32:
			var u uint32
			u, buf, err = readUint32(buf)
			v.i32 = int32(u)
		case TypeInt64:
			var u uint64
			u, buf, err = readUint64(buf)
			v.i64 = int64(u)
		case TypeDouble:
			var u uint64
			u, buf, err = readUint64(buf)
			v.f64 = floatFromUint64(u)
		case TypeBoolean:
			if len(buf) < 1 {
				return nil, nil, io.ErrUnexpectedEOF
			}
			v.boolval = buf[0] == 1
			buf = buf[1:]
		case TypeDocument:
			var size uint32
			size, buf, err = readUint32(buf)
			if err == nil {
				if uint32(len(buf)) < size {
					err = io.ErrUnexpectedEOF
					break
				}
				v.doc, _, err = parseElements(buf[:size])
				buf = buf[size:]
			}
		case TypeArray:
			var size uint32
			size, buf, err = readUint32(buf)
			if err == nil {
				if uint32(len(buf)) < size {
					err = io.ErrUnexpectedEOF
					break
				}
				var elems Document
				elems, _, err = parseElements(buf[:size])
				for _, e := range elems {
					v.arr = append(v.arr, e.Value)
				}
				buf = buf[size:]
			}
		case TypeObjectID:
			if len(buf) < 12 {
				return nil, nil, io.ErrUnexpectedEOF
			}
			copy(v.oid[:], buf[:12])
			buf = buf[12:]
		case TypeTimestamp:
			v.ts.T, buf, err = readUint32(buf)
			if err == nil {
				v.ts.I, buf, err = readUint32(buf)
			}
		case TypeBinary:
			var size uint32
			size, buf, err = readUint32(buf)
			if err == nil {
				if uint32(len(buf)) < size {
					err = io.ErrUnexpectedEOF
					break
				}
				v.bin = append([]byte(nil), buf[:size]...)
				buf = buf[size:]
			}
		}
		if err != nil {
			return nil, nil, err
		}
		doc = append(doc, Element{Key: key, Value: v})
	}
	return doc, buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(buf []byte) (string, []byte, error) {
	size, rest, err := readUint32(buf)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(rest)) < size {
		return "", nil, io.ErrUnexpectedEOF
	}
	return string(rest[:size]), rest[size:], nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func readUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint32(buf[:4]), buf[4:], nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func readUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint64(buf[:8]), buf[8:], nil
}

// primitive.ObjectID must be exactly 12 bytes for the fixed-width encoding above.
var _ = primitive.ObjectID{}
