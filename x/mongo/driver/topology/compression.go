// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	kzlib "github.com/klauspost/compress/zlib"
)

// Compressor names recognized during hello negotiation (the connection string spec compressors
// option).
const (
	compressorSnappy = "snappy"
	compressorZlib   = "zlib"
	compressorZstd   = "zstd"
)

// negotiateCompressor picks the first of offered that serverSupported also advertises,
// preserving the client's preference order, per the hello "compression"
// reply field. An empty result means no compressor was negotiated.
func negotiateCompressor(offered, serverSupported []string) string {
	supported := make(map[string]bool, len(serverSupported))
	for _, s := range serverSupported {
		supported[s] = true
	}
	for _, c := range offered {
		if supported[c] {
			return c
		}
	}
	return ""
}

// compressPayload compresses body with the named compressor. zlibLevel is only
// consulted for "zlib" and must already be validated to within [-1, 9].
func compressPayload(name string, body []byte, zlibLevel int) ([]byte, error) {
	switch name {
	case compressorSnappy:
		return snappy.Encode(nil, body), nil
	case compressorZlib:
		var buf bytes.Buffer
		w, err := kzlib.NewWriterLevel(&buf, zlibLevel)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case compressorZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		out := enc.EncodeAll(body, nil)
		enc.Close()
		return out, nil
	default:
		return nil, fmt.Errorf("topology: unknown compressor %q", name)
	}
}

// decompressPayload reverses compressPayload.
func decompressPayload(name string, body []byte) ([]byte, error) {
	switch name {
	case compressorSnappy:
		return snappy.Decode(nil, body)
	case compressorZlib:
		r, err := kzlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case compressorZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(body, nil)
	default:
		return nil, fmt.Errorf("topology: unknown compressor %q", name)
	}
}
