// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package colserde

import (
	"encoding/binary"

	"github.com/treelinedb/treeline/compression"
	"github.com/treelinedb/treeline/internal/base"
)

// DecodeBlocks parses a column data stream into its decompressed granule
// payloads.
func DecodeBlocks(data []byte) ([][]byte, error) {
	var blocks [][]byte
	for len(data) > 0 {
		algorithm := compression.Algorithm(data[0])
		if algorithm > compression.MinLZ {
			return nil, base.CorruptionErrorf("column stream block has unknown algorithm %d", int(algorithm))
		}
		compressedLen, n := binary.Uvarint(data[1:])
		if n <= 0 || uint64(len(data[1+n:])) < compressedLen {
			return nil, base.CorruptionErrorf("column stream truncated")
		}
		payload := data[1+n : 1+n+int(compressedLen)]
		data = data[1+n+int(compressedLen):]
		decompressor := compression.GetDecompressor(algorithm)
		decompressedLen, err := decompressor.DecompressedLen(payload)
		if err != nil {
			decompressor.Close()
			return nil, err
		}
		decompressed := make([]byte, decompressedLen)
		if err := decompressor.DecompressInto(decompressed, payload); err != nil {
			decompressor.Close()
			return nil, err
		}
		decompressor.Close()
		blocks = append(blocks, decompressed)
	}
	return blocks, nil
}

// DecodeValues parses a granule payload into its length-prefixed values.
func DecodeValues(payload []byte) ([][]byte, error) {
	var values [][]byte
	for len(payload) > 0 {
		length, n := binary.Uvarint(payload)
		if n <= 0 || uint64(len(payload[n:])) < length {
			return nil, base.CorruptionErrorf("granule payload truncated")
		}
		values = append(values, payload[n:n+int(length)])
		payload = payload[n+int(length):]
	}
	return values, nil
}

// Mark locates one granule: the byte offset of its block within the data
// stream and the number of rows it holds.
type Mark struct {
	Offset uint64
	Rows   uint64
}

// DecodeMarks parses a marks stream.
func DecodeMarks(data []byte) ([]Mark, error) {
	var marks []Mark
	for len(data) > 0 {
		offset, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, base.CorruptionErrorf("marks stream truncated")
		}
		data = data[n:]
		rows, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, base.CorruptionErrorf("marks stream truncated")
		}
		data = data[n:]
		marks = append(marks, Mark{Offset: offset, Rows: rows})
	}
	return marks, nil
}

// DecodeSparseOffsets parses a sparse offsets substream into absolute row
// numbers.
func DecodeSparseOffsets(data []byte) ([]uint64, error) {
	var rows []uint64
	last := int64(-1)
	for len(data) > 0 {
		delta, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, base.CorruptionErrorf("sparse offsets stream truncated")
		}
		data = data[n:]
		last += int64(delta)
		rows = append(rows, uint64(last))
	}
	return rows, nil
}

// ReadColumnValues decodes a full dense column stream into one value per
// row.
func ReadColumnValues(data []byte) ([][]byte, error) {
	blocks, err := DecodeBlocks(data)
	if err != nil {
		return nil, err
	}
	var values [][]byte
	for _, b := range blocks {
		v, err := DecodeValues(b)
		if err != nil {
			return nil, err
		}
		values = append(values, v...)
	}
	return values, nil
}
