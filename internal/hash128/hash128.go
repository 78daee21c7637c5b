// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package hash128 provides the 128-bit content hash used for part integrity
// metadata. The hash is the concatenation of two independently seeded
// xxhash64 streams over the same input; it is not cryptographic, it exists
// to detect corruption and tampering-by-accident, matching the role of the
// per-file hashes in a part's checksum ledger.
package hash128

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// The two streams must use distinct fixed seeds; changing them invalidates
// every ledger ever written.
const (
	seedLo = 0
	seedHi = 0x9e3779b97f4a7c15
)

// Hash is a 128-bit content hash.
type Hash struct {
	Lo, Hi uint64
}

// String returns the hash as 32 lowercase hex digits.
func (h Hash) String() string {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.Lo)
	binary.LittleEndian.PutUint64(buf[8:16], h.Hi)
	return hex.EncodeToString(buf[:])
}

// Parse decodes the representation produced by String.
func Parse(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return Hash{}, errors.Newf("hash128: cannot parse %q", s)
	}
	return Hash{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

// Sum returns the hash of b.
func Sum(b []byte) Hash {
	h := New()
	_, _ = h.Write(b)
	return h.Sum()
}

// Hasher accumulates a 128-bit hash over a byte stream.
type Hasher struct {
	lo, hi *xxhash.Digest
	n      uint64
}

var _ io.Writer = (*Hasher)(nil)

// New returns an empty Hasher.
func New() *Hasher {
	return &Hasher{
		lo: xxhash.NewWithSeed(seedLo),
		hi: xxhash.NewWithSeed(seedHi),
	}
}

// Write implements io.Writer. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	_, _ = h.lo.Write(p)
	_, _ = h.hi.Write(p)
	h.n += uint64(len(p))
	return len(p), nil
}

// WriteUint64 hashes v in little-endian order.
func (h *Hasher) WriteUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

// Count returns the number of bytes hashed so far.
func (h *Hasher) Count() uint64 { return h.n }

// Sum returns the hash of the bytes written so far.
func (h *Hasher) Sum() Hash {
	return Hash{Lo: h.lo.Sum64(), Hi: h.hi.Sum64()}
}

// Reset restores the Hasher to its initial state.
func (h *Hasher) Reset() {
	h.lo.ResetWithSeed(seedLo)
	h.hi.ResetWithSeed(seedHi)
	h.n = 0
}

// Writer tees writes to an underlying writer while hashing them. It is the
// hashing wrapper used when emitting integrity-checked part files.
type Writer struct {
	w io.Writer
	h Hasher
}

// NewWriter returns a Writer hashing everything written through it to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, h: *New()}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		_, _ = w.h.Write(p[:n])
	}
	return n, err
}

// Count returns the number of bytes successfully written.
func (w *Writer) Count() uint64 { return w.h.Count() }

// Sum returns the hash of the bytes successfully written.
func (w *Writer) Sum() Hash { return w.h.Sum() }
