// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package compression provides the block codecs available to column
// serialization, and the textual codec descriptor persisted in a part's
// default_compression_codec.txt file.
package compression

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Algorithm identifies a compression codec implementation.
type Algorithm uint8

// The available algorithms. These values are part of the on-disk format of
// column data files and must not be changed.
const (
	None Algorithm = iota
	Snappy
	Zstd
	MinLZ
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case MinLZ:
		return "minlz"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// SafeFormat implements redact.SafeFormatter.
func (a Algorithm) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(a.String()))
}

// Setting is a codec descriptor: an algorithm plus its level. The textual
// form produced by String round-trips through ParseSetting and is the exact
// content of a part's default codec file.
type Setting struct {
	Algorithm Algorithm
	Level     uint8
}

// Predefined settings.
var (
	NoCompression  = Setting{Algorithm: None}
	SnappyDefault  = Setting{Algorithm: Snappy}
	ZstdDefault    = Setting{Algorithm: Zstd, Level: 3}
	MinLZFastest   = Setting{Algorithm: MinLZ, Level: 1}
	MinLZBalanced  = Setting{Algorithm: MinLZ, Level: 2}
	DefaultSetting = SnappyDefault
)

// String implements fmt.Stringer.
func (s Setting) String() string {
	if s.Level == 0 {
		return s.Algorithm.String()
	}
	return fmt.Sprintf("%s(%d)", s.Algorithm, s.Level)
}

// SafeFormat implements redact.SafeFormatter.
func (s Setting) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.String()))
}

// ParseSetting parses the representation produced by Setting.String.
func ParseSetting(str string) (Setting, error) {
	name := str
	var level uint64
	if i := strings.IndexByte(str, '('); i >= 0 {
		if !strings.HasSuffix(str, ")") {
			return Setting{}, errors.Newf("cannot parse codec descriptor %q", str)
		}
		var err error
		level, err = strconv.ParseUint(str[i+1:len(str)-1], 10, 8)
		if err != nil {
			return Setting{}, errors.Newf("cannot parse codec level in %q", str)
		}
		name = str[:i]
	}
	var alg Algorithm
	switch name {
	case "none":
		alg = None
	case "snappy":
		alg = Snappy
	case "zstd":
		alg = Zstd
	case "minlz":
		alg = MinLZ
	default:
		return Setting{}, errors.Newf("unknown codec %q", str)
	}
	return Setting{Algorithm: alg, Level: uint8(level)}, nil
}

// Compressor is a codec instance used to compress blocks. Close must be
// called when done to allow pooled implementations to recycle state.
type Compressor interface {
	// Compress appends the compressed form of src to dst (which must be
	// empty or a previously returned buffer being reused).
	Compress(dst, src []byte) []byte
	Close()
}

// Decompressor is the inverse of a Compressor.
type Decompressor interface {
	// DecompressInto decompresses src into dst, which must be exactly
	// DecompressedLen(src) bytes long.
	DecompressInto(dst, src []byte) error
	// DecompressedLen returns the decompressed length of the given block.
	DecompressedLen(b []byte) (decompressedLen int, err error)
	Close()
}

// GetCompressor returns a Compressor for the given setting.
func GetCompressor(s Setting) Compressor {
	switch s.Algorithm {
	case None:
		return noopCompressor{}
	case Snappy:
		return snappyCompressor{}
	case Zstd:
		level := int(s.Level)
		if level == 0 {
			level = 3
		}
		return getZstdCompressor(level)
	case MinLZ:
		return getMinlzCompressor(int(s.Level))
	default:
		panic(errors.AssertionFailedf("unknown compression algorithm %d", s.Algorithm))
	}
}

// GetDecompressor returns a Decompressor for the given algorithm.
func GetDecompressor(a Algorithm) Decompressor {
	switch a {
	case None:
		return noopDecompressor{}
	case Snappy:
		return snappyDecompressor{}
	case Zstd:
		return getZstdDecompressor()
	case MinLZ:
		return minlzDecompressor{}
	default:
		panic(errors.AssertionFailedf("unknown compression algorithm %d", a))
	}
}
