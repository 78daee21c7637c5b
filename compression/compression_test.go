// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package compression

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPayloads(rng *rand.Rand) [][]byte {
	compressible := make([]byte, 10_000)
	for i := range compressible {
		compressible[i] = byte('a' + i%4)
	}
	random := make([]byte, 4_000)
	for i := range random {
		random[i] = byte(rng.Uint32())
	}
	return [][]byte{nil, {}, []byte("tiny"), compressible, random}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 42))
	for _, setting := range []Setting{
		NoCompression,
		SnappyDefault,
		ZstdDefault,
		{Algorithm: Zstd, Level: 1},
		MinLZFastest,
		MinLZBalanced,
	} {
		t.Run(setting.String(), func(t *testing.T) {
			for _, payload := range testPayloads(rng) {
				c := GetCompressor(setting)
				compressed := c.Compress(nil, payload)
				c.Close()

				d := GetDecompressor(setting.Algorithm)
				n, err := d.DecompressedLen(compressed)
				require.NoError(t, err)
				require.Equal(t, len(payload), n)
				decompressed := make([]byte, n)
				require.NoError(t, d.DecompressInto(decompressed, compressed))
				d.Close()
				require.Equal(t, append([]byte(nil), payload...), append([]byte(nil), decompressed...))
			}
		})
	}
}

func TestCompressorBufferReuse(t *testing.T) {
	c := GetCompressor(SnappyDefault)
	defer c.Close()
	d := GetDecompressor(Snappy)
	defer d.Close()

	var buf []byte
	for _, payload := range [][]byte{
		[]byte("first payload first payload"),
		[]byte("second"),
		[]byte("third payload, a bit longer than the second one"),
	} {
		buf = c.Compress(buf[:0], payload)
		n, err := d.DecompressedLen(buf)
		require.NoError(t, err)
		decompressed := make([]byte, n)
		require.NoError(t, d.DecompressInto(decompressed, buf))
		require.Equal(t, payload, decompressed)
	}
}

func TestSettingStringRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		setting Setting
		want    string
	}{
		{NoCompression, "none"},
		{SnappyDefault, "snappy"},
		{ZstdDefault, "zstd(3)"},
		{Setting{Algorithm: Zstd, Level: 7}, "zstd(7)"},
		{MinLZFastest, "minlz(1)"},
		{MinLZBalanced, "minlz(2)"},
	} {
		require.Equal(t, tc.want, tc.setting.String())
		parsed, err := ParseSetting(tc.want)
		require.NoError(t, err)
		require.Equal(t, tc.setting, parsed)
	}
}

func TestParseSettingErrors(t *testing.T) {
	for _, s := range []string{"", "lz5", "zstd(", "zstd(x)", "zstd(999)", "snappy(1"} {
		_, err := ParseSetting(s)
		require.Error(t, err, "input %q", s)
	}
}
