// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package checksum

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/internal/hash128"
)

func TestLedgerBasics(t *testing.T) {
	l := New()
	require.Equal(t, 0, l.Len())
	l.Add("b.bin", 100, hash128.Sum([]byte("b")))
	l.Add("a.bin", 50, hash128.Sum([]byte("a")))
	require.Equal(t, 2, l.Len())
	require.Equal(t, []string{"a.bin", "b.bin"}, l.Names())
	e, ok := l.Get("a.bin")
	require.True(t, ok)
	require.Equal(t, uint64(50), e.Size)
	require.Equal(t, uint64(150), l.TotalSize())

	l.Remove("a.bin")
	require.Equal(t, 1, l.Len())
	_, ok = l.Get("a.bin")
	require.False(t, ok)
	// Removing an absent entry is a no-op.
	l.Remove("a.bin")
}

func TestLedgerDuplicatePanics(t *testing.T) {
	l := New()
	l.Add("count.txt", 2, hash128.Sum([]byte("15")))
	require.Panics(t, func() {
		l.Add("count.txt", 2, hash128.Sum([]byte("15")))
	})
}

func TestLedgerMerge(t *testing.T) {
	l := New()
	l.Add("a.bin", 1, hash128.Sum([]byte("a")))
	other := New()
	other.Add("b.bin", 2, hash128.Sum([]byte("b")))
	l.Merge(other)
	require.Equal(t, []string{"a.bin", "b.bin"}, l.Names())
	l.Merge(nil)
	require.Equal(t, 2, l.Len())

	collision := New()
	collision.Add("a.bin", 1, hash128.Sum([]byte("a")))
	require.Panics(t, func() { l.Merge(collision) })
}

func TestLedgerProjection(t *testing.T) {
	sub := New()
	sub.Add("x.bin", 10, hash128.Sum([]byte("x")))
	sub.Add("count.txt", 2, hash128.Sum([]byte("42")))

	l := New()
	l.AddProjection("by_user", sub)
	e, ok := l.Get("by_user.proj")
	require.True(t, ok)
	require.Equal(t, uint64(12), e.Size)
	require.Equal(t, sub.TotalHash(), e.Hash)

	// The aggregate hash covers names, sizes and hashes.
	sub2 := New()
	sub2.Add("x.bin", 10, hash128.Sum([]byte("y")))
	sub2.Add("count.txt", 2, hash128.Sum([]byte("42")))
	require.NotEqual(t, sub.TotalHash(), sub2.TotalHash())
}

func TestLedgerWriteParseRoundTrip(t *testing.T) {
	l := New()
	l.Add("a.bin", 123, hash128.Sum([]byte("a data")))
	l.Add("a.mrk", 7, hash128.Sum([]byte("a marks")))
	l.Add("count.txt", 2, hash128.Sum([]byte("15")))
	l.Add("by_user.proj", 99, hash128.Sum([]byte("agg")))

	var buf bytes.Buffer
	require.NoError(t, l.Write(&buf))

	parsed, err := Parse(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, l.Names(), parsed.Names())
	for _, name := range l.Names() {
		want, _ := l.Get(name)
		got, ok := parsed.Get(name)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestParseRejectsCorruption(t *testing.T) {
	l := New()
	l.Add("a.bin", 123, hash128.Sum([]byte("a data")))
	var buf bytes.Buffer
	require.NoError(t, l.Write(&buf))
	data := buf.Bytes()

	t.Run("flipped byte", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[len(corrupt)/2] ^= 0x40
		_, err := Parse(corrupt)
		require.Error(t, err)
		require.True(t, base.IsCorruptionError(err))
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := Parse(data[:len(data)-1])
		require.Error(t, err)
		require.True(t, base.IsCorruptionError(err))
	})
	t.Run("too short", func(t *testing.T) {
		_, err := Parse(data[:10])
		require.Error(t, err)
		require.True(t, base.IsCorruptionError(err))
	})
	t.Run("unknown version", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		copy(corrupt, "treeline checksums version: 9\n")
		// Re-seal the trailer so only the version check fires.
		payload := corrupt[:len(corrupt)-16]
		sum := hash128.Sum(payload)
		var trailer bytes.Buffer
		require.NoError(t, writeHashLE(&trailer, sum))
		copy(corrupt[len(corrupt)-16:], trailer.Bytes())
		_, err := Parse(corrupt)
		require.Error(t, err)
		require.True(t, base.IsCorruptionError(err))
	})
}

func writeHashLE(buf *bytes.Buffer, h hash128.Hash) error {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(h.Lo >> (8 * i))
		b[8+i] = byte(h.Hi >> (8 * i))
	}
	_, err := buf.Write(b[:])
	return err
}

func TestParseEmptyLedger(t *testing.T) {
	l := New()
	var buf bytes.Buffer
	require.NoError(t, l.Write(&buf))
	parsed, err := Parse(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 0, parsed.Len())
}
