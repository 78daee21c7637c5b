// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/colserde"
	"github.com/treelinedb/treeline/compression"
	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/partstore"
	"github.com/treelinedb/treeline/partwrite"
	"github.com/treelinedb/treeline/vfs"
)

const testPartDir = "/parts/all_1_1_0"

// buildTestPart writes and commits a small two-column part.
func buildTestPart(t *testing.T, fs vfs.FS) {
	columns := []block.ColumnSpec{
		{Name: "a", Type: "String"},
		{Name: "b", Type: "String"},
	}
	dir := partstore.Open(fs, testPartDir, base.NoopLogger{})
	require.NoError(t, dir.CreateDirectories())
	codec := compression.SnappyDefault
	part := &partwrite.Part{
		Name:            "all_1_1_0",
		Dir:             dir,
		FormatVersion:   partwrite.MinFormatVersionWithCustomPartitioning,
		MetadataVersion: 1,
		Columns:         columns,
		MinMax: &partwrite.MinMaxIndex{
			Initialized: true,
			Columns:     []string{"a"},
			Mins:        [][]byte{[]byte("k1")},
			Maxs:        [][]byte{[]byte("k3")},
		},
		DefaultCodec: &codec,
	}
	dir.BeginTransaction()
	serializer, err := colserde.NewSerializer(dir, columns, colserde.Options{
		Codec:      codec,
		PrimaryKey: []string{"a"},
	})
	require.NoError(t, err)
	w := partwrite.NewWriter(part, serializer, partwrite.WriterOptions{Logger: base.NoopLogger{}})
	require.NoError(t, w.Write(&block.Batch{Columns: []block.Column{
		{Spec: columns[0], Values: [][]byte{[]byte("k1"), []byte("k2"), []byte("k3")}},
		{Spec: columns[1], Values: [][]byte{[]byte("v1"), []byte("v2"), []byte("v3")}},
	}}))
	require.NoError(t, w.FinalizePart(partwrite.FinalizeOptions{Sync: true}))
}

func TestPartDump(t *testing.T) {
	fs := vfs.NewMem()
	buildTestPart(t, fs)
	p := newPart(fs)

	var buf bytes.Buffer
	p.Dump.SetOut(&buf)
	require.NoError(t, p.runDump(p.Dump, []string{testPartDir}))

	out := buf.String()
	require.Contains(t, out, "rows: 3")
	require.Contains(t, out, "codec: snappy")
	require.Contains(t, out, "a.bin")
	require.Contains(t, out, "count.txt")
	require.Contains(t, out, "minmax_a.idx")
}

func TestPartDumpMissingChecksums(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll(testPartDir, 0755))
	p := newPart(fs)
	p.Dump.SetOut(&bytes.Buffer{})
	require.Error(t, p.runDump(p.Dump, []string{testPartDir}))
}

func TestPartVerifyOK(t *testing.T) {
	fs := vfs.NewMem()
	buildTestPart(t, fs)
	p := newPart(fs)
	p.concurrency = 4

	var buf bytes.Buffer
	p.Verify.SetOut(&buf)
	require.NoError(t, p.runVerify(p.Verify, []string{testPartDir}))
	require.Contains(t, buf.String(), "ok")
}

func TestPartVerifyDetectsCorruption(t *testing.T) {
	fs := vfs.NewMem()
	buildTestPart(t, fs)

	// Rewrite a data file with different content of the same name.
	f, err := fs.Create(testPartDir + "/a.bin")
	require.NoError(t, err)
	_, err = f.Write([]byte("tampered"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	p := newPart(fs)
	p.concurrency = 4
	var buf bytes.Buffer
	p.Verify.SetOut(&buf)
	err = p.runVerify(p.Verify, []string{testPartDir})
	require.Error(t, err)
	require.Contains(t, buf.String(), "a.bin")
	require.Contains(t, buf.String(), "mismatch")
}

func TestPartVerifyDetectsMissingAndOrphan(t *testing.T) {
	fs := vfs.NewMem()
	buildTestPart(t, fs)
	require.NoError(t, fs.Remove(testPartDir+"/b.bin"))
	f, err := fs.Create(testPartDir + "/stray.bin")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	p := newPart(fs)
	p.concurrency = 4
	var buf bytes.Buffer
	p.Verify.SetOut(&buf)
	err = p.runVerify(p.Verify, []string{testPartDir})
	require.Error(t, err)
	require.Contains(t, buf.String(), "b.bin: missing")
	require.Contains(t, buf.String(), "stray.bin: not listed")
}

func TestToolCommands(t *testing.T) {
	tl := New(WithFS(vfs.NewMem()))
	require.Len(t, tl.Commands, 1)
	require.Equal(t, "part", tl.Commands[0].Name())
}
