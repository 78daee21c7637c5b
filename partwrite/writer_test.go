// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/checksum"
	"github.com/treelinedb/treeline/compression"
	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/internal/hash128"
	"github.com/treelinedb/treeline/partstore"
	"github.com/treelinedb/treeline/vfs"
)

// fakeSerializer is a test double for the column serializer capability.
type fakeSerializer struct {
	writes       []int
	perms        [][]int
	fill         func(*checksum.Ledger) ([]string, error)
	finishSync   []bool
	finishErr    error
	cancelCalls  int
	granularity  *AdaptiveGranularity
	substreams   *Substreams
	index        [][]byte
	uncompressed uint64
}

var _ ColumnSerializer = (*fakeSerializer)(nil)

func (f *fakeSerializer) Write(batch *block.Batch, perm []int) error {
	f.writes = append(f.writes, batch.Rows())
	f.perms = append(f.perms, perm)
	return nil
}

func (f *fakeSerializer) FillChecksums(ledger *checksum.Ledger) ([]string, error) {
	if f.fill != nil {
		return f.fill(ledger)
	}
	return nil, nil
}

func (f *fakeSerializer) Finish(sync bool) error {
	f.finishSync = append(f.finishSync, sync)
	return f.finishErr
}

func (f *fakeSerializer) Cancel() { f.cancelCalls++ }

func (f *fakeSerializer) IndexGranularity() Granularity {
	if f.granularity == nil {
		return &AdaptiveGranularity{}
	}
	return f.granularity
}

func (f *fakeSerializer) ReleaseIndexColumns() [][]byte { return f.index }

func (f *fakeSerializer) ColumnsSubstreams() *Substreams { return f.substreams }

func (f *fakeSerializer) UncompressedBytes() uint64 { return f.uncompressed }

func fakePart(t *testing.T) *Part {
	dir := partstore.Open(vfs.NewMem(), "/parts/tmp_fake_1_1_0", base.NoopLogger{})
	require.NoError(t, dir.CreateDirectories())
	codec := compression.ZstdDefault
	return &Part{
		Name:         "tmp_fake_1_1_0",
		Dir:          dir,
		Columns:      []block.ColumnSpec{{Name: "a", Type: "UInt64"}},
		DefaultCodec: &codec,
	}
}

func singleColumnBatch(n int) *block.Batch {
	values := make([][]byte, n)
	for i := range values {
		values[i] = []byte{byte(i + 1)}
	}
	return &block.Batch{Columns: []block.Column{
		{Spec: block.ColumnSpec{Name: "a", Type: "UInt64"}, Values: values},
	}}
}

func TestWriterSkipsEmptyBatches(t *testing.T) {
	fake := &fakeSerializer{}
	w := NewWriter(fakePart(t), fake, WriterOptions{Logger: base.NoopLogger{}})
	require.NoError(t, w.Write(nil))
	require.NoError(t, w.Write(&block.Batch{}))
	require.NoError(t, w.WriteWithPermutation(nil, nil))
	require.Empty(t, fake.writes)
	require.Zero(t, w.Rows())
}

func TestWriterRejectsRaggedBatch(t *testing.T) {
	fake := &fakeSerializer{}
	w := NewWriter(fakePart(t), fake, WriterOptions{Logger: base.NoopLogger{}})
	ragged := &block.Batch{Columns: []block.Column{
		{Spec: block.ColumnSpec{Name: "a"}, Values: [][]byte{{1}, {2}}},
		{Spec: block.ColumnSpec{Name: "b"}, Values: [][]byte{{1}}},
	}}
	require.Error(t, w.Write(ragged))
	require.Empty(t, fake.writes)
}

func TestWriterCancelDelegates(t *testing.T) {
	fake := &fakeSerializer{}
	w := NewWriter(fakePart(t), fake, WriterOptions{Logger: base.NoopLogger{}})
	w.Cancel()
	w.Cancel()
	require.Equal(t, 2, fake.cancelCalls)
}

func TestFinalizerFinishErrorCancels(t *testing.T) {
	fake := &fakeSerializer{finishErr: base.AssertionFailedf("boom")}
	part := fakePart(t)
	w := NewWriter(part, fake, WriterOptions{Logger: base.NoopLogger{}})
	require.NoError(t, w.Write(singleColumnBatch(2)))

	f, err := w.FinalizePartAsync(FinalizeOptions{Sync: true})
	require.NoError(t, err)
	require.Error(t, f.Finish())

	// The failed finish cancelled: transaction aborted, no files visible,
	// and the handle is consumed.
	require.Equal(t, 1, fake.cancelCalls)
	require.False(t, part.Dir.HasActiveTransaction())
	names, err := part.Dir.FS().List(part.Dir.Path())
	require.NoError(t, err)
	require.Empty(t, names)
	require.NoError(t, f.Finish())
}

func TestFinalizePassesSyncToSerializer(t *testing.T) {
	fake := &fakeSerializer{}
	w := NewWriter(fakePart(t), fake, WriterOptions{Logger: base.NoopLogger{}})
	require.NoError(t, w.FinalizePart(FinalizeOptions{Sync: true}))
	require.Equal(t, []bool{true}, fake.finishSync)
}

func TestFillChecksumsRemovalsDropped(t *testing.T) {
	fake := &fakeSerializer{
		fill: func(l *checksum.Ledger) ([]string, error) {
			l.Add("a.bin", 10, hash128.Sum([]byte("new")))
			l.Add("old.bin", 4, hash128.Sum([]byte("old")))
			return []string{"old.bin"}, nil
		},
	}
	part := fakePart(t)
	w := NewWriter(part, fake, WriterOptions{Logger: base.NoopLogger{}})
	require.NoError(t, w.Write(singleColumnBatch(3)))
	require.NoError(t, w.FinalizePart(FinalizeOptions{}))

	_, ok := part.Checksums.Get("a.bin")
	require.True(t, ok)
	_, ok = part.Checksums.Get("old.bin")
	require.False(t, ok)
}

func TestCompactGranularity(t *testing.T) {
	g := &AdaptiveGranularity{}
	g.Append(4)
	g.Append(4)
	g.Append(4)
	g.Append(2)
	fake := &fakeSerializer{granularity: g}
	part := fakePart(t)
	w := NewWriter(part, fake, WriterOptions{
		Logger:             base.NoopLogger{},
		CompactGranularity: true,
	})
	require.NoError(t, w.Write(singleColumnBatch(14)))
	require.NoError(t, w.FinalizePart(FinalizeOptions{}))

	constant, ok := part.IndexGranularity.(*ConstantGranularity)
	require.True(t, ok)
	require.Equal(t, uint64(4), constant.RowsPerMark)
	require.Equal(t, 4, constant.NumMarks())
	require.Equal(t, uint64(14), constant.TotalRows())
}

func TestTotalColumnsOverride(t *testing.T) {
	fake := &fakeSerializer{}
	part := fakePart(t)
	w := NewWriter(part, fake, WriterOptions{Logger: base.NoopLogger{}})
	require.NoError(t, w.Write(singleColumnBatch(1)))
	total := []block.ColumnSpec{
		{Name: "a", Type: "UInt64"},
		{Name: "c", Type: "String"},
	}
	require.NoError(t, w.FinalizePart(FinalizeOptions{TotalColumns: total}))
	require.Equal(t, total, part.Columns)
}
