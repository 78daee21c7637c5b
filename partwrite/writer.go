// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/checksum"
	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/partstore"
)

// ColumnSerializer is the capability interface of the column-level encoding
// writer: it turns typed column values into compressed byte streams on disk
// (per-column data and marks files, plus the primary index). The production
// implementation lives in the colserde package; tests use a lightweight
// double.
type ColumnSerializer interface {
	// Write appends the batch's rows to the per-column streams. When perm is
	// non-nil, rows are encoded in permuted order without materializing a
	// reordered batch.
	Write(batch *block.Batch, perm []int) error
	// FillChecksums records the size and hash of every file the serializer
	// wrote into the ledger. It returns the names of ledger entries that
	// became superseded and must be dropped before the ledger is sealed.
	FillChecksums(ledger *checksum.Ledger) (checksumsToRemove []string, err error)
	// Finish flushes remaining marks and the index, optionally syncing.
	Finish(sync bool) error
	// Cancel discards in-progress encoder state. Safe to call redundantly,
	// including after Finish.
	Cancel()
	// IndexGranularity returns the granule layout of the written rows.
	IndexGranularity() Granularity
	// ReleaseIndexColumns hands over the in-memory primary index rows,
	// one encoded key tuple per granule.
	ReleaseIndexColumns() [][]byte
	// ColumnsSubstreams returns the physical substream layout per column.
	ColumnsSubstreams() *Substreams
	// UncompressedBytes returns the pre-compression byte size of all data
	// written so far.
	UncompressedBytes() uint64
}

// WriterOptions configures a part Writer.
type WriterOptions struct {
	// Logger is used for post-commit cleanup failures. Defaults to
	// base.DefaultLogger.
	Logger base.Logger
	// ResetColumns defers the definitive column list to finalization time:
	// columns that turn out to be entirely default-valued are dropped from
	// the part, and their data files are removed after commit.
	ResetColumns bool
	// CompactGranularity replaces the adaptive granularity with its constant
	// form at finalization when every granule has the same size.
	CompactGranularity bool
	// BufferBytes is the write buffer size for auxiliary metadata files.
	BufferBytes int
	// SparseRatio is the fraction of default values above which a column is
	// serialized sparsely. Zero selects DefaultSparseRatio.
	SparseRatio float64
}

func (o WriterOptions) ensureDefaults() WriterOptions {
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	if o.BufferBytes <= 0 {
		o.BufferBytes = partstore.DefaultBufferBytes
	}
	if o.SparseRatio <= 0 {
		o.SparseRatio = DefaultSparseRatio
	}
	return o
}

// Writer feeds row batches into a column serializer and accumulates the
// bookkeeping needed to finalize the part. Exactly one Writer is used per
// part under construction, fed from a single goroutine.
type Writer struct {
	opts       WriterOptions
	part       *Part
	serializer ColumnSerializer
	rows       uint64
	// newInfos gathers serialization statistics over the data actually
	// written, in reset-columns mode only.
	newInfos *SerializationInfos
}

// NewWriter returns a Writer for the given part. It opens the part
// directory's write transaction if none is active; the transaction is
// consumed by the finalizer produced at end-of-write.
func NewWriter(part *Part, serializer ColumnSerializer, opts WriterOptions) *Writer {
	opts = opts.ensureDefaults()
	w := &Writer{opts: opts, part: part, serializer: serializer}
	if opts.ResetColumns {
		w.newInfos = NewSerializationInfos(opts.SparseRatio)
	}
	if !part.Dir.HasActiveTransaction() {
		part.Dir.BeginTransaction()
	}
	return w
}

// Rows returns the number of rows written so far.
func (w *Writer) Rows() uint64 { return w.rows }

// Write appends a batch whose rows are already in final sort order. Empty
// batches are no-ops.
func (w *Writer) Write(batch *block.Batch) error {
	if batch == nil || batch.Rows() == 0 {
		return nil
	}
	if err := batch.CheckRowCounts(); err != nil {
		return err
	}
	if w.newInfos != nil {
		w.newInfos.Add(batch)
	}
	return w.writeImpl(batch, nil)
}

// WriteWithPermutation appends a batch whose rows must be logically
// reordered by perm, applied during encoding rather than by materializing a
// second batch. Permuted batches are assumed pre-vetted: serialization
// statistics are not gathered on this path.
func (w *Writer) WriteWithPermutation(batch *block.Batch, perm []int) error {
	if batch == nil || batch.Rows() == 0 {
		return nil
	}
	if err := batch.CheckRowCounts(); err != nil {
		return err
	}
	if perm != nil && len(perm) != batch.Rows() {
		return base.AssertionFailedf(
			"permutation has %d entries for a batch of %d rows", len(perm), batch.Rows())
	}
	return w.writeImpl(batch, perm)
}

func (w *Writer) writeImpl(batch *block.Batch, perm []int) error {
	if err := w.serializer.Write(batch, perm); err != nil {
		return err
	}
	w.rows += uint64(batch.Rows())
	return nil
}

// Cancel discards the serializer's in-progress state. It is safe to call
// redundantly, or without any prior Write.
func (w *Writer) Cancel() {
	w.serializer.Cancel()
}
