// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/checksum"
	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/internal/hash128"
	"github.com/treelinedb/treeline/partstore"
)

// FinalizeOptions configures the finalization of a part.
type FinalizeOptions struct {
	// Sync requests that every written file be fsynced before the part is
	// committed.
	Sync bool
	// TotalColumns overrides the part's column list as the definitive one.
	// Used by callers that know the final list only after writing, e.g. a
	// verticalized merge.
	TotalColumns []block.ColumnSpec
	// AdditionalChecksums carries ledger entries produced by a different
	// writer instance, e.g. columns written by a vertical merge phase.
	AdditionalChecksums *checksum.Ledger
	// AdditionalSubstreams carries the substream layout of columns written
	// by a different writer instance. The merge restricts it to the
	// definitive column list.
	AdditionalSubstreams *Substreams
}

// FinalizePart finalizes the part synchronously: it emits the auxiliary
// files and immediately finishes the resulting Finalizer.
func (w *Writer) FinalizePart(opts FinalizeOptions) error {
	f, err := w.FinalizePartAsync(opts)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Finish()
}

// FinalizePartAsync emits the part's auxiliary metadata files (fast,
// buffered; no sync) and returns a Finalizer that completes or abandons the
// part. The caller must consume the Finalizer with Finish or Cancel; a
// deferred Close cancels it if neither ran.
func (w *Writer) FinalizePartAsync(opts FinalizeOptions) (*Finalizer, error) {
	p := w.part
	if p.DefaultCodec == nil {
		return nil, base.AssertionFailedf("compression codec must be specified for part %s", p.Name)
	}
	writesPartition := p.FormatVersion >= MinFormatVersionWithCustomPartitioning && !p.IsProjection
	if writesPartition && w.rows > 0 && (p.MinMax == nil || !p.MinMax.Initialized) {
		return nil, base.AssertionFailedf(
			"attempt to finalize part %s with uninitialized minmax index", p.Name)
	}

	ledger := checksum.New()
	ledger.Merge(opts.AdditionalChecksums)
	toRemove, err := w.serializer.FillChecksums(ledger)
	if err != nil {
		return nil, err
	}
	for _, name := range toRemove {
		ledger.Remove(name)
	}
	projections := make([]string, 0, len(p.Projections))
	for name := range p.Projections {
		projections = append(projections, name)
	}
	sort.Strings(projections)
	for _, name := range projections {
		ledger.AddProjection(name, p.Projections[name])
	}

	finalColumns := p.Columns
	if opts.TotalColumns != nil {
		finalColumns = opts.TotalColumns
	}
	infos := p.SerializationInfos
	var removeAfterCommit []string
	if w.newInfos != nil {
		if infos == nil {
			infos = NewSerializationInfos(w.opts.SparseRatio)
		}
		infos.MergeFrom(w.newInfos)
		// Columns that turned out to be entirely default-valued are dropped
		// from the part. Their data files are already on disk; they are
		// removed only after the commit (see Finalizer.Finish).
		kept := make([]block.ColumnSpec, 0, len(finalColumns))
		for _, c := range finalColumns {
			if infos.IsAllDefault(c.Name) {
				removeAfterCommit = append(removeAfterCommit, columnDataFiles(ledger, c.Name)...)
				continue
			}
			kept = append(kept, c)
		}
		finalColumns = kept
		for _, name := range removeAfterCommit {
			ledger.Remove(name)
		}
	}
	substreams := MergeSubstreams(
		columnNames(finalColumns), w.serializer.ColumnsSubstreams(), opts.AdditionalSubstreams)

	type auxFile struct {
		name   string
		hashed bool
		cond   bool
		write  func(io.Writer) error
	}
	files := []auxFile{
		{base.UUIDFileName, true, p.UUID != uuid.Nil, func(fw io.Writer) error {
			_, err := io.WriteString(fw, p.UUID.String())
			return err
		}},
		{base.PartitionFileName, true, writesPartition, func(fw io.Writer) error {
			_, err := fw.Write(p.Partition)
			return err
		}},
	}
	if writesPartition && p.MinMax != nil && p.MinMax.Initialized {
		idx := p.MinMax
		for i := range idx.Columns {
			i := i
			files = append(files, auxFile{base.MinMaxFileName(idx.Columns[i]), true, true,
				func(fw io.Writer) error { return idx.writeColumn(fw, i) }})
		}
	}
	files = append(files,
		auxFile{base.SourcePartsFileName, true, len(p.SourceParts) > 0, func(fw io.Writer) error {
			return writeSourceParts(fw, p.SourceParts)
		}},
		auxFile{base.CountFileName, true, true, func(fw io.Writer) error {
			_, err := fmt.Fprintf(fw, "%d", w.rows)
			return err
		}},
		auxFile{base.TTLFileName, true, !p.TTL.Empty(), func(fw io.Writer) error {
			return p.TTL.WriteJSON(fw)
		}},
		auxFile{base.SerializationFileName, true, infos != nil && infos.HasNonDefault(), func(fw io.Writer) error {
			return infos.WriteJSON(fw)
		}},
		auxFile{base.ColumnsFileName, false, true, func(fw io.Writer) error {
			return WriteColumnsText(fw, finalColumns)
		}},
		auxFile{base.ColumnsSubstreamsFileName, false, !substreams.Empty(), func(fw io.Writer) error {
			return substreams.WriteText(fw)
		}},
		auxFile{base.MetadataVersionFileName, false, true, func(fw io.Writer) error {
			_, err := fmt.Fprintf(fw, "%d", p.MetadataVersion)
			return err
		}},
		auxFile{base.DefaultCodecFileName, false, true, func(fw io.Writer) error {
			_, err := io.WriteString(fw, p.DefaultCodec.String())
			return err
		}},
	)

	var written []writtenFile
	abandon := func() {
		for _, wf := range written {
			wf.w.Abort()
		}
	}
	emit := func(name string, hashed bool, write func(io.Writer) error) error {
		f, err := p.Dir.WriteFile(name, w.opts.BufferBytes)
		if err != nil {
			return err
		}
		written = append(written, writtenFile{name: name, w: f})
		hw := hash128.NewWriter(f)
		if err := write(hw); err != nil {
			return errors.Wrapf(err, "treeline: writing %q", name)
		}
		if hashed {
			ledger.Add(name, hw.Count(), hw.Sum())
		}
		return nil
	}
	for _, af := range files {
		if !af.cond {
			continue
		}
		if err := emit(af.name, af.hashed, af.write); err != nil {
			abandon()
			return nil, err
		}
	}
	// The ledger is complete now; the checksums file is written last and is
	// not hashed into itself.
	if err := emit(base.ChecksumsFileName, false, ledger.Write); err != nil {
		abandon()
		return nil, err
	}

	p.Columns = finalColumns
	p.SerializationInfos = infos
	p.Substreams = substreams
	p.RowsCount = w.rows
	if p.ExistingRowsCount == nil {
		rows := w.rows
		p.ExistingRowsCount = &rows
	}
	p.ModificationTime = time.Now()
	p.Checksums = ledger
	p.BytesOnDisk = ledger.TotalSize()
	p.BytesUncompressed = w.serializer.UncompressedBytes()
	granularity := w.serializer.IndexGranularity()
	if w.opts.CompactGranularity {
		if adaptive, ok := granularity.(*AdaptiveGranularity); ok {
			if constant, ok := adaptive.Optimize(); ok {
				granularity = constant
			}
		}
	}
	p.IndexGranularity = granularity
	p.PrimaryIndex = w.serializer.ReleaseIndexColumns()

	return &Finalizer{impl: &finalizerImpl{
		serializer:        w.serializer,
		part:              p,
		files:             written,
		removeAfterCommit: removeAfterCommit,
		sync:              opts.Sync,
		logger:            w.opts.Logger,
	}}, nil
}

func columnNames(columns []block.ColumnSpec) []string {
	names := make([]string, len(columns))
	for i := range columns {
		names[i] = columns[i].Name
	}
	return names
}

// columnDataFiles returns the ledger entries holding the column's physical
// streams.
func columnDataFiles(l *checksum.Ledger, column string) []string {
	escaped := base.EscapeFileName(column)
	var files []string
	for _, suffix := range []string{base.DataFileSuffix, base.MarksFileSuffix, base.SparseOffsetsFileSuffix} {
		name := escaped + suffix
		if _, ok := l.Get(name); ok {
			files = append(files, name)
		}
	}
	return files
}

func writeSourceParts(w io.Writer, parts []string) error {
	var buf [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) error {
		n := binary.PutUvarint(buf[:], v)
		_, err := w.Write(buf[:n])
		return err
	}
	if err := putUvarint(uint64(len(parts))); err != nil {
		return err
	}
	for _, name := range parts {
		if err := putUvarint(uint64(len(name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, name); err != nil {
			return err
		}
	}
	return nil
}

type writtenFile struct {
	name string
	w    partstore.Writable
}

// Finalizer is the deferred completion handle of a part: a single-owner
// token consumed by exactly one of Finish or Cancel. Close cancels a handle
// that was never consumed, so callers defer it unconditionally:
//
//	f, err := w.FinalizePartAsync(opts)
//	if err != nil { ... }
//	defer f.Close()
//	if err := f.Finish(); err != nil { ... }
//
// The handle may be passed to a different goroutine and completed there;
// it is a one-shot ownership transfer, not a shared resource.
type Finalizer struct {
	impl *finalizerImpl
}

// Finish completes the part: the serializer flushes its remaining state,
// every written file is sealed (and synced when requested), and the write
// transaction commits. Post-commit removals run in a separate transaction;
// their failures are logged, not returned. A second call is a no-op.
func (f *Finalizer) Finish() error {
	impl := f.take()
	if impl == nil {
		return nil
	}
	return impl.finish()
}

// Cancel abandons the part: the serializer discards its state and every
// written file vanishes with the transaction abort. Cancel never fails and
// a redundant call is a no-op.
func (f *Finalizer) Cancel() {
	impl := f.take()
	if impl == nil {
		return
	}
	impl.cancel()
}

// Close cancels the handle if it is still pending. It always returns nil;
// the error return exists so the handle satisfies io.Closer.
func (f *Finalizer) Close() error {
	f.Cancel()
	return nil
}

func (f *Finalizer) take() *finalizerImpl {
	impl := f.impl
	f.impl = nil
	if impl == nil || impl.consumed {
		return nil
	}
	impl.consumed = true
	return impl
}

type finalizerImpl struct {
	serializer        ColumnSerializer
	part              *Part
	files             []writtenFile
	removeAfterCommit []string
	sync              bool
	logger            base.Logger
	consumed          bool
}

func (i *finalizerImpl) finish() error {
	start := crtime.NowMono()
	if err := i.serializer.Finish(i.sync); err != nil {
		i.cancel()
		return err
	}
	for _, wf := range i.files {
		if err := wf.w.Finish(); err != nil {
			i.cancel()
			return errors.Wrapf(err, "treeline: sealing %q", wf.name)
		}
		if i.sync {
			if err := wf.w.Sync(); err != nil {
				i.cancel()
				return errors.Wrapf(err, "treeline: syncing %q", wf.name)
			}
		}
	}
	if err := i.part.Dir.CommitTransaction(); err != nil {
		return err
	}
	if len(i.removeAfterCommit) > 0 {
		// The storage transaction cannot see its own writes: the files
		// scheduled for removal became visible only at the commit above, so
		// they are removed in a second, separate transaction. Failures here
		// leave reclaimable garbage, not an invalid part.
		i.part.Dir.BeginTransaction()
		for _, name := range i.removeAfterCommit {
			if err := i.part.Dir.RemoveFile(name); err != nil {
				i.logger.Errorf("treeline: cannot remove %q after finalizing part %s: %v",
					name, i.part.Name, err)
			}
		}
		if err := i.part.Dir.CommitTransaction(); err != nil {
			i.logger.Errorf("treeline: cannot commit removals after finalizing part %s: %v",
				i.part.Name, err)
		}
	}
	metricPartsFinalized.Inc()
	metricFinalizeDuration.Observe(start.Elapsed().Seconds())
	return nil
}

func (i *finalizerImpl) cancel() {
	i.serializer.Cancel()
	for _, wf := range i.files {
		wf.w.Abort()
	}
	i.part.Dir.AbortTransaction()
	metricPartsCancelled.Inc()
}
