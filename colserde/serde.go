// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package colserde is the production column serializer: it encodes row
// batches into per-column data and marks streams, maintains the primary
// index and the granule layout, and reports the checksums of everything it
// wrote. Each column's values are buffered per granule, compressed with the
// part's codec, and framed as [algorithm byte, uvarint length, payload].
package colserde

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/checksum"
	"github.com/treelinedb/treeline/compression"
	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/internal/hash128"
	"github.com/treelinedb/treeline/partstore"
	"github.com/treelinedb/treeline/partwrite"
)

// DefaultRowsPerGranule is the granule size used when Options leaves it
// unset.
const DefaultRowsPerGranule = 8192

// Options configures a Serializer.
type Options struct {
	// Codec compresses granule blocks. The zero value selects the default
	// setting.
	Codec compression.Setting
	// RowsPerGranule caps the number of rows per granule.
	RowsPerGranule int
	// PrimaryKey names the columns forming the primary key. One index row
	// per granule is retained in memory and written to the primary index
	// file; an empty key writes no index.
	PrimaryKey []string
	// Infos chooses the per-column encoding. Columns it marks sparse store
	// only their non-default values plus an offsets substream. A nil Infos
	// serializes every column densely.
	Infos *partwrite.SerializationInfos
	// BufferBytes is the write buffer size per stream.
	BufferBytes int
}

func (o Options) ensureDefaults() Options {
	if o.Codec == (compression.Setting{}) {
		o.Codec = compression.DefaultSetting
	}
	if o.RowsPerGranule <= 0 {
		o.RowsPerGranule = DefaultRowsPerGranule
	}
	if o.BufferBytes <= 0 {
		o.BufferBytes = partstore.DefaultBufferBytes
	}
	return o
}

type serializerState int8

const (
	stateWriting serializerState = iota
	stateFilled
	stateFinished
	stateCancelled
)

// Serializer implements partwrite.ColumnSerializer over a transactional
// part directory. It is not safe for concurrent use.
type Serializer struct {
	dir        *partstore.Dir
	opts       Options
	compressor compression.Compressor

	columns []*columnStream
	byName  map[string]*columnStream

	rowsInGranule int
	totalRows     uint64
	granularity   *partwrite.AdaptiveGranularity
	indexRows     [][]byte
	substreams    *partwrite.Substreams
	primaryIdx    *hashedFile

	uncompressed uint64
	compressBuf  []byte
	state        serializerState
}

var _ partwrite.ColumnSerializer = (*Serializer)(nil)

type hashedFile struct {
	name string
	w    partstore.Writable
	hw   *hash128.Writer
}

type columnStream struct {
	spec   block.ColumnSpec
	sparse bool
	bin    *hashedFile
	marks  *hashedFile
	// sprs is the offsets substream of a sparse column: a raw uvarint
	// stream of deltas between consecutive non-default row numbers.
	sprs *hashedFile
	// granule buffers the encoded values of the granule under construction.
	granule bytes.Buffer
	// lastRow is the absolute row number of the last non-default value, for
	// delta encoding. Starts at -1.
	lastRow int64
}

// NewSerializer opens the per-column output streams inside the directory's
// active transaction. The column list is fixed for the serializer's
// lifetime; batches must supply every column.
func NewSerializer(dir *partstore.Dir, columns []block.ColumnSpec, opts Options) (*Serializer, error) {
	opts = opts.ensureDefaults()
	s := &Serializer{
		dir:         dir,
		opts:        opts,
		compressor:  compression.GetCompressor(opts.Codec),
		byName:      make(map[string]*columnStream, len(columns)),
		granularity: &partwrite.AdaptiveGranularity{},
		substreams:  partwrite.NewSubstreams(),
	}
	for _, spec := range columns {
		cs := &columnStream{spec: spec, lastRow: -1}
		if opts.Infos != nil && opts.Infos.Kind(spec.Name) == partwrite.SerializationSparse {
			cs.sparse = true
		}
		escaped := base.EscapeFileName(spec.Name)
		var err error
		if cs.bin, err = s.openFile(escaped + base.DataFileSuffix); err != nil {
			return nil, err
		}
		if cs.marks, err = s.openFile(escaped + base.MarksFileSuffix); err != nil {
			return nil, err
		}
		s.substreams.Add(spec.Name, spec.Name)
		if cs.sparse {
			if cs.sprs, err = s.openFile(escaped + base.SparseOffsetsFileSuffix); err != nil {
				return nil, err
			}
			s.substreams.Add(spec.Name, spec.Name+".sparse.offsets")
		}
		s.columns = append(s.columns, cs)
		s.byName[spec.Name] = cs
	}
	return s, nil
}

func (s *Serializer) openFile(name string) (*hashedFile, error) {
	w, err := s.dir.WriteFile(name, s.opts.BufferBytes)
	if err != nil {
		return nil, err
	}
	return &hashedFile{name: name, w: w, hw: hash128.NewWriter(w)}, nil
}

// Write implements partwrite.ColumnSerializer.
func (s *Serializer) Write(batch *block.Batch, perm []int) error {
	if s.state != stateWriting {
		return errors.AssertionFailedf("write to consumed column serializer")
	}
	cols := make([]*block.Column, len(s.columns))
	for i, cs := range s.columns {
		if cols[i] = batch.Column(cs.spec.Name); cols[i] == nil {
			return errors.AssertionFailedf("batch is missing column %q", cs.spec.Name)
		}
	}
	var keyCols []*block.Column
	if len(s.opts.PrimaryKey) > 0 {
		keyCols = make([]*block.Column, len(s.opts.PrimaryKey))
		for i, name := range s.opts.PrimaryKey {
			if keyCols[i] = batch.Column(name); keyCols[i] == nil {
				return errors.AssertionFailedf("batch is missing primary key column %q", name)
			}
		}
	}
	rows := batch.Rows()
	for r := 0; r < rows; r++ {
		src := r
		if perm != nil {
			src = perm[r]
		}
		if s.rowsInGranule == 0 && keyCols != nil {
			s.indexRows = append(s.indexRows, encodeIndexRow(keyCols, src))
		}
		for i, cs := range s.columns {
			v := cols[i].Values[src]
			s.uncompressed += uint64(len(v))
			if cs.sparse {
				if len(v) == 0 {
					continue
				}
				delta := int64(s.totalRows) - cs.lastRow
				cs.lastRow = int64(s.totalRows)
				var buf [binary.MaxVarintLen64]byte
				n := binary.PutUvarint(buf[:], uint64(delta))
				if _, err := cs.sprs.hw.Write(buf[:n]); err != nil {
					return err
				}
			}
			appendValue(&cs.granule, v)
		}
		s.rowsInGranule++
		s.totalRows++
		if s.rowsInGranule >= s.opts.RowsPerGranule {
			if err := s.flushGranule(); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeIndexRow(keyCols []*block.Column, row int) []byte {
	var buf bytes.Buffer
	for _, c := range keyCols {
		appendValue(&buf, c.Values[row])
	}
	return buf.Bytes()
}

func appendValue(buf *bytes.Buffer, v []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(v)))
	buf.Write(lenBuf[:n])
	buf.Write(v)
}

// flushGranule compresses and frames the buffered granule of every column,
// writes one mark per column, and records the granule in the granularity.
func (s *Serializer) flushGranule() error {
	for _, cs := range s.columns {
		offset := cs.bin.hw.Count()
		s.compressBuf = s.compressor.Compress(s.compressBuf[:0], cs.granule.Bytes())
		var buf [1 + 2*binary.MaxVarintLen64]byte
		buf[0] = byte(s.opts.Codec.Algorithm)
		n := 1 + binary.PutUvarint(buf[1:], uint64(len(s.compressBuf)))
		if _, err := cs.bin.hw.Write(buf[:n]); err != nil {
			return err
		}
		if _, err := cs.bin.hw.Write(s.compressBuf); err != nil {
			return err
		}
		n = binary.PutUvarint(buf[:], offset)
		n += binary.PutUvarint(buf[n:], uint64(s.rowsInGranule))
		if _, err := cs.marks.hw.Write(buf[:n]); err != nil {
			return err
		}
		cs.granule.Reset()
	}
	s.granularity.Append(uint64(s.rowsInGranule))
	s.rowsInGranule = 0
	return nil
}

// FillChecksums implements partwrite.ColumnSerializer. It flushes the
// trailing granule, writes the primary index file, seals every stream and
// records their sizes and hashes into the ledger. Sealed files are synced
// later by Finish, when durability is requested.
func (s *Serializer) FillChecksums(ledger *checksum.Ledger) ([]string, error) {
	if s.state != stateWriting {
		return nil, errors.AssertionFailedf("fill checksums on consumed column serializer")
	}
	if s.rowsInGranule > 0 {
		if err := s.flushGranule(); err != nil {
			return nil, err
		}
	}
	if len(s.opts.PrimaryKey) > 0 {
		f, err := s.openFile(base.PrimaryIndexFileName)
		if err != nil {
			return nil, err
		}
		s.primaryIdx = f
		for _, row := range s.indexRows {
			if _, err := f.hw.Write(row); err != nil {
				return nil, err
			}
		}
	}
	for _, f := range s.files() {
		if err := f.w.Finish(); err != nil {
			return nil, errors.Wrapf(err, "treeline: sealing %q", f.name)
		}
		ledger.Add(f.name, f.hw.Count(), f.hw.Sum())
	}
	s.state = stateFilled
	return nil, nil
}

func (s *Serializer) files() []*hashedFile {
	var files []*hashedFile
	for _, cs := range s.columns {
		files = append(files, cs.bin, cs.marks)
		if cs.sprs != nil {
			files = append(files, cs.sprs)
		}
	}
	if s.primaryIdx != nil {
		files = append(files, s.primaryIdx)
	}
	return files
}

// Finish implements partwrite.ColumnSerializer.
func (s *Serializer) Finish(sync bool) error {
	if s.state != stateFilled {
		return errors.AssertionFailedf("finish of column serializer before checksums were filled")
	}
	if sync {
		for _, f := range s.files() {
			if err := f.w.Sync(); err != nil {
				return errors.Wrapf(err, "treeline: syncing %q", f.name)
			}
		}
	}
	s.closeCompressor()
	s.state = stateFinished
	return nil
}

func (s *Serializer) closeCompressor() {
	if s.compressor != nil {
		s.compressor.Close()
		s.compressor = nil
	}
}

// Cancel implements partwrite.ColumnSerializer.
func (s *Serializer) Cancel() {
	if s.state == stateCancelled || s.state == stateFinished {
		return
	}
	for _, f := range s.files() {
		f.w.Abort()
	}
	s.closeCompressor()
	s.state = stateCancelled
}

// IndexGranularity implements partwrite.ColumnSerializer.
func (s *Serializer) IndexGranularity() partwrite.Granularity { return s.granularity }

// ReleaseIndexColumns implements partwrite.ColumnSerializer.
func (s *Serializer) ReleaseIndexColumns() [][]byte {
	rows := s.indexRows
	s.indexRows = nil
	return rows
}

// ColumnsSubstreams implements partwrite.ColumnSerializer.
func (s *Serializer) ColumnsSubstreams() *partwrite.Substreams { return s.substreams }

// UncompressedBytes implements partwrite.ColumnSerializer.
func (s *Serializer) UncompressedBytes() uint64 { return s.uncompressed }
