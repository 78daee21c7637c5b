// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package partwrite builds immutable data parts: it feeds row batches into a
// column serializer, emits the part's auxiliary metadata files, and commits
// the part atomically through a deferred finalizer handle.
package partwrite

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/checksum"
	"github.com/treelinedb/treeline/compression"
	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/partstore"
)

// MinFormatVersionWithCustomPartitioning is the part format version from
// which the partition value and min/max index files are written.
const MinFormatVersionWithCustomPartitioning = 1

// MinMaxIndex holds the per-partitioning-column min and max values of a
// part, as opaque encoded bytes. It must be initialized before a non-empty
// part is finalized.
type MinMaxIndex struct {
	Initialized bool
	Columns     []string
	Mins        [][]byte
	Maxs        [][]byte
}

func (idx *MinMaxIndex) writeColumn(w io.Writer, i int) error {
	var buf [binary.MaxVarintLen64]byte
	for _, v := range [2][]byte{idx.Mins[i], idx.Maxs[i]} {
		n := binary.PutUvarint(buf[:], uint64(len(v)))
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		if _, err := w.Write(v); err != nil {
			return err
		}
	}
	return nil
}

// Part is the metadata of a data part under construction. It is mutated in
// place by finalization and must not be shared until Finish returns.
type Part struct {
	Name            base.PartName
	UUID            uuid.UUID
	Dir             *partstore.Dir
	FormatVersion   int
	MetadataVersion int
	IsProjection    bool

	Columns            []block.ColumnSpec
	SerializationInfos *SerializationInfos
	Substreams         *Substreams

	// Partition is the serialized partition key value. It may be empty for
	// an unpartitioned table; the file is still written at format versions
	// that support custom partitioning.
	Partition []byte
	MinMax    *MinMaxIndex
	TTL       *TTLInfos

	// SourceParts names the parts whose rows contributed to this one. Only
	// patch-style parts have a non-empty set.
	SourceParts []string

	// Projections maps a projection name to the checksums of its sub-part,
	// folded into this part's ledger as aggregate entries.
	Projections map[string]*checksum.Ledger

	DefaultCodec *compression.Setting

	// Fields below are populated by finalization.
	RowsCount uint64
	// ExistingRowsCount is the row count net of rows masked by a partial
	// delete. It defaults to RowsCount unless set by an upstream stage.
	ExistingRowsCount *uint64
	ModificationTime  time.Time
	Checksums         *checksum.Ledger
	BytesOnDisk       uint64
	BytesUncompressed uint64
	IndexGranularity  Granularity
	// PrimaryIndex holds the encoded first key of each granule, released by
	// the column serializer at finalization.
	PrimaryIndex [][]byte
}

// ColumnNames returns the names of the part's columns in order.
func (p *Part) ColumnNames() []string {
	names := make([]string, len(p.Columns))
	for i := range p.Columns {
		names[i] = p.Columns[i].Name
	}
	return names
}
