// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/redact"
)

// The fixed set of non-columnar files a part directory may contain. Column
// data and marks files are named after the (escaped) column. The checksums
// file is always written last; its absence means the part was never
// committed and must not be loaded.
const (
	// UUIDFileName holds the textual part identity, present only when the
	// part carries a non-nil UUID.
	UUIDFileName = "uuid.txt"
	// PartitionFileName holds the serialized partition key value.
	PartitionFileName = "partition.dat"
	// SourcePartsFileName lists the parts that contributed rows, present
	// only for patch-style parts.
	SourcePartsFileName = "source_parts.dat"
	// CountFileName holds the decimal row count.
	CountFileName = "count.txt"
	// TTLFileName holds the serialized TTL info set.
	TTLFileName = "ttl.txt"
	// SerializationFileName holds per-column serialization statistics.
	SerializationFileName = "serialization.json"
	// ColumnsFileName holds the plain-text column name/type list.
	ColumnsFileName = "columns.txt"
	// ColumnsSubstreamsFileName holds the logical column to physical
	// substream layout.
	ColumnsSubstreamsFileName = "columns_substreams.txt"
	// MetadataVersionFileName holds the decimal table metadata version.
	MetadataVersionFileName = "metadata_version.txt"
	// DefaultCodecFileName holds the textual default compression codec
	// descriptor.
	DefaultCodecFileName = "default_compression_codec.txt"
	// ChecksumsFileName holds the checksum ledger. Written last.
	ChecksumsFileName = "checksums.txt"

	// ProjectionSuffix qualifies aggregate ledger entries that stand for a
	// whole sub-part rather than a literal file.
	ProjectionSuffix = ".proj"

	// DataFileSuffix and MarksFileSuffix name the per-column streams.
	DataFileSuffix  = ".bin"
	MarksFileSuffix = ".mrk"
	// SparseOffsetsFileSuffix names the offsets substream of a sparsely
	// serialized column.
	SparseOffsetsFileSuffix = ".sprs"
	// PrimaryIndexFileName holds one encoded key tuple per granule.
	PrimaryIndexFileName = "primary.idx"
)

// MinMaxFileName returns the name of the min/max index file for the given
// partitioning column.
func MinMaxFileName(column string) string {
	return fmt.Sprintf("minmax_%s.idx", EscapeFileName(column))
}

// EscapeFileName escapes a column name so it is safe to use as a file name
// component. Alphanumerics, '_', '-' and '.' pass through; everything else
// is written as %XX.
func EscapeFileName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '_', c == '-', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// PartName identifies a part within its table. The name may be temporary
// (e.g. "tmp_merge_all_1_2_0") while the part is under construction.
type PartName string

// String implements fmt.Stringer.
func (n PartName) String() string { return string(n) }

// SafeFormat implements redact.SafeFormatter.
func (n PartName) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(n))
}

// IsTemporary reports whether the name carries the temporary prefix used for
// parts under construction.
func (n PartName) IsTemporary() bool { return strings.HasPrefix(string(n), "tmp_") }
