// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"

	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/colserde"
	"github.com/treelinedb/treeline/compression"
	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/partstore"
	"github.com/treelinedb/treeline/partwrite"
	"github.com/treelinedb/treeline/vfs"
)

// TestFinalizeDataDriven drives the full write-finalize-commit protocol
// from a script: parts are built on an in-memory filesystem and the
// committed file listing is the observable output.
func TestFinalizeDataDriven(t *testing.T) {
	var (
		dir    *partstore.Dir
		writer *partwrite.Writer
		fin    *partwrite.Finalizer
	)
	columns := []block.ColumnSpec{
		{Name: "a", Type: "String"},
		{Name: "b", Type: "String"},
	}
	listFiles := func() string {
		names, err := dir.ListCommitted()
		require.NoError(t, err)
		if len(names) == 0 {
			return "(no files)\n"
		}
		return strings.Join(names, "\n") + "\n"
	}

	datadriven.RunTest(t, "testdata/finalize", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "init":
			if fin != nil {
				fin.Cancel()
				fin = nil
			}
			if dir != nil && dir.HasActiveTransaction() {
				writer.Cancel()
				dir.AbortTransaction()
			}
			dir = partstore.Open(vfs.NewMem(), "/parts/tmp_d_1_1_0", base.NoopLogger{})
			require.NoError(t, dir.CreateDirectories())
			codec := compression.SnappyDefault
			part := &partwrite.Part{
				Name:            "tmp_d_1_1_0",
				Dir:             dir,
				FormatVersion:   partwrite.MinFormatVersionWithCustomPartitioning,
				MetadataVersion: 1,
				Columns:         columns,
				DefaultCodec:    &codec,
			}
			if !td.HasArg("no-minmax") {
				part.MinMax = &partwrite.MinMaxIndex{
					Initialized: true,
					Columns:     []string{"a"},
					Mins:        [][]byte{[]byte("")},
					Maxs:        [][]byte{[]byte("zz")},
				}
			}
			rowsPerGranule := 4
			if td.HasArg("rows-per-granule") {
				td.ScanArgs(t, "rows-per-granule", &rowsPerGranule)
			}
			dir.BeginTransaction()
			serializer, err := colserde.NewSerializer(dir, columns, colserde.Options{
				Codec:          codec,
				RowsPerGranule: rowsPerGranule,
				PrimaryKey:     []string{"a"},
			})
			require.NoError(t, err)
			writer = partwrite.NewWriter(part, serializer, partwrite.WriterOptions{
				Logger:       base.NoopLogger{},
				ResetColumns: td.HasArg("reset-columns"),
			})
			return "ok\n"

		case "write":
			var a, b [][]byte
			for _, line := range strings.Split(strings.TrimSpace(td.Input), "\n") {
				fields := strings.Fields(line)
				require.Len(t, fields, 2, "expected two values per row")
				a = append(a, parseValue(fields[0]))
				b = append(b, parseValue(fields[1]))
			}
			batch := &block.Batch{Columns: []block.Column{
				{Spec: columns[0], Values: a},
				{Spec: columns[1], Values: b},
			}}
			if err := writer.Write(batch); err != nil {
				return fmt.Sprintf("error: %v\n", err)
			}
			return fmt.Sprintf("wrote %d rows (total %d)\n", batch.Rows(), writer.Rows())

		case "finalize":
			f, err := writer.FinalizePartAsync(partwrite.FinalizeOptions{
				Sync: td.HasArg("sync"),
			})
			if err != nil {
				return fmt.Sprintf("error: %v\n", err)
			}
			fin = f
			return "pending\n"

		case "finish":
			if err := fin.Finish(); err != nil {
				return fmt.Sprintf("error: %v\n", err)
			}
			return listFiles()

		case "cancel":
			fin.Cancel()
			return listFiles()

		case "ls":
			return listFiles()

		default:
			td.Fatalf(t, "unknown command %q", td.Cmd)
			return ""
		}
	})
}

// parseValue maps the placeholder "_" to the column default.
func parseValue(s string) []byte {
	if s == "_" {
		return nil
	}
	return []byte(s)
}
