// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/internal/base"
)

var columnsMagic = "columns format version: 1\n"

// WriteColumnsText serializes the definitive column list of a part in the
// versioned text format: one backquoted name and type per line.
func WriteColumnsText(w io.Writer, columns []block.ColumnSpec) error {
	if _, err := io.WriteString(w, columnsMagic); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d columns:\n", len(columns)); err != nil {
		return err
	}
	for _, c := range columns {
		if _, err := fmt.Fprintf(w, "`%s` %s\n", c.Name, c.Type); err != nil {
			return err
		}
	}
	return nil
}

// ParseColumnsText reads a column list produced by WriteColumnsText.
func ParseColumnsText(data []byte) ([]block.ColumnSpec, error) {
	r := bufio.NewReader(strings.NewReader(string(data)))
	line, err := r.ReadString('\n')
	if err != nil || line != columnsMagic {
		return nil, base.CorruptionErrorf("unknown columns file version %q", errors.Safe(strings.TrimSuffix(line, "\n")))
	}
	line, err = r.ReadString('\n')
	if err != nil {
		return nil, base.CorruptionErrorf("columns file truncated")
	}
	var n int
	if _, err := fmt.Sscanf(line, "%d columns:", &n); err != nil {
		return nil, base.CorruptionErrorf("malformed columns header %q", errors.Safe(strings.TrimSuffix(line, "\n")))
	}
	columns := make([]block.ColumnSpec, 0, n)
	for i := 0; i < n; i++ {
		line, err = r.ReadString('\n')
		if err != nil {
			return nil, base.CorruptionErrorf("columns file truncated")
		}
		line = strings.TrimSuffix(line, "\n")
		if !strings.HasPrefix(line, "`") {
			return nil, base.CorruptionErrorf("malformed column line %q", errors.Safe(line))
		}
		end := strings.Index(line[1:], "`")
		if end < 0 {
			return nil, base.CorruptionErrorf("malformed column line %q", errors.Safe(line))
		}
		columns = append(columns, block.ColumnSpec{
			Name: line[1 : 1+end],
			Type: strings.TrimSpace(line[2+end:]),
		})
	}
	return columns, nil
}
