// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"fmt"
	"strings"
)

// Granularity describes how a part's rows are cut into granules: the unit
// of rows addressed by one primary index mark.
type Granularity interface {
	// NumMarks returns the number of granules.
	NumMarks() int
	// RowsInMark returns the number of rows in the i'th granule.
	RowsInMark(i int) uint64
	// TotalRows returns the total number of rows covered.
	TotalRows() uint64
}

// AdaptiveGranularity records an explicit rows-per-granule sequence. It is
// what a column serializer produces while writing.
type AdaptiveGranularity struct {
	marks []uint64
	total uint64
}

var _ Granularity = (*AdaptiveGranularity)(nil)

// Append adds a granule of the given number of rows.
func (g *AdaptiveGranularity) Append(rows uint64) {
	g.marks = append(g.marks, rows)
	g.total += rows
}

// NumMarks implements Granularity.
func (g *AdaptiveGranularity) NumMarks() int { return len(g.marks) }

// RowsInMark implements Granularity.
func (g *AdaptiveGranularity) RowsInMark(i int) uint64 { return g.marks[i] }

// TotalRows implements Granularity.
func (g *AdaptiveGranularity) TotalRows() uint64 { return g.total }

// Optimize returns a compact constant representation when every granule
// except possibly the last has the same number of rows. It returns nil,
// false when the sequence does not compress.
func (g *AdaptiveGranularity) Optimize() (Granularity, bool) {
	if len(g.marks) == 0 {
		return nil, false
	}
	rows := g.marks[0]
	for i := 1; i < len(g.marks)-1; i++ {
		if g.marks[i] != rows {
			return nil, false
		}
	}
	last := g.marks[len(g.marks)-1]
	if len(g.marks) == 1 {
		last = rows
	}
	if last > rows {
		return nil, false
	}
	return &ConstantGranularity{
		RowsPerMark:  rows,
		Marks:        len(g.marks),
		LastMarkRows: last,
	}, true
}

// String returns a short description, used in logs and tests.
func (g *AdaptiveGranularity) String() string {
	var b strings.Builder
	b.WriteString("adaptive[")
	for i, m := range g.marks {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", m)
	}
	b.WriteString("]")
	return b.String()
}

// ConstantGranularity is the compact form: every granule holds RowsPerMark
// rows, except the last which holds LastMarkRows.
type ConstantGranularity struct {
	RowsPerMark  uint64
	Marks        int
	LastMarkRows uint64
}

var _ Granularity = (*ConstantGranularity)(nil)

// NumMarks implements Granularity.
func (g *ConstantGranularity) NumMarks() int { return g.Marks }

// RowsInMark implements Granularity.
func (g *ConstantGranularity) RowsInMark(i int) uint64 {
	if i == g.Marks-1 {
		return g.LastMarkRows
	}
	return g.RowsPerMark
}

// TotalRows implements Granularity.
func (g *ConstantGranularity) TotalRows() uint64 {
	if g.Marks == 0 {
		return 0
	}
	return uint64(g.Marks-1)*g.RowsPerMark + g.LastMarkRows
}

// String returns a short description, used in logs and tests.
func (g *ConstantGranularity) String() string {
	return fmt.Sprintf("constant[%d x %d, last %d]", g.RowsPerMark, g.Marks, g.LastMarkRows)
}
