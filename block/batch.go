// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package block holds the in-memory columnar row batch fed to a part writer.
// The representation is deliberately minimal: a batch is a set of named,
// typed columns of equal length, with each value an opaque encoded byte
// slice. An empty value is the column's default.
package block

import (
	"github.com/cockroachdb/errors"
)

// ColumnSpec names a column and its type. The type is an opaque textual
// descriptor ("UInt64", "String", ...); this package does not interpret it.
type ColumnSpec struct {
	Name string
	Type string
}

// Column is a named column of values. Values are stored encoded; a
// zero-length value is the column default.
type Column struct {
	Spec   ColumnSpec
	Values [][]byte
}

// IsDefault reports whether the i'th value is the column default.
func (c *Column) IsDefault(i int) bool { return len(c.Values[i]) == 0 }

// Batch is a set of columns of equal length.
type Batch struct {
	Columns []Column
}

// Rows returns the number of rows in the batch, defined by its first column.
// An empty batch has zero rows.
func (b *Batch) Rows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return len(b.Columns[0].Values)
}

// CheckRowCounts verifies that all columns have the same number of values.
// A mismatch is a defect in the batch producer.
func (b *Batch) CheckRowCounts() error {
	rows := b.Rows()
	for i := range b.Columns {
		if got := len(b.Columns[i].Values); got != rows {
			return errors.AssertionFailedf(
				"column %q has %d rows, expected %d", b.Columns[i].Spec.Name, got, rows)
		}
	}
	return nil
}

// Column returns the column with the given name, or nil.
func (b *Batch) Column(name string) *Column {
	for i := range b.Columns {
		if b.Columns[i].Spec.Name == name {
			return &b.Columns[i]
		}
	}
	return nil
}

// Specs returns the specs of all columns in batch order.
func (b *Batch) Specs() []ColumnSpec {
	specs := make([]ColumnSpec, len(b.Columns))
	for i := range b.Columns {
		specs[i] = b.Columns[i].Spec
	}
	return specs
}
