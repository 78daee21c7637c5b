// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/treelinedb/treeline/block"
	"github.com/treelinedb/treeline/internal/base"
)

// SerializationKind is the on-disk encoding chosen for a column.
type SerializationKind int8

const (
	// SerializationDense stores one value per row.
	SerializationDense SerializationKind = iota
	// SerializationSparse stores only non-default values plus an offsets
	// substream locating them.
	SerializationSparse
)

// String implements fmt.Stringer.
func (k SerializationKind) String() string {
	switch k {
	case SerializationDense:
		return "dense"
	case SerializationSparse:
		return "sparse"
	}
	return "unknown"
}

func parseSerializationKind(s string) (SerializationKind, error) {
	switch s {
	case "dense":
		return SerializationDense, nil
	case "sparse":
		return SerializationSparse, nil
	}
	return 0, base.CorruptionErrorf("unknown serialization kind %q", errors.Safe(s))
}

// DefaultSparseRatio is the fraction of default values above which a column
// is stored sparsely.
const DefaultSparseRatio = 0.9375

// SerializationStats accumulates per-column value statistics.
type SerializationStats struct {
	NumRows     uint64
	NumDefaults uint64
}

// SerializationInfos holds per-column statistics driving the choice between
// sparse and dense encoding. The zero value is not usable; call
// NewSerializationInfos.
type SerializationInfos struct {
	ratio   float64
	columns map[string]*SerializationStats
}

// NewSerializationInfos returns an empty info set using the given sparse
// ratio threshold; a non-positive ratio selects DefaultSparseRatio.
func NewSerializationInfos(ratio float64) *SerializationInfos {
	if ratio <= 0 {
		ratio = DefaultSparseRatio
	}
	return &SerializationInfos{
		ratio:   ratio,
		columns: make(map[string]*SerializationStats),
	}
}

// Add accumulates statistics over every column of the batch.
func (si *SerializationInfos) Add(batch *block.Batch) {
	for i := range batch.Columns {
		c := &batch.Columns[i]
		stats := si.columns[c.Spec.Name]
		if stats == nil {
			stats = &SerializationStats{}
			si.columns[c.Spec.Name] = stats
		}
		for j := range c.Values {
			stats.NumRows++
			if c.IsDefault(j) {
				stats.NumDefaults++
			}
		}
	}
}

// MergeFrom folds the statistics of other into si.
func (si *SerializationInfos) MergeFrom(other *SerializationInfos) {
	if other == nil {
		return
	}
	for name, s := range other.columns {
		stats := si.columns[name]
		if stats == nil {
			stats = &SerializationStats{}
			si.columns[name] = stats
		}
		stats.NumRows += s.NumRows
		stats.NumDefaults += s.NumDefaults
	}
}

// Kind returns the encoding chosen for the column. Columns without
// statistics are dense.
func (si *SerializationInfos) Kind(column string) SerializationKind {
	stats := si.columns[column]
	if stats == nil || stats.NumRows == 0 {
		return SerializationDense
	}
	if float64(stats.NumDefaults) >= si.ratio*float64(stats.NumRows) {
		return SerializationSparse
	}
	return SerializationDense
}

// IsAllDefault reports whether every observed value of the column was the
// default. A column with no statistics is not considered all-default.
func (si *SerializationInfos) IsAllDefault(column string) bool {
	stats := si.columns[column]
	return stats != nil && stats.NumRows > 0 && stats.NumDefaults == stats.NumRows
}

// HasNonDefault reports whether any column chose a non-dense encoding. The
// serialization file is written only in that case.
func (si *SerializationInfos) HasNonDefault() bool {
	for name := range si.columns {
		if si.Kind(name) != SerializationDense {
			return true
		}
	}
	return false
}

type serializationFileColumn struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	NumRows     uint64 `json:"num_rows"`
	NumDefaults uint64 `json:"num_defaults"`
}

type serializationFile struct {
	Version int                       `json:"version"`
	Columns []serializationFileColumn `json:"columns"`
}

// WriteJSON serializes the columns with a non-dense encoding choice, in
// sorted name order.
func (si *SerializationInfos) WriteJSON(w io.Writer) error {
	names := make([]string, 0, len(si.columns))
	for name := range si.columns {
		if si.Kind(name) != SerializationDense {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	f := serializationFile{Version: 1}
	for _, name := range names {
		stats := si.columns[name]
		f.Columns = append(f.Columns, serializationFileColumn{
			Name:        name,
			Kind:        si.Kind(name).String(),
			NumRows:     stats.NumRows,
			NumDefaults: stats.NumDefaults,
		})
	}
	enc := json.NewEncoder(w)
	return enc.Encode(&f)
}

// ParseSerializationInfos reads a file produced by WriteJSON.
func ParseSerializationInfos(data []byte) (*SerializationInfos, error) {
	var f serializationFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, base.CorruptionErrorf("malformed serialization file: %v", err)
	}
	if f.Version != 1 {
		return nil, base.CorruptionErrorf("unknown serialization file version %d", f.Version)
	}
	si := NewSerializationInfos(0)
	for _, c := range f.Columns {
		if _, err := parseSerializationKind(c.Kind); err != nil {
			return nil, err
		}
		if _, ok := si.columns[c.Name]; ok {
			return nil, base.CorruptionErrorf("serialization file lists column %q twice", errors.Safe(c.Name))
		}
		si.columns[c.Name] = &SerializationStats{NumRows: c.NumRows, NumDefaults: c.NumDefaults}
	}
	return si, nil
}
