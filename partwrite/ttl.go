// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"encoding/json"
	"io"

	"github.com/treelinedb/treeline/internal/base"
)

// TTLRange is the [min, max] span of expiry timestamps (unix seconds)
// observed over some set of rows. A zero range means no TTL applies.
type TTLRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// IsZero reports whether the range carries no information.
func (r TTLRange) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// Update widens the range to include t.
func (r *TTLRange) Update(t int64) {
	if r.IsZero() {
		r.Min, r.Max = t, t
		return
	}
	if t < r.Min {
		r.Min = t
	}
	if t > r.Max {
		r.Max = t
	}
}

// TTLInfos summarizes the expiry metadata of a part: a table-wide range
// plus per-column, per-move, per-group and per-recompression ranges keyed
// by the defining expression.
type TTLInfos struct {
	Table         TTLRange            `json:"table"`
	Columns       map[string]TTLRange `json:"columns,omitempty"`
	Moves         map[string]TTLRange `json:"moves,omitempty"`
	GroupBy       map[string]TTLRange `json:"group_by,omitempty"`
	Recompression map[string]TTLRange `json:"recompression,omitempty"`
}

// Empty reports whether no TTL metadata is present. The TTL file is written
// only when it is non-empty.
func (t *TTLInfos) Empty() bool {
	if t == nil {
		return true
	}
	return t.Table.IsZero() && len(t.Columns) == 0 && len(t.Moves) == 0 &&
		len(t.GroupBy) == 0 && len(t.Recompression) == 0
}

// WriteJSON serializes the infos.
func (t *TTLInfos) WriteJSON(w io.Writer) error {
	return json.NewEncoder(w).Encode(t)
}

// ParseTTLInfos reads a file produced by WriteJSON.
func ParseTTLInfos(data []byte) (*TTLInfos, error) {
	var t TTLInfos
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, base.CorruptionErrorf("malformed ttl file: %v", err)
	}
	return &t, nil
}
