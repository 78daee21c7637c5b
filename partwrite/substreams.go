// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/treelinedb/treeline/internal/base"
)

// Substreams maps each logical column to the ordered list of physical byte
// streams backing its encoding. A dense column has a single substream named
// after the column; a sparse column adds an offsets substream.
type Substreams struct {
	order   []string
	streams map[string][]string
}

// NewSubstreams returns an empty layout.
func NewSubstreams() *Substreams {
	return &Substreams{streams: make(map[string][]string)}
}

// Add appends a substream to the column's list. Duplicate substreams within
// one column are a defect in the serializer.
func (s *Substreams) Add(column, stream string) {
	existing, ok := s.streams[column]
	if !ok {
		s.order = append(s.order, column)
	}
	for _, e := range existing {
		if e == stream {
			panic(base.AssertionFailedf("column %q already has substream %q", column, stream))
		}
	}
	s.streams[column] = append(existing, stream)
}

// Empty reports whether the layout has no columns.
func (s *Substreams) Empty() bool { return s == nil || len(s.order) == 0 }

// Columns returns the column names in insertion order.
func (s *Substreams) Columns() []string {
	if s == nil {
		return nil
	}
	return s.order
}

// Streams returns the substream names of the column, in insertion order.
func (s *Substreams) Streams(column string) []string {
	if s == nil {
		return nil
	}
	return s.streams[column]
}

// MergeSubstreams combines the layouts produced by the current writer and by
// any earlier writer phase, restricted to the definitive column list. Columns
// mentioned by either layout but absent from final are dropped; when both
// layouts describe a column, the primary layout wins.
func MergeSubstreams(final []string, primary, additional *Substreams) *Substreams {
	merged := NewSubstreams()
	for _, col := range final {
		src := primary
		if src == nil || src.streams[col] == nil {
			src = additional
		}
		if src == nil {
			continue
		}
		for _, stream := range src.streams[col] {
			merged.Add(col, stream)
		}
	}
	return merged
}

var substreamsMagic = "columns substreams version: 1\n"

// WriteText serializes the layout in the versioned text format.
func (s *Substreams) WriteText(w io.Writer) error {
	if _, err := io.WriteString(w, substreamsMagic); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d columns:\n", len(s.order)); err != nil {
		return err
	}
	for _, col := range s.order {
		streams := s.streams[col]
		if _, err := fmt.Fprintf(w, "`%s` %d substreams:\n", col, len(streams)); err != nil {
			return err
		}
		for _, stream := range streams {
			if _, err := fmt.Fprintf(w, "\t%s\n", stream); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseSubstreams reads a layout produced by WriteText.
func ParseSubstreams(data []byte) (*Substreams, error) {
	r := bufio.NewReader(strings.NewReader(string(data)))
	line, err := r.ReadString('\n')
	if err != nil || line != substreamsMagic {
		return nil, base.CorruptionErrorf("unknown substreams file version %q", errors.Safe(strings.TrimSuffix(line, "\n")))
	}
	line, err = r.ReadString('\n')
	if err != nil {
		return nil, base.CorruptionErrorf("substreams file truncated")
	}
	var numColumns int
	if _, err := fmt.Sscanf(line, "%d columns:", &numColumns); err != nil {
		return nil, base.CorruptionErrorf("malformed substreams header %q", errors.Safe(strings.TrimSuffix(line, "\n")))
	}
	s := NewSubstreams()
	for i := 0; i < numColumns; i++ {
		line, err = r.ReadString('\n')
		if err != nil {
			return nil, base.CorruptionErrorf("substreams file truncated")
		}
		line = strings.TrimSuffix(line, "\n")
		if !strings.HasPrefix(line, "`") {
			return nil, base.CorruptionErrorf("malformed substreams column line %q", errors.Safe(line))
		}
		end := strings.Index(line[1:], "`")
		if end < 0 {
			return nil, base.CorruptionErrorf("malformed substreams column line %q", errors.Safe(line))
		}
		col := line[1 : 1+end]
		rest := strings.TrimSpace(line[2+end:])
		numStreams, err := strconv.Atoi(strings.TrimSuffix(rest, " substreams:"))
		if err != nil {
			return nil, base.CorruptionErrorf("malformed substreams column line %q", errors.Safe(line))
		}
		for j := 0; j < numStreams; j++ {
			line, err = r.ReadString('\n')
			if err != nil {
				return nil, base.CorruptionErrorf("substreams file truncated")
			}
			if !strings.HasPrefix(line, "\t") {
				return nil, base.CorruptionErrorf("malformed substream line %q", errors.Safe(strings.TrimSuffix(line, "\n")))
			}
			s.Add(col, strings.TrimSuffix(line[1:], "\n"))
		}
	}
	return s, nil
}
