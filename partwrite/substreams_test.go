// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"bytes"
	"testing"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"
)

func TestSubstreamsAdd(t *testing.T) {
	s := NewSubstreams()
	require.True(t, s.Empty())
	s.Add("a", "a")
	s.Add("a", "a.sparse.offsets")
	s.Add("b", "b")
	require.False(t, s.Empty())
	require.Equal(t, []string{"a", "b"}, s.Columns())
	require.Equal(t, []string{"a", "a.sparse.offsets"}, s.Streams("a"))
	require.Nil(t, s.Streams("absent"))
	require.Panics(t, func() { s.Add("a", "a") })
}

func TestMergeSubstreamsRestrictsToFinalColumns(t *testing.T) {
	primary := NewSubstreams()
	primary.Add("a", "a")
	primary.Add("dropped", "dropped")

	additional := NewSubstreams()
	additional.Add("c", "c")
	additional.Add("c", "c.sparse.offsets")
	// The primary layout wins for columns both describe.
	additional.Add("a", "a.other")

	merged := MergeSubstreams([]string{"a", "b", "c"}, primary, additional)
	require.Equal(t, []string{"a", "c"}, merged.Columns())
	require.Equal(t, []string{"a"}, merged.Streams("a"))
	require.Equal(t, []string{"c", "c.sparse.offsets"}, merged.Streams("c"))
	// Columns absent from the final list vanish.
	require.Nil(t, merged.Streams("dropped"))

	require.True(t, MergeSubstreams([]string{"a"}, nil, nil).Empty())
}

func TestSubstreamsTextRoundTrip(t *testing.T) {
	s := NewSubstreams()
	s.Add("a", "a")
	s.Add("a", "a.sparse.offsets")
	s.Add("weird col", "weird col")

	var buf bytes.Buffer
	require.NoError(t, s.WriteText(&buf))

	parsed, err := ParseSubstreams(buf.Bytes())
	require.NoError(t, err)
	if diff := pretty.Diff(s, parsed); len(diff) > 0 {
		t.Fatalf("round trip mismatch:\n%v", diff)
	}
}

func TestParseSubstreamsRejectsGarbage(t *testing.T) {
	for _, data := range []string{
		"",
		"columns substreams version: 9\n",
		"columns substreams version: 1\n",
		"columns substreams version: 1\nnope\n",
		"columns substreams version: 1\n1 columns:\n",
		"columns substreams version: 1\n1 columns:\n`a` x substreams:\n",
		"columns substreams version: 1\n1 columns:\n`a` 1 substreams:\nno-tab\n",
	} {
		_, err := ParseSubstreams([]byte(data))
		require.Error(t, err, "input %q", data)
	}
}

func TestParseColumnsTextRejectsGarbage(t *testing.T) {
	for _, data := range []string{
		"",
		"columns format version: 2\n",
		"columns format version: 1\nnope\n",
		"columns format version: 1\n1 columns:\n",
		"columns format version: 1\n1 columns:\nmissing backquote\n",
	} {
		_, err := ParseColumnsText([]byte(data))
		require.Error(t, err, "input %q", data)
	}
}
