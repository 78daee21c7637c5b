// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdaptiveGranularity(t *testing.T) {
	g := &AdaptiveGranularity{}
	require.Equal(t, 0, g.NumMarks())
	require.Equal(t, uint64(0), g.TotalRows())

	g.Append(8)
	g.Append(8)
	g.Append(3)
	require.Equal(t, 3, g.NumMarks())
	require.Equal(t, uint64(19), g.TotalRows())
	require.Equal(t, uint64(8), g.RowsInMark(0))
	require.Equal(t, uint64(3), g.RowsInMark(2))
	require.Equal(t, "adaptive[8 8 3]", g.String())
}

func TestGranularityOptimize(t *testing.T) {
	t.Run("uniform with short tail", func(t *testing.T) {
		g := &AdaptiveGranularity{}
		g.Append(8)
		g.Append(8)
		g.Append(3)
		c, ok := g.Optimize()
		require.True(t, ok)
		require.Equal(t, g.TotalRows(), c.TotalRows())
		require.Equal(t, g.NumMarks(), c.NumMarks())
		for i := 0; i < g.NumMarks(); i++ {
			require.Equal(t, g.RowsInMark(i), c.RowsInMark(i))
		}
	})
	t.Run("non-uniform", func(t *testing.T) {
		g := &AdaptiveGranularity{}
		g.Append(8)
		g.Append(5)
		g.Append(8)
		_, ok := g.Optimize()
		require.False(t, ok)
	})
	t.Run("tail larger than body", func(t *testing.T) {
		g := &AdaptiveGranularity{}
		g.Append(4)
		g.Append(8)
		_, ok := g.Optimize()
		require.False(t, ok)
	})
	t.Run("single granule", func(t *testing.T) {
		g := &AdaptiveGranularity{}
		g.Append(5)
		c, ok := g.Optimize()
		require.True(t, ok)
		require.Equal(t, uint64(5), c.TotalRows())
		require.Equal(t, 1, c.NumMarks())
	})
	t.Run("empty", func(t *testing.T) {
		g := &AdaptiveGranularity{}
		_, ok := g.Optimize()
		require.False(t, ok)
	})
}

func TestConstantGranularity(t *testing.T) {
	c := &ConstantGranularity{RowsPerMark: 8192, Marks: 3, LastMarkRows: 100}
	require.Equal(t, 3, c.NumMarks())
	require.Equal(t, uint64(8192), c.RowsInMark(0))
	require.Equal(t, uint64(100), c.RowsInMark(2))
	require.Equal(t, uint64(2*8192+100), c.TotalRows())
	require.Equal(t, uint64(0), (&ConstantGranularity{}).TotalRows())
}
