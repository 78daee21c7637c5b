// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package tool implements the treeline introspection commands: dumping and
// verifying the integrity metadata of on-disk parts.
package tool

import (
	"github.com/spf13/cobra"

	"github.com/treelinedb/treeline/vfs"
)

// T is the container for all of the introspection tools.
type T struct {
	Commands []*cobra.Command
	part     *partT
}

// Option alters the behavior of New.
type Option func(*T)

// WithFS sets the filesystem the tools operate on. Intended for tests.
func WithFS(fs vfs.FS) Option {
	return func(t *T) { t.part.fs = fs }
}

// New creates a new introspection tool.
func New(opts ...Option) *T {
	t := &T{}
	t.part = newPart(vfs.Default)
	for _, opt := range opts {
		opt(t)
	}
	t.Commands = []*cobra.Command{
		t.part.Root,
	}
	return t
}
