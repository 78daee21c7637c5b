// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/treelinedb/treeline/tool"
)

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "treeline [command] (flags)",
		Short: "treeline part introspection tool",
	}
	t := tool.New()
	rootCmd.AddCommand(t.Commands...)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
