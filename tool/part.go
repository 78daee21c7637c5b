// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tool

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/treelinedb/treeline/checksum"
	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/internal/hash128"
	"github.com/treelinedb/treeline/vfs"
)

// partT implements part-level introspection: dumping and verifying the
// checksum ledger of a part directory.
type partT struct {
	Root   *cobra.Command
	Dump   *cobra.Command
	Verify *cobra.Command

	fs          vfs.FS
	concurrency int
}

func newPart(fs vfs.FS) *partT {
	p := &partT{fs: fs}
	p.Root = &cobra.Command{
		Use:   "part",
		Short: "part introspection commands",
	}
	p.Dump = &cobra.Command{
		Use:   "dump <dir>",
		Short: "print the checksum ledger of a part",
		Long: `
Print the checksum ledger of a part: every tracked file with its size and
128-bit content hash, plus the part's row count and default codec when
present. A part without a valid checksums file was never committed.
`,
		Args: cobra.ExactArgs(1),
		RunE: p.runDump,
	}
	p.Verify = &cobra.Command{
		Use:   "verify <dir>",
		Short: "verify a part against its checksum ledger",
		Long: `
Recompute the size and hash of every file listed in the part's checksum
ledger and compare them against the recorded entries. Files present in the
directory but absent from the ledger (other than the untracked metadata
files) are reported as orphans.
`,
		Args: cobra.ExactArgs(1),
		RunE: p.runVerify,
	}
	p.Verify.Flags().IntVar(&p.concurrency, "concurrency", 8,
		"number of files verified in parallel")
	p.Root.AddCommand(p.Dump, p.Verify)
	return p
}

func (p *partT) readLedger(dir string) (*checksum.Ledger, error) {
	data, err := p.readFile(dir, base.ChecksumsFileName)
	if err != nil {
		return nil, err
	}
	return checksum.Parse(data)
}

func (p *partT) readFile(dir, name string) ([]byte, error) {
	f, err := p.fs.Open(p.fs.PathJoin(dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (p *partT) runDump(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ledger, err := p.readLedger(dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if count, err := p.readFile(dir, base.CountFileName); err == nil {
		fmt.Fprintf(out, "rows: %s\n", strings.TrimSpace(string(count)))
	}
	if codec, err := p.readFile(dir, base.DefaultCodecFileName); err == nil {
		fmt.Fprintf(out, "codec: %s\n", strings.TrimSpace(string(codec)))
	}
	tbl := tablewriter.NewWriter(out)
	tbl.SetHeader([]string{"File", "Size", "Hash"})
	for _, name := range ledger.Names() {
		e, _ := ledger.Get(name)
		tbl.Append([]string{name, fmt.Sprintf("%d", e.Size), e.Hash.String()})
	}
	tbl.SetFooter([]string{"total", fmt.Sprintf("%d", ledger.TotalSize()), ledger.TotalHash().String()})
	tbl.Render()
	return nil
}

func (p *partT) runVerify(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ledger, err := p.readLedger(dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var mu sync.Mutex
	var problems []string
	report := func(format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, name := range ledger.Names() {
		if strings.HasSuffix(name, base.ProjectionSuffix) {
			// Aggregate entry for a sub-part, not a literal file.
			continue
		}
		name := name
		e, _ := ledger.Get(name)
		g.Go(func() error {
			data, err := p.readFile(dir, name)
			if err != nil {
				report("%s: missing (%v)", name, err)
				return nil
			}
			if uint64(len(data)) != e.Size {
				report("%s: size mismatch: on disk %d, ledger %d", name, len(data), e.Size)
				return nil
			}
			if got := hash128.Sum(data); got != e.Hash {
				report("%s: hash mismatch: computed %s, ledger %s", name, got, e.Hash)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range p.orphans(dir, ledger) {
		report("%s: not listed in the checksum ledger", name)
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		for _, s := range problems {
			fmt.Fprintln(out, s)
		}
		return fmt.Errorf("%d problem(s) found in part %s", len(problems), dir)
	}
	fmt.Fprintf(out, "part %s: ok (%d entries verified)\n", dir, ledger.Len())
	return nil
}

// untracked are the part files integrity-checked through their presence in
// the checksums file listing rather than through their own ledger entry.
var untracked = map[string]bool{
	base.ColumnsFileName:           true,
	base.ColumnsSubstreamsFileName: true,
	base.MetadataVersionFileName:   true,
	base.DefaultCodecFileName:      true,
	base.ChecksumsFileName:         true,
}

func (p *partT) orphans(dir string, ledger *checksum.Ledger) []string {
	names, err := p.fs.List(dir)
	if err != nil {
		return nil
	}
	var orphans []string
	for _, name := range names {
		if untracked[name] {
			continue
		}
		if _, ok := ledger.Get(name); !ok {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	return orphans
}
