// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package partstore provides transactional storage for a part directory.
//
// All mutation goes through a transaction: files written inside a
// transaction are staged under temporary names and only renamed into place
// at commit, and removals are applied at commit as well. As a consequence a
// transaction cannot observe its own writes: RemoveFile resolves names
// against the committed namespace only. Callers that need to delete a file
// written earlier in the same logical operation must commit and begin a new
// transaction first (see the part finalizer).
package partstore

import (
	"bufio"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"

	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/vfs"
)

// txTmpSuffix is appended to staged file names. Files carrying it are
// invisible to ListCommitted and are garbage to any part loader.
const txTmpSuffix = ".txtmp"

// DefaultBufferBytes is the write buffer size used when WriteFile is given
// a non-positive one.
const DefaultBufferBytes = 4096

// Dir is a handle to one part directory with at most one transaction active
// at a time. It is not safe for concurrent use; the part construction
// pipeline feeds it from a single goroutine at a time.
type Dir struct {
	fs     vfs.FS
	path   string
	logger base.Logger
	tx     *tx
}

// Open returns a Dir for the given directory. The directory need not exist
// yet; see CreateDirectories.
func Open(fs vfs.FS, path string, logger base.Logger) *Dir {
	if logger == nil {
		logger = base.DefaultLogger
	}
	return &Dir{fs: fs, path: path, logger: logger}
}

// FS returns the underlying filesystem.
func (d *Dir) FS() vfs.FS { return d.fs }

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// PathOf returns the full path of a file inside the directory.
func (d *Dir) PathOf(name string) string { return d.fs.PathJoin(d.path, name) }

// CreateDirectories creates the part directory and any missing parents.
func (d *Dir) CreateDirectories() error {
	return d.fs.MkdirAll(d.path, 0755)
}

// HasActiveTransaction reports whether a transaction is open.
func (d *Dir) HasActiveTransaction() bool { return d.tx != nil }

// BeginTransaction opens a new transaction. Opening a second transaction
// while one is active is a defect in the orchestration layer.
func (d *Dir) BeginTransaction() {
	if d.tx != nil {
		panic(base.AssertionFailedf("transaction already active on part directory %q", d.path))
	}
	d.tx = &tx{d: d}
}

// CommitTransaction seals the active transaction: staged files are renamed
// into place, the directory is synced, and staged removals are applied.
// Removal failures are logged, not returned; at that point the writes are
// already durable and leftover files are reclaimable garbage.
func (d *Dir) CommitTransaction() error {
	if d.tx == nil {
		panic(base.AssertionFailedf("commit without active transaction on part directory %q", d.path))
	}
	t := d.tx
	d.tx = nil
	return t.commit()
}

// AbortTransaction discards the active transaction, if any: staged files
// are deleted, staged removals are dropped. Best-effort, never fails.
func (d *Dir) AbortTransaction() {
	if d.tx == nil {
		return
	}
	t := d.tx
	d.tx = nil
	t.abort()
}

// WriteFile creates a file inside the active transaction and returns a
// Writable for it. The file becomes visible under name only at commit.
func (d *Dir) WriteFile(name string, bufferBytes int) (Writable, error) {
	if d.tx == nil {
		panic(base.AssertionFailedf("write of %q without active transaction on part directory %q", name, d.path))
	}
	if bufferBytes <= 0 {
		bufferBytes = DefaultBufferBytes
	}
	tmp := name + txTmpSuffix
	f, err := d.fs.Create(d.PathOf(tmp))
	if err != nil {
		return nil, errors.Wrapf(err, "treeline: creating %q", name)
	}
	w := &fileWritable{
		d:       d,
		name:    name,
		tmpName: tmp,
		file:    f,
		buf:     bufio.NewWriterSize(f, bufferBytes),
	}
	d.tx.writes = append(d.tx.writes, w)
	return w, nil
}

// RemoveFile stages the removal of a committed file. The name is resolved
// against the committed namespace: a file written earlier in the same
// transaction is not visible and yields a not-exist error.
func (d *Dir) RemoveFile(name string) error {
	if d.tx == nil {
		panic(base.AssertionFailedf("remove of %q without active transaction on part directory %q", name, d.path))
	}
	if _, err := d.fs.Stat(d.PathOf(name)); err != nil {
		if oserror.IsNotExist(err) {
			return errors.Wrapf(err, "treeline: removing %q from part directory %q", name, d.path)
		}
		return err
	}
	d.tx.removes = append(d.tx.removes, name)
	return nil
}

// ListCommitted returns the names of all committed files in the directory,
// sorted. Staged files are excluded.
func (d *Dir) ListCommitted() ([]string, error) {
	names, err := d.fs.List(d.path)
	if err != nil {
		return nil, err
	}
	committed := names[:0]
	for _, name := range names {
		if len(name) >= len(txTmpSuffix) && name[len(name)-len(txTmpSuffix):] == txTmpSuffix {
			continue
		}
		committed = append(committed, name)
	}
	sort.Strings(committed)
	return committed, nil
}

// ReadFile reads a committed file in full.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	f, err := d.fs.Open(d.PathOf(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// tx is the staged state of one transaction.
type tx struct {
	d       *Dir
	writes  []*fileWritable
	removes []string
}

func (t *tx) commit() error {
	// Every staged file must have been sealed (or aborted) by now; a still
	// open writable at commit time is a defect in the writer pipeline.
	for _, w := range t.writes {
		if w.state == writablePending {
			panic(base.AssertionFailedf("commit with unsealed file %q in part directory %q", w.name, t.d.path))
		}
	}
	for _, w := range t.writes {
		if w.state != writableFinished {
			continue
		}
		if err := w.close(); err != nil {
			return errors.Wrapf(err, "treeline: closing %q", w.name)
		}
		if err := t.d.fs.Rename(t.d.PathOf(w.tmpName), t.d.PathOf(w.name)); err != nil {
			return errors.Wrapf(err, "treeline: committing %q", w.name)
		}
	}
	if err := t.syncDir(); err != nil {
		return err
	}
	for _, name := range t.removes {
		if err := t.d.fs.Remove(t.d.PathOf(name)); err != nil {
			// The writes are already durable; a leftover file is garbage for
			// external cleanup, not a commit failure.
			t.d.logger.Errorf("treeline: cannot remove %q from part directory %q: %v", name, t.d.path, err)
		}
	}
	return nil
}

func (t *tx) syncDir() error {
	dir, err := t.d.fs.OpenDir(t.d.path)
	if err != nil {
		return errors.Wrapf(err, "treeline: syncing part directory %q", t.d.path)
	}
	err = dir.Sync()
	if closeErr := dir.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (t *tx) abort() {
	for _, w := range t.writes {
		w.Abort()
	}
	t.writes = nil
	t.removes = nil
}

// Writable is an open output handle for a file under construction. The
// caller must consume it with exactly one of Finish or Abort; Sync may be
// called after Finish when durability is requested.
type Writable interface {
	io.Writer
	// Finish flushes buffered data and seals the file. The file stays
	// staged until the transaction commits.
	Finish() error
	// Sync flushes the sealed file's data to stable storage.
	Sync() error
	// Abort discards the file. Best-effort; never fails.
	Abort()
}

type writableState int8

const (
	writablePending writableState = iota
	writableFinished
	writableAborted
)

type fileWritable struct {
	d       *Dir
	name    string
	tmpName string
	file    vfs.File
	buf     *bufio.Writer
	state   writableState
	err     error
}

var _ Writable = (*fileWritable)(nil)

// Write implements io.Writer. Errors are sticky.
func (w *fileWritable) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.state != writablePending {
		return 0, errors.AssertionFailedf("write to consumed file %q", w.name)
	}
	n, err := w.buf.Write(p)
	if err != nil {
		w.err = errors.Wrapf(err, "treeline: writing %q", w.name)
	}
	return n, w.err
}

// Finish implements Writable.
func (w *fileWritable) Finish() error {
	if w.state != writablePending {
		return nil
	}
	if w.err == nil {
		w.err = w.buf.Flush()
	}
	if w.err != nil {
		w.Abort()
		return w.err
	}
	w.state = writableFinished
	return nil
}

// Sync implements Writable. It must follow a successful Finish.
func (w *fileWritable) Sync() error {
	if w.state != writableFinished {
		return errors.AssertionFailedf("sync of unsealed file %q", w.name)
	}
	return vfs.SyncData(w.file)
}

// Abort implements Writable.
func (w *fileWritable) Abort() {
	if w.state == writableAborted {
		return
	}
	w.state = writableAborted
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	_ = w.d.fs.Remove(w.d.PathOf(w.tmpName))
}

// close is called at commit time, after the rename.
func (w *fileWritable) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
