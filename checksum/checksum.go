// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package checksum implements the integrity ledger of a part: a mapping
// from file name to byte size and 128-bit content hash. The serialized
// ledger is the part's checksums file; it is written last during
// finalization, and its absence means the part was never committed.
package checksum

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"

	"github.com/treelinedb/treeline/internal/base"
	"github.com/treelinedb/treeline/internal/hash128"
)

// The magic line doubles as a format version; readers reject versions they
// do not understand.
var magic = []byte("treeline checksums version: 1\n")

// Entry records the size and content hash of one part file. An entry whose
// name carries the ".proj" suffix is an aggregate for a whole sub-part
// rather than a literal file.
type Entry struct {
	Size uint64
	Hash hash128.Hash
}

// Ledger maps file names to entries. The zero value is not usable; call New.
//
// Duplicate insertion is a data-corruption-class bug in the writer pipeline,
// not a user error, so Add and Merge panic on duplicates.
type Ledger struct {
	files swiss.Map[string, Entry]
}

// New returns an empty Ledger.
func New() *Ledger {
	l := &Ledger{}
	l.files.Init(16)
	return l
}

// Len returns the number of entries.
func (l *Ledger) Len() int { return l.files.Len() }

// Get returns the entry for the given file name.
func (l *Ledger) Get(name string) (Entry, bool) {
	return l.files.Get(name)
}

// Names returns all file names in sorted order.
func (l *Ledger) Names() []string {
	names := make([]string, 0, l.files.Len())
	l.files.All(func(name string, _ Entry) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Add records the size and hash of a file.
func (l *Ledger) Add(name string, size uint64, h hash128.Hash) {
	if _, ok := l.files.Get(name); ok {
		panic(base.AssertionFailedf("checksum ledger already contains %q", name))
	}
	l.files.Put(name, Entry{Size: size, Hash: h})
}

// Remove drops the entry for the given file name, if present. Used when a
// previously recorded file is superseded before finalization.
func (l *Ledger) Remove(name string) {
	l.files.Delete(name)
}

// Merge moves all entries of other into l. Entries present in both ledgers
// indicate that two writers produced the same file, a defect in the caller.
func (l *Ledger) Merge(other *Ledger) {
	if other == nil {
		return
	}
	other.files.All(func(name string, e Entry) bool {
		l.Add(name, e.Size, e.Hash)
		return true
	})
}

// AddProjection records a sub-part as a single aggregate entry named
// "<name>.proj", carrying the sub-part's total size and combined hash.
func (l *Ledger) AddProjection(name string, sub *Ledger) {
	l.Add(name+base.ProjectionSuffix, sub.TotalSize(), sub.TotalHash())
}

// TotalSize returns the sum of all entry sizes.
func (l *Ledger) TotalSize() uint64 {
	var total uint64
	l.files.All(func(_ string, e Entry) bool {
		total += e.Size
		return true
	})
	return total
}

// TotalHash returns a hash combining every entry (name, size and hash), in
// sorted name order. It is what a projection entry in a parent ledger
// carries.
func (l *Ledger) TotalHash() hash128.Hash {
	h := hash128.New()
	for _, name := range l.Names() {
		e, _ := l.files.Get(name)
		_, _ = h.Write([]byte(name))
		h.WriteUint64(e.Size)
		h.WriteUint64(e.Hash.Lo)
		h.WriteUint64(e.Hash.Hi)
	}
	return h.Sum()
}

// Write serializes the ledger: a textual magic line, the entries in sorted
// name order, and a whole-ledger hash trailer for tamper detection. The
// trailer covers everything before it.
func (l *Ledger) Write(w io.Writer) error {
	hw := hash128.NewWriter(w)
	if _, err := hw.Write(magic); err != nil {
		return err
	}
	var buf [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) error {
		n := binary.PutUvarint(buf[:], v)
		_, err := hw.Write(buf[:n])
		return err
	}
	if err := putUvarint(uint64(l.files.Len())); err != nil {
		return err
	}
	for _, name := range l.Names() {
		e, _ := l.files.Get(name)
		if err := putUvarint(uint64(len(name))); err != nil {
			return err
		}
		if _, err := hw.Write([]byte(name)); err != nil {
			return err
		}
		if err := putUvarint(e.Size); err != nil {
			return err
		}
		var hbuf [16]byte
		binary.LittleEndian.PutUint64(hbuf[0:8], e.Hash.Lo)
		binary.LittleEndian.PutUint64(hbuf[8:16], e.Hash.Hi)
		if _, err := hw.Write(hbuf[:]); err != nil {
			return err
		}
	}
	sum := hw.Sum()
	var trailer [16]byte
	binary.LittleEndian.PutUint64(trailer[0:8], sum.Lo)
	binary.LittleEndian.PutUint64(trailer[8:16], sum.Hi)
	_, err := w.Write(trailer[:])
	return err
}

// Parse deserializes a ledger previously produced by Write, verifying the
// whole-ledger hash trailer. A mismatch, a truncated payload, or an unknown
// version yields a corruption error: the part must not be loaded.
func Parse(data []byte) (*Ledger, error) {
	if len(data) < len(magic)+16 {
		return nil, base.CorruptionErrorf("checksums file too short (%d bytes)", len(data))
	}
	payload, trailer := data[:len(data)-16], data[len(data)-16:]
	want := hash128.Hash{
		Lo: binary.LittleEndian.Uint64(trailer[0:8]),
		Hi: binary.LittleEndian.Uint64(trailer[8:16]),
	}
	if got := hash128.Sum(payload); got != want {
		return nil, base.CorruptionErrorf("checksums file hash mismatch: computed %s, stored %s", got, want)
	}
	if string(payload[:len(magic)]) != string(magic) {
		return nil, base.CorruptionErrorf("unknown checksums file version %q",
			firstLine(payload))
	}
	b := payload[len(magic):]
	count, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, base.CorruptionErrorf("checksums file truncated")
	}
	b = b[n:]
	l := New()
	for i := uint64(0); i < count; i++ {
		nameLen, n := binary.Uvarint(b)
		if n <= 0 || uint64(len(b[n:])) < nameLen {
			return nil, base.CorruptionErrorf("checksums file truncated")
		}
		b = b[n:]
		name := string(b[:nameLen])
		b = b[nameLen:]
		size, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, base.CorruptionErrorf("checksums file truncated")
		}
		b = b[n:]
		if len(b) < 16 {
			return nil, base.CorruptionErrorf("checksums file truncated")
		}
		h := hash128.Hash{
			Lo: binary.LittleEndian.Uint64(b[0:8]),
			Hi: binary.LittleEndian.Uint64(b[8:16]),
		}
		b = b[16:]
		if _, ok := l.files.Get(name); ok {
			return nil, base.CorruptionErrorf("checksums file lists %q twice", errors.Safe(name))
		}
		l.files.Put(name, Entry{Size: size, Hash: h})
	}
	if len(b) != 0 {
		return nil, base.CorruptionErrorf("checksums file has %d trailing bytes", len(b))
	}
	return l, nil
}

func firstLine(b []byte) string {
	for i := range b {
		if b[i] == '\n' {
			return string(b[:i])
		}
		if i > 64 {
			break
		}
	}
	if len(b) > 64 {
		b = b[:64]
	}
	return string(b)
}
