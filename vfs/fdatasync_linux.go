// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build linux

package vfs

import (
	"os"

	"golang.org/x/sys/unix"
)

// SyncData flushes a file's data to stable storage. On Linux, metadata such
// as the modification time is not needed for crash consistency of part
// files, so fdatasync suffices and avoids a second journal write.
func SyncData(f File) error {
	if osFile, ok := f.(*os.File); ok {
		return unix.Fdatasync(int(osFile.Fd()))
	}
	return f.Sync()
}
