// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !linux

package vfs

// SyncData flushes a file's data to stable storage.
func SyncData(f File) error {
	return f.Sync()
}
