// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
)

// ErrCorruption is a marker error for on-disk corruption: a part whose
// checksums file fails verification, or a file whose recomputed hash does
// not match the ledger entry. Use IsCorruptionError rather than comparing
// against it directly.
var ErrCorruption = errors.New("treeline: corruption")

// CorruptionErrorf formats an error with the given format and arguments and
// marks it as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// IsCorruptionError returns true if the given error indicates on-disk
// corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// AssertionFailedf reports a logical/invariant fault: a defect in the caller
// or an upstream pipeline, never an environmental condition. These errors
// are not retryable.
func AssertionFailedf(format string, args ...interface{}) error {
	return errors.AssertionFailedf(format, args...)
}
