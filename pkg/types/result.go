// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Store completions deliver a signed result code: negative values are
// errno-style error codes, zero or positive values are success (for
// reads, the byte count).
const (
	ResultNotFound = -int(unix.ENOENT)
	ResultIOError  = -int(unix.EIO)
	ResultInval    = -int(unix.EINVAL)
)

var (
	// ErrSnapGone reports that a snapshot's parent overlap could not be
	// resolved because the snapshot was deleted mid-flight. Non-fatal:
	// callers treat it as "no parent contribution".
	ErrSnapGone = errors.New("snapshot gone")

	// ErrNoParent reports that the volume has no parent linked.
	ErrNoParent = errors.New("volume has no parent")
)

// ErrnoResult converts an error into a negative result code. Known
// unix errors keep their errno; anything else maps to EIO.
func ErrnoResult(err error) int {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int(errno)
	}
	return ResultIOError
}

// ResultError converts a negative result code into an error, or nil for
// success codes.
func ResultError(r int) error {
	if r >= 0 {
		return nil
	}
	return fmt.Errorf("store result %d: %w", r, unix.Errno(-r))
}
