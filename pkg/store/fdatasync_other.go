// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package store

import "os"

// Fdatasync falls back to a full fsync on platforms without fdatasync.
func Fdatasync(f *os.File) error {
	return f.Sync()
}
