// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math/bits"
	"sync"
)

// Buffer pool size classes (powers of 2)
// Index 0 = 4KB, Index 1 = 8KB, ..., Index 10 = 4MB
const (
	minPoolSize   = 1 << 12 // 4KB minimum (smallest sector-aligned I/O)
	maxPoolSize   = 1 << 22 // 4MB maximum (matches default object size)
	numPoolLevels = 11
)

var bufferPools [numPoolLevels]sync.Pool

func init() {
	for i := range bufferPools {
		size := minPoolSize << i
		bufferPools[i] = sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
}

// poolIndex returns the pool index for a given size.
// Returns -1 if size is larger than maxPoolSize.
func poolIndex(size int) int {
	if size <= minPoolSize {
		return 0
	}
	if size > maxPoolSize {
		return -1
	}
	idx := bits.Len(uint(size-1)) - 12 // -12 because minPoolSize is 1<<12
	if idx < 0 {
		return 0
	}
	if idx >= numPoolLevels {
		return -1
	}
	return idx
}

// GetBuffer returns a byte slice of at least the requested size.
// The returned slice may be larger than requested (rounded up to power of 2).
// Use PutBuffer to return it to the pool when done.
func GetBuffer(size int) []byte {
	idx := poolIndex(size)
	if idx < 0 {
		// Too large for pool, allocate directly
		return make([]byte, size)
	}
	bufPtr := bufferPools[idx].Get().(*[]byte)
	return (*bufPtr)[:size]
}

// PutBuffer returns a buffer to the pool.
// Only buffers obtained from GetBuffer should be returned.
// Buffers larger than maxPoolSize are silently discarded.
//
// WARNING: Do not use the buffer after calling PutBuffer.
func PutBuffer(buf []byte) {
	c := cap(buf)
	idx := poolIndex(c)
	if idx < 0 {
		return // Too large, let GC handle it
	}
	poolSize := minPoolSize << idx
	if c != poolSize {
		return // Not from our pool, don't corrupt it
	}
	buf = buf[:c]
	bufferPools[idx].Put(&buf)
}

// IsZero reports whether every byte in buf is zero. Used to skip
// materializing all-zero parent data.
func IsZero(buf []byte) bool {
	for len(buf) >= 8 {
		if buf[0]|buf[1]|buf[2]|buf[3]|buf[4]|buf[5]|buf[6]|buf[7] != 0 {
			return false
		}
		buf = buf[8:]
	}
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
