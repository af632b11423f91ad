// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "github.com/layerbd/layerbd/pkg/types"

// OpType discriminates the mutations a write batch can carry.
type OpType int

const (
	OpWrite OpType = iota
	OpZero
	OpTruncate
)

// Op is one mutation within a write batch.
type Op struct {
	Type OpType
	Off  uint64
	Len  uint64 // OpZero/OpTruncate
	Data []byte // OpWrite
}

// WriteBatch is a set of mutations applied atomically to one object.
//
// CopyupData, when set, is applied first and writes the object's full
// content, but only if the object does not exist yet. A concurrent
// populator winning the race turns the copy-up into a no-op, which is
// exactly the recovery the guard protocol relies on.
type WriteBatch struct {
	assertExists bool
	allocHint    uint64
	copyupData   []byte
	ops          []Op
}

// NewWriteBatch returns an empty batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// SetAssertExists makes the batch fail with NotFound instead of
// implicitly creating the object. This preserves the guard protocol's
// trigger condition on clone objects.
func (b *WriteBatch) SetAssertExists() {
	b.assertExists = true
}

// SetAllocHint suggests the expected object size to the store.
func (b *WriteBatch) SetAllocHint(size uint64) {
	b.allocHint = size
}

// SetCopyupData attaches materialized parent data written as the
// object's full content ahead of the batch's own ops.
func (b *WriteBatch) SetCopyupData(data []byte) {
	b.copyupData = data
}

// Write appends a write of data at off.
func (b *WriteBatch) Write(off uint64, data []byte) {
	b.ops = append(b.ops, Op{Type: OpWrite, Off: off, Data: data})
}

// Zero appends zeroing of the given range.
func (b *WriteBatch) Zero(off, length uint64) {
	b.ops = append(b.ops, Op{Type: OpZero, Off: off, Len: length})
}

// Truncate appends truncation of the object to off bytes.
func (b *WriteBatch) Truncate(off uint64) {
	b.ops = append(b.ops, Op{Type: OpTruncate, Off: off})
}

// Empty reports whether the batch carries no mutation at all.
func (b *WriteBatch) Empty() bool {
	return len(b.ops) == 0 && b.copyupData == nil
}

// Ops returns the batch's mutations.
func (b *WriteBatch) Ops() []Op { return b.ops }

// AssertExists reports whether the batch requires the object to exist.
func (b *WriteBatch) AssertExists() bool { return b.assertExists }

// CopyupData returns the attached materialized content, if any.
func (b *WriteBatch) CopyupData() []byte { return b.copyupData }

// ReadOptions qualifies an asynchronous read.
type ReadOptions struct {
	Sparse bool
	Flags  int
	Snap   types.SnapID

	// ExtentMap, if non-nil, is filled with the data extents of a
	// sparse read, keyed by object offset. The caller allocates it.
	ExtentMap map[uint64]uint64
}

// Read flags, applied per snapshot by the volume context.
const (
	FlagBalanceReads = 1 << iota
	FlagLocalizeReads
)
