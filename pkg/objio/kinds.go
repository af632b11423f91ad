// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package objio

import (
	"github.com/layerbd/layerbd/pkg/objmap"
	"github.com/layerbd/layerbd/pkg/store"
)

// WriteKind supplies the parts of a write that vary by mutation type:
// the batch ops and the existence index policy around them.
type WriteKind interface {
	// AddWriteOps appends this kind's mutation to the batch.
	AddWriteOps(b *store.WriteBatch)

	// PreWriteState is the index state required before data lands.
	PreWriteState() objmap.State

	// PostWriteState is the terminal index state after a successful
	// write; ok is false when no post-update is needed.
	PostWriteState() (st objmap.State, ok bool)
}

// plainWrite writes a data payload at an offset.
type plainWrite struct {
	off        uint64
	data       []byte
	objectSize uint64
}

func (p *plainWrite) AddWriteOps(b *store.WriteBatch) {
	b.SetAllocHint(p.objectSize)
	b.Write(p.off, p.data)
}

func (p *plainWrite) PreWriteState() objmap.State {
	return objmap.StatePending
}

func (p *plainWrite) PostWriteState() (objmap.State, bool) {
	return objmap.StateExists, true
}

// zeroWrite zeroes a range; a range reaching the object's end is
// expressed as a truncate so the store can deallocate.
type zeroWrite struct {
	off        uint64
	length     uint64
	objectSize uint64
}

func (z *zeroWrite) AddWriteOps(b *store.WriteBatch) {
	if z.off+z.length >= z.objectSize {
		b.Truncate(z.off)
		return
	}
	b.Zero(z.off, z.length)
}

func (z *zeroWrite) PreWriteState() objmap.State {
	return objmap.StatePending
}

func (z *zeroWrite) PostWriteState() (objmap.State, bool) {
	// A full-object zero leaves nothing behind.
	if z.off == 0 && z.length >= z.objectSize {
		return objmap.StateNonexistent, true
	}
	return objmap.StateExists, true
}
