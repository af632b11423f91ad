// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/layerbd/layerbd/pkg/async"
	"github.com/layerbd/layerbd/pkg/types"
	"github.com/layerbd/layerbd/pkg/utils"
)

// BackendTypeMemory is used for testing.
const BackendTypeMemory BackendType = "memory"

func init() {
	Register(BackendTypeMemory, func(cfg BackendConfig) (Backend, error) {
		return NewMemoryBackend(cfg.Workers), nil
	})
}

// memObject is one stored object. exists distinguishes a created object
// from a placeholder inserted to get a per-object lock.
type memObject struct {
	mu     sync.Mutex
	exists bool
	data   []byte

	// copy-on-write snapshots of past content, keyed by the first
	// snapshot id taken after that content was current
	snaps map[types.SnapID][]byte
	seq   uint64
}

// MemoryBackend is an in-memory object store for testing. Completions
// run on a worker pool, never on the submitter's goroutine.
type MemoryBackend struct {
	objects *utils.ShardedMap[string, *memObject]
	wq      *async.WorkQueue

	reads  atomic.Uint64
	writes atomic.Uint64

	hookMu   sync.Mutex
	readHook func(oid string)
}

// NewMemoryBackend creates a memory backend with the given worker count.
func NewMemoryBackend(workers int) *MemoryBackend {
	return &MemoryBackend{
		objects: utils.NewShardedMap[string, *memObject](utils.StringHasher),
		wq:      async.NewWorkQueue("memory-backend", workers),
	}
}

// SetReadHook installs a function invoked on the worker before each
// read executes. Tests use it to hold reads at a barrier.
func (m *MemoryBackend) SetReadHook(hook func(oid string)) {
	m.hookMu.Lock()
	m.readHook = hook
	m.hookMu.Unlock()
}

// Reads returns the number of read operations executed.
func (m *MemoryBackend) Reads() uint64 { return m.reads.Load() }

// Writes returns the number of write batches executed.
func (m *MemoryBackend) Writes() uint64 { return m.writes.Load() }

func (m *MemoryBackend) object(oid string) *memObject {
	obj, _ := m.objects.LoadOrStore(oid, &memObject{})
	return obj
}

// Exists reports whether the object has been created.
func (m *MemoryBackend) Exists(oid string) bool {
	obj, ok := m.objects.Load(oid)
	if !ok {
		return false
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return obj.exists
}

func (m *MemoryBackend) AioRead(oid string, off, length uint64, dst *bytes.Buffer, opts ReadOptions, c *Completion) error {
	queued := m.wq.Queue(func() {
		m.hookMu.Lock()
		hook := m.readHook
		m.hookMu.Unlock()
		if hook != nil {
			hook(oid)
		}

		m.reads.Add(1)
		BackendOps.WithLabelValues(string(BackendTypeMemory), "read").Inc()

		obj := m.object(oid)
		obj.mu.Lock()
		data, ok := obj.read(opts.Snap)
		if !ok {
			obj.mu.Unlock()
			c.Complete(types.ResultNotFound)
			return
		}

		var n uint64
		if off < uint64(len(data)) {
			end := off + length
			if end > uint64(len(data)) {
				end = uint64(len(data))
			}
			n = end - off
			dst.Write(data[off:end])
		}
		obj.mu.Unlock()

		if opts.Sparse && opts.ExtentMap != nil && n > 0 {
			opts.ExtentMap[off] = n
		}
		c.Complete(int(n))
	})
	if !queued {
		return errClosed
	}
	return nil
}

func (m *MemoryBackend) AioWrite(oid string, b *WriteBatch, snapc types.SnapContext, c *Completion) error {
	queued := m.wq.Queue(func() {
		m.writes.Add(1)
		BackendOps.WithLabelValues(string(BackendTypeMemory), "write").Inc()

		obj := m.object(oid)
		obj.mu.Lock()

		if b.AssertExists() && !obj.exists {
			obj.mu.Unlock()
			c.Complete(types.ResultNotFound)
			return
		}

		obj.snapshot(snapc)

		// copy-up payload populates the object only if nobody else has
		if cu := b.CopyupData(); cu != nil && (!obj.exists || len(obj.data) == 0) {
			obj.exists = true
			obj.data = append(obj.data[:0], cu...)
		}

		for _, op := range b.Ops() {
			obj.apply(op)
		}
		obj.mu.Unlock()

		c.Complete(0)
	})
	if !queued {
		return errClosed
	}
	return nil
}

// read resolves the object content visible at the given snapshot.
// Callers hold obj.mu.
func (o *memObject) read(snap types.SnapID) ([]byte, bool) {
	if snap == types.NoSnap {
		if !o.exists {
			return nil, false
		}
		return o.data, true
	}

	// earliest snapshot taken at or after the requested id holds the
	// content that was current then
	var ids []types.SnapID
	for id := range o.snaps {
		if id >= snap {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		if !o.exists {
			return nil, false
		}
		return o.data, true
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return o.snaps[ids[0]], true
}

// snapshot records pre-write content the first time the object is
// written under a newer snapshot context. Callers hold obj.mu.
func (o *memObject) snapshot(snapc types.SnapContext) {
	if snapc.Seq <= o.seq || len(snapc.Snaps) == 0 || !o.exists {
		if snapc.Seq > o.seq {
			o.seq = snapc.Seq
		}
		return
	}
	newest := snapc.Snaps[0]
	if o.snaps == nil {
		o.snaps = make(map[types.SnapID][]byte)
	}
	if _, done := o.snaps[newest]; !done {
		o.snaps[newest] = append([]byte(nil), o.data...)
	}
	o.seq = snapc.Seq
}

// apply executes one batch op. Callers hold obj.mu.
func (o *memObject) apply(op Op) {
	switch op.Type {
	case OpWrite:
		end := op.Off + uint64(len(op.Data))
		o.grow(end)
		copy(o.data[op.Off:end], op.Data)
		o.exists = true
	case OpZero:
		end := op.Off + op.Len
		if op.Off >= uint64(len(o.data)) {
			return
		}
		if end > uint64(len(o.data)) {
			end = uint64(len(o.data))
		}
		for i := op.Off; i < end; i++ {
			o.data[i] = 0
		}
	case OpTruncate:
		if op.Off < uint64(len(o.data)) {
			o.data = o.data[:op.Off]
		}
		o.exists = true
	}
}

func (o *memObject) grow(size uint64) {
	if uint64(len(o.data)) < size {
		o.data = append(o.data, make([]byte, size-uint64(len(o.data)))...)
	}
}

func (m *MemoryBackend) Close() error {
	m.wq.Shutdown()
	m.objects.Clear()
	return nil
}
