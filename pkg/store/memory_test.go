// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/layerbd/layerbd/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *MemoryBackend {
	t.Helper()
	m := NewMemoryBackend(2)
	t.Cleanup(func() { m.Close() })
	return m
}

func await(t *testing.T, submit func(c *Completion) error) int {
	t.Helper()
	ch := make(chan int, 1)
	c := NewCompletion(func(r int) { ch <- r })
	require.NoError(t, submit(c))
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("completion did not fire")
		return 0
	}
}

func write(t *testing.T, m *MemoryBackend, oid string, b *WriteBatch, snapc types.SnapContext) int {
	t.Helper()
	return await(t, func(c *Completion) error { return m.AioWrite(oid, b, snapc, c) })
}

func read(t *testing.T, m *MemoryBackend, oid string, off, length uint64, opts ReadOptions) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	r := await(t, func(c *Completion) error { return m.AioRead(oid, off, length, &buf, opts, c) })
	return r, buf.Bytes()
}

func TestMemoryBackendReadWrite(t *testing.T) {
	t.Parallel()
	m := newTestBackend(t)

	b := NewWriteBatch()
	b.Write(0, []byte("hello world"))
	require.Zero(t, write(t, m, "obj1", b, types.SnapContext{}))

	r, data := read(t, m, "obj1", 0, 64, ReadOptions{Snap: types.NoSnap})
	assert.Equal(t, 11, r)
	assert.Equal(t, []byte("hello world"), data)

	r, data = read(t, m, "obj1", 6, 5, ReadOptions{Snap: types.NoSnap})
	assert.Equal(t, 5, r)
	assert.Equal(t, []byte("world"), data)
}

func TestMemoryBackendReadMissing(t *testing.T) {
	t.Parallel()
	m := newTestBackend(t)
	r, _ := read(t, m, "nope", 0, 16, ReadOptions{Snap: types.NoSnap})
	assert.Equal(t, types.ResultNotFound, r)
}

func TestMemoryBackendAssertExists(t *testing.T) {
	t.Parallel()
	m := newTestBackend(t)

	b := NewWriteBatch()
	b.SetAssertExists()
	b.Write(0, []byte("data"))
	assert.Equal(t, types.ResultNotFound, write(t, m, "guarded", b, types.SnapContext{}))
	assert.False(t, m.Exists("guarded"), "failed guard must not create the object")

	plain := NewWriteBatch()
	plain.Write(0, []byte("data"))
	require.Zero(t, write(t, m, "guarded", plain, types.SnapContext{}))

	again := NewWriteBatch()
	again.SetAssertExists()
	again.Write(4, []byte("more"))
	assert.Zero(t, write(t, m, "guarded", again, types.SnapContext{}))
}

func TestMemoryBackendCopyupOnlyPopulatesAbsent(t *testing.T) {
	t.Parallel()
	m := newTestBackend(t)

	first := NewWriteBatch()
	first.SetCopyupData([]byte("parent content"))
	first.Write(0, []byte("AA"))
	require.Zero(t, write(t, m, "obj", first, types.SnapContext{}))

	r, data := read(t, m, "obj", 0, 64, ReadOptions{Snap: types.NoSnap})
	require.Equal(t, 14, r)
	assert.Equal(t, []byte("AArent content"), data)

	// a second copy-up races in after the object exists: its payload
	// must be ignored, its ops still applied
	second := NewWriteBatch()
	second.SetCopyupData([]byte("stale parent xx"))
	second.Write(2, []byte("BB"))
	require.Zero(t, write(t, m, "obj", second, types.SnapContext{}))

	r, data = read(t, m, "obj", 0, 64, ReadOptions{Snap: types.NoSnap})
	require.Equal(t, 14, r)
	assert.Equal(t, []byte("AABBnt content"), data)
}

func TestMemoryBackendZeroAndTruncate(t *testing.T) {
	t.Parallel()
	m := newTestBackend(t)

	b := NewWriteBatch()
	b.Write(0, []byte("abcdefgh"))
	require.Zero(t, write(t, m, "obj", b, types.SnapContext{}))

	z := NewWriteBatch()
	z.Zero(2, 3)
	require.Zero(t, write(t, m, "obj", z, types.SnapContext{}))
	_, data := read(t, m, "obj", 0, 64, ReadOptions{Snap: types.NoSnap})
	assert.Equal(t, []byte{'a', 'b', 0, 0, 0, 'f', 'g', 'h'}, data)

	tr := NewWriteBatch()
	tr.Truncate(4)
	require.Zero(t, write(t, m, "obj", tr, types.SnapContext{}))
	r, _ := read(t, m, "obj", 0, 64, ReadOptions{Snap: types.NoSnap})
	assert.Equal(t, 4, r)
}

func TestMemoryBackendSnapshotRead(t *testing.T) {
	t.Parallel()
	m := newTestBackend(t)

	b := NewWriteBatch()
	b.Write(0, []byte("version one"))
	require.Zero(t, write(t, m, "obj", b, types.SnapContext{}))

	// snapshot 5 taken, then head overwritten under that context
	snapc := types.SnapContext{Seq: 5, Snaps: []types.SnapID{5}}
	b2 := NewWriteBatch()
	b2.Write(0, []byte("version TWO"))
	require.Zero(t, write(t, m, "obj", b2, snapc))

	_, head := read(t, m, "obj", 0, 64, ReadOptions{Snap: types.NoSnap})
	assert.Equal(t, []byte("version TWO"), head)

	_, snap := read(t, m, "obj", 0, 64, ReadOptions{Snap: 5})
	assert.Equal(t, []byte("version one"), snap)
}

func TestMemoryBackendSparseRead(t *testing.T) {
	t.Parallel()
	m := newTestBackend(t)

	b := NewWriteBatch()
	b.Write(0, []byte("0123456789"))
	require.Zero(t, write(t, m, "obj", b, types.SnapContext{}))

	em := make(map[uint64]uint64)
	r, _ := read(t, m, "obj", 2, 4, ReadOptions{Snap: types.NoSnap, Sparse: true, ExtentMap: em})
	assert.Equal(t, 4, r)
	assert.Equal(t, map[uint64]uint64{2: 4}, em)
}

func TestMemoryBackendClosed(t *testing.T) {
	t.Parallel()
	m := NewMemoryBackend(1)
	m.Close()

	var buf bytes.Buffer
	err := m.AioRead("x", 0, 1, &buf, ReadOptions{Snap: types.NoSnap}, NewCompletion(func(int) {}))
	assert.Error(t, err)
}

func TestBackendRegistry(t *testing.T) {
	t.Parallel()
	b, err := New(BackendConfig{Type: BackendTypeMemory, Workers: 1})
	require.NoError(t, err)
	b.Close()

	_, err = New(BackendConfig{Type: "bogus"})
	assert.Error(t, err)
}
