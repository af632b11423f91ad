// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"testing"

	"github.com/layerbd/layerbd/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalBackend(t *testing.T) Backend {
	t.Helper()
	b, err := New(BackendConfig{Type: BackendTypeLocal, Workers: 2, Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestLocalBackendReadWrite(t *testing.T) {
	t.Parallel()
	l := newLocalBackend(t)

	b := NewWriteBatch()
	b.Write(0, []byte("persisted"))
	r := await(t, func(c *Completion) error { return l.AioWrite("obj.0001", b, types.SnapContext{}, c) })
	require.Zero(t, r)

	lr, data := readBackend(t, l, "obj.0001", 0, 64, types.NoSnap)
	assert.Equal(t, 9, lr)
	assert.Equal(t, []byte("persisted"), data)
}

func TestLocalBackendGuardAndSnapshots(t *testing.T) {
	t.Parallel()
	l := newLocalBackend(t)

	guarded := NewWriteBatch()
	guarded.SetAssertExists()
	guarded.Write(0, []byte("x"))
	r := await(t, func(c *Completion) error { return l.AioWrite("obj", guarded, types.SnapContext{}, c) })
	assert.Equal(t, types.ResultNotFound, r)

	b := NewWriteBatch()
	b.Write(0, []byte("old content"))
	r = await(t, func(c *Completion) error { return l.AioWrite("obj", b, types.SnapContext{}, c) })
	require.Zero(t, r)

	snapc := types.SnapContext{Seq: 3, Snaps: []types.SnapID{3}}
	b2 := NewWriteBatch()
	b2.Write(0, []byte("new content"))
	r = await(t, func(c *Completion) error { return l.AioWrite("obj", b2, snapc, c) })
	require.Zero(t, r)

	_, head := readBackend(t, l, "obj", 0, 64, types.NoSnap)
	assert.Equal(t, []byte("new content"), head)
	_, snap := readBackend(t, l, "obj", 0, 64, 3)
	assert.Equal(t, []byte("old content"), snap)
}

func readBackend(t *testing.T, b Backend, oid string, off, length uint64, snap types.SnapID) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	r := await(t, func(c *Completion) error {
		return b.AioRead(oid, off, length, &buf, ReadOptions{Snap: snap}, c)
	})
	return r, buf.Bytes()
}
