// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package objmap

import (
	"testing"
	"time"

	"github.com/layerbd/layerbd/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestMap(t *testing.T, objectCount uint64) *Map {
	t.Helper()
	m, err := Open(NewMemoryStore(), objectCount)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func update(t *testing.T, m *Map, objectNo uint64, newState State, expected *State) (bool, int) {
	t.Helper()
	ch := make(chan int, 1)
	c := store.NewCompletion(func(r int) { ch <- r })
	if !m.Update(objectNo, newState, expected, c) {
		return false, 0
	}
	select {
	case r := <-ch:
		return true, r
	case <-time.After(5 * time.Second):
		t.Fatal("index update did not complete")
		return false, 0
	}
}

func TestMapInitialState(t *testing.T) {
	t.Parallel()
	m := openTestMap(t, 8)
	assert.Equal(t, uint64(8), m.Len())
	for i := uint64(0); i < 8; i++ {
		assert.Equal(t, StateNonexistent, m.Get(i))
		assert.False(t, m.MayExist(i))
	}
}

func TestMapUpdateLifecycle(t *testing.T) {
	t.Parallel()
	m := openTestMap(t, 4)

	applied, r := update(t, m, 1, StatePending, nil)
	require.True(t, applied)
	require.Zero(t, r)
	assert.Equal(t, StatePending, m.Get(1))
	assert.True(t, m.MayExist(1))

	expected := StatePending
	applied, r = update(t, m, 1, StateExists, &expected)
	require.True(t, applied)
	require.Zero(t, r)
	assert.Equal(t, StateExists, m.Get(1))
}

func TestMapUpdateSkipsSameState(t *testing.T) {
	t.Parallel()
	m := openTestMap(t, 4)

	applied, _ := update(t, m, 0, StateNonexistent, nil)
	assert.False(t, applied, "updating to the current state is a no-op")
}

func TestMapUpdateSkipsExpectedMismatch(t *testing.T) {
	t.Parallel()
	m := openTestMap(t, 4)

	// a concurrent updater already moved the state past Pending
	expected := StatePending
	applied, _ := update(t, m, 2, StateExists, &expected)
	assert.False(t, applied)
	assert.Equal(t, StateNonexistent, m.Get(2), "skipped update must not change state")
}

func TestLevelDBStoreReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	st, err := OpenLevelDBStore(dir)
	require.NoError(t, err)
	m, err := Open(st, 16)
	require.NoError(t, err)

	applied, r := update(t, m, 3, StatePending, nil)
	require.True(t, applied)
	require.Zero(t, r)
	applied, r = update(t, m, 7, StateExists, nil)
	require.True(t, applied)
	require.Zero(t, r)
	require.NoError(t, m.Close())

	st2, err := OpenLevelDBStore(dir)
	require.NoError(t, err)
	m2, err := Open(st2, 16)
	require.NoError(t, err)
	defer m2.Close()

	assert.Equal(t, StatePending, m2.Get(3))
	assert.Equal(t, StateExists, m2.Get(7))
	assert.Equal(t, StateNonexistent, m2.Get(0))
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "nonexistent", StateNonexistent.String())
	assert.Equal(t, "exists", StateExists.String())
	assert.Equal(t, "pending", StatePending.String())
}
