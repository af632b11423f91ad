// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsZero(t *testing.T) {
	t.Parallel()
	assert.True(t, IsZero(nil))
	assert.True(t, IsZero(make([]byte, 4096)))

	buf := make([]byte, 4096)
	buf[4095] = 1
	assert.False(t, IsZero(buf))
	buf[4095] = 0
	buf[0] = 1
	assert.False(t, IsZero(buf))
	assert.False(t, IsZero([]byte{0, 0, 0, 1, 0}))
}

func TestBufferPoolRoundTrip(t *testing.T) {
	t.Parallel()
	buf := GetBuffer(1000)
	assert.GreaterOrEqual(t, len(buf), 1000)
	PutBuffer(buf)

	huge := GetBuffer(64 << 20)
	assert.GreaterOrEqual(t, len(huge), 64<<20)
	PutBuffer(huge)
}

func TestShardedMapBasics(t *testing.T) {
	t.Parallel()
	m := NewShardedMap[uint64, string](Uint64Hasher)

	m.Store(1, "one")
	v, ok := m.Load(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	v, loaded := m.LoadOrStore(1, "uno")
	assert.True(t, loaded)
	assert.Equal(t, "one", v)

	v, loaded = m.LoadOrStore(2, "two")
	assert.False(t, loaded)
	assert.Equal(t, "two", v)
	assert.Equal(t, 2, m.Len())

	m.Delete(1)
	_, ok = m.Load(1)
	assert.False(t, ok)

	seen := map[uint64]string{}
	m.Range(func(k uint64, v string) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[uint64]string{2: "two"}, seen)

	m.Clear()
	assert.Zero(t, m.Len())
}
