// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package striper

import (
	"testing"

	"github.com/layerbd/layerbd/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleLayout() types.Layout {
	// one stripe unit per object, no interleaving
	return types.Layout{ObjectSize: 1 << 20, StripeUnit: 1 << 20, StripeCount: 1}
}

func stripedLayout() types.Layout {
	// 4 units of 64K per object, interleaved across 2 objects
	return types.Layout{ObjectSize: 256 << 10, StripeUnit: 64 << 10, StripeCount: 2}
}

func TestObjectToVolumeSimple(t *testing.T) {
	t.Parallel()
	l := simpleLayout()

	extents := ObjectToVolume(l, 0, 0, l.ObjectSize)
	require.Len(t, extents, 1)
	assert.Equal(t, types.Extent{Off: 0, Len: l.ObjectSize}, extents[0])

	extents = ObjectToVolume(l, 3, 4096, 8192)
	require.Len(t, extents, 1)
	assert.Equal(t, types.Extent{Off: 3*l.ObjectSize + 4096, Len: 8192}, extents[0])
}

func TestObjectToVolumeStriped(t *testing.T) {
	t.Parallel()
	l := stripedLayout()
	su := l.StripeUnit

	// object 1 holds stripe position 1: its units sit su apart in the
	// volume, starting at su
	extents := ObjectToVolume(l, 1, 0, 2*su)
	require.Len(t, extents, 2)
	assert.Equal(t, types.Extent{Off: su, Len: su}, extents[0])
	assert.Equal(t, types.Extent{Off: 3 * su, Len: su}, extents[1])
}

func TestVolumeToObjectsRoundTrip(t *testing.T) {
	t.Parallel()
	for _, l := range []types.Layout{simpleLayout(), stripedLayout()} {
		length := l.ObjectSize / 2
		for objectNo := uint64(0); objectNo < 4; objectNo++ {
			extents := ObjectToVolume(l, objectNo, 8192, length)
			obj := VolumeToObjects(l, extents)
			require.Len(t, obj, 1)
			assert.Equal(t, objectNo, obj[0].ObjectNo)
			assert.Equal(t, uint64(8192), obj[0].Off)
			assert.Equal(t, length, obj[0].Len)
			assert.Equal(t, uint64(0), obj[0].BufOff)
		}
	}
}

func TestVolumeToObjectsBufOffsets(t *testing.T) {
	t.Parallel()
	l := stripedLayout()
	su := l.StripeUnit

	// a contiguous volume range crossing stripe positions scatters
	// across objects with increasing buffer offsets
	obj := VolumeToObjects(l, []types.Extent{{Off: 0, Len: 3 * su}})
	require.Len(t, obj, 3)
	var covered uint64
	for _, oe := range obj {
		assert.Equal(t, covered, oe.BufOff)
		covered += oe.Len
	}
	assert.Equal(t, 3*su, covered)
}

func TestPruneParentExtents(t *testing.T) {
	t.Parallel()
	extents := []types.Extent{
		{Off: 0, Len: 100},
		{Off: 100, Len: 100},
		{Off: 300, Len: 100},
	}

	pruned, kept := PruneParentExtents(extents, 150)
	assert.Equal(t, uint64(150), kept)
	require.Len(t, pruned, 2)
	assert.Equal(t, types.Extent{Off: 0, Len: 100}, pruned[0])
	assert.Equal(t, types.Extent{Off: 100, Len: 50}, pruned[1])
}

func TestPruneParentExtentsIdempotent(t *testing.T) {
	t.Parallel()
	extents := []types.Extent{
		{Off: 0, Len: 100},
		{Off: 100, Len: 100},
		{Off: 250, Len: 50},
	}

	once, keptOnce := PruneParentExtents(extents, 180)
	onceCopy := append([]types.Extent(nil), once...)
	twice, keptTwice := PruneParentExtents(onceCopy, 180)

	assert.Equal(t, keptOnce, keptTwice)
	assert.Equal(t, once, twice)
}

func TestPruneParentExtentsNoOverlap(t *testing.T) {
	t.Parallel()
	pruned, kept := PruneParentExtents([]types.Extent{{Off: 500, Len: 100}}, 400)
	assert.Zero(t, kept)
	assert.Empty(t, pruned)
}
