// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package objio

import (
	"bytes"

	"github.com/layerbd/layerbd/pkg/objmap"
	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/types"
	"github.com/layerbd/layerbd/pkg/volume"
)

// source adapts a volume to the copy-up coordinator's view of it.
type source struct {
	v *volume.Volume
}

func (s source) ObjectName(objectNo uint64) string {
	return s.v.ObjectName(objectNo)
}

// ReadParent reads the given volume extents from the parent, pinning it
// against teardown for the duration.
func (s source) ReadParent(objectNo uint64, extents []types.Extent, dst *bytes.Buffer, c *store.Completion) error {
	parent := s.v.Parent()
	if parent == nil {
		return types.ErrNoParent
	}
	pin := parent.Pin()
	parentReads.Inc()
	inner := store.NewCompletion(func(r int) {
		pin.Release()
		c.Complete(r)
	})
	if err := ReadVolumeExtents(parent, extents, parent.ReadSnap(), dst, inner); err != nil {
		pin.Release()
		return err
	}
	return nil
}

func (s source) WriteChild(oid string, b *store.WriteBatch, c *store.Completion) error {
	return s.v.Backend().AioWrite(oid, b, s.v.SnapContext(), c)
}

func (s source) MapUpdate(objectNo uint64, newState objmap.State, expected *objmap.State, c *store.Completion) bool {
	om := s.v.ObjectMap()
	if om == nil {
		return false
	}
	return om.Update(objectNo, newState, expected, c)
}

func (s source) MapEnabled() bool {
	return s.v.ObjectMap() != nil
}
