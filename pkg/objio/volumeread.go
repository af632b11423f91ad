// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package objio

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/striper"
	"github.com/layerbd/layerbd/pkg/types"
	"github.com/layerbd/layerbd/pkg/utils"
	"github.com/layerbd/layerbd/pkg/volume"
)

// ReadVolumeExtents reads volume-logical extents by striping them
// across objects and issuing one object read per piece. Absent objects
// (no local copy, no parent contribution) read as zeros. dst receives
// the assembled bytes in extent order; c fires once with the total byte
// count or the first non-NotFound error observed.
//
// Parent fallback happens per object inside each ReadRequest, so a
// chain of clones resolves naturally: each level either answers or
// forwards to its own parent.
func ReadVolumeExtents(v *volume.Volume, extents []types.Extent, snap types.SnapID, dst *bytes.Buffer, c *store.Completion) error {
	if err := validateExtents(v, extents); err != nil {
		return err
	}
	total := types.TotalLength(extents)
	objExtents := striper.VolumeToObjects(v.Layout(), extents)
	if total == 0 || len(objExtents) == 0 {
		c.Complete(0)
		return nil
	}

	buf := utils.GetBuffer(int(total))[:total]
	clear(buf)
	var (
		mu        sync.Mutex
		firstErr  int
		remaining = int64(len(objExtents))
		pending   atomic.Int64
	)
	pending.Store(remaining)

	for _, oe := range objExtents {
		oe := oe
		var rr *ReadRequest
		sink := store.NewCompletion(func(r int) {
			if r < 0 && r != types.ResultNotFound {
				mu.Lock()
				if firstErr == 0 {
					firstErr = r
				}
				mu.Unlock()
			} else if r > 0 {
				n := uint64(rr.Data().Len())
				if n > oe.Len {
					n = oe.Len
				}
				copy(buf[oe.BufOff:oe.BufOff+n], rr.Data().Bytes()[:n])
			}
			if pending.Add(-1) == 0 {
				mu.Lock()
				errCode := firstErr
				mu.Unlock()
				if errCode < 0 {
					utils.PutBuffer(buf)
					c.Complete(errCode)
					return
				}
				dst.Write(buf)
				utils.PutBuffer(buf)
				c.Complete(int(total))
			}
		})
		rr = NewReadRequest(v, oe.ObjectNo, oe.Off, oe.Len, snap, ReadConfig{}, sink)
		rr.Send()
	}
	return nil
}

func validateExtents(v *volume.Volume, extents []types.Extent) error {
	size := v.Size()
	for _, e := range extents {
		if e.End() > size {
			return types.ResultError(types.ResultInval)
		}
	}
	return nil
}
