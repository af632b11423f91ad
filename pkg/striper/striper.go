// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

// Package striper maps between a volume's logical address space and the
// fixed-size objects it is sharded into. All functions are pure: no
// I/O, no locking. Callers concerned with a parent overlap shrinking
// concurrently must hold the volume's snapshot/parent read locks around
// the overlap value they feed into PruneParentExtents.
package striper

import "github.com/layerbd/layerbd/pkg/types"

// ObjectToVolume converts an object-local byte range into the
// equivalent volume-logical byte ranges. A clone's logical address
// space equals its parent's, so the result doubles as parent-relative
// extents.
//
// Striping follows the RAID-0 scheme: the volume is cut into
// StripeUnit-sized blocks, block b lands in stripe b/StripeCount at
// position b%StripeCount, and UnitsPerObject stripes fill one object
// before the next object set begins.
func ObjectToVolume(l types.Layout, objectNo, off, length uint64) []types.Extent {
	su := l.StripeUnit
	sc := l.StripeCount
	upo := l.UnitsPerObject()

	objectSet := objectNo / sc
	stripePos := objectNo % sc

	var extents []types.Extent
	for length > 0 {
		unit := off / su
		delta := off % su
		n := su - delta
		if n > length {
			n = length
		}

		stripeNo := objectSet*upo + unit
		block := stripeNo*sc + stripePos
		volOff := block*su + delta

		if k := len(extents); k > 0 && extents[k-1].End() == volOff {
			extents[k-1].Len += n
		} else {
			extents = append(extents, types.Extent{Off: volOff, Len: n})
		}

		off += n
		length -= n
	}
	return extents
}

// VolumeToObjects converts volume-logical extents into per-object
// extents, tagging each with its offset in the flat buffer that covers
// the input extents back to back. Adjacent ranges that land contiguous
// within one object are merged.
func VolumeToObjects(l types.Layout, extents []types.Extent) []types.ObjectExtent {
	su := l.StripeUnit
	sc := l.StripeCount
	upo := l.UnitsPerObject()

	var out []types.ObjectExtent
	var bufOff uint64
	for _, e := range extents {
		off := e.Off
		length := e.Len
		for length > 0 {
			block := off / su
			delta := off % su
			n := su - delta
			if n > length {
				n = length
			}

			stripeNo := block / sc
			stripePos := block % sc
			objectSet := stripeNo / upo
			unit := stripeNo % upo

			objectNo := objectSet*sc + stripePos
			objectOff := unit*su + delta

			if k := len(out); k > 0 &&
				out[k-1].ObjectNo == objectNo &&
				out[k-1].Off+out[k-1].Len == objectOff &&
				out[k-1].BufOff+out[k-1].Len == bufOff {
				out[k-1].Len += n
			} else {
				out = append(out, types.ObjectExtent{
					ObjectNo: objectNo,
					Off:      objectOff,
					Len:      n,
					BufOff:   bufOff,
				})
			}

			off += n
			length -= n
			bufOff += n
		}
	}
	return out
}

// PruneParentExtents truncates or drops volume-logical extents that lie
// beyond overlap, returning the pruned list and the total bytes kept.
// Zero bytes kept means no parent contribution is currently valid.
// Pruning an already-pruned list against the same overlap is a no-op.
func PruneParentExtents(extents []types.Extent, overlap uint64) ([]types.Extent, uint64) {
	pruned := extents[:0]
	var kept uint64
	for _, e := range extents {
		if e.Off >= overlap {
			continue
		}
		if e.End() > overlap {
			e.Len = overlap - e.Off
		}
		pruned = append(pruned, e)
		kept += e.Len
	}
	return pruned, kept
}
