// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

// Package objio drives one object-level read or write through the
// layered-volume fallback protocol: direct I/O first, guarded fallback
// to the parent volume on a missing object, and optional
// materialization of the fetched data into the local object.
//
// Each request issues exactly one asynchronous leg at a time; every
// completion re-enters the request's state machine, which either
// finishes the request or issues the next leg.
package objio

import (
	"bytes"
	"sync/atomic"

	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/striper"
	"github.com/layerbd/layerbd/pkg/types"
	"github.com/layerbd/layerbd/pkg/volume"
)

// completer is the state-machine hook a concrete request supplies.
// shouldComplete consumes one leg's result and reports whether the
// request is finished; false means a new leg is already in flight.
type completer interface {
	shouldComplete(r int) bool
}

// Request carries the identity and lifecycle shared by object reads and
// writes: target object, byte range, snapshot, the caller's completion
// sink, and the nested handle used while falling back to the parent.
type Request struct {
	vol *volume.Volume
	sm  completer

	oid       string
	objectNo  uint64
	objectOff uint64
	objectLen uint64
	snapID    types.SnapID

	sink         *store.Completion
	hideNotFound bool

	// At most one nested parent read is outstanding at a time. The
	// handle owns the parent teardown pin when one was taken.
	parentComp    *store.Completion
	parentPin     *volume.Pin
	parentExtents []types.Extent

	data bytes.Buffer
	done atomic.Bool
}

func newRequest(v *volume.Volume, sm completer, objectNo, off, length uint64, snap types.SnapID, sink *store.Completion, hideNotFound bool) Request {
	return Request{
		vol:          v,
		sm:           sm,
		oid:          v.ObjectName(objectNo),
		objectNo:     objectNo,
		objectOff:    off,
		objectLen:    length,
		snapID:       snap,
		sink:         sink,
		hideNotFound: hideNotFound,
	}
}

// ObjectName returns the store object this request targets.
func (rq *Request) ObjectName() string { return rq.oid }

// Data returns the request's accumulated data buffer.
func (rq *Request) Data() *bytes.Buffer { return &rq.data }

// Complete feeds one leg's result into the state machine and, when the
// machine reports the request finished, fires the caller's sink exactly
// once. It is the continuation target for every leg the request issues.
func (rq *Request) Complete(res int) {
	if !rq.sm.shouldComplete(res) {
		return
	}
	if rq.done.Swap(true) {
		panic("objio: request completed twice")
	}
	rq.releaseParent()
	if rq.hideNotFound && res == types.ResultNotFound {
		res = 0
	}
	rq.sink.Complete(res)
}

// computeParentExtents re-derives the parent extents valid for this
// request's byte range right now and caches them. Returns the retained
// overlap byte count. types.ErrNoParent means the parent link itself is
// gone; types.ErrSnapGone means the snapshot backing the overlap was
// deleted (both non-fatal: no parent contribution).
func (rq *Request) computeParentExtents() (uint64, error) {
	linked, overlap, err := rq.vol.ParentOverlap(rq.snapID)
	if !linked {
		return 0, types.ErrNoParent
	}
	if err != nil {
		return 0, err
	}
	extents := striper.ObjectToVolume(rq.vol.Layout(), rq.objectNo, rq.objectOff, rq.objectLen)
	pruned, overlapBytes := striper.PruneParentExtents(extents, overlap)
	rq.parentExtents = pruned
	return overlapBytes, nil
}

// computeCopyupExtents is computeParentExtents over the whole object
// instead of the request's range: materialization must capture the full
// in-overlap object content, not just the bytes this request touches.
func (rq *Request) computeCopyupExtents() (uint64, error) {
	linked, overlap, err := rq.vol.ParentOverlap(rq.snapID)
	if !linked {
		return 0, types.ErrNoParent
	}
	if err != nil {
		return 0, err
	}
	extents := striper.ObjectToVolume(rq.vol.Layout(), rq.objectNo, 0, rq.vol.Layout().ObjectSize)
	pruned, overlapBytes := striper.PruneParentExtents(extents, overlap)
	rq.parentExtents = pruned
	return overlapBytes, nil
}

// readFromParent issues the fallback read over the cached parent
// extents into dst. The nested completion is blocked until the caller's
// unblockParent, so the result cannot re-enter the state machine while
// the issuing transition is still running. pin guards the parent volume
// against teardown for the duration of the read; it is taken only when
// no materialization job independently holds one.
func (rq *Request) readFromParent(dst *bytes.Buffer, pin bool) {
	if rq.parentComp != nil {
		panic("objio: nested parent read already outstanding")
	}
	parent := rq.vol.Parent()
	if parent == nil {
		rq.Complete(types.ResultNotFound)
		return
	}

	comp := store.NewCompletion(rq.Complete)
	rq.parentComp = comp
	if pin {
		p := parent.Pin()
		rq.parentPin = p
		comp.SetFinalizer(p.Release)
	}
	comp.Block()

	parentReads.Inc()
	if err := ReadVolumeExtents(parent, rq.parentExtents, parent.ReadSnap(), dst, comp); err != nil {
		// Synchronous submission failure: no callback will ever come.
		rq.releaseParent()
		rq.Complete(types.ErrnoResult(err))
	}
}

// unblockParent releases the block taken by readFromParent. Must be the
// issuing transition's last action: a result that already arrived is
// delivered here, on this goroutine.
func (rq *Request) unblockParent() {
	if comp := rq.parentComp; comp != nil {
		comp.Unblock()
	}
}

// releaseParent drops the nested parent handle if still held. The
// handle's finalizer releases the teardown pin; Pin.Release is
// idempotent, so the direct release below is safe on every path.
func (rq *Request) releaseParent() {
	if rq.parentComp != nil {
		rq.parentComp.Put()
		rq.parentComp = nil
	}
	if rq.parentPin != nil {
		rq.parentPin.Release()
		rq.parentPin = nil
	}
}
