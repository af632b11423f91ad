// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package objio

import (
	"errors"
	"sync/atomic"

	"github.com/layerbd/layerbd/pkg/copyup"
	"github.com/layerbd/layerbd/pkg/logger"
	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/types"
	"github.com/layerbd/layerbd/pkg/volume"
)

type readState int

const (
	// readStateFlat is terminal: whatever the buffer holds is the answer.
	readStateFlat readState = iota
	// readStateGuard reacts to NotFound by falling back to the parent.
	readStateGuard
	// readStateCopyup fires an opportunistic materialization after a
	// successful parent read.
	readStateCopyup
)

// ReadRequest reads one byte range of one object, transparently falling
// back to the parent volume when the object does not exist locally.
type ReadRequest struct {
	Request

	state       readState
	triedParent bool
	sparse      bool
	extMap      map[uint64]uint64

	parentGone atomic.Bool
}

// ReadConfig tunes an object read.
type ReadConfig struct {
	// Sparse requests a sparse read; data extents land in the
	// caller-allocated ExtentMap.
	Sparse    bool
	ExtentMap map[uint64]uint64

	// HideNotFound converts a terminal NotFound into success with an
	// empty buffer.
	HideNotFound bool
}

// NewReadRequest builds a read of [off, off+length) within object
// objectNo at the given snapshot (NoSnap = head). sink fires exactly
// once with the byte count or a negative code.
func NewReadRequest(v *volume.Volume, objectNo, off, length uint64, snap types.SnapID, cfg ReadConfig, sink *store.Completion) *ReadRequest {
	r := &ReadRequest{
		state:  readStateFlat,
		sparse: cfg.Sparse,
		extMap: cfg.ExtentMap,
	}
	r.Request = newRequest(v, r, objectNo, off, length, snap, sink, cfg.HideNotFound)
	if v.HasParent() {
		r.state = readStateGuard
	}
	return r
}

// ParentGone reports that the parent link vanished while this request
// was falling back to it. The request is left unfinished in that case:
// its sink never fires, and the dispatcher owns recovery. See Stalled
// requests in DESIGN.md.
func (r *ReadRequest) ParentGone() bool {
	return r.parentGone.Load()
}

// Send issues the direct read. If the existence index rules the object
// out, no store I/O happens and the machine starts from NotFound, which
// engages the parent fallback when one is linked.
func (r *ReadRequest) Send() {
	readsTotal.Inc()
	if !r.vol.ObjectMayExist(r.objectNo) {
		r.Complete(types.ResultNotFound)
		return
	}

	opts := store.ReadOptions{
		Sparse:    r.sparse,
		Flags:     r.vol.ReadFlags(r.snapID),
		Snap:      r.snapID,
		ExtentMap: r.extMap,
	}
	comp := store.NewCompletion(r.Complete)
	if err := r.vol.Backend().AioRead(r.oid, r.objectOff, r.objectLen, &r.data, opts, comp); err != nil {
		comp.Complete(types.ErrnoResult(err))
	}
}

func (r *ReadRequest) shouldComplete(res int) bool {
	switch r.state {
	case readStateGuard:
		if res == types.ResultNotFound && !r.triedParent {
			overlapBytes, err := r.computeParentExtents()
			if errors.Is(err, types.ErrNoParent) {
				// The parent link was cleared between the guard read
				// and this fallback. Left unfinished deliberately;
				// the outcome is surfaced through ParentGone.
				r.state = readStateFlat
				r.parentGone.Store(true)
				parentDetachedStalls.Inc()
				logger.Warn().
					Str("oid", r.oid).
					Msg("objio: parent detached during read fallback, request stalled")
				return false
			}
			if err != nil || overlapBytes == 0 {
				r.state = readStateFlat
				return true
			}
			r.triedParent = true
			if r.vol.CopyOnRead(r.snapID) {
				r.state = readStateCopyup
			}
			r.readFromParent(&r.data, true)
			r.unblockParent()
			return false
		}
		// Direct read answered, a non-NotFound error surfaced, or the
		// parent read (without materialization) came back.
		r.state = readStateFlat
		return true

	case readStateCopyup:
		// Parent read finished. The materialization is fire-and-forget:
		// its outcome never affects this read's result.
		if res > 0 {
			r.triggerCopyup()
		}
		r.state = readStateFlat
		return true

	case readStateFlat:
		return true
	}
	panic("objio: read request in unknown state")
}

// triggerCopyup registers a materialization job for this object unless
// one is already in flight. The overlap is re-derived first: it may
// have shrunk since the parent read was issued.
func (r *ReadRequest) triggerCopyup() {
	reg := r.vol.Copyups()
	if reg.Find(r.objectNo) != nil {
		return
	}
	overlapBytes, err := r.computeCopyupExtents()
	if err != nil || overlapBytes == 0 {
		return
	}
	extents := append([]types.Extent(nil), r.parentExtents...)
	cu, created := reg.FindOrCreate(r.objectNo, func() *copyup.Copyup {
		return copyup.New(reg, source{r.vol}, r.objectNo, extents, r.vol.SnapContext())
	})
	if created {
		cu.RunDeferred()
	}
}
