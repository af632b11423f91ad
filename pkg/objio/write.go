// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package objio

import (
	"bytes"

	"github.com/layerbd/layerbd/pkg/copyup"
	"github.com/layerbd/layerbd/pkg/objmap"
	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/types"
	"github.com/layerbd/layerbd/pkg/utils"
	"github.com/layerbd/layerbd/pkg/volume"
)

type writeState int

const (
	// writeStatePre waits for the existence index pre-update.
	writeStatePre writeState = iota
	// writeStateGuard reacts to NotFound on the guarded write by
	// materializing the object from the parent and retrying.
	writeStateGuard
	// writeStateCopyup waits for the parent data fetch.
	writeStateCopyup
	// writeStateFlat waits for an unguarded write.
	writeStateFlat
	// writeStatePost waits for the existence index post-update.
	writeStatePost
	// writeStateError is terminal with a negative result.
	writeStateError
)

// WriteRequest applies one mutation to one object. On a clone, the
// write carries an object-must-exist precondition; a NotFound reply
// triggers materialization from the parent followed by a combined
// materialize-and-write retry. The existence index, when enabled, is
// moved to Pending before any data lands and to its terminal state
// only after the write succeeds.
type WriteRequest struct {
	Request

	kind  WriteKind
	state writeState
	snapc types.SnapContext

	// copyupData holds materialized parent content once fetched. coord,
	// while set, is the borrowed coordinator whose shared fetch buffer
	// this request will copy from; it is valid only until the copy.
	copyupData bytes.Buffer
	coord      *copyup.Copyup
}

// NewWriteRequest builds a write of data at off within object objectNo
// against the volume head. sink fires exactly once with zero or a
// negative code.
func NewWriteRequest(v *volume.Volume, objectNo, off uint64, data []byte, sink *store.Completion) *WriteRequest {
	return newWrite(v, objectNo, off, uint64(len(data)), sink, false, &plainWrite{
		off:        off,
		data:       data,
		objectSize: v.Layout().ObjectSize,
	})
}

// NewZeroRequest builds a zeroing of [off, off+length) within object
// objectNo. A terminal NotFound is reported as success: zeroing an
// absent range is already satisfied.
func NewZeroRequest(v *volume.Volume, objectNo, off, length uint64, sink *store.Completion) *WriteRequest {
	return newWrite(v, objectNo, off, length, sink, true, &zeroWrite{
		off:        off,
		length:     length,
		objectSize: v.Layout().ObjectSize,
	})
}

func newWrite(v *volume.Volume, objectNo, off, length uint64, sink *store.Completion, hideNotFound bool, kind WriteKind) *WriteRequest {
	w := &WriteRequest{
		kind:  kind,
		state: writeStatePre,
		snapc: v.SnapContext(),
	}
	w.Request = newRequest(v, w, objectNo, off, length, types.NoSnap, sink, hideNotFound)
	return w
}

// Send issues the write. The caller must hold the volume's OwnerLock
// (read side) for the duration of the call.
func (w *WriteRequest) Send() {
	writesTotal.Inc()
	if w.sendPre() {
		w.sendWrite()
	}
}

// shouldComplete is a trampoline over state transitions: a transition
// that needs to re-process the current result under a new state loops
// instead of recursing.
func (w *WriteRequest) shouldComplete(res int) bool {
	for {
		switch w.state {
		case writeStatePre:
			if res < 0 {
				return true
			}
			w.sendWrite()
			return false

		case writeStateGuard:
			if res == types.ResultNotFound {
				return w.handleGuard()
			}
			if res < 0 {
				w.state = writeStateError
				continue
			}
			return w.sendPost()

		case writeStateCopyup:
			// Reset to GUARD first so a repeated NotFound on the
			// ensuing write is handled uniformly.
			w.state = writeStateGuard
			if res < 0 {
				continue
			}
			w.bindMaterialized()
			w.sendCopyup()
			return false

		case writeStateFlat:
			if res < 0 {
				return true
			}
			return w.sendPost()

		case writeStatePost:
			return true

		case writeStateError:
			return true
		}
	}
}

// handleGuard resolves a NotFound from the guarded write: fetch the
// parent data backing this object, shared through a coordinator when
// copy-on-read is on, then retry as a materialize-and-write.
func (w *WriteRequest) handleGuard() bool {
	overlapBytes, err := w.computeCopyupExtents()
	if err != nil || overlapBytes == 0 {
		// The parent contribution vanished mid-write: a concurrent
		// populator won, or the object no longer maps onto the parent.
		// Degenerate to an empty materialization; the store skips the
		// copy-up content for an object that already exists.
		w.copyupData.Reset()
		w.sendCopyup()
		return false
	}

	w.state = writeStateCopyup
	if w.vol.CopyOnRead(w.snapID) {
		reg := w.vol.Copyups()
		extents := append([]types.Extent(nil), w.parentExtents...)
		cu, created := reg.FindOrCreate(w.objectNo, func() *copyup.Copyup {
			return copyup.New(reg, source{w.vol}, w.objectNo, extents, w.vol.SnapContext())
		})
		// Bind the coordinator before joining: once AppendWaiter returns,
		// a resume on another goroutine may already be re-entering this
		// request, and it must observe coord set.
		w.coord = cu
		if cu.AppendWaiter(w) {
			if created {
				cu.RunNow()
			}
			return false
		}
		w.coord = nil
		// The coordinator resumed its waiters between lookup and join;
		// fall through to an independent fetch.
	}
	w.readFromParent(&w.copyupData, false)
	w.unblockParent()
	return false
}

// bindMaterialized lands the fetched parent data in the request's own
// buffer: copied out of the coordinator's shared buffer when this
// request waited on one, already in place after an independent fetch.
func (w *WriteRequest) bindMaterialized() {
	if w.coord != nil {
		if w.copyupData.Len() != 0 {
			panic("objio: materialized buffer already populated")
		}
		w.copyupData.Write(w.coord.Data().Bytes())
		w.coord = nil
	}
	w.releaseParent()
}

// sendPre moves the existence index to the write kind's pre-write
// state. Returns true when the write can proceed now: index disabled,
// state already there, or a concurrent updater got there first.
func (w *WriteRequest) sendPre() bool {
	om := w.vol.ObjectMap()
	if om == nil {
		return true
	}
	target := w.kind.PreWriteState()
	cur := om.Get(w.objectNo)
	if cur == target {
		return true
	}
	w.state = writeStatePre
	comp := store.NewCompletion(w.Complete)
	return !om.Update(w.objectNo, target, &cur, comp)
}

// sendWrite submits the request's own mutation. On a volume with a
// parent the write is guarded: the store must fail with NotFound
// rather than implicitly create the object, or the fallback protocol
// loses its trigger.
func (w *WriteRequest) sendWrite() {
	w.state = writeStateFlat
	b := store.NewWriteBatch()
	if w.vol.HasParent() {
		w.state = writeStateGuard
		b.SetAssertExists()
	}
	w.kind.AddWriteOps(b)
	if b.Empty() {
		panic("objio: write batch has no ops")
	}
	w.submit(b)
}

// sendCopyup submits one atomic batch carrying the materialized parent
// content (when non-empty) followed by the request's own mutation.
func (w *WriteRequest) sendCopyup() {
	w.state = writeStateFlat
	b := store.NewWriteBatch()
	if d := w.copyupData.Bytes(); len(d) > 0 && !utils.IsZero(d) {
		b.SetCopyupData(d)
	}
	w.kind.AddWriteOps(b)
	w.submit(b)
}

// sendPost settles the existence index after a successful write.
// Returns true when the request is finished now: index disabled, no
// post state for this kind, or the Pending marker already resolved.
func (w *WriteRequest) sendPost() bool {
	om := w.vol.ObjectMap()
	if om == nil {
		return true
	}
	target, ok := w.kind.PostWriteState()
	if !ok {
		return true
	}
	if om.Get(w.objectNo) != objmap.StatePending {
		return true
	}
	w.state = writeStatePost
	expected := objmap.StatePending
	comp := store.NewCompletion(w.Complete)
	return !om.Update(w.objectNo, target, &expected, comp)
}

func (w *WriteRequest) submit(b *store.WriteBatch) {
	comp := store.NewCompletion(w.Complete)
	if err := w.vol.Backend().AioWrite(w.oid, b, w.snapc, comp); err != nil {
		comp.Complete(types.ErrnoResult(err))
	}
}
