// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package copyup

import (
	"bytes"
	"sync"

	"github.com/layerbd/layerbd/pkg/logger"
	"github.com/layerbd/layerbd/pkg/objmap"
	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/types"
	"github.com/layerbd/layerbd/pkg/utils"
)

// Waiter is a request stacked behind a copy-up. It resumes with the
// parent read's result and reuses the coordinator's data buffer.
type Waiter interface {
	Complete(r int)
}

// Source is the narrow view of a child volume a coordinator needs. It
// is implemented by the request layer to avoid a dependency cycle.
type Source interface {
	// ObjectName maps an object index to its store object name.
	ObjectName(objectNo uint64) string

	// ReadParent submits a pinned read of the parent range backing the
	// object into dst. c fires with the byte count or a negative code.
	ReadParent(objectNo uint64, extents []types.Extent, dst *bytes.Buffer, c *store.Completion) error

	// WriteChild submits a batch against the child object.
	WriteChild(oid string, b *store.WriteBatch, c *store.Completion) error

	// MapUpdate forwards to the child's existence index; false means no
	// update was needed and c was not consumed.
	MapUpdate(objectNo uint64, newState objmap.State, expected *objmap.State, c *store.Completion) bool

	// MapEnabled reports whether the child tracks an existence index.
	MapEnabled() bool
}

// Copyup materializes one clone object from its parent. Writes that
// trigger it register as waiters and run their own guarded retry once
// the parent data is in hand; a coordinator with no waiters (pure
// copy-on-read) writes the object itself.
type Copyup struct {
	reg      *Registry
	src      Source
	objectNo uint64
	extents  []types.Extent
	snapc    types.SnapContext

	mu      sync.Mutex
	started bool
	resumed bool
	waiters []Waiter
	data    bytes.Buffer
}

// New creates a coordinator for objectNo covering the given pruned
// parent extents. It does not start until RunNow or RunDeferred.
func New(reg *Registry, src Source, objectNo uint64, extents []types.Extent, snapc types.SnapContext) *Copyup {
	return &Copyup{
		reg:      reg,
		src:      src,
		objectNo: objectNo,
		extents:  extents,
		snapc:    snapc,
	}
}

// Data exposes the materialized parent content. Valid only after the
// caller has been resumed as a waiter.
func (c *Copyup) Data() *bytes.Buffer {
	return &c.data
}

// AppendWaiter registers a request to resume when the parent read
// finishes. Returns false if the coordinator already resumed its
// waiters; the caller must fetch on its own then.
func (c *Copyup) AppendWaiter(w Waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resumed {
		return false
	}
	c.waiters = append(c.waiters, w)
	return true
}

// Waiters returns the number of requests currently stacked behind this
// coordinator.
func (c *Copyup) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// RunNow starts the parent read on the calling goroutine.
func (c *Copyup) RunNow() {
	c.start()
}

// RunDeferred starts the parent read from the registry's queue. Used by
// the copy-on-read path, which must not extend the read that fired it.
func (c *Copyup) RunDeferred() {
	c.reg.wq.Queue(c.start)
}

func (c *Copyup) start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	if len(c.extents) == 0 {
		c.onParentRead(0)
		return
	}
	comp := store.NewCompletion(c.onParentRead)
	if err := c.src.ReadParent(c.objectNo, c.extents, &c.data, comp); err != nil {
		comp.Complete(types.ErrnoResult(err))
	}
}

// onParentRead runs when the shared parent read finishes. The
// coordinator unregisters before resuming anyone, so a later trigger
// for the same object starts fresh instead of joining a spent one.
func (c *Copyup) onParentRead(r int) {
	c.reg.remove(c.objectNo, c)

	c.mu.Lock()
	c.resumed = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	if len(waiters) > 0 {
		for _, w := range waiters {
			w.Complete(r)
		}
		return
	}

	// Standalone copy-on-read materialization. Failures only lose the
	// optimization; the object simply stays backed by the parent.
	if r < 0 {
		logger.Warn().Int("result", r).
			Uint64("object_no", c.objectNo).
			Msg("copyup: parent read failed, skipping materialization")
		return
	}
	if c.data.Len() == 0 || utils.IsZero(c.data.Bytes()) {
		return
	}
	c.sendPre()
}

func (c *Copyup) sendPre() {
	if !c.src.MapEnabled() {
		c.sendWrite()
		return
	}
	comp := store.NewCompletion(func(r int) {
		if r < 0 {
			logger.Warn().Int("result", r).
				Uint64("object_no", c.objectNo).
				Msg("copyup: index pre-update failed")
			return
		}
		c.sendWrite()
	})
	if !c.src.MapUpdate(c.objectNo, objmap.StatePending, nil, comp) {
		c.sendWrite()
	}
}

func (c *Copyup) sendWrite() {
	b := store.NewWriteBatch()
	b.SetCopyupData(c.data.Bytes())
	comp := store.NewCompletion(func(r int) {
		if r < 0 {
			logger.Warn().Int("result", r).
				Uint64("object_no", c.objectNo).
				Msg("copyup: object write failed")
			return
		}
		c.sendPost()
	})
	oid := c.src.ObjectName(c.objectNo)
	if err := c.src.WriteChild(oid, b, comp); err != nil {
		comp.Complete(types.ErrnoResult(err))
	}
}

func (c *Copyup) sendPost() {
	if !c.src.MapEnabled() {
		return
	}
	expected := objmap.StatePending
	comp := store.NewCompletion(func(r int) {
		if r < 0 {
			logger.Warn().Int("result", r).
				Uint64("object_no", c.objectNo).
				Msg("copyup: index post-update failed")
		}
	})
	c.src.MapUpdate(c.objectNo, objmap.StateExists, &expected, comp)
}
