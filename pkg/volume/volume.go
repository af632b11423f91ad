// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

// Package volume holds the per-volume metadata context the I/O request
// machinery runs against: layout, snapshot table, parent linkage and
// overlap, existence index, copy-up registry, and teardown pins.
package volume

import (
	"fmt"
	"strings"
	"sync"

	"github.com/layerbd/layerbd/pkg/copyup"
	"github.com/layerbd/layerbd/pkg/logger"
	"github.com/layerbd/layerbd/pkg/objmap"
	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/types"

	"github.com/google/uuid"
)

// SnapInfo describes one snapshot of a volume.
type SnapInfo struct {
	ID   types.SnapID
	Name string

	// Overlap is the parent overlap recorded at snapshot time; valid
	// only while the snapshot exists.
	Overlap uint64
}

// Config parameterizes a volume.
type Config struct {
	Name    string
	Size    uint64
	Layout  types.Layout
	Backend store.Backend

	// ObjectMap enables the existence index when non-nil.
	ObjectMap *objmap.Map

	CopyOnRead bool
	ReadOnly   bool

	// ReadSnap is the snapshot this volume handle is opened at
	// (NoSnap = head). Clone parents are opened at the clone's base
	// snapshot.
	ReadSnap types.SnapID
}

// Volume is the metadata context for one open volume.
//
// OwnerLock is the volume's write-serialization lock: callers must hold
// it (read side) across WriteRequest.Send, mirroring the flush-ordering
// contract of the existence index.
type Volume struct {
	ID        uuid.UUID
	OwnerLock sync.RWMutex

	name    string
	size    uint64
	layout  types.Layout
	backend store.Backend
	prefix  string

	copyOnRead bool
	readOnly   bool
	readSnap   types.SnapID
	objectMap  *objmap.Map
	copyups    *copyup.Registry

	// snapMu guards the snapshot table and write snap context.
	snapMu sync.RWMutex
	snaps  map[types.SnapID]*SnapInfo
	snapc  types.SnapContext

	// parentMu guards the parent link and head overlap. Both snapMu
	// and parentMu are read-held together while an overlap is
	// (re)computed; neither is ever held across an asynchronous
	// boundary.
	parentMu    sync.RWMutex
	parent      *Volume
	headOverlap uint64

	pinMu    sync.Mutex
	pinCond  *sync.Cond
	pinCount int
}

// New creates a volume context.
func New(cfg Config) (*Volume, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("volume: backend is required")
	}
	if cfg.Size%cfg.Layout.ObjectSize != 0 {
		return nil, fmt.Errorf("volume: size %d must be a multiple of object size %d", cfg.Size, cfg.Layout.ObjectSize)
	}

	id := uuid.New()
	v := &Volume{
		ID:         id,
		name:       cfg.Name,
		size:       cfg.Size,
		layout:     cfg.Layout,
		backend:    cfg.Backend,
		prefix:     "layerbd_data." + strings.ReplaceAll(id.String(), "-", "")[:12],
		copyOnRead: cfg.CopyOnRead,
		readOnly:   cfg.ReadOnly,
		readSnap:   cfg.ReadSnap,
		objectMap:  cfg.ObjectMap,
		copyups:    copyup.NewRegistry(),
		snaps:      make(map[types.SnapID]*SnapInfo),
	}
	if cfg.ReadSnap == 0 {
		v.readSnap = types.NoSnap
	}
	v.pinCond = sync.NewCond(&v.pinMu)
	return v, nil
}

func (v *Volume) Name() string          { return v.name }
func (v *Volume) Size() uint64          { return v.size }
func (v *Volume) Layout() types.Layout  { return v.layout }
func (v *Volume) Backend() store.Backend { return v.backend }
func (v *Volume) ReadSnap() types.SnapID { return v.readSnap }

// ObjectCount returns how many objects the volume spans.
func (v *Volume) ObjectCount() uint64 {
	return v.size / v.layout.ObjectSize
}

// ObjectName returns the store object name for an object index.
func (v *Volume) ObjectName(objectNo uint64) string {
	return fmt.Sprintf("%s.%016x", v.prefix, objectNo)
}

// ObjectMap returns the existence index, or nil when disabled.
func (v *Volume) ObjectMap() *objmap.Map {
	return v.objectMap
}

// ObjectMayExist is the index precheck before issuing any read; always
// true when the index is disabled.
func (v *Volume) ObjectMayExist(objectNo uint64) bool {
	if v.objectMap == nil {
		return true
	}
	return v.objectMap.MayExist(objectNo)
}

// Copyups returns the per-volume registry of in-flight copy-ups.
func (v *Volume) Copyups() *copyup.Registry {
	return v.copyups
}

// CopyOnRead reports whether opportunistic materialization applies for
// I/O at the given snapshot: only head I/O on a writable volume.
func (v *Volume) CopyOnRead(snap types.SnapID) bool {
	return v.copyOnRead && !v.readOnly && snap == types.NoSnap
}

// ReadFlags returns the store read flags for a snapshot: snapshot reads
// may be served by replicas.
func (v *Volume) ReadFlags(snap types.SnapID) int {
	if snap != types.NoSnap {
		return store.FlagBalanceReads
	}
	return 0
}

// SnapContext returns the current write snapshot context.
func (v *Volume) SnapContext() types.SnapContext {
	v.snapMu.RLock()
	defer v.snapMu.RUnlock()
	snapc := v.snapc
	snapc.Snaps = append([]types.SnapID(nil), v.snapc.Snaps...)
	return snapc
}

// AddSnapshot records a snapshot, making it the newest.
func (v *Volume) AddSnapshot(id types.SnapID, name string) {
	v.snapMu.Lock()
	defer v.snapMu.Unlock()
	v.parentMu.RLock()
	overlap := v.headOverlap
	v.parentMu.RUnlock()

	v.snaps[id] = &SnapInfo{ID: id, Name: name, Overlap: overlap}
	if uint64(id) > v.snapc.Seq {
		v.snapc.Seq = uint64(id)
	}
	v.snapc.Snaps = append([]types.SnapID{id}, v.snapc.Snaps...)
}

// RemoveSnapshot deletes a snapshot from the table. In-flight requests
// reading from it resolve the race through ErrSnapGone.
func (v *Volume) RemoveSnapshot(id types.SnapID) {
	v.snapMu.Lock()
	defer v.snapMu.Unlock()
	delete(v.snaps, id)
	snaps := v.snapc.Snaps[:0]
	for _, s := range v.snapc.Snaps {
		if s != id {
			snaps = append(snaps, s)
		}
	}
	v.snapc.Snaps = snaps
}

// SetParent links a parent volume with the given head overlap.
func (v *Volume) SetParent(parent *Volume, overlap uint64) {
	v.parentMu.Lock()
	defer v.parentMu.Unlock()
	v.parent = parent
	v.headOverlap = overlap
}

// DetachParent clears the parent link (flatten, or parent removal).
func (v *Volume) DetachParent() {
	v.parentMu.Lock()
	defer v.parentMu.Unlock()
	v.parent = nil
	v.headOverlap = 0
	logger.Debug().Str("volume", v.name).Msg("volume: parent detached")
}

// ShrinkHeadOverlap reduces the head parent overlap (clone shrink).
func (v *Volume) ShrinkHeadOverlap(overlap uint64) {
	v.parentMu.Lock()
	defer v.parentMu.Unlock()
	if overlap < v.headOverlap {
		v.headOverlap = overlap
	}
}

// HasParent reports whether a parent is currently linked.
func (v *Volume) HasParent() bool {
	v.parentMu.RLock()
	defer v.parentMu.RUnlock()
	return v.parent != nil
}

// Parent returns the linked parent volume, or nil.
func (v *Volume) Parent() *Volume {
	v.parentMu.RLock()
	defer v.parentMu.RUnlock()
	return v.parent
}

// ParentOverlap atomically resolves the parent link and the overlap
// valid for the given snapshot. linked is false when no parent is
// attached at all; err is ErrSnapGone when the snapshot backing the
// overlap was deleted mid-flight (non-fatal: no parent contribution).
func (v *Volume) ParentOverlap(snap types.SnapID) (linked bool, overlap uint64, err error) {
	v.snapMu.RLock()
	defer v.snapMu.RUnlock()
	v.parentMu.RLock()
	defer v.parentMu.RUnlock()

	if v.parent == nil {
		return false, 0, types.ErrNoParent
	}
	if snap == types.NoSnap {
		return true, v.headOverlap, nil
	}
	info, ok := v.snaps[snap]
	if !ok {
		return true, 0, types.ErrSnapGone
	}
	return true, info.Overlap, nil
}

// Close quiesces outstanding pinned work and closes the existence
// index. The backend is shared and closed by its owner.
func (v *Volume) Close() error {
	v.Quiesce()
	v.copyups.Shutdown()
	if v.objectMap != nil {
		return v.objectMap.Close()
	}
	return nil
}
