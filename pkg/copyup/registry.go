// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

// Package copyup coordinates materialization of clone objects from
// parent data. At most one coordinator per object index is in flight;
// concurrent triggers for the same object share the single parent read.
package copyup

import (
	"sync"
	"sync/atomic"

	"github.com/layerbd/layerbd/pkg/async"
)

// Registry tracks in-flight copy-ups for one volume, keyed by object
// index.
type Registry struct {
	mu       sync.Mutex
	inflight map[uint64]*Copyup
	wq       *async.WorkQueue
	created  atomic.Uint64
}

// NewRegistry creates an empty registry with its own deferral queue.
func NewRegistry() *Registry {
	return &Registry{
		inflight: make(map[uint64]*Copyup),
		wq:       async.NewWorkQueue("copyup", 1),
	}
}

// Find returns the in-flight copy-up for an object, or nil.
func (r *Registry) Find(objectNo uint64) *Copyup {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight[objectNo]
}

// FindOrCreate returns the in-flight copy-up for objectNo, creating one
// with mk if none exists. The lookup and registration are atomic:
// concurrent callers always converge on a single coordinator. created
// reports whether this call registered the returned coordinator.
func (r *Registry) FindOrCreate(objectNo uint64, mk func() *Copyup) (cu *Copyup, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cu := r.inflight[objectNo]; cu != nil {
		return cu, false
	}
	cu = mk()
	r.inflight[objectNo] = cu
	r.created.Add(1)
	copyupsCreated.Inc()
	return cu, true
}

// remove drops the registration, but only if cu is still the registered
// coordinator for the object.
func (r *Registry) remove(objectNo uint64, cu *Copyup) {
	r.mu.Lock()
	if r.inflight[objectNo] == cu {
		delete(r.inflight, objectNo)
	}
	r.mu.Unlock()
}

// Created returns how many coordinators were ever registered.
func (r *Registry) Created() uint64 {
	return r.created.Load()
}

// Len returns the number of in-flight copy-ups.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Shutdown drains the deferral queue.
func (r *Registry) Shutdown() {
	r.wq.Shutdown()
}
