// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

// Package objmap is the per-object existence index of a volume: a
// tri-state marker kept crash-consistent with object data by the
// request state machines (Pending is set before data is written, Exists
// only after).
package objmap

import (
	"fmt"
	"sync"

	"github.com/layerbd/layerbd/pkg/async"
	"github.com/layerbd/layerbd/pkg/logger"
	"github.com/layerbd/layerbd/pkg/store"
	"github.com/layerbd/layerbd/pkg/types"
)

// State is the existence marker for one object.
type State uint8

const (
	StateNonexistent State = iota
	StateExists
	StatePending
)

func (s State) String() string {
	switch s {
	case StateNonexistent:
		return "nonexistent"
	case StateExists:
		return "exists"
	case StatePending:
		return "pending"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Map holds the in-memory index and persists updates asynchronously
// through a Store. The in-memory state is authoritative for readers;
// persistence completes before the update's continuation fires, so a
// completed update is durable.
type Map struct {
	mu     sync.Mutex
	states []State
	st     Store
	wq     *async.WorkQueue
}

// Open loads (or initializes) the index for a volume with the given
// object count.
func Open(st Store, objectCount uint64) (*Map, error) {
	states, err := st.Load(objectCount)
	if err != nil {
		return nil, fmt.Errorf("objmap: load: %w", err)
	}
	return &Map{
		states: states,
		st:     st,
		wq:     async.NewWorkQueue("objmap", 1),
	}, nil
}

// Get returns the indexed state of an object.
func (m *Map) Get(objectNo uint64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[objectNo]
}

// MayExist is the fast precheck before issuing a read: false means the
// object definitely does not exist locally and the read can be skipped.
func (m *Map) MayExist(objectNo uint64) bool {
	return m.Get(objectNo) != StateNonexistent
}

// Len returns the number of tracked objects.
func (m *Map) Len() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.states))
}

// Update atomically moves an object to newState when the current state
// matches expected (nil = any) and schedules asynchronous persistence;
// c fires with zero once durable, or a negative code if persistence
// failed.
//
// Returns false without consuming c when no update is needed: either
// the state already equals newState, or expected is set and no longer
// matches (a concurrent updater won the race and the caller's goal is
// already met or moot). Callers treat false as "proceed now".
func (m *Map) Update(objectNo uint64, newState State, expected *State, c *store.Completion) bool {
	m.mu.Lock()
	cur := m.states[objectNo]
	if cur == newState || (expected != nil && cur != *expected) {
		m.mu.Unlock()
		updatesSkipped.Inc()
		return false
	}
	m.states[objectNo] = newState
	m.mu.Unlock()

	updatesTotal.WithLabelValues(newState.String()).Inc()
	if !m.wq.Queue(func() {
		if err := m.st.Put(objectNo, newState); err != nil {
			logger.Error().Err(err).
				Uint64("object_no", objectNo).
				Str("state", newState.String()).
				Msg("objmap: persist failed")
			c.Complete(types.ResultIOError)
			return
		}
		c.Complete(0)
	}) {
		panic("objmap: update on closed map")
	}
	return true
}

// Close flushes and closes the persistence store.
func (m *Map) Close() error {
	m.wq.Shutdown()
	return m.st.Close()
}
