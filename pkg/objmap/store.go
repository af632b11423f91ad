// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package objmap

import "sync"

// Store persists per-object states. Load returns a state slice of
// exactly objectCount entries, defaulting missing objects to
// StateNonexistent.
type Store interface {
	Load(objectCount uint64) ([]State, error)
	Put(objectNo uint64, s State) error
	Close() error
}

// MemoryStore keeps states in memory only. Used for testing and for
// volumes that opt out of index persistence.
type MemoryStore struct {
	mu sync.Mutex
	m  map[uint64]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[uint64]State)}
}

func (s *MemoryStore) Load(objectCount uint64) ([]State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]State, objectCount)
	for objectNo, st := range s.m {
		if objectNo < objectCount {
			states[objectNo] = st
		}
	}
	return states, nil
}

func (s *MemoryStore) Put(objectNo uint64, st State) error {
	s.mu.Lock()
	s.m[objectNo] = st
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
