// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import "sync"

// Pin keeps the volume open while an asynchronous leg targeting it is
// in flight. Release is idempotent.
type Pin struct {
	v    *Volume
	once sync.Once
}

// Pin takes a teardown guard on the volume. Every cross-volume
// asynchronous operation (parent reads, copy-ups) holds one for its
// whole lifetime.
func (v *Volume) Pin() *Pin {
	v.pinMu.Lock()
	v.pinCount++
	v.pinMu.Unlock()
	return &Pin{v: v}
}

// Release drops the guard. Safe to call more than once.
func (p *Pin) Release() {
	p.once.Do(func() {
		p.v.pinMu.Lock()
		p.v.pinCount--
		if p.v.pinCount == 0 {
			p.v.pinCond.Broadcast()
		}
		if p.v.pinCount < 0 {
			p.v.pinMu.Unlock()
			panic("volume: pin count underflow")
		}
		p.v.pinMu.Unlock()
	})
}

// Pins returns the number of outstanding guards.
func (v *Volume) Pins() int {
	v.pinMu.Lock()
	defer v.pinMu.Unlock()
	return v.pinCount
}

// Quiesce blocks until every outstanding pin is released.
func (v *Volume) Quiesce() {
	v.pinMu.Lock()
	for v.pinCount > 0 {
		v.pinCond.Wait()
	}
	v.pinMu.Unlock()
}
