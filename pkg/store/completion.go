// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "sync"

// Completion is the continuation for one asynchronous store operation.
// It is invoked exactly once with a signed result code (negative =
// errno, zero or positive = success / byte count).
//
// A completion can be blocked: Complete while blocked stashes the
// result, and the final Unblock delivers it. Requests use this to keep
// a nested parent-read completion from firing while the issuing leg is
// still inside its own state transition.
//
// Completions are reference counted. The final Put runs the optional
// finalizer, which callers use to release teardown pins on every exit
// path.
type Completion struct {
	mu        sync.Mutex
	cb        func(r int)
	refs      int
	blocked   int
	pending   bool
	result    int
	fired     bool
	finalizer func()
}

// NewCompletion creates a completion with one reference.
func NewCompletion(cb func(r int)) *Completion {
	return &Completion{cb: cb, refs: 1}
}

// SetFinalizer installs fn to run when the last reference is dropped.
func (c *Completion) SetFinalizer(fn func()) {
	c.mu.Lock()
	c.finalizer = fn
	c.mu.Unlock()
}

// Get takes an additional reference.
func (c *Completion) Get() {
	c.mu.Lock()
	if c.refs <= 0 {
		c.mu.Unlock()
		panic("store: Get on released completion")
	}
	c.refs++
	c.mu.Unlock()
}

// Put drops a reference, running the finalizer on the last one.
func (c *Completion) Put() {
	c.mu.Lock()
	if c.refs <= 0 {
		c.mu.Unlock()
		panic("store: Put on released completion")
	}
	c.refs--
	final := c.refs == 0
	fn := c.finalizer
	c.mu.Unlock()

	if final && fn != nil {
		fn()
	}
}

// Block delays delivery of the result until a matching Unblock.
func (c *Completion) Block() {
	c.mu.Lock()
	c.blocked++
	c.mu.Unlock()
}

// Unblock releases one Block; if the operation already completed and no
// blocks remain, the stashed result is delivered now, on this
// goroutine.
func (c *Completion) Unblock() {
	c.mu.Lock()
	if c.blocked <= 0 {
		c.mu.Unlock()
		panic("store: Unblock without Block")
	}
	c.blocked--
	deliver := c.blocked == 0 && c.pending && !c.fired
	if deliver {
		c.fired = true
		c.pending = false
	}
	r := c.result
	cb := c.cb
	c.mu.Unlock()

	if deliver {
		cb(r)
	}
}

// Complete delivers the result, or stashes it if the completion is
// blocked. Completing twice is a programming error.
func (c *Completion) Complete(r int) {
	c.mu.Lock()
	if c.fired || c.pending {
		c.mu.Unlock()
		panic("store: completion completed twice")
	}
	if c.blocked > 0 {
		c.pending = true
		c.result = r
		c.mu.Unlock()
		return
	}
	c.fired = true
	cb := c.cb
	c.mu.Unlock()

	cb(r)
}
