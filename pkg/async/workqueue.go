// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

// Package async provides the worker pool that store backends and the
// existence index run their completion callbacks on. No I/O completion
// in this codebase fires on the submitter's goroutine.
package async

import (
	"sync"

	"github.com/layerbd/layerbd/pkg/logger"
)

// WorkQueue runs queued functions on a fixed pool of workers.
type WorkQueue struct {
	name  string
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewWorkQueue starts a queue with the given worker count.
func NewWorkQueue(name string, workers int) *WorkQueue {
	if workers <= 0 {
		workers = 4
	}
	q := &WorkQueue{
		name:  name,
		tasks: make(chan func(), 128),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	logger.Debug().
		Str("queue", name).
		Int("workers", workers).
		Msg("async: work queue started")
	return q
}

func (q *WorkQueue) work() {
	defer q.wg.Done()
	for task := range q.tasks {
		task()
	}
}

// Queue schedules fn to run on a worker. Returns false if the queue has
// been shut down.
func (q *WorkQueue) Queue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		logger.Warn().Str("queue", q.name).Msg("async: queue on closed work queue dropped")
		return false
	}
	q.tasks <- fn
	return true
}

// Shutdown drains queued work and stops the workers. Blocks until all
// in-flight tasks finish.
func (q *WorkQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	logger.Debug().Str("queue", q.name).Msg("async: work queue stopped")
}
