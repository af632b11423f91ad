// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package async

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestWorkQueueRunsTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewWorkQueue("test", 4)
	var ran atomic.Int64
	for i := 0; i < 100; i++ {
		assert.True(t, q.Queue(func() { ran.Add(1) }))
	}
	q.Shutdown()
	assert.Equal(t, int64(100), ran.Load(), "Shutdown drains queued tasks")
}

func TestWorkQueueRejectsAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewWorkQueue("test", 1)
	q.Shutdown()
	assert.False(t, q.Queue(func() {}))
}

func TestWorkQueueDefaultWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewWorkQueue("test", 0)
	done := make(chan struct{})
	q.Queue(func() { close(done) })
	<-done
	q.Shutdown()
}
