// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionFiresOnce(t *testing.T) {
	t.Parallel()
	var got []int
	c := NewCompletion(func(r int) { got = append(got, r) })
	c.Complete(42)
	require.Equal(t, []int{42}, got)

	assert.Panics(t, func() { c.Complete(0) })
}

func TestCompletionBlockStashesResult(t *testing.T) {
	t.Parallel()
	var got []int
	c := NewCompletion(func(r int) { got = append(got, r) })

	c.Block()
	c.Complete(7)
	assert.Empty(t, got, "blocked completion must not deliver")

	c.Unblock()
	assert.Equal(t, []int{7}, got)
}

func TestCompletionNestedBlocks(t *testing.T) {
	t.Parallel()
	var got []int
	c := NewCompletion(func(r int) { got = append(got, r) })

	c.Block()
	c.Block()
	c.Complete(-5)
	c.Unblock()
	assert.Empty(t, got)
	c.Unblock()
	assert.Equal(t, []int{-5}, got)
}

func TestCompletionUnblockWithoutResult(t *testing.T) {
	t.Parallel()
	var got []int
	c := NewCompletion(func(r int) { got = append(got, r) })

	c.Block()
	c.Unblock()
	assert.Empty(t, got)

	c.Complete(3)
	assert.Equal(t, []int{3}, got)
}

func TestCompletionFinalizerOnLastPut(t *testing.T) {
	t.Parallel()
	var finalized int
	c := NewCompletion(func(int) {})
	c.SetFinalizer(func() { finalized++ })

	c.Get()
	c.Put()
	assert.Zero(t, finalized)

	c.Put()
	assert.Equal(t, 1, finalized)

	assert.Panics(t, func() { c.Put() })
	assert.Panics(t, func() { c.Get() })
}
