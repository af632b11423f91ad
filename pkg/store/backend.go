// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the transport layer: it executes reads and writes
// against named objects and invokes a continuation exactly once per
// submitted operation. Submission errors are synchronous and mean the
// continuation will never fire.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/layerbd/layerbd/pkg/types"
)

var errClosed = errors.New("store: backend closed")

// BackendType names a backend implementation.
type BackendType string

// BackendConfig selects and parameterizes a backend.
type BackendConfig struct {
	Type    BackendType
	Workers int

	// Local backend
	Dir string

	// S3 backend
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Backend executes object I/O asynchronously. Every successfully
// submitted operation completes its continuation exactly once, on a
// backend worker goroutine, never on the submitter's.
type Backend interface {
	// AioRead reads [off, off+length) of the object into dst and
	// completes c with the byte count, or NotFound if the object does
	// not exist.
	AioRead(oid string, off, length uint64, dst *bytes.Buffer, opts ReadOptions, c *Completion) error

	// AioWrite applies the batch atomically under the snapshot context
	// and completes c with zero, or NotFound if the batch asserts
	// existence and the object is absent.
	AioWrite(oid string, b *WriteBatch, snapc types.SnapContext, c *Completion) error

	Close() error
}

// Factory creates a Backend from config.
type Factory func(cfg BackendConfig) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[BackendType]Factory)
)

// Register adds a factory for a backend type.
func Register(t BackendType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// New creates a Backend from config.
func New(cfg BackendConfig) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
	return f(cfg)
}
