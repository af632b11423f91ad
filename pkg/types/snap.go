// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "math"

// SnapID identifies a volume snapshot.
type SnapID uint64

// NoSnap is the sentinel for "read/write the head of the volume".
const NoSnap SnapID = math.MaxUint64

// SnapContext carries the snapshot set a write must be applied under:
// the highest snapshot sequence seen and the existing snapshot ids in
// descending order.
type SnapContext struct {
	Seq   uint64
	Snaps []SnapID
}
