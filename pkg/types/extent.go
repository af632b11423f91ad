// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "fmt"

// Extent is a byte range in some address space (volume-logical or
// object-local, depending on context).
type Extent struct {
	Off uint64
	Len uint64
}

func (e Extent) End() uint64 {
	return e.Off + e.Len
}

func (e Extent) String() string {
	return fmt.Sprintf("%d~%d", e.Off, e.Len)
}

// TotalLength sums the lengths of all extents.
func TotalLength(extents []Extent) uint64 {
	var total uint64
	for _, e := range extents {
		total += e.Len
	}
	return total
}

// ObjectExtent is a byte range within a specific object, tagged with
// the offset of that range inside the caller's flat buffer. Produced by
// striping a volume-logical range across objects.
type ObjectExtent struct {
	ObjectNo uint64
	Off      uint64
	Len      uint64
	BufOff   uint64
}
