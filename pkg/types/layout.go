// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "fmt"

// DefaultObjectSize is the default size of a volume object (4MB).
const DefaultObjectSize = 4 * 1024 * 1024

// Layout describes how a volume's logical address space is striped
// across fixed-size objects. With StripeCount == 1 and
// StripeUnit == ObjectSize the mapping is the plain
// object_no * object_size + offset scheme.
type Layout struct {
	ObjectSize  uint64
	StripeUnit  uint64
	StripeCount uint64
}

// DefaultLayout returns an unstriped layout with the given object size.
func DefaultLayout(objectSize uint64) Layout {
	return Layout{
		ObjectSize:  objectSize,
		StripeUnit:  objectSize,
		StripeCount: 1,
	}
}

// Validate checks the layout invariants: a nonzero object size, a
// stripe unit that divides the object size, and at least one stripe.
func (l Layout) Validate() error {
	if l.ObjectSize == 0 {
		return fmt.Errorf("layout: object size must be nonzero")
	}
	if l.StripeUnit == 0 || l.ObjectSize%l.StripeUnit != 0 {
		return fmt.Errorf("layout: stripe unit %d must divide object size %d", l.StripeUnit, l.ObjectSize)
	}
	if l.StripeCount == 0 {
		return fmt.Errorf("layout: stripe count must be nonzero")
	}
	return nil
}

// UnitsPerObject returns how many stripe units one object holds.
func (l Layout) UnitsPerObject() uint64 {
	return l.ObjectSize / l.StripeUnit
}
