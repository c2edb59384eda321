// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout describes the memory map of a target device. It is used to
// check that addresses stored in the image metadata point into memory that
// actually exists.
package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrOutOfRange = errors.New("address out of range")
	ErrOverlap    = errors.New("overlapping regions")
)

type Region struct {
	Name string
	Base uint32
	Size uint32
}

// End returns the first address after the region as uint64 so the regions
// that reach the end of the 32-bit address space are handled correctly.
func (r Region) End() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

func (r Region) String() string {
	return fmt.Sprintf("%s [%#08x, %#08x)", r.Name, r.Base, r.End())
}

// Descriptor is an immutable set of non-overlapping memory regions.
type Descriptor struct {
	regions []Region // sorted by Base
}

// New returns a descriptor for the provided regions. It fails if any two
// regions overlap or if a region is empty.
func New(regions ...Region) (*Descriptor, error) {
	rs := make([]Region, len(regions))
	copy(rs, regions)
	sort.Slice(rs, func(i, j int) bool { return rs[i].Base < rs[j].Base })
	for i, r := range rs {
		if r.Size == 0 {
			return nil, fmt.Errorf("layout: empty region %s", r.Name)
		}
		if i > 0 && rs[i-1].End() > uint64(r.Base) {
			return nil, fmt.Errorf(
				"layout: %w: %s and %s", ErrOverlap, rs[i-1].Name, r.Name,
			)
		}
	}
	return &Descriptor{rs}, nil
}

// Regions returns the regions sorted by their base address.
func (d *Descriptor) Regions() []Region {
	return append([]Region(nil), d.regions...)
}

// Resolve returns the region that contains addr.
func (d *Descriptor) Resolve(addr uint32) (Region, error) {
	i := sort.Search(len(d.regions), func(i int) bool {
		return d.regions[i].End() > uint64(addr)
	})
	if i < len(d.regions) && d.regions[i].Base <= addr {
		return d.regions[i], nil
	}
	return Region{}, fmt.Errorf("layout: %w: %#08x", ErrOutOfRange, addr)
}

// Lookup returns the region with the given name (case insensitive).
func (d *Descriptor) Lookup(name string) (Region, bool) {
	for _, r := range d.regions {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Region{}, false
}

// Contains reports whether the whole [addr, addr+length) range lies inside
// the named region.
func (d *Descriptor) Contains(name string, addr, length uint32) bool {
	r, ok := d.Lookup(name)
	if !ok {
		return false
	}
	return r.Base <= addr && uint64(addr)+uint64(length) <= r.End()
}
