// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"

	"github.com/embeddedgo/picobin/layout"
)

// Builder assembles blocks into a chain.
type Builder struct {
	// Layout, if not nil, is used to check the pointers stored in the items
	// and that the whole chain fits in the destination region.
	Layout *layout.Descriptor

	// Region is the name of the destination memory region. If empty the
	// region that contains Addr is used.
	Region string

	// Addr is the load address of the first block.
	Addr uint32
}

// Build returns the encoded chain of blocks followed by the end block. The
// Link, Self and CRC fields of the provided blocks are ignored and left
// unmodified.
func (bd *Builder) Build(blocks []Block) ([]byte, error) {
	const op = "build"
	if len(blocks) == 0 {
		return nil, newErr(op, -1, ErrEmptyChain)
	}
	offs := make([]int, len(blocks)+1)
	for i := range blocks {
		offs[i+1] = offs[i] + blocks[i].Size()
	}
	size := offs[len(blocks)]
	if bd.Layout != nil {
		if err := bd.check(blocks, offs, size+EndBlockSize); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, 0, size+EndBlockSize)
	for i := range blocks {
		b := blocks[i] // copy, don't touch the caller's Link, Self, CRC
		b.Link = LinkEnd
		if i+1 < len(blocks) {
			b.Link = int32((offs[i+1] - offs[i]) / 4)
		}
		buf = AppendBlock(buf, &b)
	}
	return AppendEndBlock(buf, size), nil
}

func (bd *Builder) check(blocks []Block, offs []int, total int) error {
	const op = "build"
	d := bd.Layout
	for i := range blocks {
		for _, it := range blocks[i].Items {
			if err := it.CheckPointers(d); err != nil {
				return newErr(op, offs[i], fmt.Errorf(
					"block %d: item %#x: %w", i, it.Tag, err,
				))
			}
		}
	}
	region := bd.Region
	if region == "" {
		r, err := d.Resolve(bd.Addr)
		if err != nil {
			return newErr(op, -1, err)
		}
		region = r.Name
	}
	r, ok := d.Lookup(region)
	if !ok {
		return newErr(op, -1, fmt.Errorf("unknown region %s", region))
	}
	if uint64(total) > uint64(^uint32(0)) || !d.Contains(region, bd.Addr, uint32(total)) {
		return newErr(op, -1, fmt.Errorf(
			"%w: %d bytes at %#08x don't fit in %v",
			ErrRegionOverflow, total, bd.Addr, r,
		))
	}
	return nil
}

// Build builds the chain without any layout checks.
func Build(blocks ...Block) ([]byte, error) {
	return new(Builder).Build(blocks)
}
