// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"maps"
	"slices"
)

const (
	Flash    = "FLASH"
	RAM      = "RAM"
	ScratchX = "SCRATCH_X"
	ScratchY = "SCRATCH_Y"
)

const XIPBase = 0x1000_0000

func must(d *Descriptor, err error) *Descriptor {
	if err != nil {
		panic(err)
	}
	return d
}

// RP2040 returns the memory map of RP2040 with 2 MiB of external flash.
func RP2040() *Descriptor {
	return must(New(
		Region{Flash, XIPBase, 2 << 20},
		Region{RAM, 0x2000_0000, 256 << 10},
		Region{ScratchX, 0x2004_0000, 4 << 10},
		Region{ScratchY, 0x2004_1000, 4 << 10},
	))
}

// RP2350 returns the memory map of RP2350 with 4 MiB of external flash.
func RP2350() *Descriptor {
	return must(New(
		Region{Flash, XIPBase, 4 << 20},
		Region{RAM, 0x2000_0000, 512 << 10},
		Region{ScratchX, 0x2008_0000, 4 << 10},
		Region{ScratchY, 0x2008_1000, 4 << 10},
	))
}

var targets = map[string]func() *Descriptor{
	"rp2040": RP2040,
	"rp2350": RP2350,
}

// Target returns the memory map of the named target device.
func Target(name string) (*Descriptor, bool) {
	f, ok := targets[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Targets returns the sorted list of known target names.
func Targets() []string {
	return slices.Sorted(maps.Keys(targets))
}
