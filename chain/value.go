// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"

	"github.com/embeddedgo/picobin/layout"
)

// Known item tags.
const (
	TagVectorTable        uint32 = 0x03
	TagRollingWindowDelta uint32 = 0x05
	TagSignature          uint32 = 0x0a
	TagImageDef           uint32 = 0x42
	TagEntryPoint         uint32 = 0x44
	TagVersion            uint32 = 0x48
	TagHashValue          uint32 = 0x4b
	TagImageSize          uint32 = 0x4c
)

// ImageDef flags
const (
	ImageTypeMask    = 0xf << 0
	ImageTypeInvalid = 0 << 0
	ImageTypeExe     = 1 << 0
	ImageTypeData    = 2 << 0

	ExeSecMask   = 0x3 << 4
	ExeSecUnspec = 0 << 4
	ExeSecNS     = 1 << 4
	ExeSecS      = 2 << 4

	ExeCPUMask  = 0x7 << 8
	ExeCPUARM   = 0 << 8
	ExeCPURISCV = 1 << 8

	ExeChipMask   = 0x7 << 12
	ExeChipRP2040 = 0 << 12
	ExeChipRP2350 = 1 << 12

	ExeTBYB = 1 << 15
)

// Value is a decoded item. Every known tag has its own type, items with
// other tags (or with a payload that doesn't fit the known tag) decode as
// Opaque.
type Value interface {
	Item() Item
}

type ImageDef struct {
	Flags uint32
}

type VectorTable struct {
	Addr uint32
}

// EntryPoint describes the initial PC and SP. SPLimit is optional.
type EntryPoint struct {
	PC, SP   uint32
	SPLimit  uint32
	HasLimit bool
}

type RollingWindowDelta struct {
	Delta int32
}

type Version struct {
	Major, Minor uint16
	Rollback     []uint32
}

type ImageSize struct {
	Bytes uint32
}

type HashValue struct {
	Digest []uint32
}

type Signature struct {
	Data []uint32
}

type Opaque Item

func (v ImageDef) Item() Item {
	return Item{TagImageDef, []uint32{v.Flags}}
}

func (v VectorTable) Item() Item {
	return Item{TagVectorTable, []uint32{v.Addr}}
}

func (v EntryPoint) Item() Item {
	p := []uint32{v.PC, v.SP}
	if v.HasLimit {
		p = append(p, v.SPLimit)
	}
	return Item{TagEntryPoint, p}
}

func (v RollingWindowDelta) Item() Item {
	return Item{TagRollingWindowDelta, []uint32{uint32(v.Delta)}}
}

func (v Version) Item() Item {
	p := append([]uint32{uint32(v.Major)<<16 | uint32(v.Minor)}, v.Rollback...)
	return Item{TagVersion, p}
}

func (v ImageSize) Item() Item {
	return Item{TagImageSize, []uint32{v.Bytes}}
}

func (v HashValue) Item() Item {
	return Item{TagHashValue, append([]uint32(nil), v.Digest...)}
}

func (v Signature) Item() Item {
	return Item{TagSignature, append([]uint32(nil), v.Data...)}
}

func (v Opaque) Item() Item {
	return Item{v.Tag, append([]uint32(nil), v.Payload...)}
}

// Value decodes the item payload according to its tag.
func (it Item) Value() Value {
	p := it.Payload
	switch it.Tag {
	case TagImageDef:
		if len(p) == 1 {
			return ImageDef{p[0]}
		}
	case TagVectorTable:
		if len(p) == 1 {
			return VectorTable{p[0]}
		}
	case TagEntryPoint:
		switch len(p) {
		case 2:
			return EntryPoint{PC: p[0], SP: p[1]}
		case 3:
			return EntryPoint{p[0], p[1], p[2], true}
		}
	case TagRollingWindowDelta:
		if len(p) == 1 {
			return RollingWindowDelta{int32(p[0])}
		}
	case TagVersion:
		if len(p) >= 1 {
			return Version{
				uint16(p[0] >> 16), uint16(p[0]),
				append([]uint32(nil), p[1:]...),
			}
		}
	case TagImageSize:
		if len(p) == 1 {
			return ImageSize{p[0]}
		}
	case TagHashValue:
		return HashValue{append([]uint32(nil), p...)}
	case TagSignature:
		return Signature{append([]uint32(nil), p...)}
	}
	return Opaque(it.Item())
}

// Item returns a deep copy of it.
func (it Item) Item() Item {
	return Item{it.Tag, append([]uint32(nil), it.Payload...)}
}

func (v ImageDef) String() string {
	typ := "invalid"
	switch v.Flags & ImageTypeMask {
	case ImageTypeExe:
		typ = "exe"
	case ImageTypeData:
		return "IMAGE_DEF data"
	}
	if typ != "exe" {
		return fmt.Sprintf("IMAGE_DEF %s (%#x)", typ, v.Flags)
	}
	sec := [...]string{"unspec", "ns", "s", "?"}[v.Flags&ExeSecMask>>4]
	cpu := "arm"
	if v.Flags&ExeCPUMask == ExeCPURISCV {
		cpu = "riscv"
	}
	chip := "rp2040"
	if v.Flags&ExeChipMask == ExeChipRP2350 {
		chip = "rp2350"
	}
	s := fmt.Sprintf("IMAGE_DEF exe %s %s %s", sec, cpu, chip)
	if v.Flags&ExeTBYB != 0 {
		s += " tbyb"
	}
	return s
}

func (v VectorTable) String() string {
	return fmt.Sprintf("VECTOR_TABLE %#08x", v.Addr)
}

func (v EntryPoint) String() string {
	s := fmt.Sprintf("ENTRY_POINT pc=%#08x sp=%#08x", v.PC, v.SP)
	if v.HasLimit {
		s += fmt.Sprintf(" sp_limit=%#08x", v.SPLimit)
	}
	return s
}

func (v RollingWindowDelta) String() string {
	return fmt.Sprintf("ROLLING_WINDOW_DELTA %d", v.Delta)
}

func (v Version) String() string {
	s := fmt.Sprintf("VERSION %d.%d", v.Major, v.Minor)
	if len(v.Rollback) != 0 {
		s += fmt.Sprintf(" rollback=%v", v.Rollback)
	}
	return s
}

func (v ImageSize) String() string {
	return fmt.Sprintf("IMAGE_SIZE %d", v.Bytes)
}

func (v HashValue) String() string {
	return fmt.Sprintf("HASH_VALUE %08x", v.Digest)
}

func (v Signature) String() string {
	return fmt.Sprintf("SIGNATURE %d words", len(v.Data))
}

func (v Opaque) String() string {
	return fmt.Sprintf("tag %#x: %#08x", v.Tag, v.Payload)
}

// Pointer is an address stored in an item. Top pointers (initial stack
// pointers) may point just past the end of their region.
type Pointer struct {
	Name string
	Addr uint32
	Top  bool
}

// Pointers returns the addresses stored in the item.
func (it Item) Pointers() []Pointer {
	switch v := it.Value().(type) {
	case VectorTable:
		return []Pointer{{"vector table", v.Addr, false}}
	case EntryPoint:
		ps := []Pointer{{"pc", v.PC &^ 1, false}, {"sp", v.SP, true}}
		if v.HasLimit {
			ps = append(ps, Pointer{"sp_limit", v.SPLimit, true})
		}
		return ps
	}
	return nil
}

// CheckPointers checks that every address stored in the item resolves to
// a region of d.
func (it Item) CheckPointers(d *layout.Descriptor) error {
	for _, p := range it.Pointers() {
		addr := p.Addr
		if p.Top && addr != 0 {
			addr--
		}
		if _, err := d.Resolve(addr); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}
