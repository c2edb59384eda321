// Copyright 2024 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
)

const (
	UF2NotMainFlash    = 0x00000001
	UF2FamilyIDPresent = 0x00002000
)

const (
	uf2Magic0 = 0x0a324655
	uf2Magic1 = 0x9e5d5157
	uf2Magic2 = 0x0ab16f30
)

var uf2FamilyMap = map[string]uint32{
	"rp2040":        0xe48bff56,
	"absolute":      0xe48bff57,
	"data":          0xe48bff58,
	"rp2350_arm_s":  0xe48bff59,
	"rp2350_riscv":  0xe48bff5a,
	"rp2350_arm_ns": 0xe48bff5b,
}

// UF2Families returns the sorted names of the known UF2 families.
func UF2Families() []string {
	return slices.Sorted(maps.Keys(uf2FamilyMap))
}

// UF2Family accepts a known family name or a 32-bit number.
func UF2Family(family string) (uint32, error) {
	if id, ok := uf2FamilyMap[family]; ok {
		return id, nil
	}
	u, err := strconv.ParseUint(family, 0, 32)
	if err != nil {
		return 0, fmt.Errorf(`uf2: bad family ID: "%s"`, family)
	}
	return uint32(u), nil
}

type uf2block struct {
	Magic0 uint32
	Magic1 uint32
	Flags  uint32
	Addr   uint32
	Len    uint32
	Seq    uint32
	Total  uint32
	Family uint32
	Data   [256]byte
	_      [476 - 256]byte
	Magic2 uint32
}

const uf2BlockSize = 512

type UF2Writer struct {
	w io.Writer
	b uf2block
}

func NewUF2Writer(w io.Writer, addr, flags, family uint32, size int) *UF2Writer {
	u := new(UF2Writer)
	u.w = w
	u.b.Magic0 = uf2Magic0
	u.b.Magic1 = uf2Magic1
	u.b.Flags = flags
	u.b.Addr = addr
	u.b.Total = uint32((size + len(u.b.Data) - 1) / len(u.b.Data))
	u.b.Family = family
	u.b.Magic2 = uf2Magic2
	return u
}

func (u *UF2Writer) Write(p []byte) (n int, err error) {
	b := &u.b
	for len(p) != 0 {
		m := copy(b.Data[b.Len:], p)
		n += m
		p = p[m:]
		b.Len += uint32(m)
		if int(b.Len) == len(b.Data) {
			err = binary.Write(u.w, binary.LittleEndian, b)
			if err != nil {
				return
			}
			b.Addr += b.Len
			b.Seq++
			b.Len = 0
		}
	}
	return
}

func (u *UF2Writer) Flush() (err error) {
	b := &u.b
	if b.Len == 0 {
		return
	}
	clear(b.Data[b.Len:])
	b.Len = uint32(len(b.Data))
	err = binary.Write(u.w, binary.LittleEndian, b)
	b.Addr += b.Len
	b.Seq++
	b.Len = 0
	return
}

// ReadUF2 reads the main flash blocks of an UF2 file. If family isn't zero
// the blocks that carry a different family ID are skipped and at least one
// block of the family must be present.
func ReadUF2(r io.Reader, family uint32) (Sections, error) {
	var (
		ss      Sections
		b       uf2block
		buf     [uf2BlockSize]byte
		skipped int
	)
	for {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, err = binary.Decode(buf[:], binary.LittleEndian, &b); err != nil {
			return nil, err
		}
		if b.Magic0 != uf2Magic0 || b.Magic1 != uf2Magic1 || b.Magic2 != uf2Magic2 {
			return nil, errors.New("uf2: bad magic")
		}
		if b.Flags&UF2NotMainFlash != 0 {
			continue
		}
		if family != 0 && b.Flags&UF2FamilyIDPresent != 0 && b.Family != family {
			skipped++
			continue
		}
		if b.Len > uint32(len(b.Data)) {
			return nil, fmt.Errorf("uf2: block %d: bad length %d", b.Seq, b.Len)
		}
		if n := len(ss); n != 0 {
			last := ss[n-1]
			if last.Paddr+uint64(len(last.Data)) == uint64(b.Addr) {
				last.Data = append(last.Data, b.Data[:b.Len]...)
				continue
			}
		}
		data := append([]byte(nil), b.Data[:b.Len]...)
		ss = append(ss, &Section{uint64(b.Addr), data})
	}
	if len(ss) == 0 && skipped != 0 {
		return nil, fmt.Errorf(
			"uf2: no blocks of family %#08x (%d blocks of other families)",
			family, skipped,
		)
	}
	return ss, nil
}
