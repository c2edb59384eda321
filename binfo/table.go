// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binfo

import (
	"encoding/binary"
	"fmt"

	"github.com/embeddedgo/picobin/layout"
)

type mapping struct {
	src, dst, dstEnd uint32
}

// readMappings reads the address mapping table. It describes the data that
// is copied from flash to RAM at startup so the pointers to RAM can be
// translated back to the image.
func readMappings(img *Image, addr uint32) ([]mapping, error) {
	if addr == 0 {
		return nil, nil
	}
	var ms []mapping
	for {
		src, err := img.Uint32(addr)
		if err != nil {
			return nil, err
		}
		if src == 0 {
			return ms, nil
		}
		dst, err := img.Uint32(addr + 4)
		if err != nil {
			return nil, err
		}
		end, err := img.Uint32(addr + 8)
		if err != nil {
			return nil, err
		}
		ms = append(ms, mapping{src, dst, end})
		addr += 12
	}
}

func translate(ms []mapping, addr uint32) uint32 {
	for _, m := range ms {
		if m.dst <= addr && addr < m.dstEnd {
			return m.src + addr - m.dst
		}
	}
	return addr
}

// Parse reads the entries of the table described by h. If d isn't nil every
// pointer must also resolve to a memory region of the target.
func Parse(img *Image, h Header, d *layout.Descriptor) ([]Entry, error) {
	if h.End < h.Start || (h.End-h.Start)&3 != 0 {
		return nil, fmt.Errorf(
			"%w: entries [%#08x, %#08x)", ErrMalformed, h.Start, h.End,
		)
	}
	if _, err := img.offset(h.Start, int(h.End-h.Start)); err != nil {
		return nil, err
	}
	ms, err := readMappings(img, h.Mapping)
	if err != nil {
		return nil, err
	}
	ptr := func(addr uint32) (uint32, error) {
		p, err := img.Uint32(addr)
		if err != nil {
			return 0, err
		}
		if d != nil {
			if _, err := d.Resolve(p); err != nil {
				return 0, fmt.Errorf("binfo: pointer at %#08x: %w", addr, err)
			}
		}
		return translate(ms, p), nil
	}
	es := make([]Entry, 0, (h.End-h.Start)/4)
	for a := h.Start; a < h.End; a += 4 {
		p, err := ptr(a)
		if err != nil {
			return es, err
		}
		th, err := img.Uint32(p)
		if err != nil {
			return es, err
		}
		e := Entry{Addr: p, Type: uint16(th), Tag: uint16(th >> 16)}
		switch e.Type {
		case TypeIDAndInt, TypeIDAndString:
			if e.ID, err = img.Uint32(p + 4); err != nil {
				return es, err
			}
			if e.Type == TypeIDAndInt {
				v, err := img.Uint32(p + 8)
				if err != nil {
					return es, err
				}
				e.Int = int32(v)
				break
			}
			s, err := ptr(p + 8)
			if err != nil {
				return es, err
			}
			if e.String, err = img.CString(s); err != nil {
				return es, err
			}
		}
		es = append(es, e)
	}
	return es, nil
}

// Read finds the header and parses the table.
func Read(img *Image, d *layout.Descriptor) (Header, []Entry, error) {
	h, err := FindHeader(img)
	if err != nil {
		return h, nil, err
	}
	es, err := Parse(img, h, d)
	return h, es, err
}

const recordSize = 3 * 4

// Build returns the header followed by the table of entries, their records
// and strings, for the load address addr. Only TypeIDAndInt and
// TypeIDAndString entries are supported.
func Build(addr uint32, entries []Entry) ([]byte, error) {
	le := binary.LittleEndian
	mapAddr := addr + headerSize
	start := mapAddr + 12 // empty mapping table
	end := start + uint32(4*len(entries))
	recs := end
	strs := recs + uint32(recordSize*len(entries))

	buf := make([]byte, 0, strs-addr)
	buf = le.AppendUint32(buf, HeaderMarker)
	buf = le.AppendUint32(buf, start)
	buf = le.AppendUint32(buf, end)
	buf = le.AppendUint32(buf, mapAddr)
	buf = le.AppendUint32(buf, HeaderEndMarker)
	buf = append(buf, make([]byte, 12)...)
	for i := range entries {
		buf = le.AppendUint32(buf, recs+uint32(i*recordSize))
	}
	var strData []byte
	for _, e := range entries {
		tag := e.Tag
		if tag == 0 {
			tag = TagRaspberryPi
		}
		buf = le.AppendUint16(buf, e.Type)
		buf = le.AppendUint16(buf, tag)
		buf = le.AppendUint32(buf, e.ID)
		switch e.Type {
		case TypeIDAndInt:
			buf = le.AppendUint32(buf, uint32(e.Int))
		case TypeIDAndString:
			buf = le.AppendUint32(buf, strs+uint32(len(strData)))
			strData = append(strData, e.String...)
			strData = append(strData, 0)
			for len(strData)&3 != 0 {
				strData = append(strData, 0)
			}
		default:
			return nil, fmt.Errorf("binfo: build: unsupported type %d", e.Type)
		}
	}
	return append(buf, strData...), nil
}
