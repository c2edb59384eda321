// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package binfo reads and writes the binary info table (bi_entries). The
// table is a flat array of pointers to tagged records stored somewhere in
// the image. It is located by a small header that contains the addresses
// of the start and the end of the array.
package binfo

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/embeddedgo/picobin/layout"
)

const (
	HeaderMarker    uint32 = 0x7188ebf2
	HeaderEndMarker uint32 = 0xe71aa390

	headerSize = 5 * 4
)

// Record types
const (
	TypeRawData            uint16 = 1
	TypeSizedData          uint16 = 2
	TypeListZeroTerminated uint16 = 3
	TypeBSON               uint16 = 4
	TypeIDAndInt           uint16 = 5
	TypeIDAndString        uint16 = 6
	TypeBlockDevice        uint16 = 7
	TypePinsWithFunc       uint16 = 8
	TypePinsWithNames      uint16 = 9
	TypeNamedGroup         uint16 = 10
	TypePtrInt32WithName   uint16 = 11
	TypePtrStringWithName  uint16 = 12
)

const TagRaspberryPi uint16 = 'R' | 'P'<<8

// Record IDs
const (
	IDProgramName           uint32 = 0x02031c86
	IDProgramVersion        uint32 = 0x11a9bc3a
	IDProgramBuildDate      uint32 = 0x9da22254
	IDBinaryEnd             uint32 = 0x68f465de
	IDProgramURL            uint32 = 0x1856239a
	IDProgramDescription    uint32 = 0xb6a07c19
	IDProgramFeature        uint32 = 0xa1f4b453
	IDProgramBuildAttribute uint32 = 0x4275f0d3
	IDSDKVersion            uint32 = 0x5360b3ab
	IDPicoBoard             uint32 = 0xb63cffbb
	IDBoot2Name             uint32 = 0x7f8882e1
)

var idNames = map[uint32]string{
	IDProgramName:           "program_name",
	IDProgramVersion:        "program_version",
	IDProgramBuildDate:      "program_build_date",
	IDBinaryEnd:             "binary_end",
	IDProgramURL:            "program_url",
	IDProgramDescription:    "program_description",
	IDProgramFeature:        "program_feature",
	IDProgramBuildAttribute: "program_build_attribute",
	IDSDKVersion:            "sdk_version",
	IDPicoBoard:             "pico_board",
	IDBoot2Name:             "boot2_name",
}

// IDName returns the name of a known record ID or its hex representation.
func IDName(id uint32) string {
	if s, ok := idNames[id]; ok {
		return s
	}
	return fmt.Sprintf("%#08x", id)
}

// ParseID accepts the name of a known record ID.
func ParseID(name string) (uint32, bool) {
	for id, s := range idNames {
		if s == name {
			return id, true
		}
	}
	return 0, false
}

var (
	ErrNotFound   = errors.New("binfo: header not found")
	ErrMalformed  = errors.New("binfo: malformed table")
	ErrOutOfRange = layout.ErrOutOfRange
)

// Entry is a single record of the table. Int is valid for TypeIDAndInt
// records, String for TypeIDAndString ones. The records of other types
// are returned with only the common fields set.
type Entry struct {
	Addr   uint32
	Type   uint16
	Tag    uint16
	ID     uint32
	Int    int32
	String string
}

func (e *Entry) Value() string {
	switch e.Type {
	case TypeIDAndInt:
		return fmt.Sprint(e.Int)
	case TypeIDAndString:
		return e.String
	}
	return fmt.Sprintf("(type %d)", e.Type)
}

// Header is the binary info header.
type Header struct {
	Offset  int // in the image
	Start   uint32
	End     uint32
	Mapping uint32
}

// Image is a memory image loaded at Base.
type Image struct {
	Data []byte
	Base uint32
}

func (img *Image) offset(addr uint32, n int) (int, error) {
	if addr < img.Base || uint64(addr-img.Base)+uint64(n) > uint64(len(img.Data)) {
		return 0, fmt.Errorf("binfo: %w: %#08x", ErrOutOfRange, addr)
	}
	return int(addr - img.Base), nil
}

func (img *Image) Uint32(addr uint32) (uint32, error) {
	off, err := img.offset(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(img.Data[off:]), nil
}

// CString reads a NUL terminated string.
func (img *Image) CString(addr uint32) (string, error) {
	off, err := img.offset(addr, 1)
	if err != nil {
		return "", err
	}
	for i, c := range img.Data[off:] {
		if c == 0 {
			return string(img.Data[off : off+i]), nil
		}
	}
	return "", fmt.Errorf("binfo: unterminated string at %#08x", addr)
}

// FindHeader searches for the binary info header at word aligned offsets
// of the image. Note that picotool looks only at the first 256 bytes.
func FindHeader(img *Image) (Header, error) {
	le := binary.LittleEndian
	d := img.Data
	at := func(off int) bool {
		return off+headerSize <= len(d) &&
			le.Uint32(d[off:]) == HeaderMarker &&
			le.Uint32(d[off+16:]) == HeaderEndMarker
	}
	for off := 0; off < len(d); off += 4 {
		if !at(off) {
			continue
		}
		return Header{
			Offset:  off,
			Start:   le.Uint32(d[off+4:]),
			End:     le.Uint32(d[off+8:]),
			Mapping: le.Uint32(d[off+12:]),
		}, nil
	}
	return Header{}, ErrNotFound
}
