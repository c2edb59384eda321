// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binfo

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/embeddedgo/picobin/layout"
)

var proxyEntries = []Entry{
	{Type: TypeIDAndString, ID: IDProgramName, String: "Pico2W LTE Proxy"},
	{
		Type:   TypeIDAndString,
		ID:     IDProgramDescription,
		String: "WiFi AP + LTE HTTP Proxy via EC800K module",
	},
	{Type: TypeIDAndString, ID: IDProgramVersion, String: "0.1.0"},
	{Type: TypeIDAndString, ID: IDProgramBuildAttribute, String: "release"},
	{Type: TypeIDAndInt, ID: IDBinaryEnd, Int: 0x10012345},
}

func TestBuildRead(t *testing.T) {
	const base = layout.XIPBase + 0x100
	data, err := Build(base, proxyEntries)
	if err != nil {
		t.Fatal(err)
	}
	img := &Image{Data: data, Base: base}
	h, es, err := Read(img, layout.RP2350())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if h.Offset != 0 {
		t.Errorf("header at %#x, want 0", h.Offset)
	}
	if len(es) != len(proxyEntries) {
		t.Fatalf("got %d entries, want %d", len(es), len(proxyEntries))
	}
	for i, want := range proxyEntries {
		got := es[i]
		if got.Type != want.Type || got.ID != want.ID || got.Tag != TagRaspberryPi {
			t.Errorf("entry %d = %+v, want %+v", i, got, want)
		}
		if got.Value() != want.Value() {
			t.Errorf("entry %d value = %q, want %q", i, got.Value(), want.Value())
		}
	}
}

func TestParseMapping(t *testing.T) {
	const base = layout.XIPBase
	data, err := Build(base, proxyEntries[:1])
	if err != nil {
		t.Fatal(err)
	}
	le := binary.LittleEndian
	// Pretend the string was copied to RAM at 0x20000000.
	const strOff = headerSize + 12 + 4 + recordSize
	const ram = 0x2000_0000
	le.PutUint32(data[headerSize+12+4+8:], ram)
	data = le.AppendUint32(data, base+strOff)
	data = le.AppendUint32(data, ram)
	data = le.AppendUint32(data, ram+64)
	data = le.AppendUint32(data, 0)
	le.PutUint32(data[12:], base+uint32(len(data))-16)

	img := &Image{Data: data, Base: base}
	_, es, err := Read(img, layout.RP2350())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if es[0].String != "Pico2W LTE Proxy" {
		t.Errorf("string = %q", es[0].String)
	}
}

func TestParseErrors(t *testing.T) {
	const base = layout.XIPBase
	data, err := Build(base, proxyEntries)
	if err != nil {
		t.Fatal(err)
	}
	le := binary.LittleEndian
	entry0 := headerSize + 12

	t.Run("not found", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] = 0
		if _, _, err := Read(&Image{bad, base}, nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("Read() error = %v, want %v", err, ErrNotFound)
		}
	})
	t.Run("pointer outside the image", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		le.PutUint32(bad[entry0:], base+0x10000)
		if _, _, err := Read(&Image{bad, base}, nil); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Read() error = %v, want %v", err, ErrOutOfRange)
		}
	})
	t.Run("pointer outside the memory", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		le.PutUint32(bad[entry0:], 0x3000_0000)
		_, _, err := Read(&Image{bad, base}, layout.RP2350())
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Read() error = %v, want %v", err, ErrOutOfRange)
		}
	})
	t.Run("entries outside the image", func(t *testing.T) {
		var hdr []byte
		hdr = le.AppendUint32(hdr, HeaderMarker)
		hdr = le.AppendUint32(hdr, 0)
		hdr = le.AppendUint32(hdr, 0xfffffff0)
		hdr = le.AppendUint32(hdr, 0)
		hdr = le.AppendUint32(hdr, HeaderEndMarker)
		_, es, err := Read(&Image{hdr, 0}, nil)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Read() error = %v, want %v", err, ErrOutOfRange)
		}
		if len(es) != 0 {
			t.Errorf("Read() returned %d entries", len(es))
		}
	})
	t.Run("reversed bounds", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		le.PutUint32(bad[8:], base)
		if _, _, err := Read(&Image{bad, base}, nil); !errors.Is(err, ErrMalformed) {
			t.Errorf("Read() error = %v, want %v", err, ErrMalformed)
		}
	})
}

func TestIDNames(t *testing.T) {
	id, ok := ParseID("program_name")
	if !ok || id != IDProgramName {
		t.Errorf("ParseID() = %#x, %v", id, ok)
	}
	if s := IDName(IDProgramVersion); s != "program_version" {
		t.Errorf("IDName() = %q", s)
	}
}
