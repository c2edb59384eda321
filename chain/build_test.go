// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"testing"

	"github.com/embeddedgo/picobin/layout"
)

func TestBuildErrors(t *testing.T) {
	rp2350 := layout.RP2350()
	flash, _ := rp2350.Lookup(layout.Flash)
	tests := []struct {
		name    string
		bd      Builder
		blocks  []Block
		wantErr error
	}{
		{
			name:    "empty",
			bd:      Builder{Layout: rp2350, Addr: layout.XIPBase},
			wantErr: ErrEmptyChain,
		},
		{
			name:    "overflow",
			bd:      Builder{Layout: rp2350, Addr: uint32(flash.End() - 16)},
			blocks:  testChain(),
			wantErr: ErrRegionOverflow,
		},
		{
			name: "overflow named region",
			bd: Builder{
				Layout: rp2350, Region: layout.ScratchX, Addr: 0x20080ff0,
			},
			blocks:  testChain(),
			wantErr: ErrRegionOverflow,
		},
		{
			name: "vector table in the weeds",
			bd:   Builder{Layout: rp2350, Addr: layout.XIPBase},
			blocks: []Block{{Items: []Item{
				VectorTable{0x3000_0000}.Item(),
			}}},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "load address in the weeds",
			bd:      Builder{Layout: rp2350, Addr: 0x0800_0000},
			blocks:  testChain(),
			wantErr: ErrOutOfRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.bd.Build(tt.blocks)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
			}
			if buf != nil {
				t.Errorf("Build() returned %d bytes on error", len(buf))
			}
		})
	}
}

func TestBuildWithLayout(t *testing.T) {
	bd := &Builder{Layout: layout.RP2350(), Addr: layout.XIPBase}
	blocks := testChain()
	buf, err := bd.Build(blocks)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for i := range blocks {
		if blocks[i].Link != 0 || blocks[i].CRC != 0 {
			t.Errorf("block %d modified by Build", i)
		}
	}
	bs, err := Blocks(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckPointers(bs, bd.Layout); err != nil {
		t.Errorf("CheckPointers() error = %v", err)
	}
	off := 0
	for i, b := range bs {
		if b.Offset != off {
			t.Errorf("block %d at %#x, want %#x", i, b.Offset, off)
		}
		off = b.End()
	}
}

func TestErrorKind(t *testing.T) {
	_, err := Build()
	if k := Kind(err); k != "EmptyChain" {
		t.Errorf("Kind() = %q, want EmptyChain", k)
	}
	if Terminal(err) {
		t.Errorf("Terminal(%v) = true", err)
	}
}
