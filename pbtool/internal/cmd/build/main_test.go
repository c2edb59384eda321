// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/embeddedgo/picobin/binfo"
	"github.com/embeddedgo/picobin/chain"
	"github.com/embeddedgo/picobin/pbtool/internal/itemspec"
	"github.com/embeddedgo/picobin/pbtool/internal/util"
)

const proxySpec = `
<chain target="rp2350" base="0x10000000">
	<block>
		<item tag="0x42">0x1021</item>
		<item tag="0x44">0x10000101 0x20082000</item>
	</block>
	<block>
		<item tag="0x48">0x00010002</item>
	</block>
	<info id="program_name">Pico2W LTE Proxy</info>
	<info id="program_description">WiFi AP + LTE HTTP Proxy via EC800K module</info>
	<info id="program_version">0.1.0</info>
	<info id="program_build_attribute">release</info>
</chain>`

func decode(t *testing.T, s string) *itemspec.Chain {
	t.Helper()
	c, err := itemspec.Decode(strings.NewReader(s))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestBuild(t *testing.T) {
	addr, data, err := build(decode(t, proxySpec))
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0x10000000 {
		t.Errorf("addr = %#x", addr)
	}
	start, end, err := chain.Span(data)
	if err != nil || start != 0 {
		t.Fatalf("Span() = %#x, %#x, %v", start, end, err)
	}
	bs, err := chain.Blocks(data, start)
	if err != nil || len(bs) != 2 {
		t.Fatalf("Blocks() = %d blocks, %v", len(bs), err)
	}
	_, es, err := binfo.Read(&binfo.Image{Data: data, Base: addr}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(es) != 4 || es[0].String != "Pico2W LTE Proxy" || es[3].String != "release" {
		t.Errorf("entries = %+v", es)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr error
	}{
		{"empty", `<chain target="rp2350"/>`, chain.ErrEmptyChain},
		{
			"pointer",
			`<chain target="rp2350"><block><item tag="3">0x60000000</item></block></chain>`,
			chain.ErrOutOfRange,
		},
		{
			"overflow",
			`<chain target="rp2350" region="SCRATCH_X" base="0x20080fe0">
				<block><item tag="1">1 2 3</item></block>
			</chain>`,
			chain.ErrRegionOverflow,
		},
		{
			"info overflow",
			`<chain target="rp2350" region="SCRATCH_X" base="0x20080f00">
				<block><item tag="1">1</item></block>
				<info id="program_name">` + strings.Repeat("x", 512) + `</info>
			</chain>`,
			chain.ErrRegionOverflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := build(decode(t, tt.spec))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildWriteRead(t *testing.T) {
	addr, data, err := build(decode(t, proxySpec))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	for _, ext := range []string{".bin", ".hex", ".uf2"} {
		name := filepath.Join(dir, "meta"+ext)
		if err := util.WriteImage(name, addr, data, 0xe48bff59); err != nil {
			t.Fatalf("%s: WriteImage() error = %v", ext, err)
		}
		got, base, err := util.ReadImage(name, addr, 0xe48bff59)
		if err != nil {
			t.Fatalf("%s: ReadImage() error = %v", ext, err)
		}
		if base != addr {
			t.Errorf("%s: base = %#x, want %#x", ext, base, addr)
		}
		if len(got) < len(data) || string(got[:len(data)]) != string(data) {
			t.Errorf("%s: read back %d bytes differ", ext, len(got))
		}
		if _, _, err := chain.Span(got); err != nil {
			t.Errorf("%s: Span() error = %v", ext, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "meta.uf2")); err != nil {
		t.Error(err)
	}
}
