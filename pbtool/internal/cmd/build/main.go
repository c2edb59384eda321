// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/embeddedgo/picobin/binfo"
	"github.com/embeddedgo/picobin/chain"
	"github.com/embeddedgo/picobin/layout"
	"github.com/embeddedgo/picobin/pbtool/internal/itemspec"
	"github.com/embeddedgo/picobin/pbtool/internal/util"
)

const Descr = "build the metadata block chain described by an XML file"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] SPEC OUT\n"+
				"The OUT suffix selects the format: .bin, .hex, .uf2\n"+
				"Options:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	target := fs.String(
		"target", "",
		"target device (overrides the target attribute of the chain):\n"+
			strings.Join(layout.Targets(), ", "),
	)
	family := fs.String(
		"family", "",
		"UF2 family `ID` (32-bit number) or a known family name:\n"+
			strings.Join(util.UF2Families(), "\n"),
	)
	fs.Parse(args)
	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(1)
	}
	f, err := os.Open(fs.Arg(0))
	util.FatalErr("", err)
	spec, err := itemspec.Decode(f)
	f.Close()
	util.FatalErr(fs.Arg(0), err)
	if *target != "" {
		spec.Target = *target
	}
	addr, data, err := build(spec)
	util.FatalErr("build", err)

	familyName := *family
	if familyName == "" {
		familyName = defaultFamily(spec.Target)
	}
	var familyID uint32
	if strings.HasSuffix(strings.ToLower(fs.Arg(1)), ".uf2") {
		familyID, err = util.UF2Family(familyName)
		util.FatalErr("", err)
	}
	err = util.WriteImage(fs.Arg(1), addr, data, familyID)
	util.FatalErr("", err)
}

func defaultFamily(target string) string {
	switch target {
	case "rp2040":
		return "rp2040"
	case "rp2350":
		return "rp2350_arm_s"
	}
	return "absolute"
}

// build returns the load address and the content of the metadata region:
// the chain, the end block and the optional binary info table.
func build(spec *itemspec.Chain) (addr uint32, data []byte, err error) {
	var d *layout.Descriptor
	if spec.Target != "" {
		var ok bool
		if d, ok = layout.Target(spec.Target); !ok {
			return 0, nil, fmt.Errorf("unknown target: %s", spec.Target)
		}
	}
	addr = layout.XIPBase
	if spec.Base != nil {
		addr = uint32(*spec.Base)
	}
	blocks, err := spec.ChainBlocks()
	if err != nil {
		return 0, nil, err
	}
	bd := &chain.Builder{Layout: d, Region: spec.Region, Addr: addr}
	data, err = bd.Build(blocks)
	if err != nil {
		return 0, nil, err
	}
	entries, err := spec.Entries()
	if err != nil || len(entries) == 0 {
		return addr, data, err
	}
	info, err := binfo.Build(addr+uint32(len(data)), entries)
	if err != nil {
		return 0, nil, err
	}
	data = append(data, info...)
	if d != nil {
		region := spec.Region
		if region == "" {
			r, _ := d.Resolve(addr) // checked by the builder
			region = r.Name
		}
		if !d.Contains(region, addr, uint32(len(data))) {
			return 0, nil, fmt.Errorf(
				"binary info: %w: %d bytes at %#08x",
				chain.ErrRegionOverflow, len(data), addr,
			)
		}
	}
	return addr, data, nil
}
