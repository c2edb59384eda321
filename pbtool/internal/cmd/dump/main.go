// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dump

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/embeddedgo/picobin/binfo"
	"github.com/embeddedgo/picobin/chain"
	"github.com/embeddedgo/picobin/layout"
	"github.com/embeddedgo/picobin/pbtool/internal/util"
)

const Descr = "print the metadata blocks and binary info of the image"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS] IMAGE\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	base := util.Uint32Flag(layout.XIPBase)
	fs.Var(&base, "base", "load `address` of the .bin image")
	start := fs.Int(
		"start", -1,
		"`offset` of the first block in the image (-1: search for it)",
	)
	family := fs.String(
		"family", "", "read only the UF2 blocks of this `family` (empty: any)",
	)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	data, addr, err := util.ReadImage(fs.Arg(0), uint32(base), util.FamilyFlag(*family))
	util.FatalErr("", err)
	err = dump(os.Stdout, data, addr, *start)
	util.FatalErr("dump", err)
}

func dump(w io.Writer, data []byte, addr uint32, start int) error {
	if start < 0 {
		var spanErr error
		if start, _, spanErr = chain.Span(data); spanErr != nil {
			var err error
			if start, err = chain.Find(data, 4096); err != nil {
				return spanErr
			}
		}
	}
	n := 0
	for b, err := range chain.Walk(data, start) {
		if err != nil {
			return err
		}
		fmt.Fprintf(
			w, "block %d at %#08x (offset %#x, %d bytes, crc %#08x)\n",
			n, addr+uint32(b.Offset), b.Offset, b.Size(), b.CRC,
		)
		for _, it := range b.Items {
			fmt.Fprintf(w, "\t%v\n", it.Value())
		}
		n++
	}
	if end, err := chain.SpanFrom(data, start); err == nil {
		fmt.Fprintf(
			w, "metadata: %#08x-%#08x (%d bytes)\n",
			addr+uint32(start), addr+uint32(end), end-start,
		)
	}
	_, es, err := binfo.Read(&binfo.Image{Data: data, Base: addr}, nil)
	if errors.Is(err, binfo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "binary info:")
	for _, e := range es {
		fmt.Fprintf(w, "\t%s: %s\n", binfo.IDName(e.ID), e.Value())
	}
	return nil
}
