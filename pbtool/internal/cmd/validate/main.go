// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package validate

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/embeddedgo/picobin/chain"
	"github.com/embeddedgo/picobin/layout"
	"github.com/embeddedgo/picobin/pbtool/internal/util"
	"golang.org/x/sync/errgroup"
)

const Descr = "check that the metadata block chain of the image(s) is valid"

// searchLimit is the size of the image prefix searched for the first block.
const searchLimit = 4096

type options struct {
	start  int
	layout *layout.Descriptor
}

type result struct {
	blocks     int
	start, end int
	noEnd      bool // the chain isn't followed by the end block
	err        error
}

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS] IMAGE...\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	base := util.Uint32Flag(layout.XIPBase)
	fs.Var(&base, "base", "load `address` of the .bin images")
	target := fs.String(
		"target", "rp2350",
		"target device used to check pointers (empty: no checks)",
	)
	start := fs.Int(
		"start", -1,
		"`offset` of the first block in the image (-1: search for it)",
	)
	family := fs.String(
		"family", "", "read only the UF2 blocks of this `family` (empty: any)",
	)
	fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	opts := options{start: *start, layout: util.Target(*target)}
	familyID := util.FamilyFlag(*family)
	names := fs.Args()
	results := make([]result, len(names))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, name := range names {
		g.Go(func() error {
			data, _, err := util.ReadImage(name, uint32(base), familyID)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i] = check(data, &opts)
			return nil
		})
	}
	g.Wait()
	failed := false
	for i, r := range results {
		if r.err != nil {
			failed = true
			fmt.Printf("%s: %s\n", names[i], describe(r.err))
			continue
		}
		if r.noEnd {
			util.Warn("%s: no end block after the chain", names[i])
		}
		fmt.Printf(
			"%s: ok (%d blocks, metadata %#x-%#x)\n",
			names[i], r.blocks, r.start, r.end,
		)
	}
	if failed {
		os.Exit(1)
	}
}

// describe names the first invalid block and the kind of failure.
func describe(err error) string {
	var ce *chain.Error
	kind := chain.Kind(err)
	if !errors.As(err, &ce) || kind == "" {
		return err.Error()
	}
	where := "chain"
	switch {
	case ce.Offset < 0:
	case ce.Op == "span":
		where = fmt.Sprintf("end block at %#x", ce.Offset)
	default:
		where = fmt.Sprintf("block at %#x", ce.Offset)
	}
	return fmt.Sprintf("%s: %s (%v)", where, kind, err)
}

// check validates the whole chain of a flattened image.
func check(data []byte, opts *options) (r result) {
	r.start = opts.start
	if r.start < 0 {
		var spanErr, err error
		r.start, r.end, spanErr = chain.Span(data)
		if spanErr != nil {
			if r.start, err = chain.Find(data, searchLimit); err != nil {
				r.err = spanErr
				return
			}
		}
	}
	bs, err := chain.Blocks(data, r.start)
	r.blocks = len(bs)
	if err != nil {
		r.err = err
		return
	}
	if opts.layout != nil {
		if r.err = chain.CheckPointers(bs, opts.layout); r.err != nil {
			return
		}
	}
	r.end = bs[len(bs)-1].End()
	if _, err := chain.DecodeEndBlock(data, r.end); err != nil {
		r.noEnd = true // valid but unusual
		return
	}
	_, r.err = chain.SpanFrom(data, r.start)
	return
}
