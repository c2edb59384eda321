// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"fmt"
	"iter"

	"github.com/embeddedgo/picobin/layout"
)

// Located is a decoded block together with its byte offset in the buffer.
type Located struct {
	Block
	Offset int
}

// End returns the offset of the first byte after the block.
func (l *Located) End() int {
	return l.Offset + l.Size()
}

// Walker walks the chain forward following the block links. It decodes
// blocks lazily, one per Next call. The walk stops at the last block, at
// the first block that fails to decode and when a block is visited twice.
type Walker struct {
	buf     []byte
	start   int
	next    int
	done    bool
	visited map[int]struct{}
	cur     Located
	err     error
}

// NewWalker returns a walker of the chain that starts at buf[start].
func NewWalker(buf []byte, start int) *Walker {
	w := &Walker{buf: buf, start: start}
	w.Reset()
	return w
}

// Reset restarts the walk from the first block.
func (w *Walker) Reset() {
	w.next = w.start
	w.done = false
	w.visited = make(map[int]struct{})
	w.cur = Located{}
	w.err = nil
}

// Next decodes the next block. It returns false at the end of the chain or
// on error.
func (w *Walker) Next() bool {
	if w.done {
		return false
	}
	off := w.next
	if off < 0 || off >= len(w.buf) {
		return w.fail(newErr("walk", off, fmt.Errorf(
			"%w: link outside the image (%d bytes)", ErrOutOfRange, len(w.buf),
		)))
	}
	// Every visited offset is a distinct, word aligned start of a valid
	// block so the set never exceeds len(buf)/minBlockSize entries.
	if _, ok := w.visited[off]; ok {
		return w.fail(newErr("walk", off, ErrCyclicChain))
	}
	w.visited[off] = struct{}{}
	b, err := DecodeBlock(w.buf, off)
	if err != nil {
		return w.fail(err)
	}
	w.cur = Located{b, off}
	if b.Link == LinkEnd {
		w.done = true
	} else {
		w.next = off + 4*int(b.Link)
	}
	return true
}

func (w *Walker) fail(err error) bool {
	w.err = err
	w.done = true
	w.cur = Located{}
	return false
}

// Block returns the block decoded by the last successful Next call.
func (w *Walker) Block() Located {
	return w.cur
}

// Err returns the error that stopped the walk, if any.
func (w *Walker) Err() error {
	return w.err
}

// Walk returns a sequence of the chain blocks starting at buf[start]. If
// the walk fails the last pair yielded carries the error. Every call of
// the returned sequence walks the chain from scratch.
func Walk(buf []byte, start int) iter.Seq2[Located, error] {
	return func(yield func(Located, error) bool) {
		w := NewWalker(buf, start)
		for w.Next() {
			if !yield(w.Block(), nil) {
				return
			}
		}
		if err := w.Err(); err != nil {
			yield(Located{}, err)
		}
	}
}

// Blocks returns all valid blocks of the chain. The blocks decoded before
// an error are returned together with the error.
func Blocks(buf []byte, start int) ([]Located, error) {
	var bs []Located
	for b, err := range Walk(buf, start) {
		if err != nil {
			return bs, err
		}
		bs = append(bs, b)
	}
	return bs, nil
}

// Find returns the offset of the first block signature found at a word
// aligned offset in buf[:limit], the way the boot ROM searches the
// beginning of the flash.
func Find(buf []byte, limit int) (int, error) {
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}
	for off := 0; off+4 <= limit; off += 4 {
		if bytes.Equal(buf[off:off+4], signature) {
			return off, nil
		}
	}
	return -1, newErr("find", -1, ErrNotABlock)
}

// CheckPointers checks that all addresses stored in the items of the blocks
// point into the memory described by d.
func CheckPointers(bs []Located, d *layout.Descriptor) error {
	for _, b := range bs {
		for _, it := range b.Items {
			if err := it.CheckPointers(d); err != nil {
				return newErr("check", b.Offset, fmt.Errorf(
					"item %#x: %w", it.Tag, err,
				))
			}
		}
	}
	return nil
}
