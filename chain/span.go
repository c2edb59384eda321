// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"encoding/binary"
	"fmt"
)

// walkBlocks is replaced in tests to count the forward walks.
var walkBlocks = Blocks

const EndBlockMarker uint32 = 0x5e1fb10c

const EndBlockSize = 3 * 4

// EndBlock follows the last block of the chain. It records the distance in
// bytes from the start of the first block to the end of the last one in
// both directions.
type EndBlock struct {
	StartToEnd int32
	EndToStart int32
}

// AppendEndBlock appends the end block for a chain of size bytes.
func AppendEndBlock(buf []byte, size int) []byte {
	le := binary.LittleEndian
	buf = le.AppendUint32(buf, EndBlockMarker)
	buf = le.AppendUint32(buf, uint32(int32(size)))
	return le.AppendUint32(buf, uint32(-int32(size)))
}

// DecodeEndBlock decodes the end block at buf[off].
func DecodeEndBlock(buf []byte, off int) (e EndBlock, err error) {
	le := binary.LittleEndian
	if off < 0 || off&3 != 0 || len(buf)-off < EndBlockSize ||
		le.Uint32(buf[off:]) != EndBlockMarker {
		return e, newErr("decode end block", off, ErrNotABlock)
	}
	e.StartToEnd = int32(le.Uint32(buf[off+4:]))
	e.EndToStart = int32(le.Uint32(buf[off+8:]))
	return e, nil
}

// SpanFrom walks the chain forward from buf[start] and returns the offset of
// the end block. It checks that the end block agrees with the walk in both
// directions.
func SpanFrom(buf []byte, start int) (end int, err error) {
	bs, err := Blocks(buf, start)
	if err != nil {
		return -1, err
	}
	last := bs[len(bs)-1]
	end = last.End()
	e, err := DecodeEndBlock(buf, end)
	if err != nil {
		return -1, err
	}
	if err = checkSpan(buf, start, end, e, &last); err != nil {
		return -1, err
	}
	return end, nil
}

// Span locates the metadata region of the image without knowing where it
// starts. It searches backward for the end block, computes the start of the
// chain from the backward distance and then verifies the result by walking
// the chain forward. The returned end is the offset of the end block which
// is equal to the end of the last block.
//
// Only the end blocks whose distances agree with each other are verified
// and every start offset is walked at most once.
func Span(buf []byte) (start, end int, err error) {
	err = newErr("span", -1, fmt.Errorf("%w: no end block", ErrNotABlock))
	type walk struct {
		last Located
		err  error
	}
	walked := make(map[int]walk)
	for off := (len(buf) - EndBlockSize) &^ 3; off >= 0; off -= 4 {
		e, derr := DecodeEndBlock(buf, off)
		if derr != nil {
			continue
		}
		s := off + int(e.EndToStart)
		if s < 0 || s >= off || s&3 != 0 {
			err = newErr("span", off, fmt.Errorf(
				"%w: end_to_start %d", ErrInconsistentSpan, e.EndToStart,
			))
			continue
		}
		if cerr := checkDistances(s, off, e); cerr != nil {
			err = cerr
			continue
		}
		w, ok := walked[s]
		if !ok {
			var bs []Located
			if bs, w.err = walkBlocks(buf, s); w.err == nil {
				w.last = bs[len(bs)-1]
			}
			walked[s] = w
		}
		if w.err != nil {
			err = w.err
			continue
		}
		if cerr := checkSpan(buf, s, off, e, &w.last); cerr != nil {
			err = cerr
			continue
		}
		return s, off, nil
	}
	return -1, -1, err
}

// checkDistances checks the end block against the start and end offsets
// alone.
func checkDistances(start, end int, e EndBlock) error {
	var msg string
	switch {
	case e.StartToEnd != -e.EndToStart:
		msg = fmt.Sprintf(
			"start_to_end %d != -end_to_start %d", e.StartToEnd, e.EndToStart,
		)
	case int(e.StartToEnd) != end-start:
		msg = fmt.Sprintf(
			"start_to_end %d, forward walk %d", e.StartToEnd, end-start,
		)
	default:
		return nil
	}
	return newErr("span", end, fmt.Errorf("%w: %s", ErrInconsistentSpan, msg))
}

// checkSpan checks that the forward and backward computations of the chain
// extremes agree.
func checkSpan(buf []byte, start, end int, e EndBlock, last *Located) error {
	if err := checkDistances(start, end, e); err != nil {
		return err
	}
	var msg string
	if last.End() != end {
		msg = fmt.Sprintf("last block ends at %#x", last.End())
	} else {
		// The end marker of the last block leads back to its start.
		selfAt := end - 8
		self := int(binary.LittleEndian.Uint32(buf[selfAt:]))
		if selfAt-4*self == last.Offset {
			return nil
		}
		msg = fmt.Sprintf("self offset %d of the last block", self)
	}
	return newErr("span", end, fmt.Errorf("%w: %s", ErrInconsistentSpan, msg))
}
