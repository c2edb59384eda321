// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"strconv"

	"github.com/embeddedgo/picobin/layout"
)

var (
	ErrNotABlock           = errors.New("not a block")
	ErrMalformedItemRegion = errors.New("malformed item region")
	ErrTruncatedItem       = errors.New("truncated item")
	ErrMalformedFooter     = errors.New("malformed block footer")
	ErrCrcMismatch         = errors.New("crc mismatch")
	ErrCyclicChain         = errors.New("cyclic chain")
	ErrOutOfRange          = layout.ErrOutOfRange
	ErrRegionOverflow      = errors.New("region overflow")
	ErrEmptyChain          = errors.New("empty chain")
	ErrInconsistentSpan    = errors.New("inconsistent span")
)

// Error describes a failure at a given byte offset of the decoded buffer.
// Offset is -1 if the error isn't related to any particular place.
type Error struct {
	Op     string
	Offset int
	Err    error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	s := "chain: " + e.Op
	if e.Offset >= 0 {
		s += " at 0x" + strconv.FormatUint(uint64(e.Offset), 16)
	}
	return s + ": " + e.Err.Error()
}

func newErr(op string, off int, err error) error {
	return &Error{op, off, err}
}

// Terminal reports whether err ends a chain walk even though the broken
// block itself was structurally readable.
func Terminal(err error) bool {
	return errors.Is(err, ErrCrcMismatch) || errors.Is(err, ErrCyclicChain)
}

// Kind returns the name of the sentinel error wrapped by err or an empty
// string if err doesn't wrap any of them.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotABlock, "NotABlock"},
	{ErrMalformedItemRegion, "MalformedItemRegion"},
	{ErrTruncatedItem, "TruncatedItem"},
	{ErrMalformedFooter, "MalformedFooter"},
	{ErrCrcMismatch, "CrcMismatch"},
	{ErrCyclicChain, "CyclicChain"},
	{ErrOutOfRange, "OutOfRange"},
	{ErrRegionOverflow, "RegionOverflow"},
	{ErrEmptyChain, "EmptyChain"},
	{ErrInconsistentSpan, "InconsistentSpan"},
}
