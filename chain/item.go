// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chain encodes, decodes and validates the chain of metadata blocks
// embedded in a firmware image.
//
// Every block starts with a signature word, contains an ordered list of
// tagged items and ends with a link to the next block, a CRC, a backward
// self offset and an end marker. The builder places an end block after the
// last block of the chain that records the distance between both extremes
// of the metadata region in both directions.
//
// All fields are 32-bit little-endian words and all offsets are expressed in
// words.
package chain

import (
	"encoding/binary"
	"fmt"
)

const itemHeaderSize = 2 * 4 // tag, length

// Item is a single tagged record. Payload is always a whole number of
// words. The items with unknown tags are preserved as is.
type Item struct {
	Tag     uint32
	Payload []uint32
}

// Size returns the encoded size of the item in bytes.
func (it Item) Size() int {
	return itemHeaderSize + 4*len(it.Payload)
}

func (it Item) Equal(o Item) bool {
	if it.Tag != o.Tag || len(it.Payload) != len(o.Payload) {
		return false
	}
	for i, w := range it.Payload {
		if o.Payload[i] != w {
			return false
		}
	}
	return true
}

func (it Item) String() string {
	return fmt.Sprintf("tag=%#x payload=%#x", it.Tag, it.Payload)
}

// AppendItem appends the encoded item to buf and returns the extended
// buffer.
func AppendItem(buf []byte, it Item) []byte {
	le := binary.LittleEndian
	buf = le.AppendUint32(buf, it.Tag)
	buf = le.AppendUint32(buf, uint32(len(it.Payload)))
	for _, w := range it.Payload {
		buf = le.AppendUint32(buf, w)
	}
	return buf
}

// DecodeItem decodes the item that starts at buf[off]. The item must end
// before buf[end] which is the end of the enclosing item region. It returns
// the item and the number of bytes consumed.
func DecodeItem(buf []byte, off, end int) (it Item, n int, err error) {
	if end > len(buf) {
		end = len(buf)
	}
	if off < 0 || end-off < itemHeaderSize {
		return it, 0, newErr("decode item", off, ErrTruncatedItem)
	}
	le := binary.LittleEndian
	it.Tag = le.Uint32(buf[off:])
	words := le.Uint32(buf[off+4:])
	if uint64(words) > uint64(end-off-itemHeaderSize)/4 {
		return Item{}, 0, newErr(
			"decode item", off,
			fmt.Errorf("%w: %d payload words", ErrTruncatedItem, words),
		)
	}
	p := off + itemHeaderSize
	it.Payload = make([]uint32, words)
	for i := range it.Payload {
		it.Payload[i] = le.Uint32(buf[p:])
		p += 4
	}
	return it, p - off, nil
}
