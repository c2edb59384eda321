// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	BlockSignature uint32 = 0xffffded3
	BlockEndMarker uint32 = 0xab123579

	// LinkEnd is the link value of the last block in the chain.
	LinkEnd int32 = 0
)

const (
	blockHeadSize = 2 * 4 // signature, item region length
	blockTailSize = 4 * 4 // link, crc, self, end marker
	minBlockSize  = blockHeadSize + blockTailSize
)

var signature = binary.LittleEndian.AppendUint32(nil, BlockSignature)

// Block is one CRC protected unit of the chain. Link is the signed
// distance in words from the start of this block to the start of the next
// one. Self and CRC are filled in by DecodeBlock and AppendBlock.
type Block struct {
	Items []Item
	Link  int32
	Self  uint32
	CRC   uint32
}

func (b *Block) itemWords() int {
	n := 0
	for _, it := range b.Items {
		n += it.Size() / 4
	}
	return n
}

// Size returns the size of the encoded block in bytes.
func (b *Block) Size() int {
	return minBlockSize + 4*b.itemWords()
}

// Find returns the first item with the given tag. Later items with the same
// tag override the earlier ones, use FindLast to obtain the effective one.
func (b *Block) Find(tag uint32) (Item, bool) {
	for _, it := range b.Items {
		if it.Tag == tag {
			return it, true
		}
	}
	return Item{}, false
}

// FindLast returns the last item with the given tag.
func (b *Block) FindLast(tag uint32) (Item, bool) {
	for i := len(b.Items) - 1; i >= 0; i-- {
		if b.Items[i].Tag == tag {
			return b.Items[i], true
		}
	}
	return Item{}, false
}

// AppendBlock appends the encoded block to buf. The link is taken from b as
// is, the self offset and the CRC are computed. The block must start at a
// word aligned offset of buf.
func AppendBlock(buf []byte, b *Block) []byte {
	le := binary.LittleEndian
	start := len(buf)
	n := b.itemWords()
	buf = le.AppendUint32(buf, BlockSignature)
	buf = le.AppendUint32(buf, uint32(n))
	for _, it := range b.Items {
		buf = AppendItem(buf, it)
	}
	buf = le.AppendUint32(buf, uint32(b.Link))
	b.CRC = crc32.ChecksumIEEE(buf[start:])
	b.Self = uint32(n + 4)
	buf = le.AppendUint32(buf, b.CRC)
	buf = le.AppendUint32(buf, b.Self)
	return le.AppendUint32(buf, BlockEndMarker)
}

// EncodeBlock returns the encoded block.
func EncodeBlock(b *Block) []byte {
	return AppendBlock(make([]byte, 0, b.Size()), b)
}

// DecodeBlock decodes the block that starts at buf[off]. The returned
// *Error always points at the block, not at the broken word inside it.
//
// The CRC is verified before the items are decoded so any corruption of the
// covered words is reported as ErrCrcMismatch.
func DecodeBlock(buf []byte, off int) (b Block, err error) {
	const op = "decode block"
	if off < 0 || off&3 != 0 || len(buf)-off < 4 ||
		subtle.ConstantTimeCompare(buf[off:off+4], signature) != 1 {
		return b, newErr(op, off, ErrNotABlock)
	}
	if len(buf)-off < minBlockSize {
		return b, newErr(op, off, fmt.Errorf(
			"%w: %d bytes left", ErrMalformedItemRegion, len(buf)-off,
		))
	}
	le := binary.LittleEndian
	n := le.Uint32(buf[off+4:])
	if uint64(n) > uint64(len(buf)-off-minBlockSize)/4 {
		return b, newErr(op, off, fmt.Errorf(
			"%w: length %d words exceeds the buffer", ErrMalformedItemRegion, n,
		))
	}
	end := off + blockHeadSize + 4*int(n) // end of the item region
	b.Link = int32(le.Uint32(buf[end:]))
	b.CRC = le.Uint32(buf[end+4:])
	b.Self = le.Uint32(buf[end+8:])
	if crc := crc32.ChecksumIEEE(buf[off : end+4]); crc != b.CRC {
		return b, newErr(op, off, fmt.Errorf(
			"%w: stored %#08x, computed %#08x", ErrCrcMismatch, b.CRC, crc,
		))
	}
	for p := off + blockHeadSize; p != end; {
		if end-p < itemHeaderSize {
			return b, newErr(op, off, fmt.Errorf(
				"%w: %d bytes remain at %#x", ErrMalformedItemRegion, end-p, p,
			))
		}
		it, m, err := DecodeItem(buf, p, end)
		if err != nil {
			return b, err
		}
		b.Items = append(b.Items, it)
		p += m
	}
	if b.Self != n+4 {
		return b, newErr(op, off, fmt.Errorf(
			"%w: self offset %d, want %d", ErrMalformedFooter, b.Self, n+4,
		))
	}
	if m := le.Uint32(buf[end+12:]); m != BlockEndMarker {
		return b, newErr(op, off, fmt.Errorf(
			"%w: end marker %#08x", ErrMalformedFooter, m,
		))
	}
	return b, nil
}
