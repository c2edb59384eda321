// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"encoding/binary"
	"errors"
	"testing"
)

func testChain() []Block {
	return []Block{
		{Items: []Item{
			ImageDef{ImageTypeExe | ExeSecS | ExeChipRP2350}.Item(),
			EntryPoint{PC: 0x10000101, SP: 0x20082000}.Item(),
		}},
		{Items: []Item{{0xdeadbeef, []uint32{0xcafe, 0xf00d}}}},
		{Items: []Item{Version{Major: 1, Minor: 3}.Item(), ImageSize{8192}.Item()}},
	}
}

func TestWalkRoundTrip(t *testing.T) {
	want := testChain()
	buf, err := Build(want...)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Blocks(buf, 0)
	if err != nil {
		t.Fatalf("Blocks() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(got), len(want))
	}
	for i := range want {
		if len(got[i].Items) != len(want[i].Items) {
			t.Fatalf("block %d: got %d items, want %d",
				i, len(got[i].Items), len(want[i].Items))
		}
		for k, it := range want[i].Items {
			if !got[i].Items[k].Equal(it) {
				t.Errorf("block %d item %d = %v, want %v", i, k, got[i].Items[k], it)
			}
		}
	}
	if last := got[len(got)-1]; last.Link != LinkEnd {
		t.Errorf("last link = %d, want %d", last.Link, LinkEnd)
	}
}

func TestWalkSingleItem(t *testing.T) {
	buf, err := Build(Block{Items: []Item{{1, []uint32{7}}}})
	if err != nil {
		t.Fatal(err)
	}
	bs, err := Blocks(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != 1 || len(bs[0].Items) != 1 {
		t.Fatalf("got %v", bs)
	}
	if it := bs[0].Items[0]; !it.Equal(Item{1, []uint32{7}}) {
		t.Errorf("item = %v", it)
	}

	// Payload word: signature, region length, tag, length.
	binary.LittleEndian.PutUint32(buf[16:], 8)
	bs, err = Blocks(buf, 0)
	if !errors.Is(err, ErrCrcMismatch) || len(bs) != 0 {
		t.Errorf("Blocks() = %d blocks, %v, want 0, %v", len(bs), err, ErrCrcMismatch)
	}
}

func TestWalkStopsAtCorruptBlock(t *testing.T) {
	buf, err := Build(testChain()...)
	if err != nil {
		t.Fatal(err)
	}
	all, err := Blocks(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range all {
		bad := append([]byte(nil), buf...)
		bad[b.Offset+blockHeadSize] ^= 0x10 // first item tag
		bs, err := Blocks(bad, 0)
		if !errors.Is(err, ErrCrcMismatch) {
			t.Fatalf("block %d: error = %v, want %v", i, err, ErrCrcMismatch)
		}
		if !Terminal(err) {
			t.Errorf("block %d: Terminal(%v) = false", i, err)
		}
		if len(bs) != i {
			t.Errorf("block %d: got %d valid blocks, want %d", i, len(bs), i)
		}
		var ce *Error
		if !errors.As(err, &ce) || ce.Offset != b.Offset {
			t.Errorf("block %d: error %v doesn't point at %#x", i, err, b.Offset)
		}
	}
}

func TestWalkCycle(t *testing.T) {
	b0 := &Block{Items: []Item{{1, []uint32{1}}}}
	b1 := &Block{Items: []Item{{2, []uint32{2, 2}}}}
	b0.Link = int32(b0.Size() / 4)
	b1.Link = -b0.Link
	buf := AppendBlock(nil, b0)
	buf = AppendBlock(buf, b1)

	bs, err := Blocks(buf, 0)
	if !errors.Is(err, ErrCyclicChain) {
		t.Fatalf("Blocks() error = %v, want %v", err, ErrCyclicChain)
	}
	if len(bs) != 2 {
		t.Errorf("got %d blocks before the cycle, want 2", len(bs))
	}
}

func TestWalkLinkOutside(t *testing.T) {
	b := &Block{Items: []Item{{1, nil}}, Link: 1000}
	_, err := Blocks(EncodeBlock(b), 0)
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Blocks() error = %v, want %v", err, ErrOutOfRange)
	}
}

func TestWalkerRestart(t *testing.T) {
	buf, err := Build(testChain()...)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWalker(buf, 0)
	if !w.Next() {
		t.Fatal(w.Err())
	}
	first := w.Block().Offset
	w.Next()
	w.Reset()
	n := 0
	for w.Next() {
		if n == 0 && w.Block().Offset != first {
			t.Errorf("restarted at %#x, want %#x", w.Block().Offset, first)
		}
		n++
	}
	if w.Err() != nil || n != 3 {
		t.Errorf("walked %d blocks, error %v", n, w.Err())
	}
}

func TestWalkEarlyStop(t *testing.T) {
	buf, err := Build(testChain()...)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the last block, a consumer that stops after the first block
	// never sees it.
	all, _ := Blocks(buf, 0)
	buf[all[2].Offset+blockHeadSize] ^= 1
	for b, err := range Walk(buf, 0) {
		if err != nil {
			t.Fatal(err)
		}
		if b.Offset != 0 {
			t.Fatalf("first block at %#x", b.Offset)
		}
		break
	}
}

func TestReencodeUnknownTag(t *testing.T) {
	buf, err := Build(testChain()...)
	if err != nil {
		t.Fatal(err)
	}
	located, err := Blocks(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	blocks := make([]Block, len(located))
	for i, l := range located {
		blocks[i] = l.Block
	}
	if _, ok := blocks[1].Items[0].Value().(Opaque); !ok {
		t.Fatalf("unknown tag decoded as %T", blocks[1].Items[0].Value())
	}
	again, err := Build(blocks...)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(buf) {
		t.Errorf("re-encoded chain differs")
	}
}

func TestFind(t *testing.T) {
	buf, err := Build(testChain()...)
	if err != nil {
		t.Fatal(err)
	}
	img := append(make([]byte, 0x100), buf...)
	off, err := Find(img, 4096)
	if err != nil || off != 0x100 {
		t.Errorf("Find() = %#x, %v, want 0x100", off, err)
	}
	if _, err := Find(img, 0x80); !errors.Is(err, ErrNotABlock) {
		t.Errorf("Find() error = %v, want %v", err, ErrNotABlock)
	}
}
