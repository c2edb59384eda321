// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"
)

type Section struct {
	Paddr uint64 // phisical location of the section in the Flash/ROM
	Data  []byte // section data
}

type Sections []*Section

// Size returns the number of bytes of all sections (without gaps).
func (ss Sections) Size() int {
	n := 0
	for _, s := range ss {
		n += len(s.Data)
	}
	return n
}

// ReadELF reads the loadable sections of the program and returns them as
// a slice. The order of the returned sections is unspecified.
func ReadELF(r io.ReaderAt) (Sections, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ss := make(Sections, 0, 16)
	for _, s := range f.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		paddr := s.Addr
		for _, p := range f.Progs {
			if p.Type != elf.PT_LOAD {
				continue
			}
			if p.Off <= s.Offset && s.Offset < p.Off+p.Filesz {
				paddr = p.Paddr + s.Offset - p.Off
				break
			}
		}
		ss = append(ss, &Section{paddr, data})
	}
	return ss, nil
}

// ReadHex reads an Intel HEX file.
func ReadHex(r io.Reader) (Sections, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, err
	}
	var ss Sections
	for _, seg := range mem.GetDataSegments() {
		ss = append(ss, &Section{uint64(seg.Address), seg.Data})
	}
	return ss, nil
}

// SortByPaddr sorts sections according to the Paddr field.
func (ss Sections) SortByPaddr() {
	sort.Slice(
		ss,
		func(i, j int) bool {
			return ss[i].Paddr < ss[j].Paddr
		},
	)
}

// Flatten flattens sections by writting their data to the provided io.Writer
// according to the Paddr field (before writting the sections are sorted using
// SortPaddr method). The gaps between sections are filled using the pad byte.
func (ss Sections) Flatten(w io.Writer, pad byte) (n int, err error) {
	if len(ss) == 0 {
		return
	}
	ss.SortByPaddr()
	pa := ss[0].Paddr
	n, err = w.Write(ss[0].Data)
	if err != nil {
		return
	}
	pa += uint64(n)
	var padCache []byte
	for _, s := range ss[1:] {
		if s.Paddr < pa {
			err = errors.New("flatten: overlaping sections")
			return
		}
		m := int(s.Paddr - pa)
		if m != 0 {
			m, err = w.Write(PadBytes(&padCache, m, pad))
			n += m
			if err != nil {
				return
			}
			pa += uint64(m)
		}
		m, err = w.Write(s.Data)
		n += m
		if err != nil {
			return
		}
		pa += uint64(m)
	}
	return
}

// PadBytes returns the slice containing n byte equal b.
func PadBytes(cache *[]byte, n int, b byte) []byte {
	if len(*cache) < n {
		*cache = make([]byte, n)
		for i := range *cache {
			(*cache)[i] = b
		}
	}
	return (*cache)[:n]
}

// ReadImage reads the image file and returns its content flattened to
// a single byte slice together with its load address. The format is
// determined by the file name suffix. The .bin files don't carry the load
// address so binBase is used for them. The UF2 blocks of families other than
// family are ignored (0 accepts any family).
func ReadImage(name string, binBase, family uint32) (data []byte, base uint32, err error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	var ss Sections
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".bin", "":
		data, err = io.ReadAll(f)
		return data, binBase, err
	case ".elf":
		ss, err = ReadELF(f)
	case ".hex", ".ihex":
		ss, err = ReadHex(f)
	case ".uf2":
		ss, err = ReadUF2(f, family)
	default:
		return nil, 0, fmt.Errorf("%s: unknown image format %s", name, ext)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", name, err)
	}
	if len(ss) == 0 {
		return nil, 0, fmt.Errorf("%s: no loadable data", name)
	}
	buf := bytes.NewBuffer(make([]byte, 0, ss.Size()*5/4))
	if _, err = ss.Flatten(buf, 0xff); err != nil {
		return nil, 0, err
	}
	if ss[0].Paddr > 0xffff_ffff {
		return nil, 0, fmt.Errorf("%s: address %#x doesn't fit in 32 bits", name, ss[0].Paddr)
	}
	return buf.Bytes(), uint32(ss[0].Paddr), nil
}

// WriteImage writes data loaded at base to the named file in the format
// selected by the file name suffix. The family is used for UF2 files only.
func WriteImage(name string, base uint32, data []byte, family uint32) (err error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".bin", ".hex", ".ihex", ".uf2":
	default:
		return fmt.Errorf("%s: unknown output format %s", name, ext)
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if e := f.Close(); err == nil {
			err = e
		}
	}()
	switch ext {
	case ".bin":
		_, err = f.Write(data)
	case ".hex", ".ihex":
		mem := gohex.NewMemory()
		if err = mem.AddBinary(base, data); err != nil {
			return err
		}
		err = mem.DumpIntelHex(f, 16)
	case ".uf2":
		w := NewUF2Writer(f, base, UF2FamilyIDPresent, family, len(data))
		if _, err = w.Write(data); err != nil {
			return err
		}
		err = w.Flush()
	}
	return err
}
