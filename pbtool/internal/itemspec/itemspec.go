// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package itemspec decodes the XML description of a metadata chain used by
// the build command.
//
//	<chain target="rp2350" region="FLASH" base="0x10000000">
//		<block>
//			<item tag="0x42">0x1021</item>
//			<item tag="0x44">0x10000101 0x20082000</item>
//		</block>
//		<info id="program_name">Blinky</info>
//		<info id="binary_end" type="int">0x10004000</info>
//	</chain>
package itemspec

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/embeddedgo/picobin/binfo"
	"github.com/embeddedgo/picobin/chain"
)

type Uint uint32

func (u *Uint) set(s string) error {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	*u = Uint(v)
	return err
}

func (u *Uint) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	return u.set(s)
}

func (u *Uint) UnmarshalXMLAttr(attr xml.Attr) error {
	return u.set(attr.Value)
}

type Chain struct {
	XMLName xml.Name `xml:"chain"`
	Target  string   `xml:"target,attr"`
	Region  string   `xml:"region,attr"`
	Base    *Uint    `xml:"base,attr"`
	Blocks  []*Block `xml:"block"`
	Info    []*Info  `xml:"info"`
}

type Block struct {
	Items []*Item `xml:"item"`
}

type Item struct {
	Tag   Uint   `xml:"tag,attr"`
	Words string `xml:",chardata"`
}

type Info struct {
	ID    string `xml:"id,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

func Decode(r io.Reader) (*Chain, error) {
	c := new(Chain)
	if err := xml.NewDecoder(r).Decode(c); err != nil {
		return nil, err
	}
	return c, nil
}

// parseWord accepts unsigned and negative numbers in the Go literal syntax.
func parseWord(s string) (uint32, error) {
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 32)
		return uint32(v), err
	}
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

// ChainBlocks returns the blocks described by c.
func (c *Chain) ChainBlocks() ([]chain.Block, error) {
	bs := make([]chain.Block, len(c.Blocks))
	for i, b := range c.Blocks {
		for k, it := range b.Items {
			item := chain.Item{Tag: uint32(it.Tag), Payload: []uint32{}}
			for _, f := range strings.Fields(it.Words) {
				w, err := parseWord(f)
				if err != nil {
					return nil, fmt.Errorf("block %d item %d: %w", i, k, err)
				}
				item.Payload = append(item.Payload, w)
			}
			bs[i].Items = append(bs[i].Items, item)
		}
	}
	return bs, nil
}

// Entries returns the binary info entries described by c.
func (c *Chain) Entries() ([]binfo.Entry, error) {
	es := make([]binfo.Entry, 0, len(c.Info))
	for _, in := range c.Info {
		id, ok := binfo.ParseID(in.ID)
		if !ok {
			v, err := strconv.ParseUint(in.ID, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("info: unknown id %q", in.ID)
			}
			id = uint32(v)
		}
		e := binfo.Entry{ID: id}
		switch in.Type {
		case "", "string":
			e.Type = binfo.TypeIDAndString
			e.String = strings.TrimSpace(in.Value)
		case "int":
			e.Type = binfo.TypeIDAndInt
			v, err := parseWord(strings.TrimSpace(in.Value))
			if err != nil {
				return nil, fmt.Errorf("info %s: %w", in.ID, err)
			}
			e.Int = int32(v)
		default:
			return nil, errors.New("info: unknown type " + in.Type)
		}
		es = append(es, e)
	}
	return es, nil
}
