// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"
	"strconv"

	"github.com/embeddedgo/picobin/layout"
)

func Warn(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}

func Fatal(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

// FatalError prints an error description and exits the program if the
// err != nil.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	s := err.Error() + "\n"
	if what != "" {
		s = what + ": " + s
	}
	os.Stderr.WriteString(s)
	os.Exit(1)
}

// FamilyFlag returns the UF2 family ID selected by the named flag value or
// exits the program if it's invalid. An empty name selects any family.
func FamilyFlag(name string) uint32 {
	if name == "" {
		return 0
	}
	id, err := UF2Family(name)
	FatalErr("", err)
	return id
}

// Uint32Flag is a flag.Value that accepts 32-bit numbers in the Go literal
// syntax (0x10000000, 0b1010, 1_000).
type Uint32Flag uint32

func (u *Uint32Flag) String() string {
	return "0x" + strconv.FormatUint(uint64(*u), 16)
}

func (u *Uint32Flag) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return err
	}
	*u = Uint32Flag(v)
	return nil
}

// Target returns the memory layout of the named target or exits the
// program if the target is unknown. An empty name means no layout checks.
func Target(name string) *layout.Descriptor {
	if name == "" {
		return nil
	}
	d, ok := layout.Target(name)
	if !ok {
		Fatal("unknown target: %s (known: %v)", name, layout.Targets())
	}
	return d
}
