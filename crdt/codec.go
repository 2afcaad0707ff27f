// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"cmp"
	"fmt"
	"strconv"

	"github.com/creachadair/lattice/packet"
)

// A Codec describes how values of an element type T are encoded in snapshot
// messages, parsed from the text arguments of update operations, and ordered
// for deterministic encoding and queries.
type Codec[T comparable] struct {
	// Name is a short label for the element type. It is appended to the type
	// names of instantiations other than the string default.
	Name string

	Append  func(*packet.Builder, T)
	Scan    func(*packet.Scanner) (T, error)
	Parse   func(string) (T, error)
	Format  func(T) string
	Compare func(a, b T) int
}

// String is the codec for string elements.
var String = Codec[string]{
	Name:    "string",
	Append:  func(b *packet.Builder, s string) { b.VPutString(s) },
	Scan:    packet.VGet[string],
	Parse:   func(s string) (string, error) { return s, nil },
	Format:  strconv.Quote,
	Compare: cmp.Compare[string],
}

// Int64 is the codec for signed integer elements.
var Int64 = Codec[int64]{
	Name:   "int64",
	Append: func(b *packet.Builder, v int64) { b.Varint(v) },
	Scan:   func(s *packet.Scanner) (int64, error) { return s.Varint() },
	Parse: func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	},
	Format:  func(v int64) string { return strconv.FormatInt(v, 10) },
	Compare: cmp.Compare[int64],
}

// typeName returns the registered name of an instantiation of base with the
// given element codecs. String elements use the bare base name.
func typeName(base string, names ...string) string {
	plain := true
	for _, n := range names {
		if n != String.Name {
			plain = false
			break
		}
	}
	if plain {
		return base
	}
	out := base + "["
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out + "]"
}

// scanCount scans an element count, failing if it exceeds the remaining input.
// Every encoded element occupies at least one byte.
func scanCount(s *packet.Scanner, what string) (int, error) {
	n, err := s.Count()
	if err != nil {
		return 0, fmt.Errorf("%s count: %w", what, err)
	}
	if n > s.Len() {
		return 0, fmt.Errorf("%s count %d exceeds input (%d bytes)", what, n, s.Len())
	}
	return n, nil
}

// scanTag checks the kind tag at the head of a message body.
func scanTag(s *packet.Scanner, want byte) error {
	tag, err := s.Byte()
	if err != nil {
		return fmt.Errorf("message tag: %w", err)
	}
	if tag != want {
		return fmt.Errorf("message tag is %#02x, want %#02x", tag, want)
	}
	return nil
}

// Message kind tags. Each message body begins with the tag of its type.
const (
	tagGCounter    = 0x01
	tagPNCounter   = 0x02
	tagGSet        = 0x03
	tagTPSet       = 0x04
	tagTwoPGraph   = 0x05
	tagGMap        = 0x06
	tagGMultiset   = 0x07
	tagGPQueue     = 0x08
	tagLWWRegister = 0x09
	tagLWWMultiset = 0x0a
	tagSequence    = 0x0b
	tagGList       = 0x0c
)
