// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package packet_test

import (
	"errors"
	"io"
	"testing"

	"github.com/creachadair/lattice/packet"
	"github.com/google/go-cmp/cmp"
)

func TestVint30(t *testing.T) {
	tests := []struct {
		input packet.Vint30
		want  string
	}{
		// Single-byte encodings.
		{0, "\x00"},
		{1, "\x04"},
		{63, "\xfc"},

		// Two-byte encodings.
		{64, "\x01\x01"},
		{100, "\x91\x01"},
		{500, "\xd1\x07"},
		{16383, "\xfd\xff"},

		// Three-byte encodings.
		{16384, "\x02\x00\x01"},
		{65000, "\xa2\xf7\x03"},
		{1048576, "\x02\x00\x40"},

		// Four-byte encodings.
		{62830181, "\x97\xd9\xfa\x0e"},
		{536896023, "\x5f\x88\x01\x80"},
		{1073741823, "\xff\xff\xff\xff"}, // maximum supported value
	}

	var packed []byte
	for _, tc := range tests {
		got := tc.input.Append(nil)
		if string(got) != tc.want {
			t.Errorf("Encode %d: got %v, want %v", tc.input, got, []byte(tc.want))
		}
		packed = tc.input.Append(packed) // see below

		// Make sure the value round-trips individually.
		s := packet.NewScanner(got)
		cmp, err := s.Vint30()
		if err != nil {
			t.Errorf("Scan: unexpected error: %v", err)
		} else if packet.Vint30(cmp) != tc.input {
			t.Errorf("Scan: got %v, want %v", cmp, tc.input)
		}
	}

	// Now decode the accumulated results to verify self-framing.
	t.Logf("Packed: %v", packed)
	s := packet.NewScanner(packed)
	var i int
	for s.Len() != 0 {
		got, err := s.Vint30()
		if err != nil {
			t.Fatalf("Invalid encoding at offset %d: %v", s.Offset(), err)
		} else if i > len(tests) {
			t.Errorf("Index %d: got extra value %d", i, got)
		} else if packet.Vint30(got) != tests[i].input {
			t.Errorf("Index %d: got %v, want %v", i, got, tests[i].input)
		}
		i++
	}
}

func TestBuilder(t *testing.T) {
	var b packet.Builder
	b.Bool(true)
	b.Put(5, 9, 100)
	b.Uint32(0xfc009a01)
	b.Vint30(999)
	b.VPutString("apple")
	b.VPut([]byte("pear"))
	b.Put([]byte("xyzzy")...)
	b.Uvarint(300)
	b.Varint(-3)

	const want = "\x01\x05\x09\x64\xfc\x00\x9a\x01\x9d\x0f\x14apple\x10pearxyzzy\xac\x02\x05"
	//  ^   ^---^---^-- ^-------------- ^-----  ^------- ^------^----
	// bool  byte*3        uint32          vint30  string   bytes literal
	//
	// followed by uvarint and zig-zag varint

	if n := b.Len(); n != len(want) {
		t.Errorf("Len = %d, want %d", n, len(want))
	}
	if string(b.Bytes()) != want {
		t.Errorf("Bytes = %q, want %q", b.Bytes(), want)
	}

	s := packet.NewScanner(b.Bytes())
	check(t, "Bool", s.Bool, true)
	check(t, "Byte 1", s.Byte, 5)
	check(t, "Byte 2", s.Byte, 9)
	check(t, "Byte 3", s.Byte, 100)
	check(t, "Uint32", s.Uint32, 0xfc009a01)
	check(t, "Vint30", s.Vint30, 999)
	check(t, "VString", func() (string, error) { return packet.VGet[string](s) }, "apple")
	check(t, "VBytes", func() ([]byte, error) { return packet.VGet[[]byte](s) }, []byte("pear"))
	check(t, "Literal", func() (string, error) { return packet.Get[string](s, 5) }, "xyzzy")
	check(t, "Uvarint", s.Uvarint, 300)
	check(t, "Varint", s.Varint, -3)

	if err := s.Done(); err != nil {
		t.Errorf("Extra data at EOF: %v", err)
	}
}

func TestTruncated(t *testing.T) {
	tests := []struct {
		name  string
		input string
		scan  func(*packet.Scanner) error
	}{
		{"Byte", "", func(s *packet.Scanner) error { _, err := s.Byte(); return err }},
		{"Count", "", func(s *packet.Scanner) error { _, err := s.Count(); return err }},
		{"Uint32", "\x01\x02", func(s *packet.Scanner) error { _, err := s.Uint32(); return err }},
		{"Uvarint", "\x80", func(s *packet.Scanner) error { _, err := s.Uvarint(); return err }},
		{"Varint", "", func(s *packet.Scanner) error { _, err := s.Varint(); return err }},
		{"Vint30", "\x01", func(s *packet.Scanner) error { _, err := s.Vint30(); return err }},
		{"VGet", "\x14app", func(s *packet.Scanner) error { _, err := packet.VGet[string](s); return err }},
		{"Get", "ab", func(s *packet.Scanner) error { _, err := packet.Get[string](s, 3); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.scan(packet.NewScanner(tc.input))
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("Scan %q: got error %v, want %v", tc.input, err, io.ErrUnexpectedEOF)
			}
		})
	}

	// An empty input is a clean end for a bare Vint30.
	if _, err := packet.NewScanner("").Vint30(); err != io.EOF {
		t.Errorf("Vint30 on empty input: got %v, want %v", err, io.EOF)
	}
}

func TestDone(t *testing.T) {
	s := packet.NewScanner("\x01\x02")
	if err := s.Done(); err == nil {
		t.Error("Done with 2 bytes remaining: got nil error")
	}
	s.Byte()
	s.Byte()
	if err := s.Done(); err != nil {
		t.Errorf("Done at end of input: unexpected error: %v", err)
	}
}

func check[T any](t *testing.T, label string, f func() (T, error), want T) {
	t.Helper()

	got, err := f()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", label, err)
	} else if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("%s result (-got, +want):\n%s", label, diff)
	}
}
