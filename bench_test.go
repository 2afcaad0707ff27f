// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package lattice_test

import (
	"fmt"
	"testing"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/crdt"
)

func BenchmarkEnvelope(b *testing.B) {
	s := crdt.NewGSet(crdt.String)
	for i := range 500 {
		s.Add(fmt.Sprintf("element-%d", i))
	}
	env := lattice.Envelope{
		Kind:    lattice.KindSnapshot,
		Object:  lattice.NamedObject("bench"),
		Type:    s.TypeName(),
		Payload: s.Snapshot().Encode(),
	}
	enc := env.Encode()

	b.Run("Encode", func(b *testing.B) {
		for b.Loop() {
			env.Encode()
		}
	})
	b.Run("Decode", func(b *testing.B) {
		var out lattice.Envelope
		for b.Loop() {
			if err := out.Decode(enc); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkMerge(b *testing.B) {
	b.Run("GSet", func(b *testing.B) {
		lhs, rhs := crdt.NewGSet(crdt.String), crdt.NewGSet(crdt.String)
		for i := range 1000 {
			lhs.Add(fmt.Sprint(i))
			rhs.Add(fmt.Sprint(i + 500))
		}
		runMerge(b, lhs, rhs)
	})
	b.Run("Sequence", func(b *testing.B) {
		lhs, rhs := crdt.NewSequence(), crdt.NewSequence()
		for i := range 1000 {
			lhs.Insert(i, 'a')
			rhs.Insert(i/2, 'b')
		}
		runMerge(b, lhs, rhs)
	})
	b.Run("GCounter", func(b *testing.B) {
		lhs := crdt.NewGCounter()
		lhs.Increment(10)
		var rhs lattice.Object = lhs
		for range 50 {
			c := crdt.NewGCounter()
			c.Increment(1)
			lhs.Merge(c.Snapshot())
		}
		runMerge(b, crdt.NewGCounter(), rhs)
	})
}

func runMerge(b *testing.B, lhs, rhs lattice.Object) {
	b.Helper()
	msg := rhs.Snapshot()
	for b.Loop() {
		if err := lhs.Merge(msg); err != nil {
			b.Fatal(err)
		}
	}
}
