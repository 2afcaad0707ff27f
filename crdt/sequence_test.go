// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt_test

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/crdt"
)

func TestSequenceInsertDelete(t *testing.T) {
	s := crdt.NewSequence()
	for i, r := range "ABCD" {
		if err := s.Insert(i, r); err != nil {
			t.Fatalf("Insert(%d, %q): unexpected error: %v", i, r, err)
		}
	}
	if err := s.Delete(1); err != nil {
		t.Fatalf("Delete(1): unexpected error: %v", err)
	}
	if got := s.Text(); got != "ACD" {
		t.Errorf("Text: got %q, want %q", got, "ACD")
	}
	if got := s.Len(); got != 3 {
		t.Errorf("Len: got %d, want 3", got)
	}
	if r, ok := s.At(1); !ok || r != 'C' {
		t.Errorf("At(1): got (%q, %v), want ('C', true)", r, ok)
	}
	if _, ok := s.At(3); ok {
		t.Error("At(3): got ok, want !ok")
	}

	// Insertion in the middle, before the start, and after a tombstone.
	if err := s.InsertString(1, "xy"); err != nil {
		t.Fatalf("InsertString: unexpected error: %v", err)
	}
	if err := s.Insert(0, '>'); err != nil {
		t.Fatalf("Insert: unexpected error: %v", err)
	}
	if got, want := s.Text(), ">AxyCD"; got != want {
		t.Errorf("Text: got %q, want %q", got, want)
	}
}

func TestSequenceRange(t *testing.T) {
	s := crdt.NewSequence()
	s.InsertString(0, "abc")

	var pe *lattice.PreconditionError
	if err := s.Insert(4, 'z'); !errors.As(err, &pe) {
		t.Errorf("Insert(4): got %v, want *PreconditionError", err)
	}
	if err := s.Insert(-1, 'z'); !errors.As(err, &pe) {
		t.Errorf("Insert(-1): got %v, want *PreconditionError", err)
	}
	if err := s.Delete(3); !errors.As(err, &pe) {
		t.Errorf("Delete(3): got %v, want *PreconditionError", err)
	}
	if err := s.Insert(3, 'd'); err != nil {
		t.Errorf("Insert(3): unexpected error: %v", err)
	}
	if got := s.Text(); got != "abcd" {
		t.Errorf("Text: got %q, want %q", got, "abcd")
	}
}

func TestSequenceMerge(t *testing.T) {
	a, b := crdt.NewSequence(), crdt.NewSequence()
	a.InsertString(0, "ABCD")
	b.InsertString(0, "1234")

	ma, mb := a.Snapshot(), b.Snapshot()
	if err := a.Merge(mb); err != nil {
		t.Fatal(err)
	}
	if err := b.Merge(ma); err != nil {
		t.Fatal(err)
	}
	at, bt := a.Text(), b.Text()
	if at != bt {
		t.Errorf("Merged texts differ: %q vs. %q", at, bt)
	}
	if len(at) != 8 {
		t.Errorf("Merged text %q: got %d characters, want 8", at, len(at))
	}
	for _, r := range "ABCD1234" {
		if !strings.ContainsRune(at, r) {
			t.Errorf("Merged text %q is missing %q", at, r)
		}
	}
	// Each replica's own characters keep their relative order.
	if got := keepOnly(at, "ABCD"); got != "ABCD" {
		t.Errorf("Order of ABCD: got %q", got)
	}
	if got := keepOnly(at, "1234"); got != "1234" {
		t.Errorf("Order of 1234: got %q", got)
	}
}

func keepOnly(s, chars string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(chars, r) {
			return r
		}
		return -1
	}, s)
}

func TestSequenceTombstones(t *testing.T) {
	a := crdt.NewSequence()
	a.InsertString(0, "hello")
	b := crdt.NewSequence()
	mustMerge(t, b, a)

	// Deleting on a and merging a stale snapshot from b must not restore the
	// deleted character.
	stale := b.Snapshot()
	if err := a.Delete(0); err != nil {
		t.Fatal(err)
	}
	if err := a.Merge(stale); err != nil {
		t.Fatal(err)
	}
	if got := a.Text(); got != "ello" {
		t.Errorf("After stale merge: got %q, want %q", got, "ello")
	}

	// Concurrent deletes of the same character, and an insert next to it.
	if err := b.Delete(0); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert(1, 'E'); err != nil {
		t.Fatal(err)
	}
	mustMerge(t, a, b)
	mustMerge(t, b, a)
	if a.Text() != b.Text() {
		t.Errorf("Texts differ: %q vs. %q", a.Text(), b.Text())
	}
	if got, want := a.Text(), "eEllo"; got != want {
		t.Errorf("Text: got %q, want %q", got, want)
	}
}

func TestSequenceDenseInsert(t *testing.T) {
	// Repeated insertion at the same place never exhausts room between
	// neighbours, whether at the front, the back, or in the middle.
	s := crdt.NewSequence()
	s.InsertString(0, "[]")
	const n = 2000
	for i := range n {
		if err := s.Insert(1, rune('a'+i%26)); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		if err := s.Insert(0, '<'); err != nil {
			t.Fatalf("Insert front %d: %v", i, err)
		}
	}
	if got := s.Len(); got != 2*n+2 {
		t.Errorf("Len: got %d, want %d", got, 2*n+2)
	}

	// A fresh replica built from the snapshot renders identically.
	c := crdt.NewSequence()
	mustMerge(t, c, s)
	if c.Text() != s.Text() {
		t.Error("Merged copy does not match original")
	}
}

func TestSequenceConcurrentRandom(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	reps := []*crdt.Sequence{crdt.NewSequence(), crdt.NewSequence(), crdt.NewSequence()}
	for range 20 {
		for _, s := range reps {
			for range 5 {
				if s.Len() > 0 && r.IntN(3) == 0 {
					if err := s.Delete(r.IntN(s.Len())); err != nil {
						t.Fatal(err)
					}
				} else if err := s.Insert(r.IntN(s.Len()+1), rune('a'+r.IntN(26))); err != nil {
					t.Fatal(err)
				}
			}
		}
		// Exchange snapshots between a random pair of replicas.
		i, j := r.IntN(len(reps)), r.IntN(len(reps))
		mustMerge(t, reps[i], reps[j])
	}
	for _, s := range reps {
		for _, o := range reps {
			mustMerge(t, s, o)
		}
	}
	for i, s := range reps[1:] {
		if s.Text() != reps[0].Text() {
			t.Errorf("Replica %d: got %q, want %q", i+1, s.Text(), reps[0].Text())
		}
	}
}
