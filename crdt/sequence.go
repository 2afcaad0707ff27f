// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
)

// An Atom is one level of a sequence position identifier: an integer
// position and the replica that allocated it.
type Atom struct {
	Pos  uint32
	Site lattice.ReplicaID
}

// Compare orders atoms by position, then by site.
func (a Atom) Compare(b Atom) int {
	if c := cmp.Compare(a.Pos, b.Pos); c != 0 {
		return c
	}
	return a.Site.Compare(b.Site)
}

// A Path is a position identifier for an element of a [Sequence]. Paths are
// ordered lexicographically by atom, and a proper prefix orders before any of
// its extensions. Between any two distinct paths there is always room for
// another, so allocation never runs out of space.
//
// The final atom of an allocated path always has a non-zero position and the
// site of the replica that allocated it, so paths allocated by different
// replicas never collide.
type Path []Atom

// Compare reports -1, 0, or +1 according to whether p orders before, equal
// to, or after q.
func (p Path) Compare(q Path) int {
	for i := range min(len(p), len(q)) {
		if c := p[i].Compare(q[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(p), len(q))
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, a := range p {
		parts[i] = fmt.Sprintf("%d:%s", a.Pos, a.Site.String()[:8])
	}
	return "<" + strings.Join(parts, ".") + ">"
}

// freshPos is the position chosen at a depth with no neighbours, leaving room
// for insertions on either side.
const freshPos = 1 << 31

// stride is the largest step taken from a neighbour when allocating a new
// position, so that runs of appends and prepends leave gaps for later
// insertions between them.
const stride = 1 << 16

// between returns a fresh path allocated by site that orders strictly after
// p and strictly before q. A nil p orders before every path, and a nil q
// orders after every path. It requires p < q.
//
// At each depth, if there is no upper neighbour the new path steps up from p.
// If there is room between p and q it steps up from p, or down from q when p
// has no atom at that depth, by at most half the gap. Otherwise it copies p
// (or, past the end of p, the lowest position available) and descends one
// level.
func between(p, q Path, site lattice.ReplicaID) Path {
	var out Path
	bounded := q != nil // out[:d] == q[:d]
	for d := 0; ; d++ {
		var lo uint64
		if d < len(p) {
			lo = uint64(p[d].Pos)
		}
		if !bounded {
			switch {
			case d >= len(p):
				return append(out, Atom{Pos: freshPos, Site: site})
			case lo < math.MaxUint32:
				step := min(stride, (math.MaxUint32-lo+1)/2)
				return append(out, Atom{Pos: uint32(lo + step), Site: site})
			}
			out = append(out, p[d])
			continue
		}

		hi := uint64(q[d].Pos)
		switch {
		case hi > lo+1:
			step := min(stride, (hi-lo)/2)
			if d >= len(p) {
				return append(out, Atom{Pos: uint32(hi - step), Site: site})
			}
			return append(out, Atom{Pos: uint32(lo + step), Site: site})
		case d < len(p):
			out = append(out, p[d])
			if p[d] != q[d] {
				bounded = false
			}
		case hi == 1:
			out = append(out, Atom{Pos: 0, Site: site})
			bounded = false
		default:
			// p is exhausted and q has position 0 here, so q continues below.
			out = append(out, q[d])
		}
	}
}

// A SequenceEntry is one element of a [Sequence], including deleted ones.
type SequenceEntry struct {
	ID      Path
	Value   rune
	Deleted bool
}

// A Sequence is an ordered list of characters that supports insertion and
// deletion at any index by any replica.
//
// Each element carries a position identifier ([Path]) that is unique across
// all replicas and orders the element relative to all others. The entry list
// is kept sorted by identifier, and merge is a linear merge of two sorted
// lists. Deleted elements are retained as tombstones so that merging with a
// replica that has not seen the deletion cannot restore them.
type Sequence struct {
	self    lattice.ReplicaID
	entries []SequenceEntry // sorted by ID
	live    int             // number of entries not deleted
}

// NewSequence constructs a new empty sequence with a fresh replica ID.
func NewSequence() *Sequence { return &Sequence{self: lattice.NewReplicaID()} }

// Replica reports the replica ID of s.
func (s *Sequence) Replica() lattice.ReplicaID { return s.self }

// Len reports the number of elements in s, not including deleted ones.
func (s *Sequence) Len() int { return s.live }

// Text returns the content of s as a string.
func (s *Sequence) Text() string {
	var sb strings.Builder
	for _, e := range s.entries {
		if !e.Deleted {
			sb.WriteRune(e.Value)
		}
	}
	return sb.String()
}

// At returns the element at index i, and reports whether i is in range.
func (s *Sequence) At(i int) (rune, bool) {
	k := s.locate(i)
	if k < 0 {
		return 0, false
	}
	return s.entries[k].Value, true
}

// locate returns the offset in s.entries of the element at visible index i,
// or -1 if i is out of range.
func (s *Sequence) locate(i int) int {
	if i < 0 || i >= s.live {
		return -1
	}
	for k, e := range s.entries {
		if e.Deleted {
			continue
		}
		if i == 0 {
			return k
		}
		i--
	}
	panic("sequence live count is inconsistent")
}

// Insert inserts r at index i, so that afterward s.At(i) == r. It reports an
// error if i is not in the range 0 to s.Len() inclusive.
func (s *Sequence) Insert(i int, r rune) error {
	if i < 0 || i > s.live {
		return lattice.Preconditionf("sequence.insert", "index %d out of range [0, %d]", i, s.live)
	}
	k := 0
	if i > 0 {
		k = s.locate(i-1) + 1
	}
	var p, q Path
	if k > 0 {
		p = s.entries[k-1].ID
	}
	if k < len(s.entries) {
		q = s.entries[k].ID
	}
	s.entries = slices.Insert(s.entries, k, SequenceEntry{ID: between(p, q, s.self), Value: r})
	s.live++
	return nil
}

// InsertString inserts the characters of text starting at index i.
func (s *Sequence) InsertString(i int, text string) error {
	if i < 0 || i > s.live {
		return lattice.Preconditionf("sequence.insert", "index %d out of range [0, %d]", i, s.live)
	}
	for _, r := range text {
		if err := s.Insert(i, r); err != nil {
			return err
		}
		i++
	}
	return nil
}

// Delete deletes the element at index i. It reports an error if i is not in
// the range 0 to s.Len() exclusive.
func (s *Sequence) Delete(i int) error {
	k := s.locate(i)
	if k < 0 {
		return lattice.Preconditionf("sequence.delete", "index %d out of range [0, %d)", i, s.live)
	}
	s.entries[k].Deleted = true
	s.live--
	return nil
}

// TypeName implements part of [lattice.Object].
func (*Sequence) TypeName() string { return "sequence" }

// Snapshot implements part of [lattice.Object].
func (s *Sequence) Snapshot() lattice.Message {
	return &SequenceMessage{Entries: slices.Clone(s.entries)}
}

// Merge implements part of [lattice.Object].
func (s *Sequence) Merge(m lattice.Message) error {
	msg, ok := m.(*SequenceMessage)
	if !ok {
		return lattice.Mismatch(s.TypeName(), m)
	}
	lhs, rhs := s.entries, msg.Entries
	merged := make([]SequenceEntry, 0, max(len(lhs), len(rhs)))
	live := 0
	for len(lhs) != 0 || len(rhs) != 0 {
		var next SequenceEntry
		switch {
		case len(rhs) == 0:
			next, lhs = lhs[0], lhs[1:]
		case len(lhs) == 0:
			next, rhs = rhs[0], rhs[1:]
		default:
			switch c := lhs[0].ID.Compare(rhs[0].ID); {
			case c < 0:
				next, lhs = lhs[0], lhs[1:]
			case c > 0:
				next, rhs = rhs[0], rhs[1:]
			default:
				next = lhs[0]
				next.Deleted = next.Deleted || rhs[0].Deleted
				lhs, rhs = lhs[1:], rhs[1:]
			}
		}
		if !next.Deleted {
			live++
		}
		merged = append(merged, next)
	}
	s.entries, s.live = merged, live
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (s *Sequence) DecodeMessage(data []byte) (lattice.Message, error) {
	var msg SequenceMessage
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Update implements [lattice.Updater]. The operations are "insert i text"
// and "delete i".
func (s *Sequence) Update(op string, args ...string) error {
	return opTable{
		"insert": param2(parseIndex, parseText, s.InsertString),
		"delete": param(parseIndex, s.Delete),
	}.apply(s.TypeName(), op, args)
}

func (s *Sequence) String() string { return s.Text() }

// SequenceMessage is the snapshot message of a [Sequence]. Entries are in
// increasing order of ID.
type SequenceMessage struct {
	Entries []SequenceEntry
}

// TypeName implements part of [lattice.Message].
func (*SequenceMessage) TypeName() string { return "sequence" }

// Encode implements part of [lattice.Message].
func (m *SequenceMessage) Encode() []byte {
	var b packet.Builder
	b.Put(tagSequence)
	appendItems(&b, m.Entries, func(b *packet.Builder, e SequenceEntry) {
		appendPath(b, e.ID)
		b.Uvarint(uint64(e.Value))
		b.Bool(e.Deleted)
	})
	return b.Bytes()
}

func scanAtom(s *packet.Scanner) (Atom, error) {
	pos, err := s.Uint32()
	if err != nil {
		return Atom{}, fmt.Errorf("position: %w", err)
	}
	site, err := lattice.ScanReplicaID(s)
	if err != nil {
		return Atom{}, err
	}
	return Atom{Pos: pos, Site: site}, nil
}

func appendPath(b *packet.Builder, p Path) {
	appendItems(b, p, func(b *packet.Builder, a Atom) {
		b.Uint32(a.Pos)
		a.Site.Append(b)
	})
}

// scanPath scans an allocated path, which is non-empty and does not end at
// position 0.
func scanPath(s *packet.Scanner) (Path, error) {
	id, err := scanItems(s, "atom", scanAtom)
	if err != nil {
		return nil, err
	} else if len(id) == 0 {
		return nil, errors.New("empty position identifier")
	} else if id[len(id)-1].Pos == 0 {
		return nil, errors.New("position identifier ends at position 0")
	}
	return id, nil
}

func scanSequenceEntry(s *packet.Scanner) (SequenceEntry, error) {
	id, err := scanPath(s)
	if err != nil {
		return SequenceEntry{}, err
	}
	v, err := s.Uvarint()
	if err != nil {
		return SequenceEntry{}, fmt.Errorf("value: %w", err)
	} else if v > utf8.MaxRune || !utf8.ValidRune(rune(v)) {
		return SequenceEntry{}, fmt.Errorf("invalid rune %#x", v)
	}
	del, err := s.Bool()
	if err != nil {
		return SequenceEntry{}, fmt.Errorf("deleted flag: %w", err)
	}
	return SequenceEntry{ID: id, Value: rune(v), Deleted: del}, nil
}

// Decode implements part of [lattice.Message]. Entries must be in strictly
// increasing order of ID.
func (m *SequenceMessage) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagSequence); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	entries, err := scanItems(s, "entry", scanSequenceEntry)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].ID.Compare(entries[i].ID) >= 0 {
			return lattice.Decoding(m.TypeName(), fmt.Errorf("entry %d is out of order", i))
		}
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Entries = entries
	return nil
}
