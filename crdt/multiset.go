// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
)

// A GMultiset is a grow-only multiset. Each element carries a per-replica
// vector of the copies each replica has added; the multiplicity of an element
// is the sum of its vector, and the join is the pointwise maximum.
type GMultiset[T comparable] struct {
	self  lattice.ReplicaID
	codec Codec[T]
	items map[T]Vector
}

// NewGMultiset constructs a new empty multiset with a fresh replica ID, whose
// elements use codec c.
func NewGMultiset[T comparable](c Codec[T]) *GMultiset[T] {
	return &GMultiset[T]{self: lattice.NewReplicaID(), codec: c, items: make(map[T]Vector)}
}

// Replica reports the replica ID of s.
func (s *GMultiset[T]) Replica() lattice.ReplicaID { return s.self }

// Add adds n copies of v to the multiset.
func (s *GMultiset[T]) Add(v T, n uint64) {
	if n == 0 {
		return
	}
	vec, ok := s.items[v]
	if !ok {
		vec = make(Vector)
		s.items[v] = vec
	}
	vec[s.self] += n
}

// Count reports the multiplicity of v.
func (s *GMultiset[T]) Count(v T) uint64 { return s.items[v].Sum() }

// Len reports the number of distinct elements in the multiset.
func (s *GMultiset[T]) Len() int { return len(s.items) }

// Total reports the total number of copies of all elements.
func (s *GMultiset[T]) Total() uint64 {
	var sum uint64
	for _, vec := range s.items {
		sum += vec.Sum()
	}
	return sum
}

// Items returns the distinct elements of the multiset in order.
func (s *GMultiset[T]) Items() []T { return slices.SortedFunc(maps.Keys(s.items), s.codec.Compare) }

// TypeName implements part of [lattice.Object].
func (s *GMultiset[T]) TypeName() string { return typeName("gmultiset", s.codec.Name) }

// Snapshot implements part of [lattice.Object].
func (s *GMultiset[T]) Snapshot() lattice.Message {
	keys := s.Items()
	out := &GMultisetMessage[T]{Entries: make([]GMultisetEntry[T], len(keys)), codec: s.codec}
	for i, k := range keys {
		out.Entries[i] = GMultisetEntry[T]{Elem: k, Counts: maps.Clone(s.items[k])}
	}
	return out
}

// Merge implements part of [lattice.Object].
func (s *GMultiset[T]) Merge(m lattice.Message) error {
	msg, ok := m.(*GMultisetMessage[T])
	if !ok {
		return lattice.Mismatch(s.TypeName(), m)
	}
	for _, e := range msg.Entries {
		if len(e.Counts) == 0 {
			continue
		}
		vec, ok := s.items[e.Elem]
		if !ok {
			vec = make(Vector)
			s.items[e.Elem] = vec
		}
		vec.join(e.Counts)
	}
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (s *GMultiset[T]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &GMultisetMessage[T]{codec: s.codec}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operation is "add x [n]", where n
// defaults to 1.
func (s *GMultiset[T]) Update(op string, args ...string) error {
	return opTable{
		"add": func(args []string) error {
			switch len(args) {
			case 1:
				args = []string{args[0], "1"}
			case 2:
			default:
				return argError{2, len(args)}
			}
			return param2(s.codec.Parse, parseUint, noError2(s.Add))(args)
		},
	}.apply(s.TypeName(), op, args)
}

func (s *GMultiset[T]) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range s.Items() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s:%d", s.codec.Format(k), s.Count(k))
	}
	sb.WriteString("}")
	return sb.String()
}

// GMultisetEntry is the state of one element of a [GMultiset].
type GMultisetEntry[T comparable] struct {
	Elem   T
	Counts Vector
}

// GMultisetMessage is the snapshot message of a [GMultiset].
type GMultisetMessage[T comparable] struct {
	Entries []GMultisetEntry[T]

	codec Codec[T]
}

// TypeName implements part of [lattice.Message].
func (m *GMultisetMessage[T]) TypeName() string { return typeName("gmultiset", m.codec.Name) }

// Encode implements part of [lattice.Message].
func (m *GMultisetMessage[T]) Encode() []byte {
	var b packet.Builder
	b.Put(tagGMultiset)
	appendItems(&b, m.Entries, func(b *packet.Builder, e GMultisetEntry[T]) {
		m.codec.Append(b, e.Elem)
		e.Counts.appendTo(b)
	})
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *GMultisetMessage[T]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagGMultiset); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	entries, err := scanItems(s, "entry", func(s *packet.Scanner) (e GMultisetEntry[T], err error) {
		if e.Elem, err = m.codec.Scan(s); err != nil {
			return e, err
		}
		e.Counts, err = scanVector(s)
		return e, err
	})
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Entries = entries
	return nil
}
