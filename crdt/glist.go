// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"fmt"
	"slices"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
)

// A GListEntry is one element of a [GList].
type GListEntry[T comparable] struct {
	ID    Path
	Value T
}

// A GList is a grow-only list. Each replica appends to the end of its own
// view; the join is the union of entries ordered by their position
// identifiers, so elements appended concurrently by different replicas are
// interleaved the same way everywhere.
type GList[T comparable] struct {
	codec   Codec[T]
	self    lattice.ReplicaID
	entries []GListEntry[T] // sorted by ID
}

// NewGList constructs a new empty list whose elements use codec c.
func NewGList[T comparable](c Codec[T]) *GList[T] {
	return &GList[T]{codec: c, self: lattice.NewReplicaID()}
}

// Add appends v to the end of the list.
func (g *GList[T]) Add(v T) {
	var last Path
	if n := len(g.entries); n > 0 {
		last = g.entries[n-1].ID
	}
	g.entries = append(g.entries, GListEntry[T]{ID: between(last, nil, g.self), Value: v})
}

// Len reports the number of elements in the list.
func (g *GList[T]) Len() int { return len(g.entries) }

// Items returns the elements of the list in order.
func (g *GList[T]) Items() []T {
	out := make([]T, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.Value
	}
	return out
}

// TypeName implements part of [lattice.Object].
func (g *GList[T]) TypeName() string { return typeName("glist", g.codec.Name) }

// Snapshot implements part of [lattice.Object].
func (g *GList[T]) Snapshot() lattice.Message {
	return &GListMessage[T]{Entries: slices.Clone(g.entries), codec: g.codec}
}

// Merge implements part of [lattice.Object].
func (g *GList[T]) Merge(m lattice.Message) error {
	msg, ok := m.(*GListMessage[T])
	if !ok {
		return lattice.Mismatch(g.TypeName(), m)
	}
	lhs, rhs := g.entries, msg.Entries
	merged := make([]GListEntry[T], 0, max(len(lhs), len(rhs)))
	for len(lhs) != 0 && len(rhs) != 0 {
		switch c := lhs[0].ID.Compare(rhs[0].ID); {
		case c < 0:
			merged, lhs = append(merged, lhs[0]), lhs[1:]
		case c > 0:
			merged, rhs = append(merged, rhs[0]), rhs[1:]
		default:
			merged, lhs, rhs = append(merged, lhs[0]), lhs[1:], rhs[1:]
		}
	}
	g.entries = append(append(merged, lhs...), rhs...)
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (g *GList[T]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &GListMessage[T]{codec: g.codec}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operation is "add x".
func (g *GList[T]) Update(op string, args ...string) error {
	return opTable{
		"add": param(g.codec.Parse, noError(g.Add)),
	}.apply(g.TypeName(), op, args)
}

func (g *GList[T]) String() string { return formatItems(g.Items(), g.codec.Format) }

// GListMessage is the snapshot message of a [GList]. Entries are in
// increasing order of ID.
type GListMessage[T comparable] struct {
	Entries []GListEntry[T]

	codec Codec[T]
}

// TypeName implements part of [lattice.Message].
func (m *GListMessage[T]) TypeName() string { return typeName("glist", m.codec.Name) }

// Encode implements part of [lattice.Message].
func (m *GListMessage[T]) Encode() []byte {
	var b packet.Builder
	b.Put(tagGList)
	appendItems(&b, m.Entries, func(b *packet.Builder, e GListEntry[T]) {
		appendPath(b, e.ID)
		m.codec.Append(b, e.Value)
	})
	return b.Bytes()
}

// Decode implements part of [lattice.Message]. Entries must be in strictly
// increasing order of ID.
func (m *GListMessage[T]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagGList); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	entries, err := scanItems(s, "entry", func(s *packet.Scanner) (GListEntry[T], error) {
		id, err := scanPath(s)
		if err != nil {
			return GListEntry[T]{}, err
		}
		v, err := m.codec.Scan(s)
		if err != nil {
			return GListEntry[T]{}, fmt.Errorf("value: %w", err)
		}
		return GListEntry[T]{ID: id, Value: v}, nil
	})
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
