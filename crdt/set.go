// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
	mapset "github.com/deckarep/golang-set/v2"
)

func newSet[T comparable](items ...T) mapset.Set[T] { return mapset.NewThreadUnsafeSet(items...) }

// sortedItems returns the elements of s ordered by cmp.
func sortedItems[T comparable](s mapset.Set[T], cmp func(a, b T) int) []T {
	out := s.ToSlice()
	slices.SortFunc(out, cmp)
	return out
}

// addAll adds items to s and reports whether s grew.
func addAll[T comparable](s mapset.Set[T], items []T) bool {
	grew := false
	for _, v := range items {
		if s.Add(v) {
			grew = true
		}
	}
	return grew
}

func appendItems[T any](b *packet.Builder, items []T, put func(*packet.Builder, T)) {
	b.Vint30(uint32(len(items)))
	for _, v := range items {
		put(b, v)
	}
}

func scanItems[T any](s *packet.Scanner, what string, scan func(*packet.Scanner) (T, error)) ([]T, error) {
	n, err := scanCount(s, what)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := range n {
		v, err := scan(s)
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", what, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func formatItems[T any](items []T, format func(T) string) string {
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = format(v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// A GSet is a grow-only set. Elements can be added but never removed; the
// join is set union.
type GSet[T comparable] struct {
	codec Codec[T]
	items mapset.Set[T]
}

// NewGSet constructs a new empty set whose elements use codec c.
func NewGSet[T comparable](c Codec[T]) *GSet[T] {
	return &GSet[T]{codec: c, items: newSet[T]()}
}

// Add adds v to the set.
func (s *GSet[T]) Add(v T) { s.items.Add(v) }

// Contains reports whether v is in the set.
func (s *GSet[T]) Contains(v T) bool { return s.items.Contains(v) }

// Len reports the number of elements in the set.
func (s *GSet[T]) Len() int { return s.items.Cardinality() }

// Items returns the elements of the set in order.
func (s *GSet[T]) Items() []T { return sortedItems(s.items, s.codec.Compare) }

// TypeName implements part of [lattice.Object].
func (s *GSet[T]) TypeName() string { return typeName("gset", s.codec.Name) }

// Snapshot implements part of [lattice.Object].
func (s *GSet[T]) Snapshot() lattice.Message {
	return &GSetMessage[T]{Items: s.Items(), codec: s.codec}
}

// Merge implements part of [lattice.Object].
func (s *GSet[T]) Merge(m lattice.Message) error {
	msg, ok := m.(*GSetMessage[T])
	if !ok {
		return lattice.Mismatch(s.TypeName(), m)
	}
	addAll(s.items, msg.Items)
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (s *GSet[T]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &GSetMessage[T]{codec: s.codec}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operation is "add x".
func (s *GSet[T]) Update(op string, args ...string) error {
	return opTable{
		"add": param(s.codec.Parse, noError(s.Add)),
	}.apply(s.TypeName(), op, args)
}

func (s *GSet[T]) String() string { return formatItems(s.Items(), s.codec.Format) }

// GSetMessage is the snapshot message of a [GSet].
type GSetMessage[T comparable] struct {
	Items []T

	codec Codec[T]
}

// TypeName implements part of [lattice.Message].
func (m *GSetMessage[T]) TypeName() string { return typeName("gset", m.codec.Name) }

// Encode implements part of [lattice.Message].
func (m *GSetMessage[T]) Encode() []byte {
	var b packet.Builder
	b.Put(tagGSet)
	appendItems(&b, m.Items, m.codec.Append)
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *GSetMessage[T]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagGSet); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	items, err := scanItems(s, "element", m.codec.Scan)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Items = items
	return nil
}

// A TPSet is a two-phase set. An element may be added and later removed, but
// once removed it can never be present again. The state is a pair of
// grow-only sets, added and removed; the join is the union of each.
type TPSet[T comparable] struct {
	codec          Codec[T]
	added, removed mapset.Set[T]
}

// NewTPSet constructs a new empty two-phase set whose elements use codec c.
func NewTPSet[T comparable](c Codec[T]) *TPSet[T] {
	return &TPSet[T]{codec: c, added: newSet[T](), removed: newSet[T]()}
}

// Add adds v to the set. Adding an element that was previously removed has no
// visible effect.
func (s *TPSet[T]) Add(v T) { s.added.Add(v) }

// Remove removes v from the set, and reports whether v was present.
// If v is not present, Remove does nothing and returns false.
func (s *TPSet[T]) Remove(v T) bool {
	if !s.Contains(v) {
		return false
	}
	s.removed.Add(v)
	return true
}

// Contains reports whether v is in the set.
func (s *TPSet[T]) Contains(v T) bool { return s.added.Contains(v) && !s.removed.Contains(v) }

// Items returns the elements currently in the set, in order.
func (s *TPSet[T]) Items() []T {
	return sortedItems(s.added.Difference(s.removed), s.codec.Compare)
}

// Len reports the number of elements currently in the set.
func (s *TPSet[T]) Len() int { return s.added.Difference(s.removed).Cardinality() }

// TypeName implements part of [lattice.Object].
func (s *TPSet[T]) TypeName() string { return typeName("2pset", s.codec.Name) }

// Snapshot implements part of [lattice.Object].
func (s *TPSet[T]) Snapshot() lattice.Message {
	return &TPSetMessage[T]{
		Added:   sortedItems(s.added, s.codec.Compare),
		Removed: sortedItems(s.removed, s.codec.Compare),
		codec:   s.codec,
	}
}

// Merge implements part of [lattice.Object].
func (s *TPSet[T]) Merge(m lattice.Message) error {
	msg, ok := m.(*TPSetMessage[T])
	if !ok {
		return lattice.Mismatch(s.TypeName(), m)
	}
	addAll(s.added, msg.Added)
	addAll(s.removed, msg.Removed)
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (s *TPSet[T]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &TPSetMessage[T]{codec: s.codec}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operations are "add x" and
// "remove x". Removing an absent element is not an error.
func (s *TPSet[T]) Update(op string, args ...string) error {
	return opTable{
		"add":    param(s.codec.Parse, noError(s.Add)),
		"remove": param(s.codec.Parse, func(v T) error { s.Remove(v); return nil }),
	}.apply(s.TypeName(), op, args)
}

func (s *TPSet[T]) String() string { return formatItems(s.Items(), s.codec.Format) }

// TPSetMessage is the snapshot message of a [TPSet].
type TPSetMessage[T comparable] struct {
	Added, Removed []T

	codec Codec[T]
}

// TypeName implements part of [lattice.Message].
func (m *TPSetMessage[T]) TypeName() string { return typeName("2pset", m.codec.Name) }

// Encode implements part of [lattice.Message].
func (m *TPSetMessage[T]) Encode() []byte {
	var b packet.Builder
	b.Put(tagTPSet)
	appendItems(&b, m.Added, m.codec.Append)
	appendItems(&b, m.Removed, m.codec.Append)
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *TPSetMessage[T]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagTPSet); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	added, err := scanItems(s, "added", m.codec.Scan)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	removed, err := scanItems(s, "removed", m.codec.Scan)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Added, m.Removed = added, removed
	return nil
}
