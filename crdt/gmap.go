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

// A GMap is a grow-only map. Each key is bound at most once locally: the
// first Put of a key wins, and later puts of the same key are ignored.
//
// Replicas that bind the same key concurrently resolve the conflict on merge
// in favour of the binding made by the replica with the greater ReplicaID, so
// all replicas agree on one value per key.
type GMap[K, V comparable] struct {
	self  lattice.ReplicaID
	kc    Codec[K]
	vc    Codec[V]
	items map[K]GMapEntry[K, V]
}

// GMapEntry is a single binding in a [GMap].
type GMapEntry[K, V comparable] struct {
	Key    K
	Value  V
	Writer lattice.ReplicaID // the replica that made the binding
}

// NewGMap constructs a new empty map with a fresh replica ID, using codec kc
// for keys and vc for values.
func NewGMap[K, V comparable](kc Codec[K], vc Codec[V]) *GMap[K, V] {
	return &GMap[K, V]{self: lattice.NewReplicaID(), kc: kc, vc: vc, items: make(map[K]GMapEntry[K, V])}
}

// Replica reports the replica ID of m.
func (m *GMap[K, V]) Replica() lattice.ReplicaID { return m.self }

// Put binds key to val if key is not already bound, and reports whether it
// did so.
func (m *GMap[K, V]) Put(key K, val V) bool {
	if _, ok := m.items[key]; ok {
		return false
	}
	m.items[key] = GMapEntry[K, V]{Key: key, Value: val, Writer: m.self}
	return true
}

// Get returns the value bound to key, and reports whether it was bound.
func (m *GMap[K, V]) Get(key K) (V, bool) {
	e, ok := m.items[key]
	return e.Value, ok
}

// Len reports the number of keys bound in m.
func (m *GMap[K, V]) Len() int { return len(m.items) }

// Keys returns the bound keys of m in order.
func (m *GMap[K, V]) Keys() []K { return slices.SortedFunc(maps.Keys(m.items), m.kc.Compare) }

// TypeName implements part of [lattice.Object].
func (m *GMap[K, V]) TypeName() string { return typeName("gmap", m.kc.Name, m.vc.Name) }

// Snapshot implements part of [lattice.Object].
func (m *GMap[K, V]) Snapshot() lattice.Message {
	keys := m.Keys()
	out := &GMapMessage[K, V]{Entries: make([]GMapEntry[K, V], len(keys)), kc: m.kc, vc: m.vc}
	for i, k := range keys {
		out.Entries[i] = m.items[k]
	}
	return out
}

// Merge implements part of [lattice.Object].
func (m *GMap[K, V]) Merge(msg lattice.Message) error {
	in, ok := msg.(*GMapMessage[K, V])
	if !ok {
		return lattice.Mismatch(m.TypeName(), msg)
	}
	for _, e := range in.Entries {
		old, ok := m.items[e.Key]
		if !ok || e.Writer.Compare(old.Writer) > 0 {
			m.items[e.Key] = e
		}
	}
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (m *GMap[K, V]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &GMapMessage[K, V]{kc: m.kc, vc: m.vc}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operation is "put k v".
func (m *GMap[K, V]) Update(op string, args ...string) error {
	return opTable{
		"put": param2(m.kc.Parse, m.vc.Parse, func(k K, v V) error { m.Put(k, v); return nil }),
	}.apply(m.TypeName(), op, args)
}

func (m *GMap[K, V]) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range m.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", m.kc.Format(k), m.vc.Format(m.items[k].Value))
	}
	sb.WriteString("}")
	return sb.String()
}

// GMapMessage is the snapshot message of a [GMap].
type GMapMessage[K, V comparable] struct {
	Entries []GMapEntry[K, V]

	kc Codec[K]
	vc Codec[V]
}

// TypeName implements part of [lattice.Message].
func (m *GMapMessage[K, V]) TypeName() string { return typeName("gmap", m.kc.Name, m.vc.Name) }

// Encode implements part of [lattice.Message].
func (m *GMapMessage[K, V]) Encode() []byte {
	var b packet.Builder
	b.Put(tagGMap)
	appendItems(&b, m.Entries, func(b *packet.Builder, e GMapEntry[K, V]) {
		m.kc.Append(b, e.Key)
		m.vc.Append(b, e.Value)
		e.Writer.Append(b)
	})
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *GMapMessage[K, V]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagGMap); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	entries, err := scanItems(s, "entry", func(s *packet.Scanner) (e GMapEntry[K, V], err error) {
		if e.Key, err = m.kc.Scan(s); err != nil {
			return e, fmt.Errorf("key: %w", err)
		}
		if e.Value, err = m.vc.Scan(s); err != nil {
			return e, fmt.Errorf("value: %w", err)
		}
		e.Writer, err = lattice.ScanReplicaID(s)
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
