// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"fmt"
	"maps"
	"slices"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
)

// An LWWRegister is a last-writer-wins register. Each assignment carries a
// caller-supplied timestamp; the register holds the value with the greatest
// timestamp it has seen. Equal timestamps from different replicas are
// ordered by writer ReplicaID.
type LWWRegister[T comparable] struct {
	self  lattice.ReplicaID
	codec Codec[T]
	cur   LWWRegisterMessage[T]
}

// NewLWWRegister constructs a new register with a fresh replica ID, holding
// the zero value of T at timestamp 0.
func NewLWWRegister[T comparable](c Codec[T]) *LWWRegister[T] {
	return &LWWRegister[T]{self: lattice.NewReplicaID(), codec: c, cur: LWWRegisterMessage[T]{codec: c}}
}

// Replica reports the replica ID of r.
func (r *LWWRegister[T]) Replica() lattice.ReplicaID { return r.self }

// Assign sets the value of r to v if ts is strictly greater than the current
// timestamp, and reports whether it did so.
func (r *LWWRegister[T]) Assign(v T, ts int64) bool {
	if ts <= r.cur.Timestamp {
		return false
	}
	r.cur.Value, r.cur.Timestamp, r.cur.Writer = v, ts, r.self
	return true
}

// Value reports the current value of r.
func (r *LWWRegister[T]) Value() T { return r.cur.Value }

// Timestamp reports the timestamp of the current value of r.
func (r *LWWRegister[T]) Timestamp() int64 { return r.cur.Timestamp }

// TypeName implements part of [lattice.Object].
func (r *LWWRegister[T]) TypeName() string { return typeName("lwwregister", r.codec.Name) }

// Snapshot implements part of [lattice.Object].
func (r *LWWRegister[T]) Snapshot() lattice.Message {
	cp := r.cur
	return &cp
}

// Merge implements part of [lattice.Object].
func (r *LWWRegister[T]) Merge(m lattice.Message) error {
	msg, ok := m.(*LWWRegisterMessage[T])
	if !ok {
		return lattice.Mismatch(r.TypeName(), m)
	}
	if msg.Timestamp > r.cur.Timestamp ||
		(msg.Timestamp == r.cur.Timestamp && msg.Writer.Compare(r.cur.Writer) > 0) {
		r.cur.Value, r.cur.Timestamp, r.cur.Writer = msg.Value, msg.Timestamp, msg.Writer
	}
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (r *LWWRegister[T]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &LWWRegisterMessage[T]{codec: r.codec}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operation is "assign x ts".
func (r *LWWRegister[T]) Update(op string, args ...string) error {
	return opTable{
		"assign": param2(r.codec.Parse, parseInt, func(v T, ts int64) error { r.Assign(v, ts); return nil }),
	}.apply(r.TypeName(), op, args)
}

func (r *LWWRegister[T]) String() string {
	return fmt.Sprintf("%s@%d", r.codec.Format(r.cur.Value), r.cur.Timestamp)
}

// LWWRegisterMessage is the snapshot message of an [LWWRegister].
type LWWRegisterMessage[T comparable] struct {
	Value     T
	Timestamp int64
	Writer    lattice.ReplicaID

	codec Codec[T]
}

// TypeName implements part of [lattice.Message].
func (m *LWWRegisterMessage[T]) TypeName() string { return typeName("lwwregister", m.codec.Name) }

// Encode implements part of [lattice.Message].
func (m *LWWRegisterMessage[T]) Encode() []byte {
	var b packet.Builder
	b.Put(tagLWWRegister)
	m.codec.Append(&b, m.Value)
	b.Varint(m.Timestamp)
	m.Writer.Append(&b)
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *LWWRegisterMessage[T]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagLWWRegister); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	v, err := m.codec.Scan(s)
	if err != nil {
		return lattice.Decoding(m.TypeName(), fmt.Errorf("value: %w", err))
	}
	ts, err := s.Varint()
	if err != nil {
		return lattice.Decoding(m.TypeName(), fmt.Errorf("timestamp: %w", err))
	}
	w, err := lattice.ScanReplicaID(s)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Value, m.Timestamp, m.Writer = v, ts, w
	return nil
}

// An LWWMultiset is a last-writer-wins set. Adds and removes each carry a
// caller-supplied timestamp, and the latest timestamp of each kind is kept per
// element. An element is present when its add timestamp is greater than its
// remove timestamp (or it has none).
type LWWMultiset[T comparable] struct {
	codec      Codec[T]
	adds, rmvs map[T]int64
}

// NewLWWMultiset constructs a new empty set whose elements use codec c.
func NewLWWMultiset[T comparable](c Codec[T]) *LWWMultiset[T] {
	return &LWWMultiset[T]{codec: c, adds: make(map[T]int64), rmvs: make(map[T]int64)}
}

// Add records an add of v at timestamp ts.
func (s *LWWMultiset[T]) Add(v T, ts int64) {
	if old, ok := s.adds[v]; !ok || ts > old {
		s.adds[v] = ts
	}
}

// Remove records a remove of v at timestamp ts, and reports whether v was
// present. If v is not present, Remove does nothing and returns false.
func (s *LWWMultiset[T]) Remove(v T, ts int64) bool {
	if !s.Contains(v) {
		return false
	}
	s.remove(v, ts)
	return true
}

func (s *LWWMultiset[T]) remove(v T, ts int64) {
	if old, ok := s.rmvs[v]; !ok || ts > old {
		s.rmvs[v] = ts
	}
}

// Contains reports whether v is present.
func (s *LWWMultiset[T]) Contains(v T) bool {
	at, ok := s.adds[v]
	if !ok {
		return false
	}
	rt, ok := s.rmvs[v]
	return !ok || rt < at
}

// Items returns the elements currently present, in order.
func (s *LWWMultiset[T]) Items() []T {
	var out []T
	for v := range s.adds {
		if s.Contains(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, s.codec.Compare)
	return out
}

// TypeName implements part of [lattice.Object].
func (s *LWWMultiset[T]) TypeName() string { return typeName("lwwmultiset", s.codec.Name) }

// Snapshot implements part of [lattice.Object].
func (s *LWWMultiset[T]) Snapshot() lattice.Message {
	return &LWWMultisetMessage[T]{
		Adds:    stampsOf(s.adds, s.codec.Compare),
		Removes: stampsOf(s.rmvs, s.codec.Compare),
		codec:   s.codec,
	}
}

// Merge implements part of [lattice.Object]. Remote adds are kept when later
// than the local add. A remote remove is kept only when it is later than both
// the local remove and the local add, after the remote adds are applied.
func (s *LWWMultiset[T]) Merge(m lattice.Message) error {
	msg, ok := m.(*LWWMultisetMessage[T])
	if !ok {
		return lattice.Mismatch(s.TypeName(), m)
	}
	for _, a := range msg.Adds {
		s.Add(a.Elem, a.Time)
	}
	for _, r := range msg.Removes {
		if at, ok := s.adds[r.Elem]; ok && r.Time > at {
			s.remove(r.Elem, r.Time)
		}
	}
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (s *LWWMultiset[T]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &LWWMultisetMessage[T]{codec: s.codec}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operations are "add x ts" and
// "remove x ts". Removing an absent element is not an error.
func (s *LWWMultiset[T]) Update(op string, args ...string) error {
	return opTable{
		"add":    param2(s.codec.Parse, parseInt, noError2(s.Add)),
		"remove": param2(s.codec.Parse, parseInt, func(v T, ts int64) error { s.Remove(v, ts); return nil }),
	}.apply(s.TypeName(), op, args)
}

func (s *LWWMultiset[T]) String() string { return formatItems(s.Items(), s.codec.Format) }

// A Stamp is an element with the timestamp of an add or remove.
type Stamp[T comparable] struct {
	Elem T
	Time int64
}

func stampsOf[T comparable](m map[T]int64, cmp func(a, b T) int) []Stamp[T] {
	keys := slices.SortedFunc(maps.Keys(m), cmp)
	out := make([]Stamp[T], len(keys))
	for i, k := range keys {
		out[i] = Stamp[T]{Elem: k, Time: m[k]}
	}
	return out
}

// LWWMultisetMessage is the snapshot message of an [LWWMultiset].
type LWWMultisetMessage[T comparable] struct {
	Adds, Removes []Stamp[T]

	codec Codec[T]
}

// TypeName implements part of [lattice.Message].
func (m *LWWMultisetMessage[T]) TypeName() string { return typeName("lwwmultiset", m.codec.Name) }

func (m *LWWMultisetMessage[T]) appendStamp(b *packet.Builder, s Stamp[T]) {
	m.codec.Append(b, s.Elem)
	b.Varint(s.Time)
}

func (m *LWWMultisetMessage[T]) scanStamp(s *packet.Scanner) (out Stamp[T], err error) {
	if out.Elem, err = m.codec.Scan(s); err != nil {
		return out, err
	}
	out.Time, err = s.Varint()
	return out, err
}

// Encode implements part of [lattice.Message].
func (m *LWWMultisetMessage[T]) Encode() []byte {
	var b packet.Builder
	b.Put(tagLWWMultiset)
	appendItems(&b, m.Adds, m.appendStamp)
	appendItems(&b, m.Removes, m.appendStamp)
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *LWWMultisetMessage[T]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagLWWMultiset); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	adds, err := scanItems(s, "add", m.scanStamp)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	rmvs, err := scanItems(s, "remove", m.scanStamp)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Adds, m.Removes = adds, rmvs
	return nil
}
