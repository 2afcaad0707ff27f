// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
)

// A GPQueue is a grow-only priority queue mapping integer priorities to
// elements. Each priority holds at most one element.
//
// Every write to a slot carries a Lamport stamp and the writer's ReplicaID.
// A local Add overwrites its slot with a stamp greater than any it has seen,
// and merge keeps whichever write has the greater (stamp, writer) pair, so
// concurrent writes to the same priority resolve the same way everywhere.
type GPQueue[T comparable] struct {
	self  lattice.ReplicaID
	codec Codec[T]
	clock uint64
	slots map[int64]GPQueueSlot[T]
}

// GPQueueSlot is the state of one priority of a [GPQueue].
type GPQueueSlot[T comparable] struct {
	Priority int64
	Value    T
	Stamp    uint64
	Writer   lattice.ReplicaID
}

// supersedes reports whether s is a later write than t.
func (s GPQueueSlot[T]) supersedes(t GPQueueSlot[T]) bool {
	if c := cmp.Compare(s.Stamp, t.Stamp); c != 0 {
		return c > 0
	}
	return s.Writer.Compare(t.Writer) > 0
}

// NewGPQueue constructs a new empty queue with a fresh replica ID, whose
// elements use codec c.
func NewGPQueue[T comparable](c Codec[T]) *GPQueue[T] {
	return &GPQueue[T]{self: lattice.NewReplicaID(), codec: c, slots: make(map[int64]GPQueueSlot[T])}
}

// Replica reports the replica ID of q.
func (q *GPQueue[T]) Replica() lattice.ReplicaID { return q.self }

// Add stores v at the given priority, replacing any element already there.
func (q *GPQueue[T]) Add(priority int64, v T) {
	q.clock++
	q.slots[priority] = GPQueueSlot[T]{Priority: priority, Value: v, Stamp: q.clock, Writer: q.self}
}

// Len reports the number of occupied priorities.
func (q *GPQueue[T]) Len() int { return len(q.slots) }

func (q *GPQueue[T]) priorities() []int64 { return slices.Sorted(maps.Keys(q.slots)) }

// Elements returns the elements of the queue in ascending order of priority.
func (q *GPQueue[T]) Elements() []T {
	out := make([]T, 0, len(q.slots))
	for _, p := range q.priorities() {
		out = append(out, q.slots[p].Value)
	}
	return out
}

// Peek returns the element with the lowest priority, and reports whether the
// queue is non-empty.
func (q *GPQueue[T]) Peek() (T, bool) {
	if len(q.slots) == 0 {
		var zero T
		return zero, false
	}
	lo := slices.Min(slices.Collect(maps.Keys(q.slots)))
	return q.slots[lo].Value, true
}

// TypeName implements part of [lattice.Object].
func (q *GPQueue[T]) TypeName() string { return typeName("gpqueue", q.codec.Name) }

// Snapshot implements part of [lattice.Object].
func (q *GPQueue[T]) Snapshot() lattice.Message {
	ps := q.priorities()
	out := &GPQueueMessage[T]{Slots: make([]GPQueueSlot[T], len(ps)), codec: q.codec}
	for i, p := range ps {
		out.Slots[i] = q.slots[p]
	}
	return out
}

// Merge implements part of [lattice.Object].
func (q *GPQueue[T]) Merge(m lattice.Message) error {
	msg, ok := m.(*GPQueueMessage[T])
	if !ok {
		return lattice.Mismatch(q.TypeName(), m)
	}
	for _, s := range msg.Slots {
		q.clock = max(q.clock, s.Stamp)
		old, ok := q.slots[s.Priority]
		if !ok || s.supersedes(old) {
			q.slots[s.Priority] = s
		}
	}
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (q *GPQueue[T]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &GPQueueMessage[T]{codec: q.codec}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operation is "add priority x".
func (q *GPQueue[T]) Update(op string, args ...string) error {
	return opTable{
		"add": param2(parseInt, q.codec.Parse, noError2(q.Add)),
	}.apply(q.TypeName(), op, args)
}

func (q *GPQueue[T]) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, p := range q.priorities() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d:%s", p, q.codec.Format(q.slots[p].Value))
	}
	sb.WriteString("]")
	return sb.String()
}

// GPQueueMessage is the snapshot message of a [GPQueue].
type GPQueueMessage[T comparable] struct {
	Slots []GPQueueSlot[T]

	codec Codec[T]
}

// TypeName implements part of [lattice.Message].
func (m *GPQueueMessage[T]) TypeName() string { return typeName("gpqueue", m.codec.Name) }

// Encode implements part of [lattice.Message].
func (m *GPQueueMessage[T]) Encode() []byte {
	var b packet.Builder
	b.Put(tagGPQueue)
	appendItems(&b, m.Slots, func(b *packet.Builder, s GPQueueSlot[T]) {
		b.Varint(s.Priority)
		m.codec.Append(b, s.Value)
		b.Uvarint(s.Stamp)
		s.Writer.Append(b)
	})
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *GPQueueMessage[T]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagGPQueue); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	slots, err := scanItems(s, "slot", func(s *packet.Scanner) (v GPQueueSlot[T], err error) {
		if v.Priority, err = s.Varint(); err != nil {
			return v, fmt.Errorf("priority: %w", err)
		}
		if v.Value, err = m.codec.Scan(s); err != nil {
			return v, fmt.Errorf("value: %w", err)
		}
		if v.Stamp, err = s.Uvarint(); err != nil {
			return v, fmt.Errorf("stamp: %w", err)
		}
		v.Writer, err = lattice.ScanReplicaID(s)
		return v, err
	})
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Slots = slots
	return nil
}
