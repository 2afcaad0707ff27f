// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"maps"
	"strconv"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
)

// A GCounter is a grow-only counter. Each replica increments its own slot of
// a per-replica vector; the value is the sum of all slots.
type GCounter struct {
	self   lattice.ReplicaID
	counts Vector
}

// NewGCounter constructs a new zero-valued counter with a fresh replica ID.
func NewGCounter() *GCounter {
	return &GCounter{self: lattice.NewReplicaID(), counts: make(Vector)}
}

// Replica reports the replica ID of c.
func (c *GCounter) Replica() lattice.ReplicaID { return c.self }

// Increment adds n to the counter.
func (c *GCounter) Increment(n uint64) { c.counts[c.self] += n }

// Value reports the current value of the counter.
func (c *GCounter) Value() uint64 { return c.counts.Sum() }

// TypeName implements part of [lattice.Object].
func (*GCounter) TypeName() string { return "gcounter" }

// Snapshot implements part of [lattice.Object].
func (c *GCounter) Snapshot() lattice.Message {
	return &GCounterMessage{Counts: maps.Clone(c.counts)}
}

// Merge implements part of [lattice.Object].
func (c *GCounter) Merge(m lattice.Message) error {
	msg, ok := m.(*GCounterMessage)
	if !ok {
		return lattice.Mismatch(c.TypeName(), m)
	}
	c.counts.join(msg.Counts)
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (c *GCounter) DecodeMessage(data []byte) (lattice.Message, error) {
	var msg GCounterMessage
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Update implements [lattice.Updater]. The operation is "increment n".
func (c *GCounter) Update(op string, args ...string) error {
	return opTable{
		"increment": param(parseUint, noError(c.Increment)),
	}.apply(c.TypeName(), op, args)
}

func (c *GCounter) String() string { return strconv.FormatUint(c.Value(), 10) }

// GCounterMessage is the snapshot message of a [GCounter].
type GCounterMessage struct {
	Counts Vector
}

// TypeName implements part of [lattice.Message].
func (*GCounterMessage) TypeName() string { return "gcounter" }

// Encode implements part of [lattice.Message].
func (m *GCounterMessage) Encode() []byte {
	var b packet.Builder
	b.Put(tagGCounter)
	m.Counts.appendTo(&b)
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *GCounterMessage) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagGCounter); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	v, err := scanVector(s)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Counts = v
	return nil
}

// A PNCounter is a counter that supports both increment and decrement. It
// pairs two grow-only vectors, one for increments and one for decrements;
// the value is the difference of their sums.
type PNCounter struct {
	self     lattice.ReplicaID
	pos, neg Vector
}

// NewPNCounter constructs a new zero-valued counter with a fresh replica ID.
func NewPNCounter() *PNCounter {
	return &PNCounter{self: lattice.NewReplicaID(), pos: make(Vector), neg: make(Vector)}
}

// Replica reports the replica ID of c.
func (c *PNCounter) Replica() lattice.ReplicaID { return c.self }

// Increment adds n to the counter.
func (c *PNCounter) Increment(n uint64) { c.pos[c.self] += n }

// Decrement subtracts n from the counter.
func (c *PNCounter) Decrement(n uint64) { c.neg[c.self] += n }

// Value reports the current value of the counter.
func (c *PNCounter) Value() int64 { return int64(c.pos.Sum() - c.neg.Sum()) }

// TypeName implements part of [lattice.Object].
func (*PNCounter) TypeName() string { return "pncounter" }

// Snapshot implements part of [lattice.Object].
func (c *PNCounter) Snapshot() lattice.Message {
	return &PNCounterMessage{Pos: maps.Clone(c.pos), Neg: maps.Clone(c.neg)}
}

// Merge implements part of [lattice.Object].
func (c *PNCounter) Merge(m lattice.Message) error {
	msg, ok := m.(*PNCounterMessage)
	if !ok {
		return lattice.Mismatch(c.TypeName(), m)
	}
	c.pos.join(msg.Pos)
	c.neg.join(msg.Neg)
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (c *PNCounter) DecodeMessage(data []byte) (lattice.Message, error) {
	var msg PNCounterMessage
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Update implements [lattice.Updater]. The operations are "increment n" and
// "decrement n".
func (c *PNCounter) Update(op string, args ...string) error {
	return opTable{
		"increment": param(parseUint, noError(c.Increment)),
		"decrement": param(parseUint, noError(c.Decrement)),
	}.apply(c.TypeName(), op, args)
}

func (c *PNCounter) String() string { return strconv.FormatInt(c.Value(), 10) }

// PNCounterMessage is the snapshot message of a [PNCounter].
type PNCounterMessage struct {
	Pos, Neg Vector
}

// TypeName implements part of [lattice.Message].
func (*PNCounterMessage) TypeName() string { return "pncounter" }

// Encode implements part of [lattice.Message].
func (m *PNCounterMessage) Encode() []byte {
	var b packet.Builder
	b.Put(tagPNCounter)
	m.Pos.appendTo(&b)
	m.Neg.appendTo(&b)
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *PNCounterMessage) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagPNCounter); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	pos, err := scanVector(s)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	neg, err := scanVector(s)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.Pos, m.Neg = pos, neg
	return nil
}
