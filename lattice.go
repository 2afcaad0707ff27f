// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package lattice

import (
	"bytes"
	"fmt"

	"github.com/creachadair/lattice/packet"
	"github.com/google/uuid"
)

// A Message is an immutable snapshot of the full mergeable state of one
// replicated object. Each concrete object type has exactly one message type.
//
// The encoding of a message does not include its type name; the name travels
// alongside the payload in an [Envelope].
type Message interface {
	// TypeName reports the registered name of the object type this message
	// carries state for.
	TypeName() string

	// Encode encodes the message in binary format.
	Encode() []byte

	// Decode replaces the contents of the message with the binary encoding in
	// data. Decoding the output of Encode reproduces the original message.
	Decode(data []byte) error
}

// An Object is a convergent replicated value whose state is drawn from a
// join-semilattice. Objects are not safe for concurrent use: the caller must
// serialize updates and merges on any one object.
type Object interface {
	// TypeName reports the registered name of the object's type.
	TypeName() string

	// Snapshot returns a message sufficient to reproduce the current state of
	// the object elsewhere. The message does not alias the object state.
	Snapshot() Message

	// Merge folds a message into the object using the type's join. Merge
	// accepts any message produced by the same type, and reports an error
	// wrapping ErrTypeMismatch for a message of any other type.
	Merge(Message) error

	// DecodeMessage decodes a message of the object's own type from data.
	// Errors have concrete type *DecodeError.
	DecodeMessage(data []byte) (Message, error)
}

// An Updater is an Object that exposes its update operations by name, so that
// they can be invoked without static knowledge of the concrete type. Each
// argument is the text form of one operand.
type Updater interface {
	Object

	// Update applies the named operation. Unknown operations and malformed
	// arguments are reported as *PreconditionError.
	Update(op string, args ...string) error
}

// A ReplicaID is a 128-bit identifier drawn at random for each object
// instance. It indexes per-replica contributions and breaks ties
// deterministically between concurrent writers.
type ReplicaID uuid.UUID

// NewReplicaID returns a fresh random ReplicaID.
func NewReplicaID() ReplicaID { return ReplicaID(uuid.New()) }

// Compare reports -1, 0, or +1 according to whether r is less than, equal to,
// or greater than s in byte order.
func (r ReplicaID) Compare(s ReplicaID) int { return bytes.Compare(r[:], s[:]) }

// String renders r in the canonical UUID form.
func (r ReplicaID) String() string { return uuid.UUID(r).String() }

// Append appends the binary encoding of r to b.
func (r ReplicaID) Append(b *packet.Builder) { b.Put(r[:]...) }

// ScanReplicaID scans a ReplicaID from the head of s.
func ScanReplicaID(s *packet.Scanner) (ReplicaID, error) {
	var id ReplicaID
	raw, err := packet.Get[[]byte](s, len(id))
	if err != nil {
		return id, fmt.Errorf("replica id: %w", err)
	}
	copy(id[:], raw)
	return id, nil
}

// An ObjectID identifies one logical replicated object. All replicas of the
// same object share its ObjectID.
type ObjectID uuid.UUID

// NewObjectID returns a fresh random ObjectID.
func NewObjectID() ObjectID { return ObjectID(uuid.New()) }

// NamedObject returns the ObjectID derived from name. Replicas that agree on
// a name agree on the ID without coordination.
func NamedObject(name string) ObjectID {
	return ObjectID(uuid.NewSHA1(objectSpace, []byte(name)))
}

// objectSpace is the UUID namespace for NamedObject.
var objectSpace = uuid.MustParse("1d8c7b5e-2f3a-4c61-9e0d-6a4b8f9c2e17")

// ParseObjectID parses the canonical UUID form of an ObjectID.
func ParseObjectID(s string) (ObjectID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ObjectID{}, err
	}
	return ObjectID(u), nil
}

// String renders id in the canonical UUID form.
func (id ObjectID) String() string { return uuid.UUID(id).String() }
