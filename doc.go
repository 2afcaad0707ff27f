// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package lattice defines the contract shared by convergent replicated data
// types (CRDTs) and the wire frame used to exchange their state.
//
// A replicated object is a value whose state is drawn from a join-semilattice.
// Each replica updates its own copy locally, without coordination, and
// periodically sends a full snapshot of its state to other replicas. A
// receiving replica merges the snapshot into its own state with the type's
// join. Merge is idempotent, commutative and associative, so once every
// replica has seen (directly or transitively) the updates of every other, all
// replicas hold equal state regardless of the order, duplication, or loss of
// intervening messages.
//
// # Objects and Messages
//
// The core types of this package are [Object] and [Message]. An Object
// reports a [Message] snapshot of its state, and merges messages produced by
// other replicas of the same type:
//
//	msg := a.Snapshot()
//	if err := b.Merge(msg); err != nil {
//	   log.Fatalf("Merge failed: %v", err)
//	}
//
// A message encodes to a self-contained binary payload. The payload does not
// carry its type name; that travels alongside it in an [Envelope].
//
// Objects that also implement [Updater] expose their update operations by
// name, so that a generic caller can drive them with textual arguments:
//
//	err := obj.(lattice.Updater).Update("increment", "5")
//
// # Registry
//
// A [Registry] maps type names to constructors and decoders, so that a
// receiver can decode a payload knowing only the name in its envelope. The
// crdt package registers its catalog in [Default] at initialization. A
// registry is sealed before use by an exchange and is read-only thereafter.
//
// # Envelopes
//
// An [Envelope] is the frame exchanged between replicas. It names the
// sender, the logical object ([ObjectID]), and the type of the payload.
// The binary format is:
//
//	"LX" version kind | length (4 bytes, BE) | body
//
// where the body is the sender's member position (uvarint), the 16-byte
// object ID, the type name (length-prefixed), and the payload
// (length-prefixed).
//
// # Errors
//
// Malformed bytes are reported as [*DecodeError], unregistered names as
// [*UnknownTypeError], and failed local preconditions of update operations as
// [*PreconditionError]. A merge of a message belonging to another type reports
// an error wrapping [ErrTypeMismatch].
package lattice
