// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package crdt implements a catalog of state-based convergent replicated data
// types satisfying the [lattice.Object] contract.
//
// The catalog includes counters ([GCounter], [PNCounter]), sets ([GSet],
// [TPSet], [LWWMultiset], [GMultiset]), a graph ([TwoPhaseGraph]), a map
// ([GMap]), a priority queue ([GPQueue]), a register ([LWWRegister]), a
// grow-only list ([GList]), and an ordered text sequence ([Sequence]).
//
// Types that are generic over their element type take a [Codec] describing
// how elements are encoded. The string instantiation of each type is
// registered in [lattice.Default] under a bare name (for example "gset"), and
// the int64 instantiation under a qualified name (for example "gset[int64]").
// Every type also implements [lattice.Updater], so it can be driven by name
// with textual arguments.
package crdt

import "github.com/creachadair/lattice"

// Catalog returns the type descriptors for every type in the package.
func Catalog() []lattice.Type {
	return []lattice.Type{
		typeOf(NewGCounter, "increment"),
		typeOf(NewPNCounter, "increment", "decrement"),
		typeOf(NewSequence, "insert", "delete"),
		typeOf(func() *GMap[string, string] { return NewGMap(String, String) }, "put"),
		typeOf(func() *GMap[string, int64] { return NewGMap(String, Int64) }, "put"),

		typeOf(func() *GSet[string] { return NewGSet(String) }, "add"),
		typeOf(func() *GSet[int64] { return NewGSet(Int64) }, "add"),
		typeOf(func() *TPSet[string] { return NewTPSet(String) }, "add", "remove"),
		typeOf(func() *TPSet[int64] { return NewTPSet(Int64) }, "add", "remove"),
		typeOf(func() *TwoPhaseGraph[string] { return NewTwoPhaseGraph(String) },
			"add-vertex", "remove-vertex", "add-edge", "remove-edge"),
		typeOf(func() *TwoPhaseGraph[int64] { return NewTwoPhaseGraph(Int64) },
			"add-vertex", "remove-vertex", "add-edge", "remove-edge"),
		typeOf(func() *GMultiset[string] { return NewGMultiset(String) }, "add"),
		typeOf(func() *GMultiset[int64] { return NewGMultiset(Int64) }, "add"),
		typeOf(func() *GPQueue[string] { return NewGPQueue(String) }, "add"),
		typeOf(func() *GPQueue[int64] { return NewGPQueue(Int64) }, "add"),
		typeOf(func() *LWWRegister[string] { return NewLWWRegister(String) }, "assign"),
		typeOf(func() *LWWRegister[int64] { return NewLWWRegister(Int64) }, "assign"),
		typeOf(func() *LWWMultiset[string] { return NewLWWMultiset(String) }, "add", "remove"),
		typeOf(func() *LWWMultiset[int64] { return NewLWWMultiset(Int64) }, "add", "remove"),
		typeOf(func() *GList[string] { return NewGList(String) }, "add"),
		typeOf(func() *GList[int64] { return NewGList(Int64) }, "add"),
	}
}

// typeOf constructs a type descriptor for the objects returned by newf.
func typeOf[O lattice.Updater](newf func() O, ops ...string) lattice.Type {
	return lattice.Type{
		Name:   newf().TypeName(),
		New:    func() lattice.Object { return newf() },
		Decode: func(data []byte) (lattice.Message, error) { return newf().DecodeMessage(data) },
		Ops:    ops,
	}
}

func init() { lattice.Default.MustRegister(Catalog()...) }
