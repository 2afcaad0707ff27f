// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"fmt"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
	mapset "github.com/deckarep/golang-set/v2"
)

// An Edge is a directed edge between two vertices.
type Edge[T comparable] struct {
	From, To T
}

// A TwoPhaseGraph is a directed graph whose vertex and edge sets are each
// two-phase sets: a vertex or edge may be added and later removed, but once
// removed it is never present again.
//
// Operations whose local precondition does not hold are silently ignored:
// removing a vertex or edge that was never added, or adding an edge whose
// endpoints are not both present. Preconditions are not re-checked on merge.
type TwoPhaseGraph[T comparable] struct {
	codec      Codec[T]
	vAdd, vRem mapset.Set[T]
	eAdd, eRem mapset.Set[Edge[T]]
}

// NewTwoPhaseGraph constructs a new empty graph whose vertices use codec c.
func NewTwoPhaseGraph[T comparable](c Codec[T]) *TwoPhaseGraph[T] {
	return &TwoPhaseGraph[T]{
		codec: c,
		vAdd:  newSet[T](),
		vRem:  newSet[T](),
		eAdd:  newSet[Edge[T]](),
		eRem:  newSet[Edge[T]](),
	}
}

// AddVertex adds v to the graph.
func (g *TwoPhaseGraph[T]) AddVertex(v T) { g.vAdd.Add(v) }

// RemoveVertex removes v from the graph, if it has been added.
func (g *TwoPhaseGraph[T]) RemoveVertex(v T) {
	if g.vAdd.Contains(v) {
		g.vRem.Add(v)
	}
}

// AddEdge adds an edge from a to b, if both are present in the graph.
func (g *TwoPhaseGraph[T]) AddEdge(a, b T) {
	if g.ContainsVertex(a) && g.ContainsVertex(b) {
		g.eAdd.Add(Edge[T]{a, b})
	}
}

// RemoveEdge removes the edge from a to b, if it has been added.
func (g *TwoPhaseGraph[T]) RemoveEdge(a, b T) {
	e := Edge[T]{a, b}
	if g.eAdd.Contains(e) {
		g.eRem.Add(e)
	}
}

// ContainsVertex reports whether v is present in the graph.
func (g *TwoPhaseGraph[T]) ContainsVertex(v T) bool {
	return g.vAdd.Contains(v) && !g.vRem.Contains(v)
}

// ContainsEdge reports whether the edge from a to b is present in the graph.
func (g *TwoPhaseGraph[T]) ContainsEdge(a, b T) bool {
	e := Edge[T]{a, b}
	return g.eAdd.Contains(e) && !g.eRem.Contains(e)
}

// Vertices returns the vertices present in the graph, in order.
func (g *TwoPhaseGraph[T]) Vertices() []T {
	return sortedItems(g.vAdd.Difference(g.vRem), g.codec.Compare)
}

// Edges returns the edges present in the graph, in order.
func (g *TwoPhaseGraph[T]) Edges() []Edge[T] {
	return sortedItems(g.eAdd.Difference(g.eRem), g.compareEdge)
}

func (g *TwoPhaseGraph[T]) compareEdge(a, b Edge[T]) int {
	if c := g.codec.Compare(a.From, b.From); c != 0 {
		return c
	}
	return g.codec.Compare(a.To, b.To)
}

// TypeName implements part of [lattice.Object].
func (g *TwoPhaseGraph[T]) TypeName() string { return typeName("2pgraph", g.codec.Name) }

// Snapshot implements part of [lattice.Object].
func (g *TwoPhaseGraph[T]) Snapshot() lattice.Message {
	return &TwoPhaseGraphMessage[T]{
		AddVertices:    sortedItems(g.vAdd, g.codec.Compare),
		RemoveVertices: sortedItems(g.vRem, g.codec.Compare),
		AddEdges:       sortedItems(g.eAdd, g.compareEdge),
		RemoveEdges:    sortedItems(g.eRem, g.compareEdge),
		codec:          g.codec,
	}
}

// Merge implements part of [lattice.Object].
func (g *TwoPhaseGraph[T]) Merge(m lattice.Message) error {
	msg, ok := m.(*TwoPhaseGraphMessage[T])
	if !ok {
		return lattice.Mismatch(g.TypeName(), m)
	}
	addAll(g.vAdd, msg.AddVertices)
	addAll(g.vRem, msg.RemoveVertices)
	addAll(g.eAdd, msg.AddEdges)
	addAll(g.eRem, msg.RemoveEdges)
	return nil
}

// DecodeMessage implements part of [lattice.Object].
func (g *TwoPhaseGraph[T]) DecodeMessage(data []byte) (lattice.Message, error) {
	msg := &TwoPhaseGraphMessage[T]{codec: g.codec}
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Update implements [lattice.Updater]. The operations are "add-vertex v",
// "remove-vertex v", "add-edge a b", and "remove-edge a b".
func (g *TwoPhaseGraph[T]) Update(op string, args ...string) error {
	return opTable{
		"add-vertex":    param(g.codec.Parse, noError(g.AddVertex)),
		"remove-vertex": param(g.codec.Parse, noError(g.RemoveVertex)),
		"add-edge":      param2(g.codec.Parse, g.codec.Parse, noError2(g.AddEdge)),
		"remove-edge":   param2(g.codec.Parse, g.codec.Parse, noError2(g.RemoveEdge)),
	}.apply(g.TypeName(), op, args)
}

func (g *TwoPhaseGraph[T]) String() string {
	return fmt.Sprintf("V=%s E=%s", formatItems(g.Vertices(), g.codec.Format),
		formatItems(g.Edges(), func(e Edge[T]) string {
			return g.codec.Format(e.From) + "->" + g.codec.Format(e.To)
		}))
}

// TwoPhaseGraphMessage is the snapshot message of a [TwoPhaseGraph].
type TwoPhaseGraphMessage[T comparable] struct {
	AddVertices, RemoveVertices []T
	AddEdges, RemoveEdges       []Edge[T]

	codec Codec[T]
}

// TypeName implements part of [lattice.Message].
func (m *TwoPhaseGraphMessage[T]) TypeName() string { return typeName("2pgraph", m.codec.Name) }

func (m *TwoPhaseGraphMessage[T]) appendEdge(b *packet.Builder, e Edge[T]) {
	m.codec.Append(b, e.From)
	m.codec.Append(b, e.To)
}

func (m *TwoPhaseGraphMessage[T]) scanEdge(s *packet.Scanner) (Edge[T], error) {
	from, err := m.codec.Scan(s)
	if err != nil {
		return Edge[T]{}, err
	}
	to, err := m.codec.Scan(s)
	if err != nil {
		return Edge[T]{}, err
	}
	return Edge[T]{from, to}, nil
}

// Encode implements part of [lattice.Message].
func (m *TwoPhaseGraphMessage[T]) Encode() []byte {
	var b packet.Builder
	b.Put(tagTwoPGraph)
	appendItems(&b, m.AddVertices, m.codec.Append)
	appendItems(&b, m.RemoveVertices, m.codec.Append)
	appendItems(&b, m.AddEdges, m.appendEdge)
	appendItems(&b, m.RemoveEdges, m.appendEdge)
	return b.Bytes()
}

// Decode implements part of [lattice.Message].
func (m *TwoPhaseGraphMessage[T]) Decode(data []byte) error {
	s := packet.NewScanner(data)
	if err := scanTag(s, tagTwoPGraph); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	va, err := scanItems(s, "vertex", m.codec.Scan)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	vr, err := scanItems(s, "removed vertex", m.codec.Scan)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	ea, err := scanItems(s, "edge", m.scanEdge)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	er, err := scanItems(s, "removed edge", m.scanEdge)
	if err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	if err := s.Done(); err != nil {
		return lattice.Decoding(m.TypeName(), err)
	}
	m.AddVertices, m.RemoveVertices, m.AddEdges, m.RemoveEdges = va, vr, ea, er
	return nil
}
