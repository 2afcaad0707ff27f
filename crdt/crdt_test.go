// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt_test

import (
	"errors"
	"testing"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/crdt"
	"github.com/google/go-cmp/cmp"
)

// mustMerge merges the snapshot of src into dst.
func mustMerge(t *testing.T, dst, src lattice.Object) {
	t.Helper()
	if err := dst.Merge(src.Snapshot()); err != nil {
		t.Fatalf("Merge %v into %v: unexpected error: %v", src, dst, err)
	}
}

// mustUpdate applies an update operation to u.
func mustUpdate(t *testing.T, u lattice.Updater, op string, args ...string) {
	t.Helper()
	if err := u.Update(op, args...); err != nil {
		t.Fatalf("Update %q %q: unexpected error: %v", op, args, err)
	}
}

func TestGCounter(t *testing.T) {
	a, b := crdt.NewGCounter(), crdt.NewGCounter()
	a.Increment(5)
	a.Increment(10)
	mustMerge(t, b, a)

	if got := a.Value(); got != 15 {
		t.Errorf("A value: got %d, want 15", got)
	}
	if got := b.Value(); got != 15 {
		t.Errorf("B value: got %d, want 15", got)
	}

	// Concurrent increments on both sides add up.
	b.Increment(3)
	a.Increment(1)
	mustMerge(t, a, b)
	mustMerge(t, b, a)
	if a.Value() != 19 || b.Value() != 19 {
		t.Errorf("After exchange: got A=%d, B=%d, want 19", a.Value(), b.Value())
	}
}

func TestPNCounter(t *testing.T) {
	c := crdt.NewPNCounter()
	mustUpdate(t, c, "increment", "5")
	mustUpdate(t, c, "increment", "10")
	mustUpdate(t, c, "decrement", "8")
	mustUpdate(t, c, "decrement", "3")
	if got := c.Value(); got != 4 {
		t.Errorf("Value: got %d, want 4", got)
	}

	d := crdt.NewPNCounter()
	d.Decrement(10)
	mustMerge(t, d, c)
	if got := d.Value(); got != -6 {
		t.Errorf("Merged value: got %d, want -6", got)
	}
}

func TestTPSet(t *testing.T) {
	s := crdt.NewTPSet(crdt.String)
	s.Add("a")
	s.Add("b")
	if !s.Remove("a") {
		t.Error(`Remove "a": got false, want true`)
	}
	if s.Remove("a") {
		t.Error(`Remove "a" again: got true, want false`)
	}
	if s.Remove("nonesuch") {
		t.Error(`Remove "nonesuch": got true, want false`)
	}

	// Once removed, an element is never present again.
	s.Add("a")
	if s.Contains("a") {
		t.Error(`Contains "a" after re-add: got true, want false`)
	}

	o := crdt.NewTPSet(crdt.String)
	o.Add("a")
	o.Add("c")
	mustMerge(t, o, s)
	if diff := cmp.Diff([]string{"b", "c"}, o.Items()); diff != "" {
		t.Errorf("Merged items (-want, +got):\n%s", diff)
	}
}

func TestTwoPhaseGraph(t *testing.T) {
	g := crdt.NewTwoPhaseGraph(crdt.String)
	for _, v := range []string{"a", "b", "c"} {
		mustUpdate(t, g, "add-vertex", v)
	}
	mustUpdate(t, g, "add-edge", "a", "b")
	mustUpdate(t, g, "remove-vertex", "c")
	mustUpdate(t, g, "remove-edge", "a", "b")

	check := func(label string, got, want bool) {
		t.Helper()
		if got != want {
			t.Errorf("%s: got %v, want %v", label, got, want)
		}
	}
	check("vertex a", g.ContainsVertex("a"), true)
	check("vertex b", g.ContainsVertex("b"), true)
	check("vertex c", g.ContainsVertex("c"), false)
	check("edge a-b", g.ContainsEdge("a", "b"), false)

	// Re-adding c does not make it available for new edges.
	g.AddVertex("c")
	g.AddEdge("a", "c")
	check("vertex c after re-add", g.ContainsVertex("c"), false)
	check("edge a-c", g.ContainsEdge("a", "c"), false)

	// Edges whose endpoints are missing are ignored.
	g.AddEdge("a", "z")
	check("edge a-z", g.ContainsEdge("a", "z"), false)

	g.AddVertex("d")
	g.AddEdge("b", "d")
	h := crdt.NewTwoPhaseGraph(crdt.String)
	mustMerge(t, h, g)
	if diff := cmp.Diff([]string{"a", "b", "d"}, h.Vertices()); diff != "" {
		t.Errorf("Merged vertices (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]crdt.Edge[string]{{From: "b", To: "d"}}, h.Edges()); diff != "" {
		t.Errorf("Merged edges (-want, +got):\n%s", diff)
	}
}

func TestGMap(t *testing.T) {
	a := crdt.NewGMap(crdt.String, crdt.String)
	if !a.Put("k", "first") {
		t.Error("Put k: got false, want true")
	}
	if a.Put("k", "second") {
		t.Error("Put k again: got true, want false")
	}
	if v, ok := a.Get("k"); !ok || v != "first" {
		t.Errorf(`Get k: got (%q, %v), want ("first", true)`, v, ok)
	}

	// Concurrent first writers on three replicas converge on the binding made
	// by the greatest replica, whatever order the merges happen in.
	rs := []*crdt.GMap[string, string]{
		crdt.NewGMap(crdt.String, crdt.String),
		crdt.NewGMap(crdt.String, crdt.String),
		crdt.NewGMap(crdt.String, crdt.String),
	}
	want := ""
	var top lattice.ReplicaID
	for i, r := range rs {
		v := string(rune('A' + i))
		r.Put("x", v)
		if r.Replica().Compare(top) > 0 {
			top, want = r.Replica(), v
		}
	}
	mustMerge(t, rs[0], rs[1])
	mustMerge(t, rs[2], rs[0])
	mustMerge(t, rs[1], rs[2])
	mustMerge(t, rs[0], rs[2])
	for i, r := range rs {
		if v, _ := r.Get("x"); v != want {
			t.Errorf("Replica %d: got x=%q, want %q", i, v, want)
		}
	}
}

func TestGMultisetIdempotent(t *testing.T) {
	a, b := crdt.NewGMultiset(crdt.String), crdt.NewGMultiset(crdt.String)
	a.Add("x", 2)
	b.Add("x", 3)
	b.Add("y", 1)

	msg := b.Snapshot()
	for range 3 {
		if err := a.Merge(msg); err != nil {
			t.Fatalf("Merge: unexpected error: %v", err)
		}
	}
	if got := a.Count("x"); got != 5 {
		t.Errorf("Count x after repeated merge: got %d, want 5", got)
	}
	if got := a.Count("y"); got != 1 {
		t.Errorf("Count y after repeated merge: got %d, want 1", got)
	}
	if got := a.Total(); got != 6 {
		t.Errorf("Total: got %d, want 6", got)
	}

	mustUpdate(t, a, "add", "z")
	mustUpdate(t, a, "add", "z", "4")
	if got := a.Count("z"); got != 5 {
		t.Errorf("Count z: got %d, want 5", got)
	}
}

func TestGPQueue(t *testing.T) {
	q := crdt.NewGPQueue(crdt.String)
	if _, ok := q.Peek(); ok {
		t.Error("Peek on empty queue: got ok, want !ok")
	}
	q.Add(5, "five")
	q.Add(1, "one")
	q.Add(3, "three")
	q.Add(3, "tres")
	if diff := cmp.Diff([]string{"one", "tres", "five"}, q.Elements()); diff != "" {
		t.Errorf("Elements (-want, +got):\n%s", diff)
	}
	if v, ok := q.Peek(); !ok || v != "one" {
		t.Errorf(`Peek: got (%q, %v), want ("one", true)`, v, ok)
	}

	// A write made after seeing another replica's write supersedes it.
	p := crdt.NewGPQueue(crdt.String)
	mustMerge(t, p, q)
	p.Add(1, "uno")
	mustMerge(t, q, p)
	if v, _ := q.Peek(); v != "uno" {
		t.Errorf("Peek after merge: got %q, want %q", v, "uno")
	}

	// Concurrent writes to the same priority resolve the same on both sides.
	a, b := crdt.NewGPQueue(crdt.Int64), crdt.NewGPQueue(crdt.Int64)
	a.Add(7, 100)
	b.Add(7, 200)
	mustMerge(t, a, b)
	mustMerge(t, b, a)
	if diff := cmp.Diff(a.Elements(), b.Elements()); diff != "" {
		t.Errorf("Concurrent writes diverged (-a, +b):\n%s", diff)
	}
}

func TestLWWRegister(t *testing.T) {
	a := crdt.NewLWWRegister(crdt.String)
	b := crdt.NewLWWRegister(crdt.String)
	a.Assign("A", 1)
	mustMerge(t, b, a) // b saw only ("A", 1)
	a.Assign("B", 2)

	x := crdt.NewLWWRegister(crdt.String)
	mustMerge(t, x, a)
	mustMerge(t, x, b)
	y := crdt.NewLWWRegister(crdt.String)
	mustMerge(t, y, b)
	mustMerge(t, y, a)
	mustMerge(t, b, a)
	for name, r := range map[string]*crdt.LWWRegister[string]{"a": a, "b": b, "x": x, "y": y} {
		if got := r.Value(); got != "B" {
			t.Errorf("Register %s: got %q, want %q", name, got, "B")
		}
	}

	// A stale assignment is ignored.
	if a.Assign("C", 2) {
		t.Error("Assign at equal timestamp: got true, want false")
	}
}

func TestLWWMultiset(t *testing.T) {
	s := crdt.NewLWWMultiset(crdt.String)
	s.Add("a", 1)
	s.Add("b", 1)
	if !s.Remove("a", 2) {
		t.Error(`Remove "a": got false, want true`)
	}
	if s.Remove("z", 5) {
		t.Error(`Remove "z": got true, want false`)
	}
	s.Add("a", 3) // re-add after remove
	if !s.Contains("a") {
		t.Error(`Contains "a" after later add: got false, want true`)
	}

	o := crdt.NewLWWMultiset(crdt.String)
	o.Add("b", 2)
	o.Remove("b", 4)
	mustMerge(t, s, o)
	if diff := cmp.Diff([]string{"a"}, s.Items()); diff != "" {
		t.Errorf("Items after merge (-want, +got):\n%s", diff)
	}
}

func TestGList(t *testing.T) {
	a, b := crdt.NewGList(crdt.String), crdt.NewGList(crdt.String)
	mustUpdate(t, a, "add", "x")
	mustUpdate(t, a, "add", "y")
	mustMerge(t, b, a)
	b.Add("z")
	a.Add("w") // concurrent with z

	mustMerge(t, a, b)
	mustMerge(t, b, a)
	if diff := cmp.Diff(a.Items(), b.Items()); diff != "" {
		t.Errorf("Replicas differ (-a, +b):\n%s", diff)
	}
	got := a.Items()
	if diff := cmp.Diff([]string{"x", "y"}, got[:2]); diff != "" {
		t.Errorf("Prefix (-want, +got):\n%s", diff)
	}
	if a.Len() != 4 {
		t.Errorf("Len: got %d, want 4", a.Len())
	}

	// Merging is insensitive to order and repetition.
	c := crdt.NewGList(crdt.String)
	mustMerge(t, c, b)
	mustMerge(t, c, a)
	mustMerge(t, c, b)
	if diff := cmp.Diff(got, c.Items()); diff != "" {
		t.Errorf("Reordered merge (-want, +got):\n%s", diff)
	}

	// Later appends follow everything already seen.
	c.Add("v")
	if items := c.Items(); items[len(items)-1] != "v" {
		t.Errorf("Append after merge: got %q", items)
	}

	msg, err := c.DecodeMessage(c.Snapshot().Encode())
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	d := crdt.NewGList(crdt.String)
	if err := d.Merge(msg); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got, want := d.String(), `{"x", "y", `; got[:len(want)] != want || d.Len() != 5 {
		t.Errorf("Decoded list: got %s", got)
	}
}

func TestUpdateErrors(t *testing.T) {
	tests := []struct {
		obj  lattice.Updater
		op   string
		args []string
	}{
		{crdt.NewGCounter(), "decrement", []string{"1"}},
		{crdt.NewGCounter(), "increment", []string{"-1"}},
		{crdt.NewGCounter(), "increment", nil},
		{crdt.NewGSet(crdt.Int64), "add", []string{"bogus"}},
		{crdt.NewGMap(crdt.String, crdt.String), "put", []string{"k"}},
		{crdt.NewGMultiset(crdt.String), "add", []string{"a", "1", "2"}},
		{crdt.NewSequence(), "insert", []string{"1", "x"}},
		{crdt.NewSequence(), "delete", []string{"0"}},
		{crdt.NewSequence(), "delete", []string{"zero"}},
		{crdt.NewGList(crdt.Int64), "add", []string{"seven"}},
		{crdt.NewGList(crdt.String), "add", []string{"a", "b"}},
	}
	for _, tc := range tests {
		err := tc.obj.Update(tc.op, tc.args...)
		var pe *lattice.PreconditionError
		if !errors.As(err, &pe) {
			t.Errorf("%s %s %q: got error %v, want *PreconditionError", tc.obj.TypeName(), tc.op, tc.args, err)
		}
	}
}

func TestCatalog(t *testing.T) {
	want := []string{
		"2pgraph", "2pgraph[int64]", "2pset", "2pset[int64]",
		"gcounter", "glist", "glist[int64]", "gmap", "gmap[string,int64]", "gmultiset", "gmultiset[int64]",
		"gpqueue", "gpqueue[int64]", "gset", "gset[int64]",
		"lwwmultiset", "lwwmultiset[int64]", "lwwregister", "lwwregister[int64]",
		"pncounter", "sequence",
	}
	if diff := cmp.Diff(want, lattice.Default.Names()); diff != "" {
		t.Errorf("Registered names (-want, +got):\n%s", diff)
	}
	for _, name := range want {
		typ, err := lattice.Default.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup %q: %v", name, err)
		}
		obj := typ.New()
		if got := obj.TypeName(); got != name {
			t.Errorf("New %q: type name is %q", name, got)
		}
		if _, ok := obj.(lattice.Updater); !ok {
			t.Errorf("New %q: %T does not implement Updater", name, obj)
		}
		if len(typ.Ops) == 0 {
			t.Errorf("Type %q lists no operations", name)
		}
	}
}
