// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package peers_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/channel"
	"github.com/creachadair/lattice/crdt"
	"github.com/creachadair/lattice/exchange"
	"github.com/creachadair/lattice/peers"
	"github.com/fortytw2/leaktest"
)

func counterValue(obj lattice.Object) uint64 { return obj.(*crdt.GCounter).Value() }

func TestRun(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		hub := channel.NewHub(1)
		x := exchange.New(hub.Member(0), nil)

		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()
		start := time.Now()
		if err := peers.Run(ctx, x); err != nil {
			t.Errorf("Run: unexpected error: %v", err)
		}
		if d := time.Since(start); d != 5*time.Second {
			t.Errorf("Run returned after %v, want 5s", d)
		}
	})
}

func TestRunStartError(t *testing.T) {
	// A UDP connection with an unresolvable address cannot start.
	u, err := channel.NewUDP(0, []string{"bogus address"})
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	if err := peers.Run(t.Context(), exchange.New(u, nil)); err == nil {
		t.Error("Run: got nil, want error")
	}
}

func TestLocal(t *testing.T) {
	defer leaktest.Check(t)()

	loc := peers.NewLocal(3, &exchange.Options{PropagateOnUpdate: true})
	id := lattice.NamedObject("hits")
	if err := loc.Bind(id, func() lattice.Object { return crdt.NewGCounter() }); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := loc.Bind(id, func() lattice.Object { return crdt.NewGCounter() }); !errors.Is(err, exchange.ErrAlreadyBound) {
		t.Errorf("Bind again: got %v, want %v", err, exchange.ErrAlreadyBound)
	}
	if err := loc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		if err := loc.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}()

	for i, x := range loc.Nodes {
		if err := x.Apply(id, "increment", "5"); err != nil {
			t.Fatalf("Node %d increment: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := peers.Await(ctx, loc, id, counterValue, 15); err != nil {
		t.Fatalf("Await: %v", err)
	}
}

func TestAwaitUnbound(t *testing.T) {
	defer leaktest.Check(t)()

	loc := peers.NewLocal(3, &exchange.Options{AutoCreate: true, PropagateOnUpdate: true})
	if err := loc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		if err := loc.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}()

	// Only node 0 binds the object; the others learn of it by publication.
	id := lattice.NamedObject("late")
	if err := loc.Nodes[0].Bind(id, crdt.NewGCounter()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := loc.Nodes[0].Apply(id, "increment", "4"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := peers.Await(ctx, loc, id, counterValue, 4); err != nil {
		t.Fatalf("Await: %v", err)
	}
}

func TestAwaitTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loc := peers.NewLocal(2, nil)
		id := lattice.NewObjectID()
		if err := loc.Bind(id, func() lattice.Object { return crdt.NewGCounter() }); err != nil {
			t.Fatalf("Bind: %v", err)
		}

		// Without starting or publishing, the nodes agree on 1 but never reach 2.
		for i, x := range loc.Nodes {
			if err := x.Apply(id, "increment", "1"); err != nil {
				t.Fatalf("Node %d Apply: %v", i, err)
			}
		}
		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()
		if err := peers.Await(ctx, loc, id, counterValue, 2); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Await: got %v, want %v", err, context.DeadlineExceeded)
		}

		// An object bound nowhere is never reached.
		ctx, cancel = context.WithTimeout(t.Context(), time.Second)
		defer cancel()
		if err := peers.Await(ctx, loc, lattice.NewObjectID(), counterValue, 0); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Await unbound: got %v, want %v", err, context.DeadlineExceeded)
		}
	})
}

func TestObjectUnknown(t *testing.T) {
	loc := peers.NewLocal(2, nil)
	if _, err := peers.Observe(loc, lattice.NewObjectID(), counterValue); !errors.Is(err, exchange.ErrUnknownObject) {
		t.Errorf("Observe: got %v, want %v", err, exchange.ErrUnknownObject)
	}
}
