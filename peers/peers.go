// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package peers provides support code for running and testing groups of
// exchanges.
package peers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/channel"
	"github.com/creachadair/lattice/exchange"
)

// Run starts x and blocks until ctx ends, then stops x and returns its
// status. If x fails to start, Run returns that error without waiting.
func Run(ctx context.Context, x *exchange.Exchange) error {
	if err := x.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return x.Stop()
}

// Local is a group of exchanges connected through an in-memory hub, suitable
// for testing.
type Local struct {
	Hub   *channel.Hub
	Nodes []*exchange.Exchange
}

// NewLocal creates a group of n unstarted exchanges sharing a hub. Each
// exchange is constructed with a copy of opts.
func NewLocal(n int, opts *exchange.Options) *Local {
	hub := channel.NewHub(n)
	loc := &Local{Hub: hub, Nodes: make([]*exchange.Exchange, n)}
	for i := range n {
		loc.Nodes[i] = exchange.New(hub.Member(i), opts)
	}
	return loc
}

// Bind binds a new object constructed by newObj to id on every node.
func (p *Local) Bind(id lattice.ObjectID, newObj func() lattice.Object) error {
	for i, x := range p.Nodes {
		if err := x.Bind(id, newObj()); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
	}
	return nil
}

// Start starts all the nodes. If any fails, the nodes already started are
// stopped again.
func (p *Local) Start() error {
	for i, x := range p.Nodes {
		if err := x.Start(); err != nil {
			for _, y := range p.Nodes[:i] {
				y.Stop()
			}
			return fmt.Errorf("node %d: %w", i, err)
		}
	}
	return nil
}

// Stop shuts down all the nodes and blocks until all have exited.
func (p *Local) Stop() error {
	var errs []error
	for _, x := range p.Nodes {
		errs = append(errs, x.Stop())
	}
	return errors.Join(errs...)
}

// Observe returns the result of calling f on the object bound to id at each
// node, in node order. Each call holds the node's lock for that object.
func Observe[T any](p *Local, id lattice.ObjectID, f func(lattice.Object) T) ([]T, error) {
	out := make([]T, len(p.Nodes))
	for i, x := range p.Nodes {
		if err := x.View(id, func(obj lattice.Object) error {
			out[i] = f(obj)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	return out, nil
}

// Await polls the values observed at every node for id until each of them
// equals want, or until ctx ends. A node that has not yet bound id has not
// reached want.
func Await[T comparable](ctx context.Context, p *Local, id lattice.ObjectID, f func(lattice.Object) T, want T) error {
	t := time.NewTicker(2 * time.Millisecond)
	defer t.Stop()
	for {
		vs, unbound := poll(p, id, f)
		if len(unbound) == 0 && all(vs, want) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("nodes did not reach %v (last %v, unbound %v): %w", want, vs, unbound, ctx.Err())
		case <-t.C:
		}
	}
}

// poll reports the value of f at each node that has id bound, and the
// positions of the nodes that do not.
func poll[T any](p *Local, id lattice.ObjectID, f func(lattice.Object) T) (vs []T, unbound []int) {
	for i, x := range p.Nodes {
		if err := x.View(id, func(obj lattice.Object) error {
			vs = append(vs, f(obj))
			return nil
		}); err != nil {
			unbound = append(unbound, i)
		}
	}
	return vs, unbound
}

func all[T comparable](vs []T, want T) bool {
	for _, v := range vs {
		if v != want {
			return false
		}
	}
	return true
}
