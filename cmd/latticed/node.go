// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/exchange"
)

// node tracks the named objects bound to an exchange.
type node struct {
	x *exchange.Exchange

	μ     sync.Mutex
	names map[string]lattice.ObjectID
}

func newNode(x *exchange.Exchange) *node {
	return &node{x: x, names: make(map[string]lattice.ObjectID)}
}

// bind creates and binds a new object for spec.
func (n *node) bind(spec objectSpec) error {
	obj, err := lattice.Default.New(spec.Type)
	if err != nil {
		return fmt.Errorf("object %q: %w", spec.Name, err)
	}
	id := lattice.NamedObject(spec.Name)
	if err := n.x.Bind(id, obj); err != nil {
		return fmt.Errorf("object %q: %w", spec.Name, err)
	}
	n.μ.Lock()
	defer n.μ.Unlock()
	n.names[spec.Name] = id
	nodeLog.Infof("bound %q (%s) as %v", spec.Name, spec.Type, id)
	return nil
}

func (n *node) lookup(name string) (lattice.ObjectID, error) {
	n.μ.Lock()
	defer n.μ.Unlock()
	if id, ok := n.names[name]; ok {
		return id, nil
	}
	return lattice.ObjectID{}, fmt.Errorf("unknown object %q", name)
}

func (n *node) sortedNames() []string {
	n.μ.Lock()
	defer n.μ.Unlock()
	out := make([]string, 0, len(n.names))
	for name := range n.names {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// commands reads and executes commands from r, one per line, writing results
// to w. It returns nil at the end of input.
func (n *node) commands(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		args := strings.Fields(sc.Text())
		if len(args) == 0 || strings.HasPrefix(args[0], "#") {
			continue
		}
		if err := n.exec(w, args[0], args[1:]); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
	return sc.Err()
}

var errUsage = errors.New("usage")

func (n *node) exec(w io.Writer, cmd string, args []string) error {
	switch cmd {
	case "apply":
		if len(args) < 2 {
			return fmt.Errorf("%w: apply <name> <op> <arg>...", errUsage)
		}
		id, err := n.lookup(args[0])
		if err != nil {
			return err
		}
		return n.x.Apply(id, args[1], args[2:]...)

	case "show":
		names := args
		if len(names) == 0 {
			names = n.sortedNames()
		}
		for _, name := range names {
			id, err := n.lookup(name)
			if err != nil {
				return err
			}
			if err := n.x.View(id, func(obj lattice.Object) error {
				fmt.Fprintf(w, "%s\t%s\t%v\n", name, obj.TypeName(), obj)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil

	case "publish":
		if len(args) != 0 {
			return fmt.Errorf("%w: publish", errUsage)
		}
		return n.x.PublishAll()

	case "request":
		if len(args) != 2 {
			return fmt.Errorf("%w: request <name> <member>", errUsage)
		}
		id, err := n.lookup(args[0])
		if err != nil {
			return err
		}
		member, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid member %q: %w", args[1], err)
		}
		return n.x.Request(id, member)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
