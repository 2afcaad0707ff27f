// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

package lattice

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/creachadair/lattice/packet"
)

// A Type describes one registered replicated type.
type Type struct {
	// Name is the stable cross-process name of the type. It is the only
	// identifier that tells a receiver what kind of object a snapshot is for.
	Name string

	// New constructs a new empty instance of the type.
	New func() Object

	// Decode decodes a message of the type from its binary encoding.
	// Errors should have concrete type *DecodeError.
	Decode func([]byte) (Message, error)

	// Ops lists the update operations the type exposes by name through the
	// Updater interface, in a fixed order.
	Ops []string
}

// HasOp reports whether op is one of the update operations listed for t.
func (t Type) HasOp(op string) bool { return slices.Contains(t.Ops, op) }

// A Registry is a static mapping from type names to type descriptors. A
// registry is populated during program initialization and then sealed; after
// it is sealed it is read-only and safe for concurrent use.
//
// The zero value is not ready for use; call NewRegistry.
type Registry struct {
	μ      sync.RWMutex
	types  map[string]Type
	sealed bool
}

// NewRegistry creates a new empty, unsealed registry.
func NewRegistry() *Registry { return &Registry{types: make(map[string]Type)} }

// Default is the process-wide registry. The crdt package registers the
// built-in catalog here during initialization.
var Default = NewRegistry()

// ErrSealed is reported by Register when the registry is already sealed.
var ErrSealed = errors.New("registry is sealed")

// Register adds t to r. It reports an error if t is incomplete, if its name
// is already registered, or if r is sealed.
func (r *Registry) Register(t Type) error {
	if t.Name == "" || t.New == nil || t.Decode == nil {
		return fmt.Errorf("register %q: incomplete type descriptor", t.Name)
	}
	r.μ.Lock()
	defer r.μ.Unlock()
	if r.sealed {
		return fmt.Errorf("register %q: %w", t.Name, ErrSealed)
	}
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("register %q: duplicate type name", t.Name)
	}
	t.Ops = slices.Clone(t.Ops)
	r.types[t.Name] = t
	return nil
}

// MustRegister calls Register and panics if it reports an error.
// It returns r to allow chaining.
func (r *Registry) MustRegister(ts ...Type) *Registry {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Seal marks r read-only. Sealing is idempotent.
func (r *Registry) Seal() {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.sealed = true
}

// Sealed reports whether r has been sealed.
func (r *Registry) Sealed() bool {
	r.μ.RLock()
	defer r.μ.RUnlock()
	return r.sealed
}

// Lookup returns the type registered under name. If there is none, the error
// has concrete type *UnknownTypeError.
func (r *Registry) Lookup(name string) (Type, error) {
	r.μ.RLock()
	defer r.μ.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return Type{}, &UnknownTypeError{Name: name}
	}
	return t, nil
}

// New constructs a new empty instance of the named type.
func (r *Registry) New(name string) (Object, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return t.New(), nil
}

// Decode decodes data as a message of the named type.
func (r *Registry) Decode(name string, data []byte) (Message, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	msg, err := t.Decode(data)
	if err != nil {
		return nil, Decoding(name, err)
	}
	return msg, nil
}

// Names returns the registered type names in lexicographic order.
func (r *Registry) Names() []string {
	r.μ.RLock()
	defer r.μ.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// A Listing is a summary of the contents of a registry: the registered type
// names and the update operations of each. A listing can be exchanged between
// nodes to advertise which types they serve.
type Listing map[string][]string

// Listing returns a listing of the contents of r.
func (r *Registry) Listing() Listing {
	r.μ.RLock()
	defer r.μ.RUnlock()
	out := make(Listing, len(r.types))
	for name, t := range r.types {
		out[name] = slices.Clone(t.Ops)
	}
	return out
}

// Encode encodes l in binary format.
//
// The wire format of a listing is a count of types followed by the types in
// lexicographic order of name. Each type is its length-prefixed name, a count
// of operations, and each operation name length-prefixed.
func (l Listing) Encode() []byte {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)

	var b packet.Builder
	b.Vint30(uint32(len(names)))
	for _, name := range names {
		b.VPutString(name)
		b.Vint30(uint32(len(l[name])))
		for _, op := range l[name] {
			b.VPutString(op)
		}
	}
	return b.Bytes()
}

// Decode decodes data as a Listing payload, replacing the contents of l.
func (l *Listing) Decode(data []byte) error {
	if *l == nil {
		*l = make(Listing)
	} else {
		clear(*l)
	}
	s := packet.NewScanner(data)
	n, err := s.Count()
	if err != nil {
		return fmt.Errorf("truncated listing: %w", err)
	}
	for range n {
		name, err := packet.VGet[string](s)
		if err != nil {
			return fmt.Errorf("truncated name at offset %d: %w", s.Offset(), err)
		}
		nops, err := s.Count()
		if err != nil {
			return fmt.Errorf("truncated operations at offset %d: %w", s.Offset(), err)
		}
		ops := make([]string, 0, nops)
		for range nops {
			op, err := packet.VGet[string](s)
			if err != nil {
				return fmt.Errorf("truncated operation at offset %d: %w", s.Offset(), err)
			}
			ops = append(ops, op)
		}
		(*l)[name] = ops
	}
	return s.Done()
}
