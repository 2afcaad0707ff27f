// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"fmt"
	"maps"
	"slices"

	"github.com/creachadair/lattice"
	"github.com/creachadair/lattice/packet"
)

// A Vector maps each replica to the count it has contributed. Its join is the
// pointwise maximum.
type Vector map[lattice.ReplicaID]uint64

// Sum reports the total of all contributions in v.
func (v Vector) Sum() uint64 {
	var sum uint64
	for _, n := range v {
		sum += n
	}
	return sum
}

// join updates v to the pointwise maximum of v and w, and reports whether
// any entry of v changed.
func (v Vector) join(w Vector) bool {
	changed := false
	for id, n := range w {
		if n > v[id] {
			v[id] = n
			changed = true
		}
	}
	return changed
}

// replicas returns the keys of v in ascending order.
func (v Vector) replicas() []lattice.ReplicaID {
	return slices.SortedFunc(maps.Keys(v), lattice.ReplicaID.Compare)
}

func (v Vector) appendTo(b *packet.Builder) {
	b.Vint30(uint32(len(v)))
	for _, id := range v.replicas() {
		id.Append(b)
		b.Uvarint(v[id])
	}
}

func scanVector(s *packet.Scanner) (Vector, error) {
	n, err := scanCount(s, "vector")
	if err != nil {
		return nil, err
	}
	v := make(Vector, n)
	for range n {
		id, err := lattice.ScanReplicaID(s)
		if err != nil {
			return nil, err
		}
		c, err := s.Uvarint()
		if err != nil {
			return nil, fmt.Errorf("count for %v: %w", id, err)
		}
		if _, ok := v[id]; ok {
			return nil, fmt.Errorf("duplicate replica %v", id)
		}
		v[id] = c
	}
	return v, nil
}
