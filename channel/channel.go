// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package channel provides implementations of the exchange.Conn interface.
package channel

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/creachadair/taskgroup"
)

// ErrNotMember is reported for a send to a position that is not a member of
// the group.
var ErrNotMember = errors.New("not a group member")

// A Hub is an in-process group of connected members, suitable for testing.
// Messages are passed as bytes without a network, and each member delivers its
// inbound messages in arrival order on its own goroutine.
type Hub struct {
	members []*Loopback

	μ   sync.Mutex
	tap func(from, to int, data []byte)
}

// NewHub constructs a hub with n members at positions 0 to n-1.
func NewHub(n int) *Hub {
	h := &Hub{members: make([]*Loopback, n)}
	for i := range h.members {
		h.members[i] = &Loopback{hub: h, pos: i, ready: make(chan struct{}, 1)}
	}
	return h
}

// Member returns the connection for the member at position i.
func (h *Hub) Member(i int) *Loopback { return h.members[i] }

// Len reports the number of members in h.
func (h *Hub) Len() int { return len(h.members) }

// Tap registers a callback invoked synchronously for every message sent
// through the hub, whether or not it is delivered. Passing nil removes the
// callback.
func (h *Hub) Tap(f func(from, to int, data []byte)) {
	h.μ.Lock()
	defer h.μ.Unlock()
	h.tap = f
}

func (h *Hub) route(from, to int, data []byte) error {
	if to < 0 || to >= len(h.members) {
		return fmt.Errorf("send to %d: %w", to, ErrNotMember)
	}
	h.μ.Lock()
	tap := h.tap
	h.μ.Unlock()
	if tap != nil {
		tap(from, to, data)
	}
	h.members[to].Deliver(data)
	return nil
}

// A Loopback is the connection of one member of a [Hub].
type Loopback struct {
	hub   *Hub
	pos   int
	ready chan struct{} // signals a non-empty queue

	μ       sync.Mutex
	handler func([]byte)
	queue   [][]byte
	down    bool
	stop    chan struct{}
	tasks   *taskgroup.Group
}

// Broadcast sends data to every other member of the hub.
func (c *Loopback) Broadcast(data []byte) error {
	for i := range c.hub.members {
		if i != c.pos {
			c.hub.route(c.pos, i, data)
		}
	}
	return nil
}

// Send sends data to the member at the given position.
func (c *Loopback) Send(data []byte, member int) error { return c.hub.route(c.pos, member, data) }

// NumMembers reports the number of members in the hub.
func (c *Loopback) NumMembers() int { return len(c.hub.members) }

// CurMemberPosition reports the position of c in the hub.
func (c *Loopback) CurMemberPosition() int { return c.pos }

// AllMemberIds reports the positions of all members of the hub.
func (c *Loopback) AllMemberIds() []int {
	ids := make([]int, len(c.hub.members))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Handle sets the inbound message handler.
func (c *Loopback) Handle(f func([]byte)) {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.handler = f
}

// SetDown sets whether c is partitioned from the hub. While down, messages
// addressed to c are discarded. Sends from c are not affected.
func (c *Loopback) SetDown(down bool) {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.down = down
}

// Deliver queues data for delivery to the handler of c, as if it had been
// sent by another member. It is discarded if c is down or not running.
func (c *Loopback) Deliver(data []byte) {
	c.μ.Lock()
	if c.stop == nil || c.down {
		c.μ.Unlock()
		return
	}
	c.queue = append(c.queue, bytes.Clone(data))
	c.μ.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Start starts delivery of inbound messages to the handler.
func (c *Loopback) Start() error {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.stop != nil {
		return errors.New("loopback is already started")
	} else if c.handler == nil {
		return errors.New("no handler is registered")
	}
	stop := make(chan struct{})
	c.stop = stop
	c.tasks = taskgroup.New(nil)
	c.tasks.Go(func() error {
		for {
			select {
			case <-stop:
				return nil
			case <-c.ready:
			}

			c.μ.Lock()
			batch, handler := c.queue, c.handler
			c.queue = nil
			c.μ.Unlock()

			for _, data := range batch {
				select {
				case <-stop:
					return nil
				default:
					handler(data)
				}
			}
		}
	})
	return nil
}

// Stop halts delivery, discarding any undelivered messages, and waits for a
// handler call in progress to return.
func (c *Loopback) Stop() error {
	c.μ.Lock()
	stop, tasks := c.stop, c.tasks
	c.stop, c.tasks, c.queue = nil, nil, nil
	c.μ.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	return tasks.Wait()
}
