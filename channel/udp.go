// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package channel

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"

	"github.com/creachadair/taskgroup"
	"github.com/lni/dragonboat/v4/logger"
)

var udpLog = logger.GetLogger("channel")

// MaxDatagram is the largest message a UDP connection will send.
const MaxDatagram = 65507

// A UDP is a group connection whose members are UDP addresses. Each message
// is one datagram; sends are fire-and-forget.
type UDP struct {
	self int

	μ       sync.Mutex
	addrs   []string
	peers   []*net.UDPAddr // resolved addrs, populated by Start
	conn    *net.UDPConn
	handler func([]byte)
	tasks   *taskgroup.Group
}

// NewUDP constructs an unstarted UDP connection for the member at position
// self among the given "host:port" addresses.
func NewUDP(self int, addrs []string) (*UDP, error) {
	if self < 0 || self >= len(addrs) {
		return nil, fmt.Errorf("member %d: %w", self, ErrNotMember)
	}
	return &UDP{self: self, addrs: slices.Clone(addrs)}, nil
}

// Addr reports the local address of u, or nil if u is not started.
func (u *UDP) Addr() net.Addr {
	u.μ.Lock()
	defer u.μ.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// SetPeer updates the address of the member at the given position.
func (u *UDP) SetPeer(member int, addr string) error {
	if member < 0 || member >= len(u.addrs) {
		return fmt.Errorf("member %d: %w", member, ErrNotMember)
	}
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	u.μ.Lock()
	defer u.μ.Unlock()
	u.addrs[member] = addr
	if u.peers != nil {
		u.peers[member] = ua
	}
	return nil
}

// Broadcast sends data to every other member. It attempts all members and
// returns the errors joined.
func (u *UDP) Broadcast(data []byte) error {
	var errs []error
	for i := range u.addrs {
		if i != u.self {
			if err := u.Send(data, i); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Send sends data in one datagram to the member at the given position.
func (u *UDP) Send(data []byte, member int) error {
	if len(data) > MaxDatagram {
		return fmt.Errorf("message too large (%d > %d bytes)", len(data), MaxDatagram)
	}
	u.μ.Lock()
	conn := u.conn
	var dst *net.UDPAddr
	if member >= 0 && member < len(u.peers) {
		dst = u.peers[member]
	}
	u.μ.Unlock()
	if conn == nil {
		return net.ErrClosed
	} else if dst == nil {
		return fmt.Errorf("send to %d: %w", member, ErrNotMember)
	}
	_, err := conn.WriteToUDP(data, dst)
	return err
}

// NumMembers reports the number of members in the group.
func (u *UDP) NumMembers() int { return len(u.addrs) }

// CurMemberPosition reports the position of u in the group.
func (u *UDP) CurMemberPosition() int { return u.self }

// AllMemberIds reports the positions of all members of the group.
func (u *UDP) AllMemberIds() []int {
	ids := make([]int, len(u.addrs))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Handle sets the inbound message handler.
func (u *UDP) Handle(f func([]byte)) {
	u.μ.Lock()
	defer u.μ.Unlock()
	u.handler = f
}

// Start resolves the member addresses, binds the local address, and starts a
// goroutine delivering inbound datagrams to the handler.
func (u *UDP) Start() error {
	u.μ.Lock()
	defer u.μ.Unlock()
	if u.conn != nil {
		return errors.New("udp is already started")
	} else if u.handler == nil {
		return errors.New("no handler is registered")
	}
	peers := make([]*net.UDPAddr, len(u.addrs))
	for i, addr := range u.addrs {
		ua, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
		peers[i] = ua
	}
	conn, err := net.ListenUDP("udp", peers[u.self])
	if err != nil {
		return err
	}
	u.conn, u.peers = conn, peers
	u.tasks = taskgroup.New(nil)

	handler := u.handler
	u.tasks.Go(func() error {
		buf := make([]byte, MaxDatagram+1)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if errors.Is(err, net.ErrClosed) {
				return nil
			} else if err != nil {
				udpLog.Warningf("read: %v", err)
				continue
			} else if n > MaxDatagram {
				udpLog.Warningf("discarding oversize datagram from %v", from)
				continue
			}
			handler(bytes.Clone(buf[:n]))
		}
	})
	udpLog.Debugf("member %d listening on %v", u.self, conn.LocalAddr())
	return nil
}

// Stop closes the socket and waits for the listener to exit.
func (u *UDP) Stop() error {
	u.μ.Lock()
	conn, tasks := u.conn, u.tasks
	u.conn, u.tasks = nil, nil
	u.μ.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	tasks.Wait()
	return err
}
