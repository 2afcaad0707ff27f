// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package lattice

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/creachadair/lattice/packet"
)

// An Envelope is the unit of exchange between replicas. It pairs a message
// payload with the routing information a receiver needs to find the local
// object and decode the payload without knowing its concrete type.
type Envelope struct {
	Kind    Kind     // what the envelope asks of the receiver
	From    int      // member position of the sender
	Object  ObjectID // the logical object addressed
	Type    string   // registered type name of the object
	Payload []byte   // encoded Message (empty for KindRequest)
}

// Kind describes the purpose of an envelope.
type Kind byte

const (
	KindSnapshot Kind = 1 // The payload is a full snapshot to merge
	KindRequest  Kind = 2 // The sender asks for the receiver's snapshot
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "SNAPSHOT"
	case KindRequest:
		return "REQUEST"
	default:
		return fmt.Sprintf("KIND:%d", byte(k))
	}
}

// envelopeVersion is the current version of the frame format.
const envelopeVersion = 0

// headerLen is the size in bytes of the fixed envelope header: the magic
// number, version, kind, and a 4-byte body length.
const headerLen = 8

// MaxBodyLen is the largest envelope body a reader will accept.
const MaxBodyLen = 1 << 24

// Encode encodes e in binary format.
func (e Envelope) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, headerLen+32+len(e.Type)+len(e.Payload)))
	if _, err := e.WriteTo(buf); err != nil {
		panic(fmt.Errorf("encoding envelope: %w", err))
	}
	return buf.Bytes()
}

// body returns the encoded body of e, not including the header.
func (e *Envelope) body() []byte {
	var b packet.Builder
	b.Grow(24 + packet.VLen(len(e.Type)) + packet.VLen(len(e.Payload)))
	b.Uvarint(uint64(e.From))
	b.Put(e.Object[:]...)
	b.VPutString(e.Type)
	b.VPut(e.Payload)
	return b.Bytes()
}

// WriteTo writes the envelope to w in binary format. It satisfies io.WriterTo.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
	body := e.body()
	buf := [headerLen]byte{'L', 'X', envelopeVersion, byte(e.Kind)}
	binary.BigEndian.PutUint32(buf[4:], uint32(len(body)))
	nw, err := w.Write(buf[:])
	if err == nil {
		var nb int
		nb, err = w.Write(body)
		nw += nb
	}
	return int64(nw), err
}

// ReadFrom reads an envelope from r in binary format. It satisfies
// io.ReaderFrom. Malformed input is reported as a *DecodeError.
func (e *Envelope) ReadFrom(r io.Reader) (int64, error) {
	var buf [headerLen]byte
	nr, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(nr), Decoding("", fmt.Errorf("short envelope header: %w", err))
	}
	if p := string(buf[:3]); p != "LX\x00" {
		return int64(nr), Decoding("", fmt.Errorf("invalid envelope version %q", p))
	}
	bsize := binary.BigEndian.Uint32(buf[4:])
	if bsize > MaxBodyLen {
		return int64(nr), Decoding("", fmt.Errorf("envelope body of %d bytes exceeds limit %d", bsize, MaxBodyLen))
	}
	body := make([]byte, int(bsize))
	nb, err := io.ReadFull(r, body)
	nr += nb
	if err != nil {
		return int64(nr), Decoding("", fmt.Errorf("short envelope body: %w", err))
	}
	return int64(nr), e.decodeBody(Kind(buf[3]), body)
}

// Decode decodes data as a complete envelope, replacing the contents of e.
// Trailing data after the envelope is an error.
func (e *Envelope) Decode(data []byte) error {
	if len(data) < headerLen {
		return Decoding("", fmt.Errorf("short envelope header (%d bytes)", len(data)))
	}
	if p := string(data[:3]); p != "LX\x00" {
		return Decoding("", fmt.Errorf("invalid envelope version %q", p))
	}
	bsize := int(binary.BigEndian.Uint32(data[4:]))
	if bsize > MaxBodyLen {
		return Decoding("", fmt.Errorf("envelope body of %d bytes exceeds limit %d", bsize, MaxBodyLen))
	} else if rest := len(data) - headerLen; rest != bsize {
		return Decoding("", fmt.Errorf("envelope body is %d bytes, header says %d", rest, bsize))
	}
	return e.decodeBody(Kind(data[3]), data[headerLen:])
}

func (e *Envelope) decodeBody(kind Kind, body []byte) error {
	if kind != KindSnapshot && kind != KindRequest {
		return Decoding("", fmt.Errorf("unknown envelope kind %v", kind))
	}
	s := packet.NewScanner(body)
	from, err := s.Uvarint()
	if err != nil {
		return Decoding("", fmt.Errorf("sender: %w", err))
	}
	oid, err := packet.Get[[]byte](s, len(e.Object))
	if err != nil {
		return Decoding("", fmt.Errorf("object id: %w", err))
	}
	tname, err := packet.VGet[string](s)
	if err != nil {
		return Decoding("", fmt.Errorf("type name: %w", err))
	}
	payload, err := packet.VGet[[]byte](s)
	if err != nil {
		return Decoding(tname, fmt.Errorf("payload: %w", err))
	}
	if err := s.Done(); err != nil {
		return Decoding(tname, err)
	}

	e.Kind = kind
	e.From = int(from)
	copy(e.Object[:], oid)
	e.Type = tname
	if len(payload) != 0 {
		e.Payload = bytes.Clone(payload)
	} else {
		e.Payload = nil
	}
	return nil
}

// String returns a human-friendly rendering of the envelope.
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope(LX%d, %v, from=%d, %s %s, %d bytes)",
		envelopeVersion, e.Kind, e.From, e.Type, e.Object, len(e.Payload))
}
