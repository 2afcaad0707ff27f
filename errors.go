// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package lattice

import (
	"errors"
	"fmt"
)

// ErrTypeMismatch is reported (wrapped) by Merge when the message does not
// belong to the receiving object's type.
var ErrTypeMismatch = errors.New("message type mismatch")

// DecodeError is the concrete type of errors reported when snapshot or
// envelope bytes are malformed or truncated.
type DecodeError struct {
	Type string // the type name being decoded, if known
	Err  error  // the underlying failure
}

// Error satisfies the error interface.
func (d *DecodeError) Error() string {
	if d.Type == "" {
		return fmt.Sprintf("decode: %v", d.Err)
	}
	return fmt.Sprintf("decode %s: %v", d.Type, d.Err)
}

// Unwrap reports the underlying error of d.
func (d *DecodeError) Unwrap() error { return d.Err }

// Decoding returns a *DecodeError for the given type name wrapping err, or nil
// if err == nil.
func Decoding(typeName string, err error) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) && de.Type == typeName {
		return err
	}
	return &DecodeError{Type: typeName, Err: err}
}

// UnknownTypeError is the concrete type of errors reported when a type name
// has no registration.
type UnknownTypeError struct {
	Name string
}

// Error satisfies the error interface.
func (u *UnknownTypeError) Error() string { return fmt.Sprintf("unknown type %q", u.Name) }

// PreconditionError is the concrete type of errors reported by update
// operations whose local precondition does not hold.
type PreconditionError struct {
	Op     string // the operation that failed
	Reason string // a human-readable description
}

// Error satisfies the error interface.
func (p *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition failed: %s", p.Op, p.Reason)
}

// Preconditionf returns a *PreconditionError for op with a formatted reason.
func Preconditionf(op, msg string, args ...any) error {
	return &PreconditionError{Op: op, Reason: fmt.Sprintf(msg, args...)}
}

// Mismatch returns an error wrapping ErrTypeMismatch for a merge of msg into
// an object of the named type.
func Mismatch(typeName string, msg Message) error {
	return fmt.Errorf("merge %T into %s: %w", msg, typeName, ErrTypeMismatch)
}
