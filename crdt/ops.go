// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

package crdt

import (
	"strconv"

	"github.com/creachadair/lattice"
)

// An opFunc applies one update operation to its text arguments.
type opFunc func(args []string) error

// An opTable maps operation names to their implementations.
type opTable map[string]opFunc

// apply dispatches op to its implementation in t. Unknown operations and
// argument errors are reported as *lattice.PreconditionError.
func (t opTable) apply(typeName, op string, args []string) error {
	f, ok := t[op]
	if !ok {
		return lattice.Preconditionf(typeName+"."+op, "unknown operation")
	}
	if err := f(args); err != nil {
		if _, ok := err.(*lattice.PreconditionError); ok {
			return err
		}
		return &lattice.PreconditionError{Op: typeName + "." + op, Reason: err.Error()}
	}
	return nil
}

// argError reports an invalid argument count.
type argError struct{ want, got int }

func (e argError) Error() string {
	return "wrong number of arguments: got " + strconv.Itoa(e.got) + ", want " + strconv.Itoa(e.want)
}

// param adapts a function f that accepts one parameter of type P and reports
// an error, to an opFunc. The argument is parsed with pp.
func param[P any](pp func(string) (P, error), f func(P) error) opFunc {
	return func(args []string) error {
		if len(args) != 1 {
			return argError{1, len(args)}
		}
		p, err := pp(args[0])
		if err != nil {
			return err
		}
		return f(p)
	}
}

// param2 adapts a function f that accepts parameters of types P and Q and
// reports an error, to an opFunc.
func param2[P, Q any](pp func(string) (P, error), pq func(string) (Q, error), f func(P, Q) error) opFunc {
	return func(args []string) error {
		if len(args) != 2 {
			return argError{2, len(args)}
		}
		p, err := pp(args[0])
		if err != nil {
			return err
		}
		q, err := pq(args[1])
		if err != nil {
			return err
		}
		return f(p, q)
	}
}

// noError adapts a function without an error result for use with param.
func noError[P any](f func(P)) func(P) error {
	return func(p P) error { f(p); return nil }
}

// noError2 adapts a function of two parameters without an error result.
func noError2[P, Q any](f func(P, Q)) func(P, Q) error {
	return func(p P, q Q) error { f(p, q); return nil }
}

func parseUint(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }

func parseInt(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func parseIndex(s string) (int, error) { return strconv.Atoi(s) }

func parseText(s string) (string, error) { return s, nil }
