// Package fwerr defines the error kinds shared by every package in this module.
//
// Each error produced while parsing, validating, encrypting or composing an
// image is an *Error carrying one Kind, so callers can branch on the category
// without matching message text:
//
//	if errors.Is(err, fwerr.Capacity) {
//	    // a file does not fit its area
//	}
//
// Detail errors (checksum mismatches, overflowing areas, bad records) are
// wrapped inside and stay reachable with errors.As.
package fwerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind uint8

// Error kinds.
const (
	// MalformedInput covers bad Intel HEX records, truncated or corrupt
	// scratchpads and unparsable input specifications.
	MalformedInput Kind = iota + 1

	// Configuration covers layout validation failures and unusable key material.
	Configuration

	// Crypto covers authentication failures and cipher misuse.
	Crypto

	// Capacity covers data that does not fit where it has to go.
	Capacity
)

var kindNames = map[Kind]string{
	MalformedInput: "malformed input",
	Configuration:  "configuration error",
	Crypto:         "crypto error",
	Capacity:       "capacity error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error is a categorized error.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "parse header".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Wrap attaches a kind and operation to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Malformedf returns a MalformedInput error.
func Malformedf(op, format string, args ...interface{}) error {
	return &Error{Kind: MalformedInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// Configf returns a Configuration error.
func Configf(op, format string, args ...interface{}) error {
	return &Error{Kind: Configuration, Op: op, Err: fmt.Errorf(format, args...)}
}

// Cryptof returns a Crypto error.
func Cryptof(op, format string, args ...interface{}) error {
	return &Error{Kind: Crypto, Op: op, Err: fmt.Errorf(format, args...)}
}

// Capacityf returns a Capacity error.
func Capacityf(op, format string, args ...interface{}) error {
	return &Error{Kind: Capacity, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
