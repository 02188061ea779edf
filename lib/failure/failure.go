// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package failure

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a flashing attempt was abandoned. Every Kind is
// terminal for the session it happened in.
type Kind int

const (
	Unclassified Kind = iota
	Format
	Capacity
	ModelMismatch
	Protocol
	Transfer
	DeviceNotFound
)

func (k Kind) String() string {
	switch k {
	case Format:
		return "format error"
	case Capacity:
		return "capacity error"
	case ModelMismatch:
		return "model mismatch"
	case Protocol:
		return "protocol error"
	case Transfer:
		return "transfer error"
	case DeviceNotFound:
		return "device not found"
	}

	return "error"
}

type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Cause() error {
	return e.err
}

func (e *Error) Unwrap() error {
	return e.err
}

func New(kind Kind, msg string) error {
	return &Error{kind: kind, err: errors.New(msg)}
}

func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap annotates err with msg and tags it with kind. A nil err stays nil.
// If err already carries a Kind, the inner one wins in KindOf.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: errors.Wrap(err, msg)}
}

func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(kind, err, fmt.Sprintf(format, args...))
}

// KindOf returns the innermost Kind in err's chain, or Unclassified.
func KindOf(err error) Kind {
	kind := Unclassified
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			break
		}
		kind = fe.kind
		err = fe.err
	}
	return kind
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
