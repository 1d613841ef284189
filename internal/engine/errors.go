package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to clients.
type ErrorKind string

const (
	KindInput       ErrorKind = "input_violation"
	KindState       ErrorKind = "state_violation"
	KindPersistence ErrorKind = "persistence_failure"
	KindDelivery    ErrorKind = "delivery_failure"
)

var (
	ErrInputViolation = errors.New("input violation")
	ErrStateViolation = errors.New("state violation")
	ErrPersistence    = errors.New("session store unavailable")
	ErrDelivery       = errors.New("event delivery failed")
)

var kindSentinels = map[ErrorKind]error{
	KindInput:       ErrInputViolation,
	KindState:       ErrStateViolation,
	KindPersistence: ErrPersistence,
	KindDelivery:    ErrDelivery,
}

// Error is returned by every Engine operation that fails.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, kindSentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Code is the machine-readable code sent in error envelopes.
func (e *Error) Code() string { return string(e.Kind) }

func inputErr(op, format string, args ...any) *Error {
	return &Error{Kind: KindInput, Op: op, Err: fmt.Errorf(format, args...)}
}

func stateErr(op, format string, args ...any) *Error {
	return &Error{Kind: KindState, Op: op, Err: fmt.Errorf(format, args...)}
}
