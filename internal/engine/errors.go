package engine

import (
	"errors"
	"fmt"
)

// Kind classifies every rejected mutation so callers can tell "not
// authorized" from "insufficient funds" from "wrong state".
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindNotFound
	KindWrongState
	KindInvariant
	KindExternalCall
	KindReentrant
	KindTooEarly
)

// Error is the engine failure type. A rejected operation aborts with
// no state change and no event; the error kind is the only signal.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Errorf builds an engine error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the engine kind of err, or zero if err did not
// originate from the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
