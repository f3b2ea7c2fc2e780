package session

import (
	"errors"
	"fmt"
)

// ErrorClass is an explicit severity classification for in-session faults.
type ErrorClass int

const (
	// ClassRecoverable faults are reported to the client as a non-fatal
	// notice; the session stays active.
	ClassRecoverable ErrorClass = iota

	// ClassFatal faults tear the session down.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRecoverable:
		return "recoverable"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is an in-session fault with an explicit class and the operation
// that produced it.
type Error struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable wraps err as a non-fatal session fault.
func Recoverable(op string, err error) *Error {
	return &Error{Class: ClassRecoverable, Op: op, Err: err}
}

// Fatal wraps err as a session-terminating fault.
func Fatal(op string, err error) *Error {
	return &Error{Class: ClassFatal, Op: op, Err: err}
}

// IsFatal reports whether err carries the fatal class. Unclassified errors
// are treated as recoverable; only faults explicitly marked fatal close the
// session.
func IsFatal(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Class == ClassFatal
	}
	return false
}
