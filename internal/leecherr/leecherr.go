// Package leecherr defines the error taxonomy shared by every core
// component: codec errors, handshake failures, transient I/O, tracker
// failures, piece integrity mismatches, and fatal conditions that should
// abort the whole program.
package leecherr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its disposition, per the error handling
// design: Codec and Handshake and IOTransient drop the offending peer and
// move on, TrackerFailure is logged and retried at the next announce,
// IntegrityMismatch resets the offending piece, and Fatal aborts the
// program.
type Kind int

const (
	Codec Kind = iota
	Handshake
	IOTransient
	TrackerFailure
	IntegrityMismatch
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Codec:
		return "codec"
	case Handshake:
		return "handshake"
	case IOTransient:
		return "io_transient"
	case TrackerFailure:
		return "tracker_failure"
	case IntegrityMismatch:
		return "integrity_mismatch"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can switch on
// disposition instead of matching error strings.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Recoverable reports whether the disposition for this error is "drop the
// peer/connection and keep going" rather than aborting the program.
func Recoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case Codec, Handshake, IOTransient:
		return true
	default:
		return false
	}
}
