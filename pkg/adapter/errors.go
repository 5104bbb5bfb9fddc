// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package adapter

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed transaction.
type ErrorKind uint8

const (
	// KindNone marks a successful transaction.
	KindNone ErrorKind = iota

	// KindNotConnected is fatal to the calling operation and never retried.
	KindNotConnected

	// KindTimeout is recoverable. Consecutive timeouts drive self-heal.
	KindTimeout

	// KindWriteFailed is surfaced to the caller but is not a timeout.
	KindWriteFailed

	// KindParseFailure means the expected header was absent or truncated.
	// It selects the fallback request on a later cycle.
	KindParseFailure

	// KindNoData means the adapter explicitly reported an empty or error
	// condition.
	KindNoData

	// KindCancelled means the caller gave up before the command was
	// written. Nothing reached the adapter.
	KindCancelled
)

// String returns a human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "OK"
	case KindNotConnected:
		return "NOT_CONNECTED"
	case KindTimeout:
		return "TIMEOUT"
	case KindWriteFailed:
		return "WRITE_FAILED"
	case KindParseFailure:
		return "PARSE_FAILURE"
	case KindNoData:
		return "NO_DATA"
	case KindCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrNotConnected = errors.New("adapter: not connected")
	ErrTimeout      = errors.New("adapter: timeout")
	ErrWriteFailed  = errors.New("adapter: write failed")
	ErrParseFailure = errors.New("adapter: parse failure")
	ErrNoData       = errors.New("adapter: no data")
	ErrCancelled    = errors.New("adapter: cancelled")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotConnected:
		return ErrNotConnected
	case KindTimeout:
		return ErrTimeout
	case KindWriteFailed:
		return ErrWriteFailed
	case KindParseFailure:
		return ErrParseFailure
	case KindNoData:
		return ErrNoData
	case KindCancelled:
		return ErrCancelled
	}
	return nil
}

// Error is a failed adapter transaction.
type Error struct {
	Kind    ErrorKind
	Command string
	Err     error
}

func newError(kind ErrorKind, command string, err error) *Error {
	return &Error{Kind: kind, Command: command, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Command != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Command)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of err, KindNone for nil. Errors that are not
// adapter errors report ok == false.
func KindOf(err error) (kind ErrorKind, ok bool) {
	if err == nil {
		return KindNone, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindNone, false
}
