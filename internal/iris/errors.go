package iris

import (
	"errors"
	"fmt"
)

// Kind classifies a failed predict action.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindServer     Kind = "server"
	KindMalformed  Kind = "malformed_response"
	KindCancelled  Kind = "cancelled"
)

// User-visible messages for kinds that do not carry their own.
const (
	MsgInvalidFeatures = "All four features must be valid numbers."
	MsgInvalidJSON     = "Invalid JSON from server"
	MsgCancelled       = "request cancelled"
	MsgTimeout         = "request timed out"
)

// Error is the single error type surfaced by the prediction flow.
// Message is what the user sees.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 when no response was received
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the retry policy may try again after this error.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindServer, KindMalformed:
		return true
	default:
		return false
	}
}

// ErrCancelled is returned for actions aborted by a newer action or an explicit cancel.
var ErrCancelled = &Error{Kind: KindCancelled, Message: MsgCancelled}

// NewError builds an *Error of the given kind.
func NewError(kind Kind, status int, msg string, err error) *Error {
	return &Error{Kind: kind, Status: status, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-visible message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return fmt.Sprint(err)
}

// Is matches two *Error values by Kind so errors.Is(err, ErrCancelled) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
