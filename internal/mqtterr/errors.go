package mqtterr

import (
	"context"
	"errors"
	"fmt"
)

// Error is the unified error raised by every client operation, whichever
// protocol generation produced the failure.
//
// Use errors.Is with a Kind to classify it:
//
//	if errors.Is(err, mqtterr.ClientNotConnected) { ... }
type Error struct {
	// Kind is the taxonomy entry, Unknown when the code is unmapped.
	Kind Kind

	// Code is the raw code the failure carried. It equals Kind.Code() unless
	// Kind is Unknown.
	Code int

	// Message is the engine's message, or the call-site default when the
	// engine gave none.
	Message string

	// Err is the original failure.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("mqtt: %s (%d): %s", e.Kind.String(), e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New builds an Error of the given kind with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Code: kind.Code(), Message: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// reasonCoder is implemented by engine errors that carry a numeric code.
type reasonCoder interface {
	ReasonCode() int
}

// Translate converts a protocol-engine failure into an *Error.
//
// Errors carrying a reason code are looked up in the taxonomy. An unmapped
// code is wrapped as Unknown with the raw code kept; this applies to every
// operation alike. Errors that are already *Error pass through unchanged.
// defaultMsg is used when the failure has no message of its own.
func Translate(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var unified *Error
	if errors.As(err, &unified) {
		return err
	}

	msg := err.Error()
	if msg == "" {
		msg = defaultMsg
	}

	var rc reasonCoder
	if errors.As(err, &rc) {
		code := rc.ReasonCode()
		kind, _ := Lookup(code)
		return &Error{Kind: kind, Code: code, Message: msg, Err: err}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: ClientTimeout, Code: ClientTimeout.Code(), Message: msg, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: ClientClosed, Code: ClientClosed.Code(), Message: msg, Err: err}
	default:
		return &Error{Kind: ClientException, Code: ClientException.Code(), Message: msg, Err: err}
	}
}

// KindOf returns the Kind of err, or Unknown when err is not an *Error.
func KindOf(err error) Kind {
	var unified *Error
	if errors.As(err, &unified) {
		return unified.Kind
	}
	return Unknown
}
