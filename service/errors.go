package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure; the HTTP layer maps kinds to status codes.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindInvalidParticipants Kind = "InvalidParticipants"
	KindOwnershipMismatch   Kind = "OwnershipMismatch"
	KindNotFound            Kind = "NotFound"
	KindForbidden           Kind = "Forbidden"
	KindRateLimited         Kind = "RateLimited"
	KindUnexpected          Kind = "Unexpected"
)

// Error is returned by every Messenger operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrInvalidParticipants = &Error{Kind: KindInvalidParticipants}
	ErrOwnershipMismatch   = &Error{Kind: KindOwnershipMismatch}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrUnexpected          = &Error{Kind: KindUnexpected}
)

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the kind of err, or KindUnexpected for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// PublicMessage is the text safe to show a caller. Unexpected failures never
// expose their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnexpected && e.Message != "" {
		return e.Message
	}
	return "Internal server error"
}
