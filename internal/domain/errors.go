package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that branch on outcome rather than
// on concrete error values.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnauthorized
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is an error with a kind and a caller-safe message.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error kind.
func (e *Error) Kind() Kind { return e.kind }

// NewError creates a kinded error.
func NewError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Invalidf creates an Invalid error with a formatted message.
func Invalidf(format string, args ...interface{}) *Error {
	return NewError(KindInvalid, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of err. Errors without a kind are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// PublicMessage returns the caller-safe message of err. Internal errors never
// leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "internal server error"
}

var (
	ErrContentEmpty    = NewError(KindInvalid, "content must not be empty")
	ErrContentTooLong  = Invalidf("content must be at most %d characters", MaxContentLength)
	ErrContentEncoding = NewError(KindInvalid, "content must be valid UTF-8")
	ErrIDRequired      = NewError(KindInvalid, "id is required")
	ErrAuthorRequired  = NewError(KindInvalid, "author id is required")
	ErrPasswordTooLong = NewError(KindInvalid, "password must be at most 72 bytes")

	ErrMessageNotFound = NewError(KindNotFound, "message not found")
	ErrUserNotFound    = NewError(KindNotFound, "user not found")

	ErrInvalidCredentials = NewError(KindUnauthorized, "invalid username/email or password")
	ErrInvalidToken       = NewError(KindUnauthorized, "invalid or expired token")
	ErrAuthRequired       = NewError(KindUnauthorized, "authentication required")
	ErrNotOwner           = NewError(KindUnauthorized, "only the author can modify this message")

	ErrUsernameExists = NewError(KindConflict, "username already exists")
	ErrEmailExists    = NewError(KindConflict, "email already exists")
)
