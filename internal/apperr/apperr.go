// Package apperr carries the error kinds shared by every service so the
// transport layers can map them to status codes without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindStateConflict Kind = "state_conflict"
	KindSessionClosed Kind = "session_closed"
	KindTokenNotFound Kind = "token_not_found"
	KindTokenExpired  Kind = "token_expired"
	KindTokenUsed     Kind = "token_used"
	KindRoleBinding   Kind = "role_binding"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when the target carries no message,
// so errors.Is(err, apperr.ErrTokenUsed) works for every wrapped instance.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrStateConflict = &Error{Kind: KindStateConflict}
	ErrSessionClosed = &Error{Kind: KindSessionClosed}
	ErrTokenNotFound = &Error{Kind: KindTokenNotFound}
	ErrTokenExpired  = &Error{Kind: KindTokenExpired}
	ErrTokenUsed     = &Error{Kind: KindTokenUsed}
	ErrRoleBinding   = &Error{Kind: KindRoleBinding}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func StateConflict(format string, args ...any) *Error {
	return New(KindStateConflict, format, args...)
}

// KindOf reports the kind of the outermost *Error in the chain, or
// KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-visible text. Internal errors are not leaked.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Error()
	}
	return "internal server error"
}

func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindStateConflict, KindSessionClosed,
		KindTokenNotFound, KindTokenExpired, KindTokenUsed:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindRoleBinding:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
