// Package errs defines the user-facing error taxonomy. Every failure that
// reaches a chat reply is one of these kinds; the message is always safe to
// show to the user.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a user-facing failure.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindAmbiguity     Kind = "ambiguity"
	KindUpstream      Kind = "upstream"
	KindNotFound      Kind = "not_found"
)

// Error is a classified failure with an actionable message.
type Error struct {
	Kind    Kind
	Message string
	// Hint is appended to the message, e.g. the list of valid zones.
	Hint string
	// Candidates lists the competing matches of an ambiguity error.
	Candidates []string
	Err        error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return e.Message + " " + e.Hint
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Reply renders the error as chat text, including ambiguity candidates.
func (e *Error) Reply() string {
	if len(e.Candidates) == 0 {
		return e.Error()
	}
	var b strings.Builder
	b.WriteString(e.Message)
	for _, c := range e.Candidates {
		b.WriteString("\n- ")
		b.WriteString(c)
	}
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error with an optional hint.
func NotFound(hint string, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Hint: hint}
}

// Ambiguous builds a KindAmbiguity error listing candidates.
func Ambiguous(candidates []string, hint string, format string, args ...any) *Error {
	return &Error{Kind: KindAmbiguity, Message: fmt.Sprintf(format, args...), Candidates: candidates, Hint: hint}
}

// Upstream wraps a reasoning-service or transport failure.
func Upstream(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// Unauthorized builds a KindAuthorization error.
func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ReplyText converts any error into chat text. Classified errors keep their
// message; anything else is prefixed so internal failures stay recognisable.
func ReplyText(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reply()
	}
	return "Something went wrong: " + err.Error()
}
