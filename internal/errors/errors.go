// Package errors defines the error taxonomy shared by the transport, session and
// game layers. Every failure surfaced by tachikoma is an *Error carrying a Kind,
// so callers can branch with errors.Is against the sentinel values below.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind categorizes failures for propagation decisions.
type Kind string

const (
	// KindTransport covers network failures, timeouts and exhausted retries.
	KindTransport Kind = "transport"
	// KindAuthExpired is an access token the server refused; handled by one reauthorization.
	KindAuthExpired Kind = "auth_expired"
	// KindLoginRejected is fatal to the login sequence and must reach the operator.
	KindLoginRejected Kind = "login_rejected"
	// KindApplication is an errorMessage payload in an otherwise successful response.
	KindApplication Kind = "application"
	// KindMalformed is a 200 response missing an expected field or marker.
	KindMalformed Kind = "malformed"
	// KindConfiguration covers invalid configuration and unreadable state files.
	KindConfiguration Kind = "configuration"
)

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrTransport     = &Error{Kind: KindTransport}
	ErrAuthExpired   = &Error{Kind: KindAuthExpired}
	ErrLoginRejected = &Error{Kind: KindLoginRejected}
	ErrApplication   = &Error{Kind: KindApplication}
	ErrMalformed     = &Error{Kind: KindMalformed}
	ErrConfiguration = &Error{Kind: KindConfiguration}
)

// Error is a classified failure with diagnostic context.
type Error struct {
	Kind        Kind
	Op          string
	Message     string
	Code        string
	Status      int
	Attempts    int
	Cause       error
	Recoverable bool
	Context     map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(":")
		b.WriteString(e.Op)
	}
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap provides access to the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsTransport(err error) bool     { return stderrors.Is(err, ErrTransport) }
func IsAuthExpired(err error) bool   { return stderrors.Is(err, ErrAuthExpired) }
func IsLoginRejected(err error) bool { return stderrors.Is(err, ErrLoginRejected) }
func IsApplication(err error) bool {
	return stderrors.Is(err, ErrApplication) || stderrors.Is(err, ErrMalformed)
}

// AsLoginRejected reclassifies a malformed response during login as a rejected login.
func AsLoginRejected(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) && e.Kind == KindLoginRejected {
		return err
	}
	return &Error{
		Kind:    KindLoginRejected,
		Op:      op,
		Message: "login rejected",
		Cause:   err,
	}
}

// Is and As re-export the standard library helpers so callers importing this
// package do not need a second errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
