package errors

import (
	stderrors "errors"
)

// Presentation is a failure prepared for the operator: what went wrong and
// what to try next.
type Presentation struct {
	Kind    Kind
	Op      string
	Message string
	Code    string
	Hints   []string
}

var recoveryHints = map[Kind][]string{
	KindTransport: {
		"Check the network connection and the configured baseURL.",
		"Lower rateLimit.callsPerMinute if the server is throttling requests.",
	},
	KindAuthExpired: {
		"Run the command again; a fresh device login is attempted on start.",
	},
	KindLoginRejected: {
		"Check the email and password, or run `tachikoma login` again.",
		"Pass a new refresh token with --auth if the stored one was revoked.",
	},
	KindApplication: {
		"The server refused the request; its reason is shown above.",
	},
	KindMalformed: {
		"The reply was missing expected data; inspect it with `tachikoma dump`.",
	},
	KindConfiguration: {
		"Fix the configuration file or the TACHIKOMA_* variables and run again.",
	},
}

// Present prepares err for display. Errors outside the taxonomy keep their
// text and get no hints. Present(nil) is nil.
func Present(err error) *Presentation {
	if err == nil {
		return nil
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return &Presentation{Message: err.Error()}
	}
	p := &Presentation{
		Kind:    e.Kind,
		Op:      e.Op,
		Message: e.Message,
		Code:    e.Code,
		Hints:   recoveryHints[e.Kind],
	}
	if p.Message == "" || e.Cause != nil {
		p.Message = err.Error()
	}
	return p
}
