package protocol

import (
	"strings"
)

// Marker strings the server embeds in bodies.
const (
	MarkerErrorMessage   = "errorMessage"
	MarkerErrorCode      = "errorCode"
	MarkerAuthFailed     = "Failed to authorize access token"
	MarkerRequireReload  = `RequireReload="True"`
	MarkerEmail          = "Email="
	MarkerAlreadyClaimed = "You already collected this reward"
)

// Outcome tags a classified response.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeErrorMarker
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeErrorMarker:
		return "error_marker"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ErrorKind distinguishes the error markers callers react to differently.
type ErrorKind string

const (
	ErrorNone        ErrorKind = ""
	ErrorAuthExpired ErrorKind = "auth_expired"
	ErrorApplication ErrorKind = "application"
)

// Result is a response body classified once. Root is set whenever the body
// parsed, including for error markers, so callers can still read attributes.
type Result struct {
	Outcome Outcome
	Root    *Node
	Error   ErrorKind
	Message string
	Code    string
	Raw     string
}

// OK reports whether the body parsed and carried no error marker.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// AuthExpired reports whether the server rejected the access token.
func (r Result) AuthExpired() bool { return r.Error == ErrorAuthExpired }

// Has reports whether the raw body contains s.
func (r Result) Has(s string) bool { return strings.Contains(r.Raw, s) }

// Classify parses body into a Result. Structured parsing is tried first and
// the raw marker scan is the fallback for payloads that do not parse.
func Classify(body []byte) Result {
	raw := string(body)
	res := Result{Raw: raw}

	root, err := Parse(body)
	if err == nil {
		res.Root = root
	}

	if strings.Contains(raw, MarkerAuthFailed) {
		res.Outcome = OutcomeErrorMarker
		res.Error = ErrorAuthExpired
		res.Message = MarkerAuthFailed
		return res
	}

	if root != nil {
		if n := root.FindAttr(MarkerErrorMessage); n != nil {
			res.Outcome = OutcomeErrorMarker
			res.Error = ErrorApplication
			res.Message = n.Attrs[MarkerErrorMessage]
			res.Code = n.AttrOr(MarkerErrorCode, "")
			return res
		}
		if n := root.FindAttr(MarkerErrorCode); n != nil {
			res.Outcome = OutcomeErrorMarker
			res.Error = ErrorApplication
			res.Code = n.Attrs[MarkerErrorCode]
			return res
		}
		res.Outcome = OutcomeOK
		return res
	}

	if strings.Contains(raw, MarkerErrorMessage) {
		res.Outcome = OutcomeErrorMarker
		res.Error = ErrorApplication
		res.Message, _ = Extract(raw, MarkerErrorMessage)
		res.Code, _ = Extract(raw, MarkerErrorCode)
		return res
	}

	res.Outcome = OutcomeMalformed
	return res
}

// Extract returns the value of the first name="..." occurrence in raw. This is
// how the server's tokens are read, since their payload shapes vary.
func Extract(raw, name string) (string, bool) {
	marker := name + `="`
	i := strings.Index(raw, marker)
	if i < 0 {
		return "", false
	}
	rest := raw[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}
