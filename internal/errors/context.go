package errors

import (
	"fmt"
	"strings"

	"github.com/tachikoma-bot/tachikoma/internal/logging"
)

// Severity indicates the impact level of an error and picks the log level on Build.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Builder provides a fluent interface for creating classified errors
type Builder struct {
	err      *Error
	severity Severity
	logger   *logging.Logger
	silent   bool
}

// New creates a builder for an error of the given kind raised by op.
func New(kind Kind, op string) *Builder {
	return &Builder{
		err: &Error{
			Kind:        kind,
			Op:          op,
			Context:     make(map[string]interface{}),
			Recoverable: kind != KindLoginRejected && kind != KindConfiguration,
		},
		severity: defaultSeverity(kind),
		logger:   logging.GetGlobalLogger().WithComponent("errors"),
	}
}

func defaultSeverity(kind Kind) Severity {
	switch kind {
	case KindLoginRejected, KindConfiguration:
		return SeverityHigh
	case KindTransport:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// WithSeverity sets the error severity level
func (b *Builder) WithSeverity(severity Severity) *Builder {
	b.severity = severity
	return b
}

// WithMessage sets the error message
func (b *Builder) WithMessage(format string, args ...interface{}) *Builder {
	if len(args) == 0 {
		b.err.Message = format
	} else {
		b.err.Message = fmt.Sprintf(format, args...)
	}
	return b
}

// WithCode sets the server error code, if the payload carried one
func (b *Builder) WithCode(code string) *Builder {
	b.err.Code = code
	return b
}

// WithStatus records the HTTP status of the failing response
func (b *Builder) WithStatus(status int) *Builder {
	b.err.Status = status
	return b
}

// WithAttempts records how many transport attempts were made
func (b *Builder) WithAttempts(n int) *Builder {
	b.err.Attempts = n
	return b
}

// WithCause sets the underlying error that caused this error
func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

// WithContext adds contextual information to the error
func (b *Builder) WithContext(key string, value interface{}) *Builder {
	b.err.Context[key] = value
	return b
}

// WithRecoverable sets whether the caller may retry later
func (b *Builder) WithRecoverable(recoverable bool) *Builder {
	b.err.Recoverable = recoverable
	return b
}

// WithLogger routes the Build log line through l.
func (b *Builder) WithLogger(l *logging.Logger) *Builder {
	if l != nil {
		b.logger = l
	}
	return b
}

// Silent skips logging on Build; the caller logs the error itself.
func (b *Builder) Silent() *Builder {
	b.silent = true
	return b
}

// Build creates the error and logs it at a level derived from its severity
func (b *Builder) Build() *Error {
	if b.silent {
		return b.err
	}

	fields := map[string]interface{}{
		"error_kind":  b.err.Kind,
		"operation":   b.err.Op,
		"recoverable": b.err.Recoverable,
	}
	if b.err.Code != "" {
		fields["error_code"] = b.err.Code
	}
	if b.err.Status != 0 {
		fields["status"] = b.err.Status
	}
	for k, v := range b.err.Context {
		fields["ctx_"+k] = v
	}

	msg := b.err.Message
	if b.err.Cause != nil {
		msg = fmt.Sprintf("%s: %v", b.err.Message, b.err.Cause)
	}

	l := b.logger.WithFields(fields)
	switch b.severity {
	case SeverityCritical, SeverityHigh:
		l.Error(msg)
	case SeverityMedium:
		l.Warn(msg)
	default:
		l.Info(msg)
	}
	return b.err
}

// Chain collects the non-fatal failures of one run so the driver can report them together.
type Chain struct {
	errors []error
	logger *logging.Logger
}

// NewChain creates a new error chain
func NewChain(logger *logging.Logger) *Chain {
	return &Chain{logger: logger}
}

// Add appends an error to the chain; nil is ignored.
func (c *Chain) Add(step string, err error) *Chain {
	if err == nil {
		return c
	}
	c.errors = append(c.errors, fmt.Errorf("%s: %w", step, err))
	if c.logger != nil {
		c.logger.Debug("Error added to chain", "step", step, "error", err.Error(), "chain_length", len(c.errors))
	}
	return c
}

// HasErrors returns true if the chain contains any errors
func (c *Chain) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all errors in the chain
func (c *Chain) Errors() []error {
	return c.errors
}

// Len returns the number of collected errors.
func (c *Chain) Len() int {
	return len(c.errors)
}

// Combined returns one error describing the whole chain, or nil.
func (c *Chain) Combined() error {
	if !c.HasErrors() {
		return nil
	}
	messages := make([]string, len(c.errors))
	for i, err := range c.errors {
		messages[i] = err.Error()
	}
	return New(KindApplication, "run").
		WithMessage("%d steps failed: %s", len(c.errors), strings.Join(messages, "; ")).
		WithCause(c.errors[0]).
		Silent().
		Build()
}
