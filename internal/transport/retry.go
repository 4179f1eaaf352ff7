package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
)

// RetryPolicy bounds automatic retries of transient server failures.
// Application-level error payloads are never retried here.
type RetryPolicy struct {
	MaxAttempts   int
	BackoffFactor time.Duration
	MaxBackoff    time.Duration
	Statuses      []int
}

// DefaultRetryPolicy returns 10 attempts with doubling backoff from 1s up to
// 120s, retrying on 500, 502, 503, 504 and 520.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   10,
		BackoffFactor: time.Second,
		MaxBackoff:    120 * time.Second,
		Statuses:      []int{500, 502, 503, 504, 520},
	}
}

// Retryable reports whether status is a transient server failure.
func (p RetryPolicy) Retryable(status int) bool {
	return lo.Contains(p.Statuses, status)
}

// Backoff returns a fresh backoff schedule for one call: BackoffFactor,
// doubling each retry, capped at MaxBackoff, stopping after MaxAttempts-1
// retries.
func (p RetryPolicy) Backoff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BackoffFactor
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.MaxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(exp, uint64(retries))
}

// Delays returns the full sleep schedule the policy would follow if every
// attempt failed.
func (p RetryPolicy) Delays() []time.Duration {
	b := p.Backoff()
	var out []time.Duration
	for d := b.NextBackOff(); d != backoff.Stop; d = b.NextBackOff() {
		out = append(out, d)
	}
	return out
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = def.BackoffFactor
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Statuses == nil {
		p.Statuses = def.Statuses
	}
	return p
}

// outcome of one attempt as seen by the retry loop.
type attemptResult struct {
	resp *Response
	err  error
	// final marks errors no retry can fix, such as a malformed request.
	final bool
}

// retryable reports whether the loop should try again after r.
func (p RetryPolicy) retryable(ctx context.Context, r attemptResult) bool {
	if r.final {
		return false
	}
	if r.err != nil {
		// A cancelled or expired parent context is final; a per-attempt
		// timeout is not.
		return ctx.Err() == nil
	}
	return p.Retryable(r.resp.Status)
}
