// Package transport sends HTTP requests to the game API over a pooled
// connection, applying a shared rate limiter and a bounded retry policy around
// every outbound call. It returns raw status and body and never interprets the
// application payload.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tachikoma-bot/tachikoma/internal/clock"
	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
)

// DefaultTimeout applies to each attempt unless a request overrides it.
const DefaultTimeout = 5 * time.Second

// Request is one logical call. Body is replayed on every attempt.
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Header  http.Header
	Timeout time.Duration
}

// Response is the raw result of the last attempt.
type Response struct {
	Status   int
	Body     []byte
	Header   http.Header
	Attempts int
}

// Doer is what the session layer needs from a transport.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Options configure a Client. Zero values select defaults.
type Options struct {
	Timeout    time.Duration
	Headers    map[string]string
	Retry      RetryPolicy
	Limiter    *RateLimiter
	Clock      clock.Clock
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client is the pooled transport shared by all calls of one session.
type Client struct {
	http    *http.Client
	timeout time.Duration
	headers map[string]string
	retry   RetryPolicy
	limiter *RateLimiter
	clock   clock.Clock
	log     *logging.Logger
}

// New builds a Client. Without a limiter one is created at 30 calls per minute.
func New(opts Options) *Client {
	c := &Client{
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		headers: opts.Headers,
		retry:   opts.Retry.withDefaults(),
		limiter: opts.Limiter,
		clock:   opts.Clock,
		log:     opts.Logger,
	}
	if c.clock == nil {
		c.clock = clock.System{}
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.limiter == nil {
		c.limiter = NewRateLimiter(30, time.Minute, c.clock)
	}
	if c.log == nil {
		c.log = logging.GetTransportLogger()
	}
	return c
}

// Do sends req, retrying transient failures. A non-retryable status is
// returned as a normal response. Exhausted retries, network failures that
// outlive the policy, and cancellation come back as transport errors.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	schedule := c.retry.Backoff()

	var last attemptResult
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(req, attempt-1, 0, err)
		}

		last = c.attempt(ctx, req, attempt)
		if !c.retry.retryable(ctx, last) {
			if last.err != nil {
				return nil, c.fail(req, attempt, 0, last.err)
			}
			return last.resp, nil
		}

		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			status := 0
			if last.resp != nil {
				status = last.resp.Status
			}
			return nil, c.fail(req, attempt, status, last.err)
		}
		c.log.Debug("Retrying request",
			"url", protocol.RedactURL(req.URL),
			"attempt", attempt,
			"delay", delay.String(),
			"in_window", c.limiter.InWindow())
		if err := clock.SleepContext(ctx, c.clock, delay); err != nil {
			return nil, c.fail(req, attempt, 0, err)
		}
	}
}

func (c *Client) attempt(ctx context.Context, req Request, attempt int) attemptResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(actx, req.Method, req.URL, body)
	if err != nil {
		return attemptResult{err: fmt.Errorf("build request: %w", err), final: true}
	}
	for k, v := range c.headers {
		hreq.Header.Set(k, v)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if req.Body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		c.log.Warn("HTTP request failed",
			"method", req.Method,
			"url", protocol.RedactURL(req.URL),
			"attempt", attempt,
			"error", err.Error())
		return attemptResult{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.log.LogHTTPRequest(req.Method, protocol.RedactURL(req.URL), resp.StatusCode, attempt, time.Since(start))
	if err != nil {
		return attemptResult{err: fmt.Errorf("read body: %w", err)}
	}
	return attemptResult{resp: &Response{
		Status:   resp.StatusCode,
		Body:     data,
		Header:   resp.Header,
		Attempts: attempt,
	}}
}

func (c *Client) fail(req Request, attempts, status int, cause error) error {
	b := apperrors.New(apperrors.KindTransport, "transport.Do").
		WithLogger(c.log).
		WithAttempts(attempts).
		WithContext("url", protocol.RedactURL(req.URL))
	if status != 0 {
		b = b.WithStatus(status).WithMessage("retries exhausted after %d attempts", attempts)
	} else {
		b = b.WithMessage("request failed after %d attempts", attempts)
	}
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b.Build()
}
