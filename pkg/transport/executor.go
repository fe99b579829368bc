// Package transport sends requests to Cerberus.
//
// The Executor attaches the token from a credentials provider, retries 5xx
// answers and transport failures with exponential backoff, and leaves the
// classification of the final response to the caller. Error bodies are
// turned into the pkg/errors taxonomy by ParseError.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/systmms/cerberus-go/internal/logging"
	"github.com/systmms/cerberus-go/pkg/credentials"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

// TokenHeader carries the Cerberus token on every request.
const TokenHeader = "X-Cerberus-Token"

// Metrics receives request instrumentation. *metrics.ClientMetrics
// implements it.
type Metrics interface {
	RecordAttempt(method string, status int)
	RecordRetry(reason string)
	RecordRequest(method string, duration time.Duration)
}

// Request describes one logical call. Body, when set, is sent as JSON.
// RawBody with ContentType sends pre-encoded content such as a multipart
// form instead.
type Request struct {
	Method      string
	URL         string
	Body        interface{}
	RawBody     []byte
	ContentType string
	Header      http.Header
}

// Executor sends requests with token injection and retries.
type Executor struct {
	client   *http.Client
	provider credentials.Provider
	headers  http.Header
	policy   RetryPolicy
	logger   *logging.Logger
	metrics  Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultHeaders sets headers sent on every request. They are applied
// first, so request specific headers override them.
func WithDefaultHeaders(headers http.Header) Option {
	return func(e *Executor) {
		e.headers = headers.Clone()
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(e *Executor) {
		e.policy = policy
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records attempts, retries and request durations.
func WithMetrics(m Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an executor sending through client with tokens from
// provider.
func NewExecutor(client *http.Client, provider credentials.Provider, opts ...Option) (*Executor, error) {
	if client == nil {
		return nil, cerrors.InvalidArgument("http client must not be nil")
	}
	if provider == nil {
		return nil, cerrors.InvalidArgument("credentials provider must not be nil")
	}

	e := &Executor{
		client:   client,
		provider: provider,
		headers:  http.Header{},
		policy:   DefaultRetryPolicy(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Provider returns the credentials provider requests are authenticated with.
func (e *Executor) Provider() credentials.Provider {
	return e.provider
}

// Do sends req, retrying while the policy allows. A response is returned for
// every status, including a final 5xx once attempts run out; the caller owns
// its body. Transport failures that outlast the retries become a ClientError.
func (e *Executor) Do(ctx context.Context, req Request) (*http.Response, error) {
	creds, err := e.provider.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if e.metrics != nil {
		defer func() { e.metrics.RecordRequest(req.Method, time.Since(start)) }()
	}

	schedule := e.policy.backOff()
	for attempt := 1; ; attempt++ {
		httpReq, err := e.build(ctx, req, creds.Token(), body, contentType)
		if err != nil {
			return nil, err
		}

		resp, err := e.client.Do(httpReq)
		e.recordAttempt(req.Method, resp)

		if err != nil && ctx.Err() != nil {
			return nil, cerrors.NewClientError("request canceled", ctx.Err())
		}
		if !e.policy.retryable(resp, err) {
			if err != nil {
				return nil, ClassifyIOError(err)
			}
			return resp, nil
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			if err != nil {
				e.logger.Debug("%s %s failed after %d attempts: %v", req.Method, httpReq.URL.Path, attempt, err)
				return nil, ClassifyIOError(err)
			}
			e.logger.Debug("%s %s returned %d after %d attempts", req.Method, httpReq.URL.Path, resp.StatusCode, attempt)
			return resp, nil
		}

		reason := "io"
		if err == nil {
			reason = "5xx"
			e.logger.Debug("%s %s returned %d, retrying in %s", req.Method, httpReq.URL.Path, resp.StatusCode, wait)
			drain(resp)
		} else {
			e.logger.Debug("%s %s failed, retrying in %s: %v", req.Method, httpReq.URL.Path, wait, err)
		}
		if e.metrics != nil {
			e.metrics.RecordRetry(reason)
		}

		if err := sleep(ctx, wait); err != nil {
			return nil, cerrors.NewClientError("request canceled", err)
		}
	}
}

func (e *Executor) recordAttempt(method string, resp *http.Response) {
	if e.metrics == nil {
		return
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	e.metrics.RecordAttempt(method, status)
}

// build creates the HTTP request for one attempt.
func (e *Executor) build(ctx context.Context, req Request, token string, body []byte, contentType string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
	if err != nil {
		return nil, cerrors.NewClientError("failed to build request", err)
	}
	ApplyHeaders(httpReq.Header, e.headers, req.Header, token, contentType)
	return httpReq, nil
}

// ApplyHeaders sets headers in a fixed order: defaults, request headers,
// the token, Accept, and Content-Type when there is a body. Each step
// overrides the ones before it.
func ApplyHeaders(dst, defaults, extra http.Header, token, contentType string) {
	for key, values := range defaults {
		dst[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	for key, values := range extra {
		dst[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	dst.Set(TokenHeader, token)
	dst.Set("Accept", "application/json")
	if contentType != "" {
		dst.Set("Content-Type", contentType)
	}
}

func encodeBody(req Request) ([]byte, string, error) {
	if req.RawBody != nil {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return req.RawBody, contentType, nil
	}
	if req.Body == nil {
		return nil, "", nil
	}
	encoded, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", cerrors.NewClientError("failed to encode request body", err)
	}
	return encoded, "application/json", nil
}

// drain discards a response that is about to be retried so the connection
// can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	_ = resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
