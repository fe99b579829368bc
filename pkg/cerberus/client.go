// Package cerberus is a client for the Cerberus secrets service.
//
// A Client reads and writes secrets and secure files under safe deposit box
// paths and administers the boxes themselves. Every request carries a token
// obtained from a credentials.Provider, normally the chain built by
// NewDefaultChain, and goes through a transport.Executor that retries
// transient failures.
//
//	client, err := cerberus.NewDefaultClient("us-west-2")
//	if err != nil {
//		return err
//	}
//	data, err := client.Read(ctx, "app/my-sdb/db")
package cerberus

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/systmms/cerberus-go/internal/logging"
	"github.com/systmms/cerberus-go/pkg/credentials"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/transport"
)

// Version is the client version reported in ClientHeader.
const Version = "1.4.0"

// ClientHeader identifies the client to the service.
const ClientHeader = "X-Cerberus-Client"

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 30 * time.Second

// ClientHeaderValue returns the value sent in ClientHeader.
func ClientHeaderValue() string {
	return "CerberusGoClient/" + Version
}

// Client talks to one Cerberus instance.
type Client struct {
	baseURL  string
	executor *transport.Executor
	logger   *logging.Logger
}

type clientOptions struct {
	httpClient *http.Client
	headers    http.Header
	policy     *transport.RetryPolicy
	logger     *logging.Logger
	metrics    transport.Metrics
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient sends requests through client. WithTimeout, when also
// given, applies to a copy of it.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithDefaultHeaders adds headers to every request.
func WithDefaultHeaders(headers http.Header) Option {
	return func(o *clientOptions) {
		for key, values := range headers {
			o.headers[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(policy transport.RetryPolicy) Option {
	return func(o *clientOptions) {
		o.policy = &policy
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records request instrumentation, usually a
// *metrics.ClientMetrics.
func WithMetrics(m transport.Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// WithTimeout bounds every HTTP attempt. The whole call may take up to the
// number of attempts times the timeout plus the backoff waits.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// NewClient creates a client for the Cerberus instance at cerberusURL that
// authenticates with provider.
func NewClient(cerberusURL string, provider credentials.Provider, opts ...Option) (*Client, error) {
	base, err := normalizeURL(cerberusURL)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, cerrors.InvalidArgument("credentials provider must not be nil")
	}

	o := &clientOptions{
		headers: http.Header{},
		logger:  logging.Discard(),
	}
	o.headers.Set(ClientHeader, ClientHeaderValue())
	for _, opt := range opts {
		opt(o)
	}

	httpClient := o.httpClient
	switch {
	case httpClient == nil:
		timeout := o.timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	case o.timeout > 0:
		copied := *httpClient
		copied.Timeout = o.timeout
		httpClient = &copied
	}

	execOpts := []transport.Option{
		transport.WithDefaultHeaders(o.headers),
		transport.WithLogger(o.logger),
	}
	if o.policy != nil {
		execOpts = append(execOpts, transport.WithRetryPolicy(*o.policy))
	}
	if o.metrics != nil {
		execOpts = append(execOpts, transport.WithMetrics(o.metrics))
	}

	executor, err := transport.NewExecutor(httpClient, provider, execOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{baseURL: base, executor: executor, logger: o.logger}, nil
}

// URL returns the base URL of the Cerberus instance.
func (c *Client) URL() string { return c.baseURL }

// Provider returns the credentials provider the client authenticates with.
func (c *Client) Provider() credentials.Provider { return c.executor.Provider() }

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", cerrors.InvalidArgument("cerberus URL must not be blank")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", cerrors.InvalidArgument("cerberus URL %q is invalid: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", cerrors.InvalidArgument("cerberus URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", cerrors.InvalidArgument("cerberus URL %q has no host", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// send executes req and hands back the response when its status is
// expected. Any other status is parsed into a server error.
func (c *Client) send(ctx context.Context, req transport.Request, expected ...int) (*http.Response, error) {
	resp, err := c.executor.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, status := range expected {
		if resp.StatusCode == status {
			return resp, nil
		}
	}
	defer func() { _ = resp.Body.Close() }()
	return nil, transport.ParseError(resp)
}

// call executes req, expects status, and decodes the body into out when out
// is not nil.
func (c *Client) call(ctx context.Context, req transport.Request, status int, out interface{}) error {
	resp, err := c.send(ctx, req, status)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}
	return transport.DecodeJSON(resp, out)
}

func (c *Client) get(ctx context.Context, u string, out interface{}) error {
	return c.call(ctx, transport.Request{Method: http.MethodGet, URL: u}, http.StatusOK, out)
}
