package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/cerberus-go/pkg/credentials"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/transport"
)

// roundTripFunc lets a test stand in for the network.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type recordingMetrics struct {
	mu       sync.Mutex
	attempts []int
	retries  []string
	requests int
}

func (m *recordingMetrics) RecordAttempt(method string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, status)
}

func (m *recordingMetrics) RecordRetry(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries = append(m.retries, reason)
}

func (m *recordingMetrics) RecordRequest(method string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

func fastPolicy(attempts int) transport.RetryPolicy {
	policy := transport.DefaultRetryPolicy()
	policy.MaxAttempts = attempts
	policy.InitialInterval = time.Millisecond
	return policy
}

func newExecutor(t *testing.T, client *http.Client, opts ...transport.Option) *transport.Executor {
	t.Helper()
	exec, err := transport.NewExecutor(client, credentials.NewStaticProvider("s.test-token"), opts...)
	require.NoError(t, err)
	return exec
}

func TestNewExecutor_InvalidArguments(t *testing.T) {
	t.Parallel()

	_, err := transport.NewExecutor(nil, credentials.NewStaticProvider("t"))
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)

	_, err = transport.NewExecutor(http.DefaultClient, nil)
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	const attempts = 4
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < attempts {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	metrics := &recordingMetrics{}
	exec := newExecutor(t, server.Client(), transport.WithRetryPolicy(fastPolicy(attempts)), transport.WithMetrics(metrics))

	resp, err := exec.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: server.URL + "/v1/secret/app/x"})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(attempts), calls.Load())
	assert.Equal(t, []int{503, 503, 503, 200}, metrics.attempts)
	assert.Equal(t, []string{"5xx", "5xx", "5xx"}, metrics.retries)
	assert.Equal(t, 1, metrics.requests)
}

func TestExecutor_ReturnsFinal5xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errors":["boom"]}`))
	}))
	defer server.Close()

	exec := newExecutor(t, server.Client(), transport.WithRetryPolicy(fastPolicy(3)))

	resp, err := exec.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: server.URL})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())

	parsed := transport.ParseError(resp)
	var serverErr *cerrors.ServerError
	require.True(t, errors.As(parsed, &serverErr))
	assert.Equal(t, []string{"boom"}, serverErr.Errors)
}

func TestExecutor_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusNoContent} {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		exec := newExecutor(t, server.Client(), transport.WithRetryPolicy(fastPolicy(3)))
		resp, err := exec.Do(context.Background(), transport.Request{Method: http.MethodDelete, URL: server.URL})
		require.NoError(t, err)
		_ = resp.Body.Close()

		assert.Equal(t, status, resp.StatusCode)
		assert.Equal(t, int32(1), calls.Load(), "status %d", status)
		server.Close()
	}
}

func TestExecutor_IOErrorsExhaustRetries(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset by peer")
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, cause
	})}

	metrics := &recordingMetrics{}
	exec := newExecutor(t, client, transport.WithRetryPolicy(fastPolicy(3)), transport.WithMetrics(metrics))

	_, err := exec.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: "https://cerberus.example.com/v1/secret/app"})
	require.Error(t, err)

	var clientErr *cerrors.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, transport.IOErrorMessage, clientErr.Message)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{0, 0, 0}, metrics.attempts)
	assert.Equal(t, []string{"io", "io"}, metrics.retries)
}

func TestExecutor_TLSMismatchMessage(t *testing.T) {
	t.Parallel()

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("http: server gave HTTP response to HTTPS client")
	})}
	exec := newExecutor(t, client, transport.WithRetryPolicy(fastPolicy(2)))

	_, err := exec.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: "https://cerberus.example.com"})
	var clientErr *cerrors.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, transport.TLSMismatchMessage, clientErr.Message)
}

func TestExecutor_TLSAgainstPlainServer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := newExecutor(t, &http.Client{Timeout: 5 * time.Second}, transport.WithRetryPolicy(fastPolicy(1)))
	httpsURL := "https://" + server.Listener.Addr().String()

	_, err := exec.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: httpsURL})
	var clientErr *cerrors.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, transport.TLSMismatchMessage, clientErr.Message)
}

func TestExecutor_HeaderOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got http.Header
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = r.Header.Clone()
		if len(body) > 0 {
			_ = json.Unmarshal(body, &gotBody)
		}
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	defaults := http.Header{}
	defaults.Set("X-Cerberus-Client", "CerberusGoClient/test")
	defaults.Set("Accept", "text/plain")
	defaults.Set(transport.TokenHeader, "overridden")

	exec := newExecutor(t, server.Client(), transport.WithDefaultHeaders(defaults))

	resp, err := exec.Do(context.Background(), transport.Request{
		Method: http.MethodPost,
		URL:    server.URL,
		Body:   map[string]string{"k": "v"},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "CerberusGoClient/test", got.Get("X-Cerberus-Client"))
	assert.Equal(t, "s.test-token", got.Get(transport.TokenHeader))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, map[string]string{"k": "v"}, gotBody)
}

func TestExecutor_NoContentTypeWithoutBody(t *testing.T) {
	t.Parallel()

	contentTypes := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentTypes <- r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := newExecutor(t, server.Client())
	resp, err := exec.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: server.URL})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, <-contentTypes)
}

func TestExecutor_BodyResentOnRetry(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	exec := newExecutor(t, server.Client(), transport.WithRetryPolicy(fastPolicy(3)))
	resp, err := exec.Do(context.Background(), transport.Request{Method: http.MethodPost, URL: server.URL, Body: map[string]string{"a": "b"}})
	require.NoError(t, err)
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
}

func TestExecutor_ProviderFailure(t *testing.T) {
	t.Parallel()

	failing := credentials.ProviderFunc(func(ctx context.Context) (credentials.Credentials, error) {
		return credentials.Credentials{}, cerrors.NewClientError("no token", nil)
	})
	exec, err := transport.NewExecutor(http.DefaultClient, failing)
	require.NoError(t, err)

	_, err = exec.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: "http://127.0.0.1:1"})
	assert.True(t, cerrors.IsClientError(err))
}

func TestExecutor_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	policy := transport.DefaultRetryPolicy()
	policy.InitialInterval = time.Minute
	exec := newExecutor(t, server.Client(), transport.WithRetryPolicy(policy))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := exec.Do(ctx, transport.Request{Method: http.MethodGet, URL: server.URL})
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, cerrors.IsClientError(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not honor context cancellation")
	}
}
