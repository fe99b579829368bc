package transport

import (
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts is the number of times a request is sent before the
	// executor gives up.
	DefaultMaxAttempts = 3

	// DefaultInitialInterval is the wait before the first retry.
	DefaultInitialInterval = 250 * time.Millisecond

	// DefaultMultiplier grows the wait between consecutive retries.
	DefaultMultiplier = 2.0
)

// RetryPolicy decides whether and when a request is sent again.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt. Values below 1 mean 1.
	MaxAttempts int
	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration
	// Multiplier is applied to the wait after every retry.
	Multiplier float64
	// Retryable reports whether an attempt that produced resp or err should
	// be repeated. Nil means DefaultRetryable.
	Retryable func(resp *http.Response, err error) bool
}

// DefaultRetryPolicy retries 5xx answers and transport failures three
// attempts in total, waiting 250ms and then 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
		Retryable:       DefaultRetryable,
	}
}

// DefaultRetryable retries transport errors and 5xx responses. Every other
// status, including 4xx, is final.
func DefaultRetryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode >= 500 && resp.StatusCode <= 599
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(resp *http.Response, err error) bool {
	if p.Retryable == nil {
		return DefaultRetryable(resp, err)
	}
	return p.Retryable(resp, err)
}

// backOff returns the schedule for one request: no jitter, no elapsed time
// limit, and Stop once MaxAttempts-1 retries have been handed out.
func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(p.attempts())))
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.attempts()-1))
}
