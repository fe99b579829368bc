package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/systmms/cerberus-go/internal/logging"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

const noProvider = -1

// AuthRecorder receives one event per provider invocation.
type AuthRecorder interface {
	RecordAuthentication(provider string, err error)
}

// Chain tries an ordered list of providers until one returns a non-blank
// token. The provider that succeeded is remembered and, while reuse is
// enabled, asked first on every later call.
//
// A provider failure never escapes the chain: errors and panics alike are
// logged and the next provider is tried. Only when every provider fails does
// Credentials return a *errors.ClientError.
type Chain struct {
	providers []Provider
	lastUsed  atomic.Int64
	reuseLast atomic.Bool
	logger    *logging.Logger
	recorder  AuthRecorder
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithChainLogger sets the chain's logger.
func WithChainLogger(logger *logging.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAuthRecorder records the outcome of every provider invocation.
func WithAuthRecorder(recorder AuthRecorder) ChainOption {
	return func(c *Chain) {
		c.recorder = recorder
	}
}

// NewChain builds a chain over providers. At least one provider is required
// and none may be nil.
func NewChain(providers []Provider, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, cerrors.InvalidArgument("credentials provider chain requires at least one provider")
	}
	for i, p := range providers {
		if p == nil {
			return nil, cerrors.InvalidArgument("credentials provider %d is nil", i)
		}
	}

	c := &Chain{
		providers: append([]Provider(nil), providers...),
		logger:    logging.Discard(),
	}
	c.lastUsed.Store(noProvider)
	c.reuseLast.Store(true)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the provider name
func (c *Chain) Name() string { return "chain" }

// SetReuseLastProvider toggles the fast path that asks the last successful
// provider first.
func (c *Chain) SetReuseLastProvider(reuse bool) {
	c.reuseLast.Store(reuse)
}

// ReuseLastProvider reports whether the fast path is enabled.
func (c *Chain) ReuseLastProvider() bool {
	return c.reuseLast.Load()
}

// LastUsed returns the provider that most recently succeeded, if any.
func (c *Chain) LastUsed() (Provider, bool) {
	idx := c.lastUsed.Load()
	if idx == noProvider {
		return nil, false
	}
	return c.providers[idx], true
}

// Credentials resolves a token from the first provider that yields one.
func (c *Chain) Credentials(ctx context.Context) (Credentials, error) {
	if c.reuseLast.Load() {
		if idx := c.lastUsed.Load(); idx != noProvider {
			p := c.providers[idx]
			creds, err := c.invoke(ctx, p)
			if err == nil {
				return creds, nil
			}
			// The remembered provider stopped working; forget it and walk
			// the whole chain again.
			c.logger.Debug("last used credentials provider %s failed, falling back to full chain: %v", ProviderName(p), err)
			c.lastUsed.CompareAndSwap(idx, noProvider)
		}
	}

	var failures []error
	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return Credentials{}, cerrors.NewClientError("credentials provider chain interrupted", err)
		}

		name := ProviderName(p)
		if !c.shouldRun(ctx, p) {
			c.logger.Debug("skipping credentials provider %s", name)
			continue
		}

		creds, err := c.invoke(ctx, p)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
			if cerrors.IsClientError(err) {
				c.logger.Debug("credentials provider %s failed: %v", name, err)
			} else {
				c.logger.Warn("credentials provider %s failed unexpectedly: %v", name, err)
			}
			continue
		}

		c.logger.Debug("loaded credentials from %s", name)
		c.lastUsed.Store(int64(i))
		return creds, nil
	}

	return Credentials{}, cerrors.NewClientError(
		"unable to find credentials from any provider in the credentials provider chain",
		errors.Join(failures...),
	)
}

// shouldRun asks a Runner whether it applies. A panicking ShouldRun counts
// as not applicable.
func (c *Chain) shouldRun(ctx context.Context, p Provider) (run bool) {
	runner, ok := p.(Runner)
	if !ok {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("credentials provider %s panicked deciding whether to run: %v", ProviderName(p), r)
			run = false
		}
	}()
	return runner.ShouldRun(ctx)
}

// invoke calls p, converting a panic or a blank token into an error.
func (c *Chain) invoke(ctx context.Context, p Provider) (creds Credentials, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
		if c.recorder != nil {
			c.recorder.RecordAuthentication(ProviderName(p), err)
		}
	}()

	creds, err = p.Credentials(ctx)
	if err != nil {
		return Credentials{}, err
	}
	if creds.IsBlank() {
		return Credentials{}, cerrors.NewClientError("provider returned a blank token", nil)
	}
	return creds, nil
}
