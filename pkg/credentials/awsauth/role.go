// Package awsauth provides credentials providers that exchange an AWS
// identity for a Cerberus token.
//
// Every provider here is built on RoleProvider, which caches the token it
// obtains until shortly before its lease runs out. Variants differ only in
// how they discover who they are:
//
//   - StaticRoleProvider authenticates as a fixed IAM role.
//   - InstanceRoleProvider asks the EC2 instance metadata service.
//   - ECSTaskRoleProvider asks the ECS container credentials endpoint.
//   - LambdaRoleProvider reads the execution role of the running function.
//   - STSIdentityProvider signs an STS GetCallerIdentity request and lets
//     Cerberus verify it.
//
// # Threading and Concurrency
//
// All providers are safe for concurrent use. While a token is valid, callers
// share a read lock. When it has expired, exactly one caller authenticates
// while the others wait for the fresh token.
package awsauth

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/cerberus-go/internal/logging"
	"github.com/systmms/cerberus-go/internal/tokencache"
	"github.com/systmms/cerberus-go/pkg/credentials"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

// AuthenticateFunc obtains a fresh token grant.
type AuthenticateFunc func(ctx context.Context) (*AuthResponse, error)

// RoleProvider caches the token produced by an AuthenticateFunc. Its state
// is either authenticated (a token whose expiry lies strictly in the future)
// or unauthenticated, which is also the initial state.
type RoleProvider struct {
	name         string
	authenticate AuthenticateFunc

	mu     sync.RWMutex
	cache  *tokencache.Cache
	logger *logging.Logger
}

// NewRoleProvider wraps authenticate with token caching. WithClock,
// WithPadding and WithLogger apply; other options are ignored.
func NewRoleProvider(name string, authenticate AuthenticateFunc, opts ...Option) *RoleProvider {
	o := newOptions(opts)
	return newRoleProvider(name, authenticate, o)
}

func newRoleProvider(name string, authenticate AuthenticateFunc, o *options) *RoleProvider {
	return &RoleProvider{
		name:         name,
		authenticate: authenticate,
		cache:        tokencache.New(o.padding, o.now),
		logger:       o.logger,
	}
}

// Name returns the provider name
func (p *RoleProvider) Name() string { return p.name }

// Credentials returns the cached token, authenticating first when there is
// none or it has expired.
func (p *RoleProvider) Credentials(ctx context.Context) (credentials.Credentials, error) {
	p.mu.RLock()
	token, ok := p.cache.Get()
	p.mu.RUnlock()
	if ok {
		return credentials.NewCredentials(token), nil
	}

	fresh, err := p.refresh(ctx)
	if err != nil {
		return credentials.Credentials{}, err
	}

	// sync.RWMutex cannot downgrade, so the read lock is taken again. The
	// token just stored stays valid for the whole lease minus padding.
	p.mu.RLock()
	token, ok = p.cache.Get()
	p.mu.RUnlock()
	if !ok {
		token = fresh
	}
	return credentials.NewCredentials(token), nil
}

// refresh authenticates under the write lock. Callers that queued behind
// another refresh find the new token and return without authenticating.
func (p *RoleProvider) refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if token, ok := p.cache.Get(); ok {
		return token, nil
	}

	start := time.Now()
	resp, err := p.authenticate(ctx)
	if err != nil {
		p.logger.Debug("%s authentication failed: %v", p.name, err)
		if cerrors.IsClientError(err) {
			return "", err
		}
		return "", cerrors.NewClientError(p.name+" authentication failed", err)
	}
	if resp == nil || credentials.NewCredentials(resp.ClientToken).IsBlank() {
		return "", cerrors.NewClientError(p.name+" authentication returned no client token", nil)
	}

	if err := p.cache.Set(resp.ClientToken, resp.Lease()); err != nil {
		return "", cerrors.NewClientError("failed to cache token", err)
	}
	p.logger.Debug("%s authenticated in %s, token expires at %s", p.name, time.Since(start).Round(time.Millisecond), p.cache.ExpiresAt().Format(time.RFC3339))
	return resp.ClientToken, nil
}

// ExpiresAt returns when the cached token stops being used, or the zero
// time when there is none.
func (p *RoleProvider) ExpiresAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.cache.Valid() {
		return time.Time{}
	}
	return p.cache.ExpiresAt()
}

// TTL returns how long the cached token remains in use, or zero when there
// is none.
func (p *RoleProvider) TTL() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache.TTL()
}

// Invalidate drops the cached token so the next call authenticates again.
func (p *RoleProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Clear()
}
