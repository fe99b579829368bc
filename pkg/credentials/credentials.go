// Package credentials resolves the token the Cerberus client sends with every
// request.
//
// A Provider produces Credentials or fails. Providers are usually composed
// into a Chain, which tries each in order until one yields a token and then
// keeps using that provider on later calls. Cloud-role providers that exchange
// an AWS identity for a token live in the awsauth subpackage.
//
// # Threading and Concurrency
//
// Providers and chains are safe for concurrent use.
package credentials

import (
	"context"
	"fmt"
	"strings"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

// Credentials is an immutable bearer token.
type Credentials struct {
	token string
}

// NewCredentials wraps token.
func NewCredentials(token string) Credentials {
	return Credentials{token: token}
}

// Token returns the bearer token.
func (c Credentials) Token() string {
	return c.token
}

// IsBlank reports whether the token is empty or whitespace.
func (c Credentials) IsBlank() bool {
	return strings.TrimSpace(c.token) == ""
}

// String never exposes the token.
func (c Credentials) String() string {
	if c.IsBlank() {
		return "Credentials{<empty>}"
	}
	return "Credentials{[REDACTED]}"
}

// GoString never exposes the token.
func (c Credentials) GoString() string {
	return c.String()
}

// Provider produces credentials, failing with a *errors.ClientError when none
// can be obtained.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Runner is implemented by providers that can opt out of a chain pass, for
// example an AWS provider running outside AWS.
type Runner interface {
	ShouldRun(ctx context.Context) bool
}

// Named is implemented by providers that want a readable name in logs.
type Named interface {
	Name() string
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (Credentials, error)

// Credentials calls f.
func (f ProviderFunc) Credentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// StaticProvider always returns the same token.
type StaticProvider struct {
	creds Credentials
}

// NewStaticProvider returns a provider for a fixed token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{creds: NewCredentials(token)}
}

// Name returns the provider name
func (p *StaticProvider) Name() string { return "static" }

// Credentials returns the fixed token, failing when it is blank.
func (p *StaticProvider) Credentials(ctx context.Context) (Credentials, error) {
	if p.creds.IsBlank() {
		return Credentials{}, cerrors.NewClientError("static token is blank", nil)
	}
	return p.creds, nil
}

// ProviderName returns a provider's name for logging.
func ProviderName(p Provider) string {
	if named, ok := p.(Named); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", p)
}
