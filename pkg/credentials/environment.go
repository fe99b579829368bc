package credentials

import (
	"context"
	"os"
	"strings"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/properties"
)

// TokenEnvVar is the environment variable read by EnvironmentProvider.
const TokenEnvVar = "CERBERUS_TOKEN"

// EnvironmentProvider reads the token from CERBERUS_TOKEN.
type EnvironmentProvider struct{}

// NewEnvironmentProvider creates an EnvironmentProvider.
func NewEnvironmentProvider() *EnvironmentProvider {
	return &EnvironmentProvider{}
}

// Name returns the provider name
func (p *EnvironmentProvider) Name() string { return "environment" }

// Credentials succeeds iff the variable holds a non-blank value.
func (p *EnvironmentProvider) Credentials(ctx context.Context) (Credentials, error) {
	token := strings.TrimSpace(os.Getenv(TokenEnvVar))
	if token == "" {
		return Credentials{}, cerrors.NewClientError(TokenEnvVar+" environment variable is not set", nil)
	}
	return NewCredentials(token), nil
}

// PropertyProvider reads the token from the "cerberus.token" process property.
type PropertyProvider struct{}

// NewPropertyProvider creates a PropertyProvider.
func NewPropertyProvider() *PropertyProvider {
	return &PropertyProvider{}
}

// Name returns the provider name
func (p *PropertyProvider) Name() string { return "property" }

// Credentials succeeds iff the property holds a non-blank value.
func (p *PropertyProvider) Credentials(ctx context.Context) (Credentials, error) {
	token := strings.TrimSpace(properties.Get(properties.Token))
	if token == "" {
		return Credentials{}, cerrors.NewClientError(properties.Token+" property is not set", nil)
	}
	return NewCredentials(token), nil
}
