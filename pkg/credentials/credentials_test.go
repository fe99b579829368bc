package credentials_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/systmms/cerberus-go/pkg/credentials"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/properties"
)

func TestCredentials_NeverPrintsToken(t *testing.T) {
	t.Parallel()

	creds := credentials.NewCredentials("s.super-secret")
	assert.Equal(t, "s.super-secret", creds.Token())
	assert.NotContains(t, fmt.Sprintf("%v", creds), "super-secret")
	assert.NotContains(t, fmt.Sprintf("%#v", creds), "super-secret")
	assert.True(t, credentials.NewCredentials(" ").IsBlank())
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	creds, err := credentials.NewStaticProvider("token").Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token", creds.Token())

	_, err = credentials.NewStaticProvider("").Credentials(context.Background())
	assert.True(t, cerrors.IsClientError(err))
}

func TestProviderFunc(t *testing.T) {
	t.Parallel()

	p := credentials.ProviderFunc(func(ctx context.Context) (credentials.Credentials, error) {
		return credentials.NewCredentials("from-func"), nil
	})
	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-func", creds.Token())
	assert.Contains(t, credentials.ProviderName(p), "ProviderFunc")
}

func TestEnvironmentProvider(t *testing.T) {
	p := credentials.NewEnvironmentProvider()
	assert.Equal(t, "environment", p.Name())

	t.Setenv(credentials.TokenEnvVar, "")
	_, err := p.Credentials(context.Background())
	assert.True(t, cerrors.IsClientError(err))

	t.Setenv(credentials.TokenEnvVar, "   ")
	_, err = p.Credentials(context.Background())
	assert.True(t, cerrors.IsClientError(err))

	t.Setenv(credentials.TokenEnvVar, "s.env-token")
	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.env-token", creds.Token())
}

func TestPropertyProvider(t *testing.T) {
	p := credentials.NewPropertyProvider()
	t.Cleanup(func() { properties.Clear(properties.Token) })

	properties.Clear(properties.Token)
	_, err := p.Credentials(context.Background())
	assert.True(t, cerrors.IsClientError(err))

	properties.Set(properties.Token, "s.prop-token")
	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.prop-token", creds.Token())
}

func TestKeyringProvider(t *testing.T) {
	keyring.MockInit()

	const url = "https://cerberus.example.com/"
	p := credentials.NewKeyringProvider(url)

	_, err := p.Credentials(context.Background())
	assert.True(t, cerrors.IsClientError(err))

	assert.ErrorIs(t, credentials.StoreToken(url, " "), cerrors.ErrInvalidArgument)
	require.NoError(t, credentials.StoreToken(url, "s.keyring-token"))

	// Trailing slashes do not change the account key.
	creds, err := credentials.NewKeyringProvider("https://cerberus.example.com").Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s.keyring-token", creds.Token())

	require.NoError(t, credentials.DeleteToken(url))
	require.NoError(t, credentials.DeleteToken(url))
	_, err = p.Credentials(context.Background())
	assert.True(t, cerrors.IsClientError(err))
}
