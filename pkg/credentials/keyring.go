package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

// KeyringService is the OS keyring service name tokens are stored under.
const KeyringService = "cerberus"

// KeyringProvider reads a token previously stored in the OS keyring (macOS
// Keychain, Secret Service on Linux, Windows Credential Manager). Tokens are
// keyed by the Cerberus URL so one machine can hold tokens for several
// environments.
type KeyringProvider struct {
	account string
}

// NewKeyringProvider creates a provider for the token stored for cerberusURL.
func NewKeyringProvider(cerberusURL string) *KeyringProvider {
	return &KeyringProvider{account: keyringAccount(cerberusURL)}
}

// Name returns the provider name
func (p *KeyringProvider) Name() string { return "keyring" }

// ShouldRun reports false on platforms without a usable keyring.
func (p *KeyringProvider) ShouldRun(ctx context.Context) bool {
	_, err := keyring.Get(KeyringService, p.account)
	return !errors.Is(err, keyring.ErrUnsupportedPlatform)
}

// Credentials reads the stored token.
func (p *KeyringProvider) Credentials(ctx context.Context) (Credentials, error) {
	token, err := keyring.Get(KeyringService, p.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Credentials{}, cerrors.NewClientError(fmt.Sprintf("no token stored in keyring for %s", p.account), nil)
		}
		return Credentials{}, cerrors.NewClientError("failed to read token from keyring", err)
	}
	creds := NewCredentials(strings.TrimSpace(token))
	if creds.IsBlank() {
		return Credentials{}, cerrors.NewClientError("keyring token is blank", nil)
	}
	return creds, nil
}

// StoreToken saves token in the OS keyring for cerberusURL.
func StoreToken(cerberusURL, token string) error {
	if strings.TrimSpace(token) == "" {
		return cerrors.InvalidArgument("token must not be blank")
	}
	if err := keyring.Set(KeyringService, keyringAccount(cerberusURL), token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// DeleteToken removes the stored token for cerberusURL. Removing a missing
// token is not an error.
func DeleteToken(cerberusURL string) error {
	err := keyring.Delete(KeyringService, keyringAccount(cerberusURL))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

func keyringAccount(cerberusURL string) string {
	return strings.TrimRight(strings.TrimSpace(cerberusURL), "/")
}
