package commands

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/cerberus-go/internal/logging"
	"github.com/systmms/cerberus-go/pkg/credentials"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

func NewLoginCommand(rt *Runtime) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a Cerberus token in the OS keyring",
		Long: `Store a token in the OS keyring so later commands can use it with
--token-keyring. The token is read from --token or, when that is not given,
from the first line of stdin.

Examples:
  cerberus login --token s.xyz
  pbpaste | cerberus login
  cerberus --token-keyring list app/my-sdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cerberusURL, err := rt.ResolvedURL()
			if err != nil {
				return err
			}

			if token == "" {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					token = scanner.Text()
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return cerrors.UserError{
					Message:    "No token given",
					Suggestion: "Pass --token or pipe the token on stdin",
				}
			}

			if err := credentials.StoreToken(cerberusURL, token); err != nil {
				// Keyring backends may quote the secret they failed to store.
				return cerrors.UserError{
					Message:    "Failed to store the token",
					Details:    logging.Redact(err.Error(), []string{token}),
					Suggestion: "Make sure a keyring service is available, or set CERBERUS_TOKEN instead",
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored token %s for %s\n", logging.Secret(token), cerberusURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Token to store")
	return cmd
}

func NewLogoutCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token from the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cerberusURL, err := rt.ResolvedURL()
			if err != nil {
				return err
			}
			if err := credentials.DeleteToken(cerberusURL); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed stored token for %s\n", cerberusURL)
			return nil
		},
	}
}

// expiring is implemented by providers that cache a leased token.
type expiring interface {
	ExpiresAt() time.Time
	TTL() time.Duration
}

func NewWhoamiCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show which credentials provider supplies the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.Client()
			if err != nil {
				return err
			}
			chain, err := rt.Chain()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			creds, err := chain.Credentials(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "URL:      %s\n", client.URL())
			provider, ok := chain.LastUsed()
			if ok {
				_, _ = fmt.Fprintf(out, "Provider: %s\n", credentials.ProviderName(provider))
				if e, ok := provider.(expiring); ok && !e.ExpiresAt().IsZero() {
					_, _ = fmt.Fprintf(out, "Expires:  %s (in %s)\n", e.ExpiresAt().Format(time.RFC3339), e.TTL().Round(time.Second))
				}
			}
			_, _ = fmt.Fprintf(out, "Token:    %s\n", logging.Secret(creds.Token()))
			return nil
		},
	}
}
