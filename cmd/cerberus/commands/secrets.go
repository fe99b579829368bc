package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

func NewListCommand(rt *Runtime) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list <path>",
		Short: "List the keys under a path",
		Long: `List the secrets and folders directly under a safe deposit box path.
Folders end in "/". A path with nothing under it prints nothing.

Examples:
  cerberus list app/my-sdb
  cerberus list app/my-sdb/nested -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			keys, err := client.List(ctx, args[0])
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, keys)
			}
			for _, key := range keys {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}

func NewReadCommand(rt *Runtime) *cobra.Command {
	var (
		format    string
		versionID string
		key       string
	)

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Read the key/value pairs stored at a path",
		Long: `Read a secret. By default every key is printed as key=value.

Examples:
  cerberus read app/my-sdb/db
  cerberus read app/my-sdb/db --key password
  cerberus read app/my-sdb/db --version 9b0d... -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			var data map[string]string
			if versionID != "" {
				data, err = client.ReadVersion(ctx, args[0], versionID)
			} else {
				data, err = client.Read(ctx, args[0])
			}
			if err != nil {
				return err
			}

			if key != "" {
				value, ok := data[key]
				if !ok {
					return cerrors.UserError{
						Message:    fmt.Sprintf("Key %q not found at %s", key, args[0]),
						Suggestion: fmt.Sprintf("Run 'cerberus read %s' to see the available keys", args[0]),
					}
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), value)
				return nil
			}

			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, data)
			}
			writeKeyValues(cmd.OutOrStdout(), data)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	cmd.Flags().StringVar(&versionID, "version", "", "Read a past version")
	cmd.Flags().StringVar(&key, "key", "", "Print only the value of this key")
	return cmd
}

func NewWriteCommand(rt *Runtime) *cobra.Command {
	var merge bool

	cmd := &cobra.Command{
		Use:   "write <path> key=value...",
		Short: "Write key/value pairs to a path",
		Long: `Write a secret. The pairs replace whatever is stored at the path unless
--merge is given, in which case they are added to the existing keys.

Examples:
  cerberus write app/my-sdb/db username=svc password=hunter2
  cerberus write app/my-sdb/db password=rotated --merge`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parsePairs(args[1:])
			if err != nil {
				return err
			}
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			if merge {
				existing, err := client.Read(ctx, args[0])
				switch {
				case cerrors.IsNotFound(err):
				case err != nil:
					return err
				default:
					for k, v := range data {
						existing[k] = v
					}
					data = existing
				}
			}

			if err := client.Write(ctx, args[0], data); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d key(s) to %s\n", len(data), args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&merge, "merge", false, "Keep existing keys that are not being written")
	return cmd
}

func parsePairs(pairs []string) (map[string]string, error) {
	data := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, cerrors.UserError{
				Message:    fmt.Sprintf("Invalid pair %q", pair),
				Suggestion: "Pass secrets as key=value",
			}
		}
		data[key] = value
	}
	return data, nil
}

func NewDeleteCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete the secret at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			if err := client.Delete(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func NewVersionsCommand(rt *Runtime) *cobra.Command {
	var (
		format string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "versions <path>",
		Short: "Show the version history of a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			versions, err := client.ListSecretVersions(ctx, args[0], limit, offset)
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, versions)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tACTION\tCREATED BY\tCREATED")
			for _, v := range versions.Summaries {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, v.Action, v.VersionCreatedBy, v.VersionCreatedTS.Format("2006-01-02 15:04:05"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if versions.HasNext {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "More versions: --offset %d\n", versions.NextOffset)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of versions")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of versions to skip")
	return cmd
}
