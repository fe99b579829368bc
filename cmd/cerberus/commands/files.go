package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewFilesCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage secure files",
	}
	cmd.AddCommand(
		newFilesListCommand(rt),
		newFilesReadCommand(rt),
		newFilesWriteCommand(rt),
		newFilesDeleteCommand(rt),
	)
	return cmd
}

func newFilesListCommand(rt *Runtime) *cobra.Command {
	var (
		format string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list <prefix>",
		Short: "List secure files under a path",
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

			files, err := client.ListFiles(ctx, args[0], limit, offset)
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, files)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PATH\tSIZE")
			for _, f := range files.Summaries {
				_, _ = fmt.Fprintf(w, "%s\t%d\n", f.Path, f.SizeInBytes)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of files")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of files to skip")
	return cmd
}

func newFilesReadCommand(rt *Runtime) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Download a secure file",
		Long: `Download a secure file to stdout, or to a local file with --out.

Examples:
  cerberus files read app/my-sdb/server.pem > server.pem
  cerberus files read app/my-sdb/server.pem --out /etc/ssl/server.pem`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			file, err := client.ReadFile(ctx, args[0])
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(file.Content)
				return err
			}
			if err := os.WriteFile(out, file.Content, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s (%d bytes)\n", out, len(file.Content))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Write the file here instead of stdout")
	return cmd
}

func newFilesWriteCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "write <path> <local-file|->",
		Short: "Upload a secure file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			if err := client.WriteFile(ctx, args[0], content); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d bytes to %s\n", len(content), args[0])
			return nil
		},
	}
}

func newFilesDeleteCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a secure file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			if err := client.DeleteFile(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
