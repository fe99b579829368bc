package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewCategoriesCommand(rt *Runtime) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List safe deposit box categories",
		Args:  cobra.NoArgs,
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

			categories, err := client.ListCategories(ctx)
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, categories)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tPATH\tNAME")
			for _, c := range categories {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Path, c.DisplayName)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}

func NewRolesCommand(rt *Runtime) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "roles",
		Short: "List the roles that can be granted on a safe deposit box",
		Args:  cobra.NoArgs,
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

			roles, err := client.ListRoles(ctx)
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, roles)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME")
			for _, r := range roles {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", r.ID, r.Name)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}

func NewMetadataCommand(rt *Runtime) *cobra.Command {
	var (
		format string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Show metadata for every safe deposit box (admin only)",
		Args:  cobra.NoArgs,
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

			page, err := client.GetMetadata(ctx, limit, offset)
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, page)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tPATH\tCATEGORY\tOWNER")
			for _, b := range page.Boxes {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Name, b.Path, b.Category, b.Owner)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d safe deposit boxes\n", len(page.Boxes), page.TotalSDBCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of boxes")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of boxes to skip")
	return cmd
}
