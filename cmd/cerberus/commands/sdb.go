package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/cerberus-go/pkg/cerberus"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

func NewSDBCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sdb",
		Aliases: []string{"box"},
		Short:   "Manage safe deposit boxes",
	}
	cmd.AddCommand(
		newSDBListCommand(rt),
		newSDBGetCommand(rt),
		newSDBCreateCommand(rt),
		newSDBDeleteCommand(rt),
	)
	return cmd
}

func newSDBListCommand(rt *Runtime) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the safe deposit boxes you can access",
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

			boxes, err := client.ListSafeDepositBoxes(ctx)
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, boxes)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tPATH")
			for _, b := range boxes {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.Name, b.Path)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}

func newSDBGetCommand(rt *Runtime) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a safe deposit box and its permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == formatText {
				format = formatYAML
			}
			if err := checkFormat(format); err != nil {
				return err
			}
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			box, err := client.GetSafeDepositBox(ctx, args[0])
			if err != nil {
				return err
			}
			return writeStructured(cmd.OutOrStdout(), format, box)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatYAML, "Output format: json or yaml")
	return cmd
}

func newSDBCreateCommand(rt *Runtime) *cobra.Command {
	var (
		category    string
		description string
		owner       string
		readers     []string
		writers     []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a safe deposit box",
		Long: `Create a safe deposit box in a category.

IAM principals listed with --read or --write are granted that role.

Examples:
  cerberus sdb create "Payments API" --category app --owner Lst-payments \
    --read arn:aws:iam::123456789012:role/payments`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return cerrors.UserError{
					Message:    "An owner group is required",
					Suggestion: "Pass --owner <user group>",
				}
			}
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			categoryID, err := client.CategoryIDByPath(ctx, category)
			if err != nil {
				return err
			}

			box := &cerberus.SafeDepositBox{
				Name:        args[0],
				CategoryID:  categoryID,
				Description: description,
				Owner:       owner,
			}
			for role, principals := range map[string][]string{"read": readers, "write": writers} {
				if len(principals) == 0 {
					continue
				}
				roleID, err := client.RoleIDByName(ctx, role)
				if err != nil {
					return err
				}
				for _, arn := range principals {
					box.IAMPrincipalPermissions = append(box.IAMPrincipalPermissions,
						cerberus.IAMPrincipalPermission{IAMPrincipalARN: strings.TrimSpace(arn), RoleID: roleID})
				}
			}

			created, err := client.CreateSafeDepositBox(ctx, box)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s at %s (id %s)\n", created.Name, created.Path, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "app", "Category path")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&owner, "owner", "", "Owning user group")
	cmd.Flags().StringSliceVar(&readers, "read", nil, "IAM principal ARN granted read")
	cmd.Flags().StringSliceVar(&writers, "write", nil, "IAM principal ARN granted write")
	return cmd
}

func newSDBDeleteCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a safe deposit box and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.Client()
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context(cmd.Context())
			defer cancel()

			if err := client.DeleteSafeDepositBox(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted safe deposit box %s\n", args[0])
			return nil
		},
	}
}
