package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/cerberus-go/cmd/cerberus/commands"
	"github.com/systmms/cerberus-go/internal/logging"
	"github.com/systmms/cerberus-go/pkg/cerberus"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

var (
	commit = "none"
	date   = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cerrors.Explain(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile    string
		debug         bool
		propertyPairs []string
		propertyFile  string
	)

	rt := commands.NewRuntime()

	rootCmd := &cobra.Command{
		Use:   "cerberus",
		Short: "Read and manage secrets stored in Cerberus",
		Long: `cerberus reads, writes and lists secrets and secure files stored in a
Cerberus safe deposit box, and administers the boxes themselves.

Credentials are found in this order: CERBERUS_TOKEN, the cerberus.token
property, the OS keyring (with --token-keyring), then the AWS identity of the
Lambda function, ECS task or EC2 instance, and finally an STS signed identity.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", cerberus.Version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt.Config.Path = configFile
			rt.Config.Optional = !cmd.Flags().Changed("config")
			rt.Config.Logger = logging.New(debug)
			rt.Logger = rt.Config.Logger
			if propertyFile != "" {
				if err := rt.LoadProperties(propertyFile); err != nil {
					return err
				}
			}
			return rt.SetProperties(propertyPairs)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "cerberus.yaml", "Config file path")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&rt.URL, "url", "", "Cerberus URL (overrides CERBERUS_ADDR and the config file)")
	flags.StringVar(&rt.Region, "region", "", "AWS region used for authentication")
	flags.DurationVar(&rt.Timeout, "timeout", 0, "Abort the command after this long (0 means no limit)")
	flags.BoolVar(&rt.Keyring, "token-keyring", false, "Look up a token stored with 'cerberus login'")
	flags.StringArrayVar(&propertyPairs, "property", nil, "Set a property, e.g. --property cerberus.token=...")
	flags.StringVar(&propertyFile, "properties-file", "", "YAML file of properties")

	rootCmd.AddCommand(
		commands.NewListCommand(rt),
		commands.NewReadCommand(rt),
		commands.NewWriteCommand(rt),
		commands.NewDeleteCommand(rt),
		commands.NewVersionsCommand(rt),
		commands.NewFilesCommand(rt),
		commands.NewSDBCommand(rt),
		commands.NewCategoriesCommand(rt),
		commands.NewRolesCommand(rt),
		commands.NewMetadataCommand(rt),
		commands.NewLoginCommand(rt),
		commands.NewLogoutCommand(rt),
		commands.NewWhoamiCommand(rt),
	)

	return rootCmd.Execute()
}
