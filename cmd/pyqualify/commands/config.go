package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(newConfigShowCommand(), newConfigValidateCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return configError(err)
			}

			data, err := config.Marshal(loaded.Config)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if loaded.File != "" {
				fmt.Fprintf(out, "# %s\n", loaded.File)
			}

			_, err = out.Write(data)

			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file (default: search . and $HOME/.config/pyqualify)")

	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a config file against the schema and value rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			loaded, err := config.LoadConfig(path)
			if err != nil {
				return configError(err)
			}

			source := loaded.File
			if source == "" {
				source = "defaults"
			}

			ok := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ok("valid:"), source)

			return nil
		},
	}
}
