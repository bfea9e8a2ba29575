package commands

import (
	"os"

	"github.com/spf13/cobra"
)

const (
	defaultCommandName = "pyqualify"

	// EnvCommandName overrides the program name shown in help and usage,
	// for wrappers that install the tool under another name.
	EnvCommandName = "PYQUALIFY_COMMAND_NAME"
)

// NewRootCommand creates the pyqualify command tree. Without a subcommand
// the root behaves like `run`.
func NewRootCommand() *cobra.Command {
	name := os.Getenv(EnvCommandName)
	if name == "" {
		name = defaultCommandName
	}

	opts := &runOptions{}

	root := &cobra.Command{
		Use:   name + " [paths...]",
		Short: "Qualify typing imports as t.X",
		Long: `pyqualify rewrites Python code so that every name imported from the typing
module is used through one qualified alias:

    from typing import Any        import typing as t
    x: Any = 1              ->    x: t.Any = 1

Without a subcommand the paths are rewritten as with "run".`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	opts.register(root.Flags())
	root.SetFlagErrorFunc(flagError)

	root.AddCommand(
		NewRunCommand(),
		NewMCPCommand(),
		NewLSPCommand(),
		NewConfigCommand(),
		NewVersionCommand(),
	)

	return root
}
