package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/lsp"
	"github.com/Sumatoshi-tech/pyqualify/pkg/version"
)

// NewLSPCommand creates the language server command.
func NewLSPCommand() *cobra.Command {
	flags := &serverFlags{}

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the language server on stdio",
		Long: `Start a Language Server Protocol server on stdio.

Imports that would be rewritten are reported as diagnostics. Formatting and
the source.fixAll.pyqualify code action apply the rewrite to the document.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			tel, err := initTelemetry(cmd.Context(), observability.ModeLSP, cfg, flags.metricsAddr, flags.debug)
			if err != nil {
				return err
			}
			defer tel.close()

			red, err := observability.NewREDMetrics(tel.Meter)
			if err != nil {
				return err
			}

			srv, err := lsp.NewServer(lsp.ServerDeps{
				Config:  cfg,
				Version: version.Version,
				Logger:  tel.Logger,
				Metrics: red,
				Tracer:  tel.Tracer,
			})
			if err != nil {
				return configError(err)
			}

			tel.markServing()

			return srv.Run()
		},
	}

	flags.register(cmd)

	return cmd
}
