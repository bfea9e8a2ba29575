package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
	"github.com/Sumatoshi-tech/pyqualify/pkg/mcp"
	"github.com/Sumatoshi-tech/pyqualify/pkg/version"
)

// serverFlags are shared by the long-running server commands.
type serverFlags struct {
	configPath  string
	metricsAddr string
	debug       bool
}

func (f *serverFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "Config file with the rewrite defaults")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and health endpoints at this address")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug logging to stderr")
}

func (f *serverFlags) load() (*config.Config, error) {
	loaded, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, configError(err)
	}

	return &loaded.Config, nil
}

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	flags := &serverFlags{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

Tools:
  - pyqualify_transform: rewrite inline Python source
  - pyqualify_check: list files under absolute paths that would change`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			tel, err := initTelemetry(cmd.Context(), observability.ModeMCP, cfg, flags.metricsAddr, flags.debug)
			if err != nil {
				return err
			}
			defer tel.close()

			red, err := observability.NewREDMetrics(tel.Meter)
			if err != nil {
				return err
			}

			rewrite, err := observability.NewRewriteMetrics(tel.Meter)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Config:  cfg,
				Version: version.Version,
				Logger:  tel.Logger,
				Metrics: red,
				Rewrite: rewrite,
				Tracer:  tel.Tracer,
			})

			tel.markServing()

			return srv.Run(cmd.Context())
		},
	}

	flags.register(cmd)

	return cmd
}
