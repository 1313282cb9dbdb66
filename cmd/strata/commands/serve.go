package commands

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/strataconf/strata/pkg/ipc"
	"github.com/strataconf/strata/pkg/telemetry"
	"github.com/strataconf/strata/pkg/workspace"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve documents over stdio",
		Long: `Serve the workspace to a parent process over a line-delimited JSON
protocol on stdin and stdout.

The server answers read, write, validate, and resolve requests until
stdin closes or the process is interrupted. Logs go to stderr, leaving
stdout to the protocol. Metrics and tracing follow the workspace's
telemetry configuration.`,
		Example: `  # Serve the workspace on stdio
  strata serve

  # Protocol-level debug events for each request
  strata serve --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.NewTelemetry(cfg.Telemetry.Build("strata", buildVersion))
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()

			if tel.Config.Metrics.Enabled {
				if err := tel.StartMetricsServer(); err != nil {
					return err
				}
				log.Info().Str("listen", tel.Config.Metrics.ListenAddress).Msg("Metrics server started")
			}

			ctx := tel.WithContext(cmd.Context())

			ws, err := workspace.Open(ctx, cfg, log.Logger)
			if err != nil {
				return err
			}
			defer ws.Close()

			log.Info().Str("workspace", ws.Root()).Msg("Serving on stdio")

			server := ipc.NewServer(ws, os.Stdin, os.Stdout, log.Logger)
			server.Verbose = verbose
			return server.Serve(ctx)
		},
	}

	return cmd
}
