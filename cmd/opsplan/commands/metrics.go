package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMetricsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Prometheus metrics",
	}

	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics until interrupted",
		Long: `Wire the full application and serve its Prometheus metrics until the
process is interrupted. Prompt registry and policy hot reload run while
serving when enabled in the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Telemetry.Metrics.ListenAddress = addr
			}
			if !cfg.Telemetry.Metrics.Enabled {
				return fmt.Errorf("metrics are disabled in the config")
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			log.Info().
				Str("address", cfg.Telemetry.Metrics.ListenAddress).
				Str("path", cfg.Telemetry.Metrics.Path).
				Msg("Serving metrics")

			return a.telemetry.Metrics.Serve(cmd.Context())
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides the config)")

	cmd.AddCommand(serve)
	return cmd
}
