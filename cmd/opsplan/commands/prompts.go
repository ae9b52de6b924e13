package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/opsplan/pkg/config"
	"github.com/openfroyo/opsplan/pkg/telemetry"
)

func newPromptsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect the prompt template registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered prompt templates and their risk tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
			if err != nil {
				return err
			}

			registry, err := openRegistry(cmd.Context(), config.PromptsConfig{Path: cfg.Prompts.Path}, logger)
			if err != nil {
				return err
			}
			entries, err := registry.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No prompt templates registered")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIER\tNAME")
			for _, m := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.RiskTier, m.Name)
			}
			return tw.Flush()
		},
	})

	return cmd
}
