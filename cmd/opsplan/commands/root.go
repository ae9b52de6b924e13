package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	jsonOutput bool
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "opsplan",
		Short: "opsplan - reviewable operation plans for infrastructure changes",
		Long: `opsplan drafts operation plans for proposed infrastructure changes,
scores their risk, and executes them under optimistic concurrency and
idempotency guards, recording every transition to an audit trail.

Features:
  - Deterministic risk scoring with prompt-tier escalation
  - Advisory OPA guardrails
  - Memory, SQLite and DynamoDB plan stores
  - Audit trail to log, store and JSON-lines file`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (default $OPSPLAN_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newDraftCommand(opts))
	rootCmd.AddCommand(newExecuteCommand(opts))
	rootCmd.AddCommand(newDismissCommand(opts))
	rootCmd.AddCommand(newShowCommand(opts))
	rootCmd.AddCommand(newListCommand(opts))
	rootCmd.AddCommand(newEvaluateCommand(opts))
	rootCmd.AddCommand(newPromptsCommand(opts))
	rootCmd.AddCommand(newPoliciesCommand(opts))
	rootCmd.AddCommand(newAuditCommand(opts))
	rootCmd.AddCommand(newMetricsCommand(opts))

	return rootCmd
}
