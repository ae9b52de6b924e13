package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/opsplan/pkg/config"
	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/policy"
	"github.com/openfroyo/opsplan/pkg/risk"
	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// evaluation is the output of the evaluate command.
type evaluation struct {
	Risk       engine.Risk               `json:"risk"`
	Guardrails []engine.GuardrailFinding `json:"guardrails"`
	Warnings   []string                  `json:"warnings,omitempty"`
}

func newEvaluateCommand(opts *globalOptions) *cobra.Command {
	var (
		file     string
		promptID string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a draft input without storing it",
		Long: `Evaluate the risk and guardrail findings of a draft input.

Nothing is stored and no audit events are recorded.`,
		Example: `  opsplan evaluate -f delete-job.yaml --prompt cleanup-jobs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			in, err := config.LoadDraftInput(file)
			if err != nil {
				return err
			}
			if promptID != "" {
				in.SourcePromptID = promptID
			}

			logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
			if err != nil {
				return err
			}

			registry, err := openRegistry(ctx, config.PromptsConfig{Path: cfg.Prompts.Path}, logger)
			if err != nil {
				return err
			}

			diff := in.Diff
			if diff.PatchFormat == "" {
				diff.PatchFormat = engine.PatchFormatJSONPatch
			}
			result := evaluation{
				Risk: risk.Evaluate(in.Action, in.Resource.Namespace, in.Resource.Kind, diff, in.Steps),
			}
			result.Risk = risk.NewAnnotator(registry, logger.Zerolog()).Annotate(ctx, result.Risk, in.SourcePromptID)

			if cfg.Policy.Enabled {
				policyCfg := cfg.Policy
				policyCfg.Watch = false
				eng, err := openPolicies(ctx, policyCfg, logger)
				if err != nil {
					return err
				}
				res, err := eng.Evaluate(ctx, &engine.OperationPlan{
					Action:   in.Action,
					Intent:   in.Intent,
					Resource: in.Resource,
					Diff:     diff,
					Steps:    in.Steps,
					Risk:     result.Risk,
				}, "evaluate")
				if err != nil {
					return err
				}
				result.Guardrails = res.Findings
				result.Warnings = res.Warnings
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, result)
			}

			fmt.Fprintf(out, "Risk: %s (%s)\n", result.Risk.Level, formatScore(result.Risk.Score))
			fmt.Fprintf(out, "SLO budget impact: %s\n", result.Risk.SLOBudgetImpact)
			printList(out, "Factors", result.Risk.Factors)
			fmt.Fprintf(out, "\n%s\n", result.Risk.Rationale)
			printList(out, "Post-conditions", result.Risk.PostConditions)
			printFindings(out, result.Guardrails)
			printList(out, "Policy warnings", result.Warnings)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "draft input file (.cue, .yaml, .json)")
	cmd.Flags().StringVar(&promptID, "prompt", "", "source prompt template id")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newPoliciesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect guardrail policies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded guardrail policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
			if err != nil {
				return err
			}

			policyCfg := cfg.Policy
			policyCfg.Watch = false
			eng, err := openPolicies(cmd.Context(), policyCfg, logger)
			if err != nil {
				return err
			}

			policies := eng.ListPolicies()
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), policies)
			}
			printPolicies(cmd.OutOrStdout(), policies)
			return nil
		},
	})

	return cmd
}

func printPolicies(w io.Writer, policies []policy.Policy) {
	for _, p := range policies {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "%-28s %-9s %-8s %s\n", p.Name, p.Severity, state, p.Description)
	}
}
