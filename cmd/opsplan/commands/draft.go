package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/opsplan/pkg/config"
)

func newDraftCommand(opts *globalOptions) *cobra.Command {
	var (
		file           string
		requestedBy    string
		promptID       string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Draft an operation plan",
		Long: `Draft an operation plan from a CUE, YAML or JSON document.

Drafting:
  - Validates the document against the draft schema
  - Scores risk from the action, namespace, resource kind and patch
  - Raises risk according to the source prompt's tier
  - Runs advisory guardrail policies
  - Stores the plan as pending and records plan.generated`,
		Example: `  # Draft from a CUE file
  opsplan draft -f scale-checkout.cue

  # Draft on behalf of a user, attributing the AI prompt template
  opsplan draft -f change.yaml --requested-by alice --prompt scale-deployment`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := config.LoadDraftInput(file)
			if err != nil {
				return err
			}
			if requestedBy != "" {
				in.RequestedBy = requestedBy
			}
			if promptID != "" {
				in.SourcePromptID = promptID
			}
			if idempotencyKey != "" {
				in.IdempotencyKey = idempotencyKey
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			log.Debug().Str("file", file).Str("action", string(in.Action)).Msg("Drafting plan")

			plan, err := a.service.Draft(cmd.Context(), *in)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), plan)
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "draft input file (.cue, .yaml, .json)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "identity requesting the change")
	cmd.Flags().StringVar(&promptID, "prompt", "", "source prompt template id")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "explicit idempotency key (derived when empty)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
