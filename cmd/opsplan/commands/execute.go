package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/opsplan/pkg/lifecycle"
)

func newExecuteCommand(opts *globalOptions) *cobra.Command {
	var in lifecycle.ExecuteInput

	cmd := &cobra.Command{
		Use:   "execute <plan-id>",
		Short: "Execute a pending plan",
		Long: `Execute a pending operation plan.

The caller must present the resourceVersion captured when the plan was
drafted and the plan's idempotency key. Executing an already executed plan
with its key returns the stored plan without recording anything.`,
		Example: `  opsplan execute 3f1c... --resource-version 41 --idempotency-key opk_... --actor bob`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.PlanID = args[0]

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			plan, err := a.service.Execute(cmd.Context(), in)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), plan)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s is %s\n", plan.ID, plan.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.ResourceVersion, "resource-version", "", "resourceVersion captured at draft time")
	cmd.Flags().StringVar(&in.IdempotencyKey, "idempotency-key", "", "the plan's idempotency key")
	cmd.Flags().StringVar(&in.Actor, "actor", "", "identity executing the plan")
	_ = cmd.MarkFlagRequired("resource-version")
	_ = cmd.MarkFlagRequired("idempotency-key")

	return cmd
}

func newDismissCommand(opts *globalOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "dismiss <plan-id>",
		Short: "Record that a plan was dismissed",
		Long: `Record a plan.dismissed audit event. The plan's status is not changed,
and dismissing an unknown plan is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.service.Dismiss(cmd.Context(), args[0], actor); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s dismissed\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "identity dismissing the plan")
	return cmd
}
