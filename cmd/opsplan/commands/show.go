package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/stores"
)

func newShowCommand(opts *globalOptions) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show a plan",
		Example: `  # Show a plan
  opsplan show 3f1c...

  # Show the resource before and after the patch
  opsplan show 3f1c... --preview`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if preview {
				p, err := a.service.Preview(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(out, p)
				}
				fmt.Fprintf(out, "Before:\n%s\n\nAfter:\n%s\n", p.Before, p.After)
				if len(p.Rollback) > 0 {
					fmt.Fprintf(out, "\nAfter rollback:\n%s\n", p.Rollback)
				}
				return nil
			}

			plan, err := a.service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(out, plan)
			}
			printPlan(out, plan)
			return nil
		},
	}

	cmd.Flags().BoolVar(&preview, "preview", false, "apply the patch to the before snapshot and show the result")
	return cmd
}

func newListCommand(opts *globalOptions) *cobra.Command {
	var (
		status    string
		action    string
		namespace string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans, newest first",
		Example: `  # Pending plans in production
  opsplan list --status pending --namespace production`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := stores.ListFilter{
				Status:    engine.Status(status),
				Action:    engine.Action(action),
				Namespace: namespace,
				Limit:     limit,
				Offset:    offset,
			}
			if status != "" {
				if err := filter.Status.Validate(); err != nil {
					return err
				}
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			plans, err := a.service.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), plans)
			}
			if len(plans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plans found")
				return nil
			}
			printPlans(cmd.OutOrStdout(), plans)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&action, "action", "", "filter by action")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "filter by namespace")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of plans")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of plans to skip")

	return cmd
}
