package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/stores"
)

func newAuditCommand(opts *globalOptions) *cobra.Command {
	var filter stores.AuditFilter
	var eventType string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit events from the store",
		Long: `List audit events recorded to the store's audit table, in append order.

Only events written through the store sink are visible here.`,
		Example: `  # The trail of one plan
  opsplan audit --plan 3f1c...

  # All failed executions
  opsplan audit --type plan.execution.failure`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Type = engine.AuditEventType(eventType)

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			events, err := a.store.ListAuditEvents(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No audit events found")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tPLAN\tTYPE\tACTOR")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.PlanID, e.Type, e.Actor)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.PlanID, "plan", "", "filter by plan id")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "maximum number of events")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of events to skip")

	return cmd
}
