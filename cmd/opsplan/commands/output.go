package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/openfroyo/opsplan/pkg/engine"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *score)
}

func resourceString(r engine.ResourceRef) string {
	if r.Namespace == "" {
		return r.Kind + "/" + r.Name
	}
	return r.Kind + "/" + r.Namespace + "/" + r.Name
}

// printPlan writes a human-readable summary of one plan.
func printPlan(w io.Writer, p *engine.OperationPlan) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", p.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", p.Status)
	fmt.Fprintf(tw, "Action:\t%s\n", p.Action)
	fmt.Fprintf(tw, "Resource:\t%s\n", resourceString(p.Resource))
	if p.Resource.ResourceVersion != "" {
		fmt.Fprintf(tw, "Resource version:\t%s\n", p.Resource.ResourceVersion)
	}
	if p.Intent != "" {
		fmt.Fprintf(tw, "Intent:\t%s\n", p.Intent)
	}
	fmt.Fprintf(tw, "Risk:\t%s (%s)\n", p.Risk.Level, formatScore(p.Risk.Score))
	if len(p.Risk.Factors) > 0 {
		fmt.Fprintf(tw, "Factors:\t%s\n", strings.Join(p.Risk.Factors, ", "))
	}
	if p.Risk.SLOBudgetImpact != "" {
		fmt.Fprintf(tw, "SLO budget impact:\t%s\n", p.Risk.SLOBudgetImpact)
	}
	fmt.Fprintf(tw, "Idempotency key:\t%s\n", p.Audit.IdempotencyKey)
	if p.Audit.RequestedBy != "" {
		fmt.Fprintf(tw, "Requested by:\t%s\n", p.Audit.RequestedBy)
	}
	if p.Audit.ExecutedBy != "" {
		fmt.Fprintf(tw, "Executed by:\t%s\n", p.Audit.ExecutedBy)
	}
	_ = tw.Flush()

	if p.Risk.Rationale != "" {
		fmt.Fprintf(w, "\n%s\n", p.Risk.Rationale)
	}
	printList(w, "Post-conditions", p.Risk.PostConditions)

	printFindings(w, p.Guardrails)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

// printPlans writes a table of plans.
func printPlans(w io.Writer, plans []*engine.OperationPlan) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tACTION\tRESOURCE\tRISK\tSCORE\tCREATED")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Status, p.Action, resourceString(p.Resource),
			p.Risk.Level, formatScore(p.Risk.Score),
			p.Audit.Timestamps.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = tw.Flush()
}

func printFindings(w io.Writer, findings []engine.GuardrailFinding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintln(w, "\nGuardrails:")
	for _, g := range findings {
		fmt.Fprintf(w, "  [%s] %s: %s\n", g.Severity, g.Policy, g.Message)
	}
}
