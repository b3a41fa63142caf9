package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/buildswarm/swarm/internal/plan"
)

// StatusCmd returns the status command, which prints per-chunk progress and
// the QA history of a plan.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <plan.json>",
		Short: "Show chunk progress and QA state for a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n\n", p.Feature, p.WorkflowType)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, ph := range p.Phases {
				deps := ""
				if len(ph.DependsOn) > 0 {
					deps = fmt.Sprintf(" (after %v)", ph.DependsOn)
				}
				fmt.Fprintf(w, "phase %d: %s%s\n", ph.Phase, ph.Name, deps)
				for _, c := range ph.Chunks {
					fmt.Fprintf(w, "  %s\t%s\t%s\n", chunkStatusLabel(c.Status), c.ID, c.Description)
				}
			}
			w.Flush()

			fmt.Fprintf(out, "\nqa: %s\n", qaStatusLabel(string(p.QAState())))
			if p.QA != nil {
				for _, rec := range p.QA.Iterations {
					fmt.Fprintf(out, "  iteration %d (%s): %s, %d issue(s)\n",
						rec.Iteration, rec.Source, rec.Verdict, len(rec.Issues))
				}
			}
			return nil
		},
	}
	return cmd
}

func chunkStatusLabel(s plan.ChunkStatus) string {
	switch s {
	case plan.ChunkCompleted:
		return color.New(color.FgGreen).Sprint("done   ")
	case plan.ChunkFailed:
		return color.New(color.FgRed).Sprint("failed ")
	case plan.ChunkInProgress:
		return color.New(color.FgCyan).Sprint("active ")
	default:
		return "pending"
	}
}
