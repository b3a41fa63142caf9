package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/buildswarm/swarm/internal/events"
)

const durationUnit = 100 * time.Millisecond

// printEvents streams build events to the command's output until the bus is
// closed. The returned channel is closed when the printer drains.
func printEvents(cmd *cobra.Command, bus *events.EventBus) <-chan struct{} {
	ch := bus.SubscribeAll(0)
	done := make(chan struct{})
	out := cmd.OutOrStdout()

	go func() {
		defer close(done)
		for e := range ch {
			switch ev := e.(type) {
			case events.ChunkClaimedEvent:
				fmt.Fprintf(out, "%s chunk %s (phase %d) -> %s\n",
					color.New(color.FgCyan).Sprint("claim"), ev.ID, ev.PhaseID, ev.WorkerID)
			case events.ChunkReleasedEvent:
				mark := color.New(color.FgGreen).Sprint("done")
				if !ev.Success {
					mark = color.New(color.FgRed).Sprint("fail")
				}
				fmt.Fprintf(out, "%s  chunk %s (%s)\n", mark, ev.ID, ev.Duration.Round(durationUnit))
			case events.MergeResultEvent:
				if ev.Merged {
					fmt.Fprintf(out, "%s %s -> staging\n",
						color.New(color.FgGreen).Sprint("merge"), ev.Branch)
				} else {
					fmt.Fprintf(out, "%s %s conflicts with staging, branch kept\n",
						color.New(color.FgYellow).Sprint("merge"), ev.Branch)
				}
			case events.QAIterationEvent:
				fmt.Fprintf(out, "qa    iteration %d (%s): %s, %d issue(s)\n",
					ev.Iteration, ev.Source, ev.Verdict, ev.Issues)
			case events.QAEscalatedEvent:
				color.New(color.FgYellow).Fprintf(out, "qa    escalated: %s\n", ev.Reason)
			}
		}
	}()
	return done
}
