package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildswarm/swarm/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "swarm",
		Short: "Parallel implementation-plan executor",
		Long: `swarm executes an implementation plan with concurrent agent workers,
each isolated in its own git worktree. Finished chunks are merged into a
persistent staging sandbox, validated by a bounded review/fix loop, and
landed on the base branch once approved.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.StartCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.ListCmd())
	rootCmd.AddCommand(cli.ReviewCmd())
	rootCmd.AddCommand(cli.MergeCmd())
	rootCmd.AddCommand(cli.DiscardCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
