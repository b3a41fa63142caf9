package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/buildswarm/swarm/internal/worktree"
)

// ReviewCmd returns the review command, which summarizes what the staging
// sandbox would add to the base branch.
func ReviewCmd() *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Show the changes staged for merge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trees, err := newManager(projectDir)
			if err != nil {
				return err
			}
			if !trees.StagingExists() {
				return fmt.Errorf("no staging sandbox under %s", trees.Root())
			}

			summary, err := trees.ChangeSummary(worktree.StagingName)
			if err != nil {
				return err
			}
			changes, err := trees.ChangedFiles(worktree.StagingName)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "staging vs %s: %d new, %d modified, %d deleted\n\n",
				trees.BaseBranch(), summary.NewFiles, summary.ModifiedFiles, summary.DeletedFiles)
			for _, ch := range changes {
				switch ch.Status {
				case "A":
					color.New(color.FgGreen).Fprintf(out, "  A %s\n", ch.Path)
				case "D":
					color.New(color.FgRed).Fprintf(out, "  D %s\n", ch.Path)
				default:
					fmt.Fprintf(out, "  %s %s\n", ch.Status, ch.Path)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", "", "project repository directory (default: cwd)")
	return cmd
}
