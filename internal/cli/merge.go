package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/buildswarm/swarm/internal/config"
	"github.com/buildswarm/swarm/internal/plan"
	"github.com/buildswarm/swarm/internal/worktree"
)

// MergeCmd returns the merge command, which lands the staging sandbox on the
// base branch. Unless forced, the plan must carry an approved QA sign-off.
func MergeCmd() *cobra.Command {
	var (
		projectDir string
		planPath   string
		force      bool
		keep       bool
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the staging sandbox into the base branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if planPath == "" {
					return fmt.Errorf("--plan is required to check QA sign-off (or pass --force)")
				}
				p, err := plan.Load(planPath)
				if err != nil {
					return err
				}
				if p.QAState() != plan.QAApproved {
					return fmt.Errorf("qa status is %q, not approved; use --force to merge anyway", p.QAState())
				}
			}

			trees, err := newManager(projectDir)
			if err != nil {
				return err
			}
			if !trees.StagingExists() {
				return fmt.Errorf("no staging sandbox under %s", trees.Root())
			}

			merged, err := trees.MergeStaging(!keep)
			if err != nil {
				return err
			}
			if !merged {
				return fmt.Errorf("staging conflicts with %s; merge aborted, staging left intact", trees.BaseBranch())
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(),
				"staging merged into %s\n", trees.BaseBranch())
			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", "", "project repository directory (default: cwd)")
	cmd.Flags().StringVar(&planPath, "plan", "", "plan file carrying the QA sign-off")
	cmd.Flags().BoolVar(&force, "force", false, "merge without an approved QA sign-off")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the staging sandbox after merging")
	return cmd
}

// newManager builds a worktree manager for the given project directory,
// honoring the merged configuration.
func newManager(projectDir string) (*worktree.Manager, error) {
	var err error
	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	return worktree.NewManager(worktree.Config{
		ProjectDir:  projectDir,
		BaseBranch:  cfg.BaseBranch,
		WorktreeDir: cfg.WorktreeDir,
	})
}
