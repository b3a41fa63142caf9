package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DiscardCmd returns the discard command, which throws away the staging
// sandbox and its branch. Destructive, so it refuses to run without --yes.
func DiscardCmd() *cobra.Command {
	var (
		projectDir string
		spec       string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "discard",
		Short: "Delete the staging sandbox and untrack the build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("discard deletes staged work permanently; re-run with --yes to confirm")
			}

			trees, err := newManager(projectDir)
			if err != nil {
				return err
			}
			if !trees.StagingExists() {
				return fmt.Errorf("no staging sandbox under %s", trees.Root())
			}
			trees.RemoveStaging(true)

			if spec != "" {
				store, err := openStore(cmd)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.DeleteBuild(cmd.Context(), spec); err != nil {
					return fmt.Errorf("untracking build %q: %w", spec, err)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "staging sandbox discarded")
			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", "", "project repository directory (default: cwd)")
	cmd.Flags().StringVar(&spec, "spec", "", "also remove this build from the registry")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive operation")
	addStoreFlag(cmd)
	return cmd
}
