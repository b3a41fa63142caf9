package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ListCmd returns the list command, which prints every build in the registry.
func ListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			builds, err := store.ListBuilds(cmd.Context())
			if err != nil {
				return err
			}
			if len(builds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no builds tracked")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BUILD\tFEATURE\tSTAGING BRANCH\tQA\tUPDATED")
			for _, b := range builds {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					b.Spec, b.Feature, b.StagingBranch, qaStatusLabel(b.QAStatus),
					b.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	addStoreFlag(cmd)
	return cmd
}

func qaStatusLabel(status string) string {
	switch status {
	case "approved":
		return color.New(color.FgGreen).Sprint(status)
	case "escalated", "rejected":
		return color.New(color.FgRed).Sprint(status)
	case "in_review", "fixes_applied":
		return color.New(color.FgYellow).Sprint(status)
	default:
		return status
	}
}
