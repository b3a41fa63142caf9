package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/buildswarm/swarm/internal/persistence"
)

// addStoreFlag registers the shared --db flag on a command.
func addStoreFlag(cmd *cobra.Command) {
	cmd.Flags().String("db", "", "build registry database path (default: ~/.swarm/swarm.db)")
}

// openStore opens the build registry named by --db, defaulting to the
// per-user database.
func openStore(cmd *cobra.Command) (*persistence.SQLiteStore, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".swarm", "swarm.db")
	}
	return persistence.NewSQLiteStore(cmd.Context(), path)
}
