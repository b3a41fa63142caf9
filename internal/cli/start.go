package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/buildswarm/swarm/internal/config"
	"github.com/buildswarm/swarm/internal/coordinator"
	"github.com/buildswarm/swarm/internal/events"
	"github.com/buildswarm/swarm/internal/plan"
	"github.com/buildswarm/swarm/internal/qa"
	"github.com/buildswarm/swarm/internal/runner"
	"github.com/buildswarm/swarm/internal/security"
	"github.com/buildswarm/swarm/internal/session"
	"github.com/buildswarm/swarm/internal/worktree"
)

// StartCmd returns the start command, which executes an implementation plan
// with parallel workers and gates the result through QA. Re-running on a
// partially executed plan resumes it: completed chunks are skipped and the
// QA iteration history carries over.
func StartCmd() *cobra.Command {
	var (
		projectDir string
		specName   string
		workers    int
		skipQA     bool
	)

	cmd := &cobra.Command{
		Use:   "start <plan.json>",
		Short: "Execute an implementation plan with parallel workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if projectDir == "" {
				projectDir, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			if specName == "" {
				specName = strings.TrimSuffix(filepath.Base(planPath), filepath.Ext(planPath))
			}

			cfg, err := config.LoadDefault()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.MaxWorkers = workers
			}

			p, err := plan.Load(planPath)
			if err != nil {
				return err
			}

			allow, err := security.LoadAllowlist(allowlistPath(cfg, projectDir))
			if err != nil {
				return err
			}

			trees, err := worktree.NewManager(worktree.Config{
				ProjectDir:  projectDir,
				BaseBranch:  cfg.BaseBranch,
				WorktreeDir: cfg.WorktreeDir,
			})
			if err != nil {
				return err
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			bus := events.NewEventBus()
			defer bus.Close()
			done := printEvents(cmd, bus)

			pm := session.NewProcessManager()
			defer pm.KillAll()
			factory := sessionFactory(cfg, pm, allow, session.NewBreakerRegistry())

			specDir := filepath.Dir(planPath)
			coord := coordinator.New(specDir, p, coordinator.WithMaxWorkers(cfg.MaxWorkers))

			var reviewer qa.Reviewer
			var fixer qa.Fixer
			if !skipQA {
				staging, err := trees.GetOrCreateStaging(specName)
				if err != nil {
					return err
				}
				reviewer, fixer, err = qaAgents(factory, staging.Path)
				if err != nil {
					return err
				}
			}

			r := runner.New(runner.Config{
				SpecName:              specName,
				SpecDir:               specDir,
				PlanPath:              planPath,
				MaxWorkers:            cfg.MaxWorkers,
				WorkerTimeout:         workerTimeout(cfg),
				QAMaxIterations:       cfg.QA.MaxIterations,
				QARecurringThreshold:  cfg.QA.RecurringThreshold,
				QASimilarityThreshold: cfg.QA.SimilarityThreshold,
			}, p, coord, trees, factory, reviewer, fixer, store, bus)

			results, runErr := r.Run(cmd.Context())
			bus.Close()
			<-done

			completed, failed := 0, 0
			for _, res := range results {
				if res.Success {
					completed++
				} else {
					failed++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d chunk(s) completed, %d failed, qa: %s\n",
				completed, failed, p.QAState())

			if runErr != nil {
				return runErr
			}
			if p.QAState() == plan.QAEscalated {
				color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(),
					"build escalated for human review; see the PAUSE file in %s\n", specDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", "", "project repository directory (default: cwd)")
	cmd.Flags().StringVar(&specName, "spec", "", "build name (default: plan file name)")
	cmd.Flags().IntVar(&workers, "workers", 0, "max concurrent workers (default from config)")
	cmd.Flags().BoolVar(&skipQA, "skip-qa", false, "skip the QA validation loop")
	addStoreFlag(cmd)
	return cmd
}

func allowlistPath(cfg *config.SwarmConfig, projectDir string) string {
	if cfg.AllowlistPath != "" {
		return cfg.AllowlistPath
	}
	return filepath.Join(projectDir, ".swarm", "allowlist")
}
