package cli

import (
	"fmt"
	"time"

	"github.com/buildswarm/swarm/internal/config"
	"github.com/buildswarm/swarm/internal/qa"
	"github.com/buildswarm/swarm/internal/runner"
	"github.com/buildswarm/swarm/internal/security"
	"github.com/buildswarm/swarm/internal/session"
)

// sessionFactory wires agent configuration, the command allowlist, subprocess
// tracking, and per-role resilience into a runner.SessionFactory.
func sessionFactory(cfg *config.SwarmConfig, pm *session.ProcessManager,
	allow *security.Allowlist, breakers *session.BreakerRegistry) runner.SessionFactory {

	return func(role, workDir string) (session.Runner, error) {
		agent, ok := cfg.Agents[role]
		if !ok {
			return nil, fmt.Errorf("no agent configured for role %q", role)
		}
		inner, err := session.NewCommandRunner(session.Config{
			Command:      agent.Command,
			Args:         agent.Args,
			Model:        agent.Model,
			SystemPrompt: agent.SystemPrompt,
			WorkDir:      workDir,
		}, pm, allow)
		if err != nil {
			return nil, err
		}
		return session.NewResilientRunner(inner, breakers, role, session.DefaultRetryConfig()), nil
	}
}

// qaAgents builds the reviewer and fixer backed by agent sessions rooted in
// the staging sandbox.
func qaAgents(factory runner.SessionFactory, stagingPath string) (qa.Reviewer, qa.Fixer, error) {
	reviewSess, err := factory("reviewer", stagingPath)
	if err != nil {
		return nil, nil, err
	}
	fixSess, err := factory("fixer", stagingPath)
	if err != nil {
		reviewSess.Close()
		return nil, nil, err
	}
	return &qa.SessionReviewer{Runner: reviewSess}, &qa.SessionFixer{Runner: fixSess}, nil
}

// workerTimeout parses the configured duration, falling back to the default
// on a malformed value.
func workerTimeout(cfg *config.SwarmConfig) time.Duration {
	if cfg.WorkerTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(cfg.WorkerTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}
