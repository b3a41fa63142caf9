package config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *SwarmConfig {
	return &SwarmConfig{
		WorktreeDir:   ".worktrees",
		MaxWorkers:    3,
		WorkerTimeout: "30m",
		Agents: map[string]AgentConfig{
			"coder": {
				Command:      "claude",
				Args:         []string{"-p"},
				SystemPrompt: "You implement one chunk of an implementation plan inside an isolated worktree.",
			},
			"reviewer": {
				Command:      "claude",
				Args:         []string{"-p"},
				SystemPrompt: "You review staged changes against the plan's acceptance criteria and report issues.",
			},
			"fixer": {
				Command:      "claude",
				Args:         []string{"-p"},
				SystemPrompt: "You fix the issues reported by the reviewer without introducing new features.",
			},
		},
		QA: QAConfig{
			MaxIterations:       5,
			RecurringThreshold:  3,
			SimilarityThreshold: 0.8,
		},
	}
}
