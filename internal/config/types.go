package config

// AgentConfig defines how one agent role (coder, reviewer, fixer) is
// launched.
type AgentConfig struct {
	Command      string   `json:"command"`                 // Agent CLI binary name
	Args         []string `json:"args,omitempty"`          // Default args appended to every invocation
	Model        string   `json:"model,omitempty"`         // Model override
	SystemPrompt string   `json:"system_prompt,omitempty"` // Role-specific system prompt
}

// QAConfig bounds the QA validation loop.
type QAConfig struct {
	MaxIterations       int     `json:"max_iterations,omitempty"`
	RecurringThreshold  int     `json:"recurring_threshold,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// SwarmConfig is the top-level configuration.
type SwarmConfig struct {
	BaseBranch    string                 `json:"base_branch,omitempty"`
	WorktreeDir   string                 `json:"worktree_dir,omitempty"`
	MaxWorkers    int                    `json:"max_workers,omitempty"`
	WorkerTimeout string                 `json:"worker_timeout,omitempty"` // Go duration string, e.g. "30m"
	AllowlistPath string                 `json:"allowlist_path,omitempty"`
	Agents        map[string]AgentConfig `json:"agents"`
	QA            QAConfig               `json:"qa"`
}
