package worktree

// StagingName is the reserved name of the single persistent staging sandbox.
// It survives worker cleanup and process restarts; a build's integrated
// result accumulates there until the user merges or discards it.
const StagingName = "staging"

// Info describes one live sandbox.
type Info struct {
	Path       string // Absolute path to the worktree directory
	Branch     string // Branch the sandbox is bound to
	BaseBranch string // Branch the sandbox was created from
	IsActive   bool
}

// Summary counts changes in a sandbox relative to its base branch.
type Summary struct {
	NewFiles      int `json:"new_files"`
	ModifiedFiles int `json:"modified_files"`
	DeletedFiles  int `json:"deleted_files"`
}

// FileChange is one changed path with its git status letter (A/M/D).
type FileChange struct {
	Status string
	Path   string
}

// Config configures the worktree manager.
type Config struct {
	ProjectDir   string // Absolute path to the git repository
	BaseBranch   string // Branch to create sandboxes from (default: current branch)
	WorktreeDir  string // Directory under the project for sandboxes (default ".worktrees")
	BranchPrefix string // Prefix for generated branch names (default "swarm")
}
