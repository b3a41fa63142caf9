package worktree

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Manager gives each concurrent worker, plus one persistent staging build,
// an isolated filesystem view backed by its own branch, and serializes all
// merges into shared checkouts.
//
// mergeMu guards every merge because merges mutate a shared checkout (the
// main repo or the staging sandbox). It is independent of any scheduler
// lock: at most one merge runs system-wide, but claims stay non-blocking.
type Manager struct {
	cfg     Config
	mergeMu sync.Mutex

	mu     sync.Mutex
	active map[string]*Info
}

// NewManager creates a worktree manager for the repository at
// cfg.ProjectDir. If no base branch is configured, the repository's current
// branch is used.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.WorktreeDir == "" {
		cfg.WorktreeDir = ".worktrees"
	}
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = "swarm"
	}

	m := &Manager{cfg: cfg, active: make(map[string]*Info)}

	if cfg.BaseBranch == "" {
		branch, err := m.git(cfg.ProjectDir, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return nil, fmt.Errorf("detecting current branch: %w", err)
		}
		m.cfg.BaseBranch = strings.TrimSpace(branch)
	}

	return m, nil
}

// BaseBranch returns the branch sandboxes are created from.
func (m *Manager) BaseBranch() string { return m.cfg.BaseBranch }

// Root returns the directory all sandboxes live under.
func (m *Manager) Root() string {
	return filepath.Join(m.cfg.ProjectDir, m.cfg.WorktreeDir)
}

// git runs a git command and returns its combined output. Errors include
// the output, following the convention that git diagnostics matter more
// than exit codes.
func (m *Manager) git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w (output: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Setup ensures the sandbox root exists and reaps crash leftovers: any
// directory under it that git no longer registers as a worktree is removed,
// except the staging sandbox, which is deliberately preserved across runs.
// Stale registrations are pruned. Reaping is best effort and never blocks
// forward progress.
func (m *Manager) Setup() error {
	root := m.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("creating worktree root: %w", err)
	}

	registered := make(map[string]bool)
	if out, err := m.git(m.cfg.ProjectDir, "worktree", "list", "--porcelain"); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if strings.HasPrefix(line, "worktree ") {
				registered[strings.TrimPrefix(line, "worktree ")] = true
			}
		}
	} else {
		log.Printf("WARNING: failed to list worktrees during setup: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading worktree root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == StagingName {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if !registered[path] {
			log.Printf("Removing stale worktree directory: %s", entry.Name())
			if err := os.RemoveAll(path); err != nil {
				log.Printf("WARNING: failed to remove %s: %v", path, err)
			}
		}
	}

	if _, err := m.git(m.cfg.ProjectDir, "worktree", "prune"); err != nil {
		log.Printf("WARNING: failed to prune worktrees: %v", err)
	}
	return nil
}

// Create materializes a new sandbox at a deterministic path on a fresh
// branch off the base branch. An existing sandbox of the same name is
// force-removed first: creation is destructive and idempotent by
// replacement, never additive. Underlying git failures are fatal, since a
// missing sandbox cannot be used.
func (m *Manager) Create(name, branchName string) (*Info, error) {
	if branchName == "" {
		branchName = fmt.Sprintf("%s/%s", m.cfg.BranchPrefix, name)
	}
	path := filepath.Join(m.Root(), name)

	// Replace any leftover from a crashed previous run.
	if _, err := os.Stat(path); err == nil {
		if _, err := m.git(m.cfg.ProjectDir, "worktree", "remove", "--force", path); err != nil {
			// Unregistered directory: fall back to plain removal.
			os.RemoveAll(path)
		}
	}
	// Delete a branch left over from a previous attempt. Ignored if absent.
	m.git(m.cfg.ProjectDir, "branch", "-D", branchName)

	if _, err := m.git(m.cfg.ProjectDir, "worktree", "add", "-b", branchName, path, m.cfg.BaseBranch); err != nil {
		return nil, fmt.Errorf("creating worktree %q: %w", name, err)
	}

	info := &Info{
		Path:       path,
		Branch:     branchName,
		BaseBranch: m.cfg.BaseBranch,
		IsActive:   true,
	}
	m.mu.Lock()
	m.active[name] = info
	m.mu.Unlock()

	return info, nil
}

// GetOrCreateStaging returns the single persistent staging sandbox,
// creating it on a spec-derived branch if absent. When the sandbox already
// exists on disk, its branch is detected from the sandbox itself rather
// than in-memory state, which makes staging recoverable across restarts.
func (m *Manager) GetOrCreateStaging(specName string) (*Info, error) {
	path := filepath.Join(m.Root(), StagingName)

	if _, err := os.Stat(path); err == nil {
		if out, err := m.git(path, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
			info := &Info{
				Path:       path,
				Branch:     strings.TrimSpace(out),
				BaseBranch: m.cfg.BaseBranch,
				IsActive:   true,
			}
			m.mu.Lock()
			m.active[StagingName] = info
			m.mu.Unlock()
			return info, nil
		}
		// Directory exists but is not a usable worktree: rebuild it.
	}

	return m.Create(StagingName, fmt.Sprintf("%s/%s", m.cfg.BranchPrefix, specName))
}

// StagingExists reports whether a staging sandbox is present on disk.
func (m *Manager) StagingExists() bool {
	_, err := os.Stat(filepath.Join(m.Root(), StagingName))
	return err == nil
}

// StagingInfo loads the staging sandbox's details from disk, or nil if no
// usable staging sandbox exists.
func (m *Manager) StagingInfo() *Info {
	path := filepath.Join(m.Root(), StagingName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	out, err := m.git(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil
	}
	info := &Info{
		Path:       path,
		Branch:     strings.TrimSpace(out),
		BaseBranch: m.cfg.BaseBranch,
		IsActive:   true,
	}
	m.mu.Lock()
	m.active[StagingName] = info
	m.mu.Unlock()
	return info
}

// Get returns the tracked info for a sandbox, resolving staging from disk
// if it is not tracked in memory.
func (m *Manager) Get(name string) *Info {
	m.mu.Lock()
	info := m.active[name]
	m.mu.Unlock()
	if info == nil && name == StagingName {
		return m.StagingInfo()
	}
	return info
}

// CommitIn stages and commits all pending changes inside the named sandbox.
// "Nothing to commit" is success, not failure.
func (m *Manager) CommitIn(name, message string) error {
	info := m.Get(name)
	if info == nil {
		return fmt.Errorf("worktree %q not found", name)
	}

	if _, err := m.git(info.Path, "add", "."); err != nil {
		return fmt.Errorf("staging changes in %q: %w", name, err)
	}

	out, err := m.git(info.Path, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") {
			return nil
		}
		return fmt.Errorf("committing in %q: %w", name, err)
	}
	return nil
}

// CommitInStaging commits all pending changes in the staging sandbox.
func (m *Manager) CommitInStaging(message string) error {
	return m.CommitIn(StagingName, message)
}

// Merge merges the named sandbox's branch into the base branch of the main
// checkout. At most one merge runs at a time system-wide. A conflict aborts
// the merge, leaving the base branch untouched, and returns false. Only
// structural failures (missing sandbox, base checkout failing) return an
// error.
func (m *Manager) Merge(ctx context.Context, name string, deleteAfter bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()
	return m.doMerge(name, deleteAfter)
}

// MergeSync is the synchronous twin of Merge for non-context callers.
func (m *Manager) MergeSync(name string, deleteAfter bool) (bool, error) {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()
	return m.doMerge(name, deleteAfter)
}

// MergeStaging merges the staging sandbox into the base branch.
func (m *Manager) MergeStaging(deleteAfter bool) (bool, error) {
	return m.MergeSync(StagingName, deleteAfter)
}

func (m *Manager) doMerge(name string, deleteAfter bool) (bool, error) {
	info := m.Get(name)
	if info == nil {
		return false, fmt.Errorf("worktree %q not found", name)
	}

	if _, err := m.git(m.cfg.ProjectDir, "checkout", m.cfg.BaseBranch); err != nil {
		return false, fmt.Errorf("checking out base branch %q: %w", m.cfg.BaseBranch, err)
	}

	msg := fmt.Sprintf("swarm: merge %s", info.Branch)
	if _, err := m.git(m.cfg.ProjectDir, "merge", "--no-ff", info.Branch, "-m", msg); err != nil {
		// Conflicted merge must never be left half-applied.
		if _, abortErr := m.git(m.cfg.ProjectDir, "merge", "--abort"); abortErr != nil {
			log.Printf("WARNING: failed to abort conflicted merge of %q: %v", info.Branch, abortErr)
		}
		return false, nil
	}

	if deleteAfter {
		m.Remove(name, true)
	}
	return true, nil
}

// MergeBranchToStaging merges a worker's branch directly into the staging
// sandbox, which is the integration point for parallel workers. Same
// conflict-abort discipline as Merge, scoped to the staging checkout.
func (m *Manager) MergeBranchToStaging(branchName string) (bool, error) {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	info := m.Get(StagingName)
	if info == nil {
		return false, fmt.Errorf("no staging worktree exists")
	}

	msg := fmt.Sprintf("swarm: merge %s", branchName)
	if _, err := m.git(info.Path, "merge", "--no-ff", branchName, "-m", msg); err != nil {
		if _, abortErr := m.git(info.Path, "merge", "--abort"); abortErr != nil {
			log.Printf("WARNING: failed to abort conflicted staging merge of %q: %v", branchName, abortErr)
		}
		return false, nil
	}
	return true, nil
}

// Remove tears down a sandbox, optionally deleting its branch. Removal is
// best effort: failures are logged and swallowed, cleanup must never block
// forward progress.
func (m *Manager) Remove(name string, deleteBranch bool) {
	info := m.Get(name)
	path := filepath.Join(m.Root(), name)
	if info != nil {
		path = info.Path
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := m.git(m.cfg.ProjectDir, "worktree", "remove", "--force", path); err != nil {
			log.Printf("WARNING: could not remove worktree %q: %v", name, err)
			os.RemoveAll(path)
		}
	}

	if deleteBranch && info != nil {
		if _, err := m.git(m.cfg.ProjectDir, "branch", "-D", info.Branch); err != nil {
			log.Printf("WARNING: could not delete branch %q: %v", info.Branch, err)
		}
	}

	m.mu.Lock()
	delete(m.active, name)
	m.mu.Unlock()

	m.git(m.cfg.ProjectDir, "worktree", "prune")
}

// RemoveStaging tears down the staging sandbox.
func (m *Manager) RemoveStaging(deleteBranch bool) {
	m.Remove(StagingName, deleteBranch)
}

// CleanupAll removes every tracked sandbox, staging included.
func (m *Manager) CleanupAll() {
	for _, name := range m.trackedNames() {
		m.Remove(name, true)
	}
	m.git(m.cfg.ProjectDir, "worktree", "prune")
}

// CleanupWorkersOnly removes every tracked sandbox except staging, which
// must survive transient worker failures during long-running builds.
func (m *Manager) CleanupWorkersOnly() {
	for _, name := range m.trackedNames() {
		if name != StagingName {
			m.Remove(name, true)
		}
	}
	m.git(m.cfg.ProjectDir, "worktree", "prune")
}

func (m *Manager) trackedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.active))
	for name := range m.active {
		names = append(names, name)
	}
	return names
}

// HasUncommittedChanges reports whether the named sandbox has pending
// changes in its working directory.
func (m *Manager) HasUncommittedChanges(name string) (bool, error) {
	info := m.Get(name)
	if info == nil {
		return false, fmt.Errorf("worktree %q not found", name)
	}
	out, err := m.git(info.Path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// ChangeSummary diffs the sandbox's branch against its base branch and
// counts added, modified, and deleted paths.
func (m *Manager) ChangeSummary(name string) (Summary, error) {
	changes, err := m.ChangedFiles(name)
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	for _, c := range changes {
		switch {
		case strings.HasPrefix(c.Status, "A"):
			s.NewFiles++
		case strings.HasPrefix(c.Status, "M"):
			s.ModifiedFiles++
		case strings.HasPrefix(c.Status, "D"):
			s.DeletedFiles++
		}
	}
	return s, nil
}

// ChangedFiles lists each path changed on the sandbox's branch relative to
// its base branch with its status letter.
func (m *Manager) ChangedFiles(name string) ([]FileChange, error) {
	info := m.Get(name)
	if info == nil {
		return nil, fmt.Errorf("worktree %q not found", name)
	}

	out, err := m.git(m.cfg.ProjectDir, "diff", "--name-status",
		fmt.Sprintf("%s...%s", info.BaseBranch, info.Branch))
	if err != nil {
		return nil, err
	}

	var files []FileChange
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) == 2 {
			files = append(files, FileChange{Status: parts[0], Path: parts[1]})
		}
	}
	return files, nil
}
