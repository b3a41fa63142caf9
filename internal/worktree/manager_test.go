package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// setupTestRepo creates a temporary git repository with one commit on main.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	repoPath := t.TempDir()
	runGit(t, repoPath, "init")
	runGit(t, repoPath, "config", "user.name", "Test User")
	runGit(t, repoPath, "config", "user.email", "test@example.com")
	runGit(t, repoPath, "checkout", "-b", "main")

	if err := os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("# Test Repo\n"), 0o644); err != nil {
		t.Fatalf("failed to write initial file: %v", err)
	}
	runGit(t, repoPath, "add", ".")
	runGit(t, repoPath, "commit", "-m", "initial commit")

	return repoPath
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v (output: %s)", args, err, string(out))
	}
	return string(out)
}

func newTestManager(t *testing.T, repoPath string) *Manager {
	t.Helper()
	m, err := NewManager(Config{ProjectDir: repoPath, BaseBranch: "main"})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return m
}

func TestNewManager_DetectsBaseBranch(t *testing.T) {
	repoPath := setupTestRepo(t)

	m, err := NewManager(Config{ProjectDir: repoPath})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if m.BaseBranch() != "main" {
		t.Errorf("BaseBranch = %q, want main", m.BaseBranch())
	}
}

func TestCreate(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	info, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := os.Stat(info.Path); err != nil {
		t.Errorf("worktree directory missing: %v", err)
	}
	// Worktrees use a gitfile, not a .git directory
	if stat, err := os.Stat(filepath.Join(info.Path, ".git")); err != nil {
		t.Errorf(".git file missing: %v", err)
	} else if stat.IsDir() {
		t.Error(".git is a directory, expected gitfile")
	}

	out := runGit(t, repoPath, "branch", "--list", info.Branch)
	if !strings.Contains(out, info.Branch) {
		t.Errorf("branch %s not created", info.Branch)
	}
}

func TestCreate_ReplacesExistingSandbox(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	first, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	marker := filepath.Join(first.Path, "leftover.txt")
	if err := os.WriteFile(marker, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	second, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("re-Create failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(second.Path, "leftover.txt")); !os.IsNotExist(err) {
		t.Error("re-created sandbox kept stale file")
	}
}

func TestCommitIn_NothingToCommitIsSuccess(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	if _, err := m.Create("worker-1", "swarm/worker-1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.CommitIn("worker-1", "empty commit"); err != nil {
		t.Errorf("CommitIn with clean tree returned error: %v", err)
	}
}

func TestMerge_CleanMergeLandsOnBase(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	info, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(info.Path, "feature.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.CommitIn("worker-1", "add feature"); err != nil {
		t.Fatalf("CommitIn failed: %v", err)
	}

	merged, err := m.MergeSync("worker-1", true)
	if err != nil {
		t.Fatalf("MergeSync failed: %v", err)
	}
	if !merged {
		t.Fatal("clean merge reported conflict")
	}

	if _, err := os.Stat(filepath.Join(repoPath, "feature.go")); err != nil {
		t.Errorf("merged file missing from base checkout: %v", err)
	}
	// deleteAfter removes the sandbox and branch
	if _, err := os.Stat(info.Path); !os.IsNotExist(err) {
		t.Error("sandbox not removed after merge")
	}
}

func TestMerge_ConflictAbortsAndLeavesBaseUntouched(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	info, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(info.Path, "README.md"), []byte("# Worker Version\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.CommitIn("worker-1", "worker edit"); err != nil {
		t.Fatalf("CommitIn failed: %v", err)
	}

	// Conflicting edit on the base branch
	if err := os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("# Base Version\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, repoPath, "commit", "-am", "base edit")

	merged, err := m.MergeSync("worker-1", false)
	if err != nil {
		t.Fatalf("MergeSync returned error for conflict: %v", err)
	}
	if merged {
		t.Fatal("conflicting merge reported success")
	}

	data, err := os.ReadFile(filepath.Join(repoPath, "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# Base Version\n" {
		t.Errorf("base file modified by aborted merge: %q", data)
	}
	// No merge state left behind
	if _, err := os.Stat(filepath.Join(repoPath, ".git", "MERGE_HEAD")); !os.IsNotExist(err) {
		t.Error("aborted merge left MERGE_HEAD behind")
	}
}

func TestStaging_SurvivesManagerRestart(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	staging, err := m.GetOrCreateStaging("checkout-flow")
	if err != nil {
		t.Fatalf("GetOrCreateStaging failed: %v", err)
	}

	// A fresh manager instance recovers the same staging sandbox from disk.
	m2 := newTestManager(t, repoPath)
	staging2, err := m2.GetOrCreateStaging("checkout-flow")
	if err != nil {
		t.Fatalf("GetOrCreateStaging after restart failed: %v", err)
	}
	if staging2.Path != staging.Path {
		t.Errorf("staging path changed across restart: %q vs %q", staging2.Path, staging.Path)
	}
	if staging2.Branch != staging.Branch {
		t.Errorf("staging branch changed across restart: %q vs %q", staging2.Branch, staging.Branch)
	}
}

func TestMergeBranchToStaging(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	if _, err := m.GetOrCreateStaging("checkout-flow"); err != nil {
		t.Fatalf("GetOrCreateStaging failed: %v", err)
	}
	info, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(info.Path, "cart.go"), []byte("package cart\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.CommitIn("worker-1", "add cart"); err != nil {
		t.Fatalf("CommitIn failed: %v", err)
	}

	merged, err := m.MergeBranchToStaging(info.Branch)
	if err != nil {
		t.Fatalf("MergeBranchToStaging failed: %v", err)
	}
	if !merged {
		t.Fatal("clean staging merge reported conflict")
	}

	stagingPath := filepath.Join(m.Root(), StagingName)
	if _, err := os.Stat(filepath.Join(stagingPath, "cart.go")); err != nil {
		t.Errorf("merged file missing from staging: %v", err)
	}
	// Base branch must not have the file yet
	if _, err := os.Stat(filepath.Join(repoPath, "cart.go")); !os.IsNotExist(err) {
		t.Error("staging merge leaked into base checkout")
	}
}

func TestCleanupWorkersOnly_PreservesStaging(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	staging, err := m.GetOrCreateStaging("checkout-flow")
	if err != nil {
		t.Fatalf("GetOrCreateStaging failed: %v", err)
	}
	w1, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w2, err := m.Create("worker-2", "swarm/worker-2")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	m.CleanupWorkersOnly()

	for _, path := range []string{w1.Path, w2.Path} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("worker sandbox %s survived cleanup", path)
		}
	}
	if _, err := os.Stat(staging.Path); err != nil {
		t.Errorf("staging removed by worker cleanup: %v", err)
	}
}

func TestSetup_ReapsUnregisteredDirectories(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	// A directory under the root that git does not know about
	stale := filepath.Join(m.Root(), "crashed-worker")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	// Staging-named directories are preserved even when unregistered
	keep := filepath.Join(m.Root(), StagingName)
	if err := os.MkdirAll(keep, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := m.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("unregistered directory survived setup")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("staging directory reaped by setup")
	}
}

func TestChangeSummaryAndChangedFiles(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	info, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(info.Path, "new.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(info.Path, "README.md"), []byte("# Changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.CommitIn("worker-1", "changes"); err != nil {
		t.Fatalf("CommitIn failed: %v", err)
	}

	summary, err := m.ChangeSummary("worker-1")
	if err != nil {
		t.Fatalf("ChangeSummary failed: %v", err)
	}
	if summary.NewFiles != 1 || summary.ModifiedFiles != 1 || summary.DeletedFiles != 0 {
		t.Errorf("summary = %+v, want 1 new, 1 modified, 0 deleted", summary)
	}

	changes, err := m.ChangedFiles("worker-1")
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	got := make(map[string]string, len(changes))
	for _, c := range changes {
		got[c.Path] = c.Status
	}
	if got["new.go"] != "A" {
		t.Errorf("new.go status = %q, want A", got["new.go"])
	}
	if got["README.md"] != "M" {
		t.Errorf("README.md status = %q, want M", got["README.md"])
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	repoPath := setupTestRepo(t)
	m := newTestManager(t, repoPath)

	info, err := m.Create("worker-1", "swarm/worker-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dirty, err := m.HasUncommittedChanges("worker-1")
	if err != nil {
		t.Fatalf("HasUncommittedChanges failed: %v", err)
	}
	if dirty {
		t.Error("fresh sandbox reported dirty")
	}

	if err := os.WriteFile(filepath.Join(info.Path, "wip.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dirty, err = m.HasUncommittedChanges("worker-1")
	if err != nil {
		t.Fatalf("HasUncommittedChanges failed: %v", err)
	}
	if !dirty {
		t.Error("sandbox with new file reported clean")
	}
}
