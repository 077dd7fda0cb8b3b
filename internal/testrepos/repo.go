// Package testrepos builds throwaway git repositories for tests.
package testrepos

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TempRepo represents a temporary git repository that can be reused in tests.
type TempRepo struct {
	Root string
	// Remote is the bare repository registered as "origin", when present.
	Remote string
}

// New creates a temporary git repository on branch main with an initial
// commit and the worksync local-state directory ignored.
func New(tb testing.TB) *TempRepo {
	tb.Helper()
	root := tempDir(tb, "worksync-test-repo-*")
	repo := &TempRepo{Root: root}
	repo.initialize(tb)
	return repo
}

// NewWithRemote creates a repository plus a bare origin that already holds
// main.
func NewWithRemote(tb testing.TB) *TempRepo {
	tb.Helper()
	repo := New(tb)
	remote := tempDir(tb, "worksync-test-remote-*")
	if _, err := runGit(remote, "init", "--bare", "--initial-branch=main"); err != nil {
		tb.Fatalf("init bare remote: %v", err)
	}
	repo.Remote = remote
	repo.RunGit(tb, "remote", "add", "origin", remote)
	repo.RunGit(tb, "push", "-u", "origin", "main")
	return repo
}

// Clone makes a second working copy of the remote, configured for commits.
func (r *TempRepo) Clone(tb testing.TB) *TempRepo {
	tb.Helper()
	if r.Remote == "" {
		tb.Fatalf("clone requires a remote")
	}
	parent := tempDir(tb, "worksync-test-clone-*")
	dest := filepath.Join(parent, "clone")
	if out, err := runGit(parent, "clone", r.Remote, dest); err != nil {
		tb.Fatalf("clone remote: %v: %s", err, out)
	}
	clone := &TempRepo{Root: dest, Remote: r.Remote}
	clone.configureIdentity(tb)
	return clone
}

// RunGit executes git in the repository directory and fails the test if git returns an error.
func (r *TempRepo) RunGit(tb testing.TB, args ...string) string {
	tb.Helper()
	return r.RunGitIn(tb, r.Root, args...)
}

// RunGitIn executes git in dir and fails the test on error.
func (r *TempRepo) RunGitIn(tb testing.TB, dir string, args ...string) string {
	tb.Helper()
	output, err := runGit(dir, args...)
	if err != nil {
		tb.Fatalf("git %s failed: %v: %s", strings.Join(args, " "), err, output)
	}
	return output
}

// Head resolves ref to a commit id.
func (r *TempRepo) Head(tb testing.TB, ref string) string {
	tb.Helper()
	return strings.TrimSpace(r.RunGit(tb, "rev-parse", ref))
}

// CommitFile writes content to rel inside dir, commits it, and returns the
// new HEAD of dir.
func (r *TempRepo) CommitFile(tb testing.TB, dir, rel, content, message string) string {
	tb.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("create dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("write %s: %v", rel, err)
	}
	r.RunGitIn(tb, dir, "add", rel)
	r.RunGitIn(tb, dir, "commit", "-m", message)
	return strings.TrimSpace(r.RunGitIn(tb, dir, "rev-parse", "HEAD"))
}

// Cleanup removes the temporary repository root. Missing directories are treated as success.
func (r *TempRepo) Cleanup() error {
	if r == nil || r.Root == "" {
		return nil
	}
	if err := os.RemoveAll(r.Root); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp repo %s: %w", r.Root, err)
	}
	return nil
}

func (r *TempRepo) initialize(tb testing.TB) {
	tb.Helper()
	r.RunGit(tb, "init", "--initial-branch=main")
	r.configureIdentity(tb)

	files := map[string]string{
		"README.md":  "# Temp Worksync Repository\n",
		".gitignore": "_worksync/_local-state/\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(r.Root, name), []byte(content), 0o644); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
	}
	r.RunGit(tb, "add", "README.md", ".gitignore")
	r.RunGit(tb, "commit", "-m", "Initial commit")
}

func (r *TempRepo) configureIdentity(tb testing.TB) {
	tb.Helper()
	r.RunGit(tb, "config", "user.name", "Worksync Test")
	r.RunGit(tb, "config", "user.email", "test@example.com")
	r.RunGit(tb, "config", "commit.gpgsign", "false")
}

// tempDir creates a directory removed at test end, with symlinks resolved so
// paths compare equal to what git reports.
func tempDir(tb testing.TB, pattern string) string {
	tb.Helper()
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		tb.Fatalf("create temp directory: %v", err)
	}
	tb.Cleanup(func() {
		if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			tb.Fatalf("remove temp directory %s: %v", dir, err)
		}
	})
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		tb.Fatalf("resolve temp directory %s: %v", dir, err)
	}
	return resolved
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(output), nil
}
