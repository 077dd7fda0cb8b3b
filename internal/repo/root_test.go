// Tests for checkout discovery.
package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cmtonkinson/worksync/internal/testrepos"
)

// TestDiscoverRootFromNestedDir verifies nested paths resolve the repo root.
func TestDiscoverRootFromNestedDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, gitDirName), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", nested, err)
	}

	got, err := DiscoverRoot(nested)
	if err != nil {
		t.Fatalf("discover root: %v", err)
	}
	if want := canonicalPath(t, root); got != want {
		t.Fatalf("repo root = %s, want %s", got, want)
	}
}

// TestDiscoverRootMissingRepo verifies a clear error is returned outside a repo.
func TestDiscoverRootMissingRepo(t *testing.T) {
	_, err := DiscoverRoot(t.TempDir())
	if !errors.Is(err, ErrRepoNotFound) {
		t.Fatalf("expected ErrRepoNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "git init") {
		t.Fatalf("expected guidance to run git init, got %q", err.Error())
	}
}

// TestMainCheckoutFromLinkedWorktree verifies a linked worktree resolves to the main checkout.
func TestMainCheckoutFromLinkedWorktree(t *testing.T) {
	repo := testrepos.New(t)
	linked := filepath.Join(repo.Root, "_worksync", "_local-state", "worktrees", "issue-v1-a")
	repo.RunGit(t, "worktree", "add", "-b", "issue/v1-a", linked, "main")
	nested := filepath.Join(linked, "docs")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", nested, err)
	}

	ctx := context.Background()
	for _, start := range []string{repo.Root, linked, nested} {
		got, err := MainCheckout(ctx, start)
		if err != nil {
			t.Fatalf("main checkout from %s: %v", start, err)
		}
		if got != repo.Root {
			t.Fatalf("main checkout from %s = %s, want %s", start, got, repo.Root)
		}
	}

	enclosing, err := DiscoverRoot(nested)
	if err != nil {
		t.Fatalf("discover root: %v", err)
	}
	if enclosing != linked {
		t.Fatalf("enclosing root = %s, want %s", enclosing, linked)
	}
}

// TestNewLayout verifies state paths hang off the root.
func TestNewLayout(t *testing.T) {
	layout := NewLayout("/repo")
	checks := []struct {
		got  string
		want string
	}{
		{layout.StateDir, "/repo/_worksync"},
		{layout.IssuesDir, "/repo/_worksync/issues"},
		{layout.LocalState, "/repo/_worksync/_local-state"},
		{layout.LocksDir, "/repo/_worksync/_local-state/locks"},
		{layout.Worktrees, "/repo/_worksync/_local-state/worktrees"},
	}
	for _, check := range checks {
		if check.got != filepath.FromSlash(check.want) {
			t.Fatalf("layout path = %s, want %s", check.got, check.want)
		}
	}
}

// canonicalPath resolves symlinks to provide a stable comparison path.
func canonicalPath(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("eval symlinks %s: %v", path, err)
	}
	return resolved
}
