// Package worktree tests worktree management behavior.
package worktree

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmtonkinson/worksync/internal/lock"
	"github.com/cmtonkinson/worksync/internal/protect"
	"github.com/cmtonkinson/worksync/internal/testrepos"
)

func TestWorktreePathStable(t *testing.T) {
	repoRoot := t.TempDir()
	manager, err := NewManager(repoRoot)
	require.NoError(t, err)

	path, err := manager.WorktreePath("0.1-login")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(repoRoot, "_worksync", "_local-state", "worktrees", "issue-0.1-login"), path)
	assert.Equal(t, "issue/0.1-login", BranchName("0.1-login"))

	_, err = manager.WorktreePath("../escape")
	assert.Error(t, err)
}

func TestEnsureCreatesThenReuses(t *testing.T) {
	ctx := context.Background()
	repo := testrepos.New(t)
	manager, err := NewManager(repo.Root)
	require.NoError(t, err)

	first, err := manager.Ensure(ctx, Spec{IssueID: "0.1-a", BaseBranch: "main"})
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, "issue/0.1-a", first.Branch)
	assert.Equal(t, "_worksync/_local-state/worktrees/issue-0.1-a", first.RelativePath)
	assert.Equal(t, "issue/0.1-a", strings.TrimSpace(repo.RunGitIn(t, first.Path, "rev-parse", "--abbrev-ref", "HEAD")))

	second, err := manager.Ensure(ctx, Spec{IssueID: "0.1-a", BaseBranch: "main"})
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Path, second.Path)

	_, err = manager.Ensure(ctx, Spec{IssueID: "0.1-b", BaseBranch: "nope"})
	assert.Error(t, err)
}

func TestEnsureRecreatesRemovedDirectory(t *testing.T) {
	ctx := context.Background()
	repo := testrepos.New(t)
	manager, err := NewManager(repo.Root)
	require.NoError(t, err)

	res, err := manager.Ensure(ctx, Spec{IssueID: "0.1-a", BaseBranch: "main"})
	require.NoError(t, err)
	tip := repo.CommitFile(t, res.Path, "work.txt", "work\n", "Work")
	require.NoError(t, os.RemoveAll(res.Path))

	again, err := manager.Ensure(ctx, Spec{IssueID: "0.1-a", BaseBranch: "main"})
	require.NoError(t, err)
	assert.False(t, again.Reused)
	assert.Equal(t, tip, strings.TrimSpace(repo.RunGitIn(t, again.Path, "rev-parse", "HEAD")))
}

func TestRemoveAndSweepRespectGuard(t *testing.T) {
	ctx := context.Background()
	repo := testrepos.New(t)
	manager, err := NewManager(repo.Root)
	require.NoError(t, err)

	held, err := manager.Ensure(ctx, Spec{IssueID: "0.1-held", BaseBranch: "main"})
	require.NoError(t, err)
	free, err := manager.Ensure(ctx, Spec{IssueID: "0.1-free", BaseBranch: "main"})
	require.NoError(t, err)

	store := lock.NewMemoryStore()
	locks, err := lock.NewManager(store, lock.Options{})
	require.NoError(t, err)
	_, err = locks.Acquire(ctx, "0.1-held", "s1", held.Path)
	require.NoError(t, err)
	guard := protect.NewGuard(store, protect.Options{
		MainCheckout: repo.Root,
		Getwd:        func() (string, error) { return repo.Root, nil },
	})

	err = manager.Remove(ctx, guard, held.Path)
	require.ErrorIs(t, err, protect.ErrProtected)
	assert.DirExists(t, held.Path)

	dry, err := manager.Sweep(ctx, guard, true)
	require.NoError(t, err)
	require.Len(t, dry.Removed, 1)
	assert.Equal(t, "0.1-free", dry.Removed[0].IssueID)
	require.Len(t, dry.Refused, 1)
	assert.Equal(t, "0.1-held", dry.Refused[0].Entry.IssueID)
	assert.DirExists(t, free.Path)

	report, err := manager.Sweep(ctx, guard, false)
	require.NoError(t, err)
	require.Len(t, report.Removed, 1)
	assert.NoDirExists(t, free.Path)
	assert.DirExists(t, held.Path)
	assert.NotContains(t, repo.RunGit(t, "worktree", "list", "--porcelain"), free.Path)

	entries, err := manager.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0.1-held", entries[0].IssueID)
}

func TestDeleteBranch(t *testing.T) {
	ctx := context.Background()
	repo := testrepos.New(t)
	manager, err := NewManager(repo.Root)
	require.NoError(t, err)

	res, err := manager.Ensure(ctx, Spec{IssueID: "0.1-a", BaseBranch: "main"})
	require.NoError(t, err)
	require.NoError(t, manager.removeWorktree(ctx, res.Path))
	require.NoError(t, manager.DeleteBranch(ctx, "0.1-a"))
	require.NoError(t, manager.DeleteBranch(ctx, "0.1-a"))
	assert.Empty(t, strings.TrimSpace(repo.RunGit(t, "branch", "--list", "issue/0.1-a")))
}
