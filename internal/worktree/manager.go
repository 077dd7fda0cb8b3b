// Package worktree manages the per-issue git worktrees sessions work in.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cmtonkinson/worksync/internal/gitx"
	"github.com/cmtonkinson/worksync/internal/protect"
)

const (
	// worktreesDirName is the repo-relative directory holding issue worktrees.
	worktreesDirName = "_worksync/_local-state/worktrees"
	// localStateDirMode defines permissions for the worktree directory.
	localStateDirMode = 0o755
	// issueDirPrefix prefixes per-issue worktree directories.
	issueDirPrefix = "issue-"
	// branchPrefix prefixes per-issue branches.
	branchPrefix = "issue/"
)

// Guard authorizes and performs deletions. *protect.Guard satisfies it.
type Guard interface {
	Authorize(ctx context.Context, target string) error
	Remove(ctx context.Context, target string, remove func(string) error) error
}

// Manager coordinates creation, reuse, and removal of issue worktrees.
type Manager struct {
	repoRoot     string
	worktreesDir string
}

// Spec defines the inputs needed to locate or create an issue worktree.
type Spec struct {
	IssueID    string
	BaseBranch string
}

// Result captures the resolved worktree location and whether it was reused.
type Result struct {
	Path         string
	RelativePath string
	Branch       string
	Reused       bool
}

// NewManager constructs a Manager rooted at the main checkout.
func NewManager(repoRoot string) (Manager, error) {
	if strings.TrimSpace(repoRoot) == "" {
		return Manager{}, errors.New("repo root is required")
	}
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return Manager{}, fmt.Errorf("resolve absolute repo root %s: %w", repoRoot, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return Manager{}, fmt.Errorf("stat repo root %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return Manager{}, fmt.Errorf("repo root %s is not a directory", absRoot)
	}
	return Manager{repoRoot: absRoot, worktreesDir: filepath.Join(absRoot, filepath.FromSlash(worktreesDirName))}, nil
}

// Dir returns the directory holding every issue worktree.
func (manager Manager) Dir() string {
	return manager.worktreesDir
}

// BranchName returns the branch an issue is worked on.
func BranchName(issueID string) string {
	return branchPrefix + issueID
}

// WorktreePath returns the deterministic worktree path for an issue.
func (manager Manager) WorktreePath(issueID string) (string, error) {
	if strings.TrimSpace(manager.worktreesDir) == "" {
		return "", errors.New("worktree manager is not initialized")
	}
	if err := validateIssueID(issueID); err != nil {
		return "", err
	}
	return filepath.Join(manager.worktreesDir, issueDirPrefix+issueID), nil
}

// Ensure returns the issue worktree, creating it and its branch when needed.
func (manager Manager) Ensure(ctx context.Context, spec Spec) (Result, error) {
	if strings.TrimSpace(manager.repoRoot) == "" {
		return Result{}, errors.New("worktree manager is not initialized")
	}
	target, err := manager.WorktreePath(spec.IssueID)
	if err != nil {
		return Result{}, err
	}
	branch := BranchName(spec.IssueID)
	relative, err := repoRelativePath(manager.repoRoot, target)
	if err != nil {
		return Result{}, err
	}
	result := Result{Path: target, RelativePath: relative, Branch: branch}

	if exists, err := pathExists(target); err != nil {
		return Result{}, err
	} else if exists {
		if err := ensureIsWorktree(ctx, target, branch); err != nil {
			return Result{}, err
		}
		result.Reused = true
		return result, nil
	}

	if err := os.MkdirAll(manager.worktreesDir, localStateDirMode); err != nil {
		return Result{}, fmt.Errorf("create worktree directory %s: %w", manager.worktreesDir, err)
	}
	// A directory removed by hand leaves a registration behind that blocks add.
	if _, err := gitx.Run(ctx, manager.repoRoot, "worktree", "prune"); err != nil {
		return Result{}, fmt.Errorf("prune worktrees: %w", err)
	}
	if err := manager.addWorktree(ctx, target, branch, spec.BaseBranch); err != nil {
		return Result{}, err
	}
	return result, nil
}

// addWorktree creates the git worktree, branching from base when needed.
func (manager Manager) addWorktree(ctx context.Context, path, branch, base string) error {
	branchExists, err := gitx.BranchExists(ctx, manager.repoRoot, branch)
	if err != nil {
		return err
	}
	if branchExists {
		if _, err := gitx.Run(ctx, manager.repoRoot, "worktree", "add", path, branch); err != nil {
			return fmt.Errorf("add worktree %s: %w", path, err)
		}
		return nil
	}
	if strings.TrimSpace(base) == "" {
		return fmt.Errorf("branch %q does not exist; base branch is required", branch)
	}
	baseExists, err := gitx.BranchExists(ctx, manager.repoRoot, base)
	if err != nil {
		return err
	}
	if !baseExists {
		return fmt.Errorf("base branch %q does not exist", base)
	}
	if _, err := gitx.Run(ctx, manager.repoRoot, "worktree", "add", "-b", branch, path, base); err != nil {
		return fmt.Errorf("add worktree %s: %w", path, err)
	}
	return nil
}

// Remove deletes an issue worktree through the guard.
func (manager Manager) Remove(ctx context.Context, guard Guard, path string) error {
	if guard == nil {
		return errors.New("protection guard is required")
	}
	return guard.Remove(ctx, path, func(target string) error {
		return manager.removeWorktree(ctx, target)
	})
}

func (manager Manager) removeWorktree(ctx context.Context, path string) error {
	if _, err := gitx.Run(ctx, manager.repoRoot, "worktree", "remove", "--force", path); err != nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("remove worktree %s: %w", path, rmErr)
		}
	}
	if _, err := gitx.Run(ctx, manager.repoRoot, "worktree", "prune"); err != nil {
		return fmt.Errorf("prune worktrees: %w", err)
	}
	return nil
}

// DeleteBranch removes the issue branch once it is merged into base.
func (manager Manager) DeleteBranch(ctx context.Context, issueID string) error {
	branch := BranchName(issueID)
	exists, err := gitx.BranchExists(ctx, manager.repoRoot, branch)
	if err != nil || !exists {
		return err
	}
	if _, err := gitx.Run(ctx, manager.repoRoot, "branch", "-d", branch); err != nil {
		return fmt.Errorf("delete branch %s: %w", branch, err)
	}
	return nil
}

// Entry is one issue worktree directory on disk.
type Entry struct {
	IssueID string
	Path    string
}

// List returns the issue worktree directories, sorted by issue id.
func (manager Manager) List() ([]Entry, error) {
	entries, err := os.ReadDir(manager.worktreesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read worktree directory %s: %w", manager.worktreesDir, err)
	}
	var out []Entry
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, issueDirPrefix) {
			continue
		}
		out = append(out, Entry{
			IssueID: strings.TrimPrefix(name, issueDirPrefix),
			Path:    filepath.Join(manager.worktreesDir, name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueID < out[j].IssueID })
	return out, nil
}

// SweepReport summarizes a housekeeping pass.
type SweepReport struct {
	Removed []Entry
	Refused []Refusal
}

// Refusal is a worktree the guard kept.
type Refusal struct {
	Entry Entry
	Err   *protect.ProtectedError
}

// Sweep removes every issue worktree the guard allows. With dryRun it only
// reports what would be removed.
func (manager Manager) Sweep(ctx context.Context, guard Guard, dryRun bool) (SweepReport, error) {
	if guard == nil {
		return SweepReport{}, errors.New("protection guard is required")
	}
	entries, err := manager.List()
	if err != nil {
		return SweepReport{}, err
	}
	var report SweepReport
	for _, entry := range entries {
		if dryRun {
			err = guard.Authorize(ctx, entry.Path)
		} else {
			err = manager.Remove(ctx, guard, entry.Path)
		}
		var refused *protect.ProtectedError
		switch {
		case err == nil:
			report.Removed = append(report.Removed, entry)
		case errors.As(err, &refused):
			report.Refused = append(report.Refused, Refusal{Entry: entry, Err: refused})
		default:
			return report, err
		}
	}
	return report, nil
}

// ensureIsWorktree validates the path is a git worktree on the expected branch.
func ensureIsWorktree(ctx context.Context, path, branch string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat worktree path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("worktree path %s is not a directory", path)
	}
	output, err := gitx.Run(ctx, path, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return fmt.Errorf("verify worktree %s: %w", path, err)
	}
	if strings.TrimSpace(output) != "true" {
		return fmt.Errorf("path %s is not a git worktree", path)
	}
	current, err := gitx.Run(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return fmt.Errorf("resolve worktree branch %s: %w", path, err)
	}
	if strings.TrimSpace(current) != branch {
		return fmt.Errorf("worktree at %s is on branch %q, expected %q", path, strings.TrimSpace(current), branch)
	}
	return nil
}

// pathExists reports whether the path exists on disk.
func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat path %s: %w", path, err)
}

// validateIssueID ensures the issue id is safe for filesystem use.
func validateIssueID(issueID string) error {
	if strings.TrimSpace(issueID) == "" {
		return errors.New("issue id is required")
	}
	if strings.ContainsAny(issueID, `/\`) {
		return fmt.Errorf("issue id %q must not contain path separators", issueID)
	}
	if strings.Contains(issueID, "..") {
		return fmt.Errorf("issue id %q must not contain '..'", issueID)
	}
	return nil
}

// repoRelativePath returns a repo-relative path using forward slashes.
func repoRelativePath(root string, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("resolve relative path for %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}
