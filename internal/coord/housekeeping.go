package coord

import (
	"context"
	"errors"
	"os"

	"github.com/cmtonkinson/worksync/internal/protect"
	"github.com/cmtonkinson/worksync/internal/worktree"
)

// removeWorktree deletes an issue worktree through the guard. A refusal is
// reported, not returned as an error. A missing directory counts as removed.
func (c *Coordinator) removeWorktree(ctx context.Context, issueID, path string) (bool, *protect.ProtectedError, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil, nil
	}
	err := c.worktrees.Remove(ctx, c.guard, path)
	var refused *protect.ProtectedError
	switch {
	case err == nil:
		_ = c.audit.LogWorktreeDelete(issueID, c.session, path)
		return true, nil, nil
	case errors.As(err, &refused):
		c.recordRefusal(ctx, issueID, refused)
		return false, refused, nil
	default:
		return false, nil, err
	}
}

func (c *Coordinator) recordRefusal(ctx context.Context, issueID string, refused *protect.ProtectedError) {
	c.tel.RecordRefusal(ctx, refused.Reason)
	_ = c.audit.LogWorktreeDeleteRefused(issueID, c.session, refused.Target, refused.Protected, refused.Reason, refused.Cwd)
}

// Cleanup sweeps every issue worktree the guard allows. With dryRun nothing
// is deleted.
func (c *Coordinator) Cleanup(ctx context.Context, dryRun bool) (worktree.SweepReport, error) {
	var report worktree.SweepReport
	err := c.withSpan(ctx, "coord.cleanup", "", func(ctx context.Context) error {
		var err error
		report, err = c.worktrees.Sweep(ctx, c.guard, dryRun)
		if err != nil {
			return err
		}
		if dryRun {
			return nil
		}
		for _, removed := range report.Removed {
			_ = c.audit.LogWorktreeDelete(removed.IssueID, c.session, removed.Path)
		}
		for _, refusal := range report.Refused {
			c.recordRefusal(ctx, refusal.Entry.IssueID, refusal.Err)
		}
		return nil
	})
	return report, err
}

// Authorize reports whether path may be deleted right now.
func (c *Coordinator) Authorize(ctx context.Context, path string) error {
	return c.guard.Authorize(ctx, path)
}

// RemovePath deletes path when the guard allows it, for external cleanup hooks.
func (c *Coordinator) RemovePath(ctx context.Context, path string) error {
	err := c.guard.Remove(ctx, path, os.RemoveAll)
	var refused *protect.ProtectedError
	if errors.As(err, &refused) {
		c.recordRefusal(ctx, "-", refused)
	}
	return err
}
