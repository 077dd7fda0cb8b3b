package coord

import (
	"context"
	"time"

	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/merge"
	"github.com/cmtonkinson/worksync/internal/result"
	"github.com/cmtonkinson/worksync/internal/worktree"
)

// IntegrateOptions control integration side effects.
type IntegrateOptions struct {
	// Local skips fetch, remote sync, and push.
	Local bool
	// Close marks the issue closed after a successful integration.
	Close bool
	// Finish releases the lock, removes the worktree, and deletes the merged
	// issue branch. It implies Close.
	Finish bool
}

// IntegrateResult describes a completed integration.
type IntegrateResult struct {
	Issue   string
	Merge   merge.Result
	Closed  bool
	Release *ReleaseResult
	// BranchDeleted is set when Finish removed the issue branch.
	BranchDeleted bool
}

// Integrate fast-forwards the base branch to the session's issue branch.
// The session must hold the issue lock.
func (c *Coordinator) Integrate(ctx context.Context, issueID string, opts IntegrateOptions) (IntegrateResult, error) {
	out := IntegrateResult{Issue: issueID}
	err := c.withSpan(ctx, "coord.integrate", issueID, func(ctx context.Context) error {
		if _, err := c.requireOwner(ctx, issueID); err != nil {
			return err
		}
		req := merge.Request{
			RepoRoot:    c.layout.Root,
			IssueBranch: worktree.BranchName(issueID),
			BaseBranch:  c.cfg.BaseBranch,
			Remote:      c.cfg.Remote,
			Push:        c.cfg.Push,
		}
		if opts.Local {
			req.Remote = ""
			req.Push = false
		}

		started := time.Now()
		merged, err := c.merger.Integrate(ctx, req)
		kind := result.Classify(err)
		if kind == "" {
			kind = "ok"
		}
		c.tel.RecordIntegrate(ctx, string(kind), time.Since(started))
		if err != nil {
			_ = c.audit.LogMergeRejected(issueID, c.session, req.BaseBranch, string(kind), err.Error())
			return err
		}
		_ = c.audit.LogIntegrate(issueID, c.session, req.BaseBranch, merged.PreviousCommit, merged.FinalCommit, merged.FastForwarded)
		out.Merge = merged

		if opts.Close || opts.Finish {
			updated, from, err := c.issues.SetStatus(ctx, issueID, issue.StatusClosed)
			if err != nil {
				return err
			}
			if from != updated.Status {
				_ = c.audit.LogIssueStatus(issueID, c.session, string(from), string(updated.Status))
			}
			out.Closed = true
		}
		if opts.Finish {
			released, err := c.Release(ctx, issueID, ReleaseOptions{Cleanup: true})
			if err != nil {
				return err
			}
			out.Release = &released
			if released.Refused == nil {
				if err := c.worktrees.DeleteBranch(ctx, issueID); err != nil {
					return err
				}
				out.BranchDeleted = true
			}
		}
		return nil
	})
	if err != nil {
		return IntegrateResult{}, err
	}
	return out, nil
}
