package coord

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmtonkinson/worksync/internal/graph"
	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/lock"
	"github.com/cmtonkinson/worksync/internal/protect"
	"github.com/cmtonkinson/worksync/internal/resolver"
	"github.com/cmtonkinson/worksync/internal/worktree"
)

// ClaimResult describes a successful claim.
type ClaimResult struct {
	Issue    issue.Issue
	Outcome  lock.Outcome
	Lock     lock.Record
	Previous *lock.Record
	Worktree worktree.Result
	// StatusChanged is true when the claim moved the issue to in-progress.
	StatusChanged bool
}

// Claim locks an issue for the session, prepares its worktree, and marks it
// in-progress. An empty issueID claims whatever Next selects.
func (c *Coordinator) Claim(ctx context.Context, issueID string) (ClaimResult, error) {
	if err := c.requireSession(); err != nil {
		return ClaimResult{}, err
	}
	var result ClaimResult
	err := c.withSpan(ctx, "coord.claim", issueID, func(ctx context.Context) error {
		target, err := c.claimTarget(ctx, issueID)
		if err != nil {
			return err
		}
		result.Issue = target

		path, err := c.worktrees.WorktreePath(target.ID)
		if err != nil {
			return err
		}
		acquired, err := c.locks.Acquire(ctx, target.ID, c.session, path)
		if err != nil {
			if errors.Is(err, lock.ErrLocked) {
				c.tel.RecordAcquire(ctx, target.ID, string(lock.OutcomeLocked))
			}
			return err
		}
		c.tel.RecordAcquire(ctx, target.ID, string(acquired.Outcome))
		previous := ""
		if acquired.Previous != nil {
			previous = acquired.Previous.Session
		}
		_ = c.audit.LogAcquire(target.ID, c.session, string(acquired.Outcome), acquired.Record.Worktree, previous)
		result.Outcome = acquired.Outcome
		result.Lock = acquired.Record
		result.Previous = acquired.Previous

		tree, err := c.worktrees.Ensure(ctx, worktree.Spec{IssueID: target.ID, BaseBranch: c.cfg.BaseBranch})
		if err != nil {
			if acquired.Outcome == lock.OutcomeCreated {
				if releaseErr := c.locks.Release(ctx, target.ID, c.session); releaseErr == nil {
					_ = c.audit.LogRelease(target.ID, c.session)
				}
			}
			return fmt.Errorf("prepare worktree for %s: %w", target.ID, err)
		}
		if !tree.Reused {
			_ = c.audit.LogWorktreeCreate(target.ID, c.session, tree.Path, tree.Branch)
		}
		result.Worktree = tree

		if target.Status == issue.StatusOpen {
			updated, from, err := c.issues.SetStatus(ctx, target.ID, issue.StatusInProgress)
			if err != nil {
				return err
			}
			_ = c.audit.LogIssueStatus(target.ID, c.session, string(from), string(updated.Status))
			result.Issue = updated
			result.StatusChanged = true
		}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return result, nil
}

// claimTarget resolves and vets the issue a claim applies to.
func (c *Coordinator) claimTarget(ctx context.Context, issueID string) (issue.Issue, error) {
	if issueID == "" {
		out, err := c.Next(ctx)
		if err != nil {
			return issue.Issue{}, err
		}
		switch out.Kind {
		case resolver.KindFound:
			return *out.Issue, nil
		case resolver.KindAllClosed:
			return issue.Issue{}, fmt.Errorf("%w: all issues are closed", issue.ErrNotFound)
		default:
			return issue.Issue{}, out.Err()
		}
	}

	issues, err := c.issues.Scan(ctx)
	if err != nil {
		return issue.Issue{}, err
	}
	if err := graph.New(issue.DependencyMap(issues)).Validate(); err != nil {
		return issue.Issue{}, err
	}
	byID := issue.ByID(issues)
	target, ok := byID[issueID]
	if !ok {
		return issue.Issue{}, fmt.Errorf("%w: %s", issue.ErrNotFound, issueID)
	}
	switch target.Status {
	case issue.StatusClosed, issue.StatusBlocked:
		return issue.Issue{}, fmt.Errorf("%w: %s is %s and cannot be claimed", issue.ErrInvalidStatus, issueID, target.Status)
	}
	var waiting []string
	for _, dep := range target.DependsOn {
		if d, ok := byID[dep]; !ok || d.Status != issue.StatusClosed {
			waiting = append(waiting, dep)
		}
	}
	if len(waiting) > 0 {
		return issue.Issue{}, &resolver.BlockedError{Outcome: resolver.Outcome{
			Kind:    resolver.KindBlocked,
			Waiting: map[string][]string{issueID: waiting},
		}}
	}
	return target, nil
}

// ReleaseOptions control what happens alongside a release.
type ReleaseOptions struct {
	// Cleanup removes the issue worktree through the guard after releasing.
	Cleanup bool
	// Reopen returns an in-progress issue to open.
	Reopen bool
}

// ReleaseResult describes a release.
type ReleaseResult struct {
	Issue    string
	Removed  string
	Refused  *protect.ProtectedError
	Reopened bool
}

// Release drops the session's lock on issueID. Releasing a lock that does not
// exist succeeds.
func (c *Coordinator) Release(ctx context.Context, issueID string, opts ReleaseOptions) (ReleaseResult, error) {
	if err := c.requireSession(); err != nil {
		return ReleaseResult{}, err
	}
	result := ReleaseResult{Issue: issueID}
	err := c.withSpan(ctx, "coord.release", issueID, func(ctx context.Context) error {
		recorded, err := c.locks.Recover(ctx, issueID)
		if err != nil && !errors.Is(err, lock.ErrNotFound) {
			return err
		}
		if err := c.locks.Release(ctx, issueID, c.session); err != nil {
			return err
		}
		c.tel.RecordRelease(ctx, issueID)
		_ = c.audit.LogRelease(issueID, c.session)

		if opts.Reopen {
			iss, err := c.issues.Get(ctx, issueID)
			if err != nil {
				return err
			}
			if iss.Status == issue.StatusInProgress {
				if _, _, err := c.issues.SetStatus(ctx, issueID, issue.StatusOpen); err != nil {
					return err
				}
				_ = c.audit.LogIssueStatus(issueID, c.session, string(issue.StatusInProgress), string(issue.StatusOpen))
				result.Reopened = true
			}
		}

		if opts.Cleanup {
			path := recorded
			if path == "" {
				if path, err = c.worktrees.WorktreePath(issueID); err != nil {
					return err
				}
			}
			removed, refused, err := c.removeWorktree(ctx, issueID, path)
			if err != nil {
				return err
			}
			if removed {
				result.Removed = path
			}
			result.Refused = refused
		}
		return nil
	})
	if err != nil {
		return ReleaseResult{}, err
	}
	return result, nil
}

// Heartbeat refreshes the session's lock on issueID.
func (c *Coordinator) Heartbeat(ctx context.Context, issueID string) (lock.Record, error) {
	if err := c.requireSession(); err != nil {
		return lock.Record{}, err
	}
	rec, err := c.locks.Heartbeat(ctx, issueID, c.session)
	if err != nil {
		return lock.Record{}, err
	}
	_ = c.audit.LogHeartbeat(issueID, c.session)
	return rec, nil
}

// Check reports the lock state of issueID.
func (c *Coordinator) Check(ctx context.Context, issueID string) (lock.Status, error) {
	return c.locks.Check(ctx, issueID)
}

// requireOwner fails unless the session holds a live lock on issueID.
func (c *Coordinator) requireOwner(ctx context.Context, issueID string) (lock.Status, error) {
	if err := c.requireSession(); err != nil {
		return lock.Status{}, err
	}
	status, err := c.locks.Check(ctx, issueID)
	if err != nil {
		return lock.Status{}, err
	}
	if status.Session == "" {
		return lock.Status{}, fmt.Errorf("%w: %s", lock.ErrNotFound, issueID)
	}
	if status.Session != c.session {
		return lock.Status{}, &lock.OwnerError{Issue: issueID, Session: c.session, Holder: status.Session}
	}
	return status, nil
}
