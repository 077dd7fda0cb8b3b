// Package merge integrates finished issue branches into the shared base
// branch by fast-forward only.
package merge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cmtonkinson/worksync/internal/gitx"
	"github.com/cmtonkinson/worksync/internal/retry"
)

// StateDirPrefix is the repo-relative tree whose changes never count as dirty.
const StateDirPrefix = "_worksync/"

// Request names what to integrate. An empty Remote skips fetch and sync.
type Request struct {
	RepoRoot    string
	IssueBranch string
	BaseBranch  string
	Remote      string
	Push        bool
}

// Result describes the base branch after integration.
type Result struct {
	FinalCommit    string
	PreviousCommit string
	FastForwarded  bool
	Pushed         bool
	// Checkout is the worktree holding the base branch, empty when the ref
	// was moved without a checkout.
	Checkout string
}

// Options tune a Coordinator.
type Options struct {
	Attempts int
	Delay    time.Duration
	// OnRetry observes lock-contention retries.
	OnRetry func(attempt int, err error)
}

// Coordinator runs integrations.
type Coordinator struct {
	attempts int
	delay    time.Duration
	onRetry  func(int, error)
}

// NewCoordinator builds a Coordinator with retry defaults applied.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Attempts <= 0 {
		opts.Attempts = retry.DefaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = retry.DefaultDelay
	}
	return &Coordinator{attempts: opts.Attempts, delay: opts.Delay, onRetry: opts.OnRetry}
}

// Integrate fast-forwards the base branch to the issue branch tip after
// syncing it with the remote.
func (c *Coordinator) Integrate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.RepoRoot) == "" {
		return Result{}, errors.New("repo root is required")
	}
	if strings.TrimSpace(req.IssueBranch) == "" {
		return Result{}, errors.New("issue branch is required")
	}
	if strings.TrimSpace(req.BaseBranch) == "" {
		return Result{}, errors.New("base branch is required")
	}
	baseRef := "refs/heads/" + req.BaseBranch

	// Step 0: locate the base checkout and refuse to touch a dirty one.
	worktrees, err := gitx.ListWorktrees(ctx, req.RepoRoot)
	if err != nil {
		return Result{}, fmt.Errorf("list worktrees: %w", err)
	}
	checkout, checkedOut := gitx.FindBranchCheckout(worktrees, req.BaseBranch)
	if checkedOut {
		dirty, err := gitx.DirtyPaths(ctx, checkout.Path, StateDirPrefix)
		if err != nil {
			return Result{}, err
		}
		if len(dirty) > 0 {
			return Result{}, &DirtyError{Checkout: checkout.Path, Files: dirty}
		}
	}
	if exists, err := gitx.BranchExists(ctx, req.RepoRoot, req.BaseBranch); err != nil {
		return Result{}, err
	} else if !exists {
		return Result{}, fmt.Errorf("base branch %q does not exist", req.BaseBranch)
	}
	if exists, err := gitx.RefExists(ctx, req.RepoRoot, "refs/heads/"+req.IssueBranch); err != nil {
		return Result{}, err
	} else if !exists {
		return Result{}, fmt.Errorf("issue branch %q does not exist", req.IssueBranch)
	}
	issueCommit, err := gitx.RevParse(ctx, req.RepoRoot, "refs/heads/"+req.IssueBranch)
	if err != nil {
		return Result{}, fmt.Errorf("issue branch %q: %w", req.IssueBranch, err)
	}

	ff := fastForwarder{
		coordinator: c,
		repoRoot:    req.RepoRoot,
		baseBranch:  req.BaseBranch,
		checkout:    checkout,
		checkedOut:  checkedOut,
	}

	if req.Remote != "" {
		// Step 1: fetch the remote base. No fallback on failure.
		remoteRef := fmt.Sprintf("refs/remotes/%s/%s", req.Remote, req.BaseBranch)
		refspec := fmt.Sprintf("+%s:%s", baseRef, remoteRef)
		if _, err := gitx.Run(ctx, req.RepoRoot, "fetch", "--no-tags", req.Remote, refspec); err != nil {
			if gitx.StderrContains(err, "couldn't find remote ref") {
				return Result{}, fmt.Errorf("remote %q has no branch %q: %w", req.Remote, req.BaseBranch, err)
			}
			return Result{}, &NetworkError{Remote: req.Remote, Branch: req.BaseBranch, Op: "fetch", Err: err}
		}

		// Step 2: bring the local base up to the remote, never past it.
		if err := c.syncBase(ctx, ff, req, remoteRef); err != nil {
			return Result{}, err
		}
	}

	previous, err := gitx.RevParse(ctx, req.RepoRoot, baseRef)
	if err != nil {
		return Result{}, err
	}
	result := Result{PreviousCommit: previous, FinalCommit: previous}
	if checkedOut {
		result.Checkout = checkout.Path
	}

	// Step 3: fast-forward base to the issue tip.
	contained, err := gitx.IsAncestor(ctx, req.RepoRoot, issueCommit, previous)
	if err != nil {
		return Result{}, err
	}
	if !contained {
		descendant, err := gitx.IsAncestor(ctx, req.RepoRoot, previous, issueCommit)
		if err != nil {
			return Result{}, err
		}
		if !descendant {
			return Result{}, &ConflictError{
				IssueBranch: req.IssueBranch,
				BaseBranch:  req.BaseBranch,
				IssueCommit: issueCommit,
				BaseCommit:  previous,
			}
		}
		if err := ff.advance(ctx, previous, issueCommit); err != nil {
			var conflict *ConflictError
			if errors.As(err, &conflict) {
				conflict.IssueBranch = req.IssueBranch
			}
			return Result{}, err
		}
		result.FinalCommit = issueCommit
		result.FastForwarded = true
	}

	// Step 4: publish, without force.
	if req.Push && req.Remote != "" {
		if err := c.push(ctx, req); err != nil {
			return result, err
		}
		result.Pushed = true
	}
	return result, nil
}

func (c *Coordinator) syncBase(ctx context.Context, ff fastForwarder, req Request, remoteRef string) error {
	local, err := gitx.RevParse(ctx, req.RepoRoot, "refs/heads/"+req.BaseBranch)
	if err != nil {
		return err
	}
	remote, err := gitx.RevParse(ctx, req.RepoRoot, remoteRef)
	if err != nil {
		return err
	}
	if local == remote {
		return nil
	}
	behind, err := gitx.IsAncestor(ctx, req.RepoRoot, local, remote)
	if err != nil {
		return err
	}
	if !behind {
		ahead, err := countCommits(ctx, req.RepoRoot, remote, local)
		if err != nil {
			return err
		}
		return &DivergedError{
			Branch:       req.BaseBranch,
			Remote:       req.Remote,
			LocalCommit:  local,
			RemoteCommit: remote,
			Ahead:        ahead,
		}
	}
	return ff.advance(ctx, local, remote)
}

func (c *Coordinator) push(ctx context.Context, req Request) error {
	ref := "refs/heads/" + req.BaseBranch
	_, err := gitx.Run(ctx, req.RepoRoot, "push", "--porcelain", req.Remote, ref+":"+ref)
	if err == nil {
		return nil
	}
	if gitx.StderrContains(err, "non-fast-forward", "[rejected]", "fetch first") {
		return fmt.Errorf("%w: push of %s to %s rejected: %v", ErrDiverged, req.BaseBranch, req.Remote, err)
	}
	return &NetworkError{Remote: req.Remote, Branch: req.BaseBranch, Op: "push", Err: err}
}

// fastForwarder moves the base branch. With a checkout, `git merge --ff-only`
// updates ref, index and working tree together; without one, update-ref moves
// the ref guarded by its expected old value.
type fastForwarder struct {
	coordinator *Coordinator
	repoRoot    string
	baseBranch  string
	checkout    gitx.Worktree
	checkedOut  bool
}

func (f fastForwarder) advance(ctx context.Context, from, to string) error {
	policy := retry.Policy{
		Attempts:  f.coordinator.attempts,
		Delay:     f.coordinator.delay,
		Transient: isLockContention,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			if f.coordinator.onRetry != nil {
				f.coordinator.onRetry(attempt, err)
			}
		},
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		if f.checkedOut {
			_, err := gitx.Run(ctx, f.checkout.Path, "merge", "--ff-only", "--no-stat", to)
			return err
		}
		_, err := gitx.Run(ctx, f.repoRoot, "update-ref", "-m", "worksync: fast-forward",
			"refs/heads/"+f.baseBranch, to, from)
		return err
	})
	if err == nil {
		return f.verify(ctx, to)
	}
	switch {
	case gitx.StderrContains(err, "would be overwritten", "untracked working tree files"):
		return &DirtyError{Checkout: f.checkout.Path, Detail: stderrOf(err)}
	case gitx.StderrContains(err, "Not possible to fast-forward", "not possible to fast-forward"):
		return &ConflictError{BaseBranch: f.baseBranch, BaseCommit: from, IssueCommit: to, Detail: stderrOf(err)}
	}
	return fmt.Errorf("fast-forward %s to %s: %w", f.baseBranch, short(to), err)
}

// verify confirms the ref, and for checkouts HEAD, landed on want.
func (f fastForwarder) verify(ctx context.Context, want string) error {
	got, err := gitx.RevParse(ctx, f.repoRoot, "refs/heads/"+f.baseBranch)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("fast-forward %s: ref is %s, expected %s", f.baseBranch, short(got), short(want))
	}
	if f.checkedOut {
		head, err := gitx.RevParse(ctx, f.checkout.Path, "HEAD")
		if err != nil {
			return err
		}
		if head != want {
			return fmt.Errorf("fast-forward %s: checkout HEAD is %s, expected %s", f.baseBranch, short(head), short(want))
		}
	}
	return nil
}

// isLockContention recognizes git failures caused by another process holding
// index.lock or a ref lock.
func isLockContention(err error) bool {
	if gitx.StderrContains(err, "but expected") {
		return false
	}
	return gitx.StderrContains(err, "index.lock", "cannot lock ref", "Unable to create", "File exists")
}

func countCommits(ctx context.Context, dir, exclude, include string) (int, error) {
	out, err := gitx.Run(ctx, dir, "rev-list", "--count", exclude+".."+include)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", out, err)
	}
	return n, nil
}

func stderrOf(err error) string {
	var cmdErr *gitx.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return err.Error()
}
