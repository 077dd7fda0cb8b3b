package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cmtonkinson/worksync/internal/coord"
	"github.com/cmtonkinson/worksync/internal/format"
	"github.com/cmtonkinson/worksync/internal/lock"
	"github.com/cmtonkinson/worksync/internal/resolver"
	"github.com/cmtonkinson/worksync/internal/watch"
)

func newNextCommand(a *app) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Report the next executable issue",
		Long: `Report the first issue, in version then name order, whose dependencies are
all closed and which no other live session holds. An in-progress issue held
by this session, or whose lock has gone stale, is offered for resumption.

When nothing is executable the reasons are listed and the exit code is 3.
With --wait the command blocks until something becomes executable.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var out resolver.Outcome
			if wait {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				out, err = c.WaitNext(ctx, watch.Options{OnError: func(err error) { a.debugf("watch: %v", err) }})
			} else {
				out, err = c.Next(ctx)
			}
			if err != nil {
				return err
			}
			if err := out.Err(); err != nil {
				return err
			}
			return a.emit(out.Reason(), viewOutcome(out), func(w io.Writer) {
				if out.Issue != nil {
					fmt.Fprintf(w, "  %s %s\n", out.Issue.Title, dimText("("+string(out.Issue.Status)+")"))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until an issue becomes executable")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting after this long")
	return cmd
}

type claimView struct {
	Issue           issueView `json:"issue"`
	Outcome         string    `json:"outcome"`
	Worktree        string    `json:"worktree"`
	Branch          string    `json:"branch"`
	WorktreeReused  bool      `json:"worktree_reused"`
	PreviousSession string    `json:"previous_session,omitempty"`
	StatusChanged   bool      `json:"status_changed"`
}

func newClaimCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "claim [id]",
		Short: "Lock an issue and prepare its worktree",
		Long: `Take the lock on an issue, create or reuse its worktree on branch
issue/<id>, and mark it in-progress. Without an id the next executable issue
is claimed. A lock held by this session is refreshed; a stale lock held by
another session is taken over.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			claimed, err := c.Claim(cmd.Context(), id)
			if err != nil {
				return err
			}
			view := claimView{
				Issue:          viewIssue(claimed.Issue, false),
				Outcome:        string(claimed.Outcome),
				Worktree:       claimed.Worktree.Path,
				Branch:         claimed.Worktree.Branch,
				WorktreeReused: claimed.Worktree.Reused,
				StatusChanged:  claimed.StatusChanged,
			}
			if claimed.Previous != nil {
				view.PreviousSession = claimed.Previous.Session
			}
			message := fmt.Sprintf("claimed %s (%s)", claimed.Issue.ID, claimed.Outcome)
			return a.emit(message, view, func(w io.Writer) {
				if view.PreviousSession != "" {
					fmt.Fprintf(w, "  took over stale lock from %s\n", view.PreviousSession)
				}
				fmt.Fprintf(w, "  worktree: %s\n  branch:   %s\n", view.Worktree, view.Branch)
			})
		},
	}
}

type releaseView struct {
	Issue    string       `json:"issue"`
	Removed  string       `json:"removed,omitempty"`
	Refused  *refusalView `json:"refused,omitempty"`
	Reopened bool         `json:"reopened"`
}

func viewRelease(res coord.ReleaseResult) releaseView {
	return releaseView{
		Issue:    res.Issue,
		Removed:  res.Removed,
		Refused:  viewRefusal(res.Refused),
		Reopened: res.Reopened,
	}
}

func printRelease(w io.Writer, view releaseView) {
	if view.Reopened {
		fmt.Fprintf(w, "  %s reopened\n", view.Issue)
	}
	if view.Removed != "" {
		fmt.Fprintf(w, "  removed worktree %s\n", view.Removed)
	}
	if view.Refused != nil {
		fmt.Fprintf(w, "  %s kept worktree %s: %s %s\n", retryMark("!"), view.Refused.Target, view.Refused.Reason, view.Refused.Protected)
	}
}

func newReleaseCommand(a *app) *cobra.Command {
	var opts coord.ReleaseOptions
	cmd := &cobra.Command{
		Use:   "release <id>",
		Short: "Drop this session's lock on an issue",
		Long: `Remove this session's lock. Releasing an issue that has no lock succeeds.
--cleanup also removes the issue worktree unless the guard protects it.
--reopen returns an in-progress issue to open.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			released, err := c.Release(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			view := viewRelease(released)
			return a.emit("released "+args[0], view, func(w io.Writer) { printRelease(w, view) })
		},
	}
	cmd.Flags().BoolVar(&opts.Cleanup, "cleanup", false, "Remove the issue worktree")
	cmd.Flags().BoolVar(&opts.Reopen, "reopen", false, "Return the issue to open")
	return cmd
}

func newHeartbeatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <id>",
		Short: "Refresh this session's lock on an issue",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := c.Heartbeat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data := map[string]any{"issue": rec.Issue, "session": rec.Session, "heartbeat_at": rec.HeartbeatAt}
			return a.emit("heartbeat "+rec.Issue, data, nil)
		},
	}
}

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Report the lock state of an issue",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			st, err := c.Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			threshold := c.Locks().Threshold()
			return a.emit(describeLock(st), viewLock(st), func(w io.Writer) {
				if st.Session == "" {
					return
				}
				fmt.Fprintf(w, "  holder:   %s\n", format.Holder(st.Session, st.Hostname, st.PID))
				fmt.Fprintf(w, "  age:      %s (stale in %s)\n", format.DurationShort(st.Age), format.Remaining(st.Age, threshold))
				if st.Worktree != "" {
					fmt.Fprintf(w, "  worktree: %s\n", st.Worktree)
				}
				if st.Owner != lock.LivenessUnknown {
					fmt.Fprintf(w, "  process:  %s\n", st.Owner)
				}
			})
		},
	}
}

func describeLock(st lock.Status) string {
	switch {
	case st.Session == "":
		return st.Issue + " is unlocked"
	case st.Stale:
		return fmt.Sprintf("%s lock held by %s is stale", st.Issue, st.Session)
	default:
		return fmt.Sprintf("%s is held by %s", st.Issue, st.Session)
	}
}

func newLockCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and maintain issue locks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every lock record, live or stale",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			statuses, err := c.Locks().List(cmd.Context())
			if err != nil {
				return err
			}
			views := make([]lockView, 0, len(statuses))
			for _, st := range statuses {
				views = append(views, viewLock(st))
			}
			threshold := c.Locks().Threshold()
			return a.emit("", views, func(w io.Writer) {
				if len(statuses) == 0 {
					fmt.Fprintln(w, "No locks held.")
					return
				}
				for _, st := range statuses {
					fmt.Fprintf(w, "%-28s %-32s %-10s %s\n", st.Issue,
						format.Holder(st.Session, st.Hostname, st.PID),
						format.DurationShort(st.Age), format.Remaining(st.Age, threshold))
				}
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "keepalive <id>",
		Short: "Heartbeat a lock in the foreground until interrupted",
		Long: `Refresh this session's lock every locks.heartbeat_interval until the
command is interrupted or the lock is lost to another session.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := c.Heartbeat(cmd.Context(), args[0]); err != nil {
				return err
			}
			hb, err := c.Heartbeater(args[0],
				func(rec lock.Record) { a.debugf("heartbeat %s at %s", rec.Issue, rec.HeartbeatAt.Format(time.RFC3339)) },
				func(err error) { a.warn(err.Error()) },
			)
			if err != nil {
				return err
			}
			if err := hb.Run(cmd.Context()); err != nil {
				return err
			}
			return a.emit("keepalive stopped for "+args[0], map[string]string{"issue": args[0]}, nil)
		},
	})
	return cmd
}

type integrateView struct {
	Issue          string       `json:"issue"`
	FinalCommit    string       `json:"final_commit"`
	PreviousCommit string       `json:"previous_commit"`
	FastForwarded  bool         `json:"fast_forwarded"`
	Pushed         bool         `json:"pushed"`
	Checkout       string       `json:"checkout,omitempty"`
	Closed         bool         `json:"closed"`
	Release        *releaseView `json:"release,omitempty"`
	BranchDeleted  bool         `json:"branch_deleted"`
}

func newIntegrateCommand(a *app) *cobra.Command {
	var opts coord.IntegrateOptions
	cmd := &cobra.Command{
		Use:   "integrate <id>",
		Short: "Fast-forward the base branch to the issue branch",
		Long: `Fetch the remote, bring the local base branch up to date, and fast-forward
it to issue/<id>. History is never rewritten: a base branch that has diverged
from the remote or is not an ancestor of the issue branch is rejected and
nothing changes. The session must hold the issue lock.

--close marks the issue closed afterwards. --finish also releases the lock,
removes the worktree, and deletes the merged branch.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.Integrate(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			view := integrateView{
				Issue:          res.Issue,
				FinalCommit:    res.Merge.FinalCommit,
				PreviousCommit: res.Merge.PreviousCommit,
				FastForwarded:  res.Merge.FastForwarded,
				Pushed:         res.Merge.Pushed,
				Checkout:       res.Merge.Checkout,
				Closed:         res.Closed,
				BranchDeleted:  res.BranchDeleted,
			}
			if res.Release != nil {
				rv := viewRelease(*res.Release)
				view.Release = &rv
			}
			message := fmt.Sprintf("integrated %s at %s", res.Issue, shortSHA(res.Merge.FinalCommit))
			if !res.Merge.FastForwarded {
				message = fmt.Sprintf("%s already integrated at %s", res.Issue, shortSHA(res.Merge.FinalCommit))
			}
			return a.emit(message, view, func(w io.Writer) {
				if view.Pushed {
					fmt.Fprintln(w, "  pushed")
				}
				if view.Closed {
					fmt.Fprintf(w, "  %s closed\n", view.Issue)
				}
				if view.Release != nil {
					printRelease(w, *view.Release)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Local, "local", false, "Skip fetch, remote sync, and push")
	cmd.Flags().BoolVar(&opts.Close, "close", false, "Mark the issue closed")
	cmd.Flags().BoolVar(&opts.Finish, "finish", false, "Close, release, remove the worktree, and delete the branch")
	return cmd
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

type sweepView struct {
	DryRun  bool          `json:"dry_run"`
	Removed []string      `json:"removed"`
	Refused []refusalView `json:"refused"`
}

func newCleanupCommand(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove issue worktrees nobody is using",
		Long: `Remove every issue worktree the guard allows. Worktrees under a live lock
and the current working directory are kept.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			report, err := c.Cleanup(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			view := sweepView{DryRun: dryRun, Removed: []string{}, Refused: []refusalView{}}
			for _, entry := range report.Removed {
				view.Removed = append(view.Removed, entry.Path)
			}
			for _, refusal := range report.Refused {
				view.Refused = append(view.Refused, *viewRefusal(refusal.Err))
			}
			verb := "removed"
			if dryRun {
				verb = "would remove"
			}
			message := fmt.Sprintf("%s %d worktree(s), kept %d", verb, len(view.Removed), len(view.Refused))
			return a.emit(message, view, func(w io.Writer) {
				for _, path := range view.Removed {
					fmt.Fprintf(w, "  - %s\n", path)
				}
				for _, r := range view.Refused {
					fmt.Fprintf(w, "  %s %s: %s %s\n", retryMark("!"), r.Target, r.Reason, r.Protected)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report what would be removed")
	return cmd
}

func newGuardCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Ask the worktree guard before deleting paths",
		Long: `External cleanup hooks call these commands instead of deleting directories
directly. A path is protected when it contains, or is contained by, a
worktree under a live lock or the caller's working directory.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Exit 0 when path may be deleted",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.Authorize(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.emit(args[0]+" may be deleted", map[string]string{"path": args[0]}, nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <path>",
		Short: "Delete path unless the guard protects it",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.RemovePath(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.emit("removed "+args[0], map[string]string{"path": args[0]}, nil)
		},
	})
	return cmd
}
