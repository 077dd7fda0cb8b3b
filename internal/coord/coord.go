// Package coord composes the issue index, lock manager, worktree guard, and
// merge coordinator into the verbs a host agent calls: next, claim, release,
// heartbeat, check, and integrate.
package coord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cmtonkinson/worksync/internal/audit"
	"github.com/cmtonkinson/worksync/internal/clock"
	"github.com/cmtonkinson/worksync/internal/config"
	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/lock"
	"github.com/cmtonkinson/worksync/internal/merge"
	"github.com/cmtonkinson/worksync/internal/protect"
	"github.com/cmtonkinson/worksync/internal/repo"
	"github.com/cmtonkinson/worksync/internal/telemetry"
	"github.com/cmtonkinson/worksync/internal/worktree"
)

// ErrNoSession is returned by verbs that act on behalf of a session when none is set.
var ErrNoSession = errors.New("session id is required (use --session or WORKSYNC_SESSION)")

// Options configure a Coordinator.
type Options struct {
	// Root is the main checkout.
	Root      string
	Session   string
	Config    config.Config
	Clock     clock.Clock
	Warnings  io.Writer
	Telemetry *telemetry.Provider
	// Getwd defaults to os.Getwd; the guard never deletes the caller's cwd.
	Getwd func() (string, error)
	// OnMergeRetry observes index.lock contention retries.
	OnMergeRetry func(attempt int, err error)
}

// Coordinator is the host boundary for one session in one repository.
type Coordinator struct {
	layout    repo.Layout
	cfg       config.Config
	session   string
	clock     clock.Clock
	issues    *issue.Repository
	store     *lock.FileStore
	locks     *lock.Manager
	guard     *protect.Guard
	worktrees worktree.Manager
	merger    *merge.Coordinator
	audit     *audit.Logger
	tel       *telemetry.Provider
}

// New wires every component under opts.Root.
func New(opts Options) (*Coordinator, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, errors.New("repo root is required")
	}
	layout := repo.NewLayout(opts.Root)
	cfg := opts.Config
	c := clock.OrSystem(opts.Clock)
	warnings := opts.Warnings
	if warnings == nil {
		warnings = os.Stderr
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}

	issues, err := issue.NewRepository(layout.IssuesDir, issue.Options{
		ScanLimit:   cfg.Issues.ScanLimit,
		LockTimeout: cfg.Locks.WaitTimeout,
		Clock:       c,
	})
	if err != nil {
		return nil, fmt.Errorf("open issue repository: %w", err)
	}
	store, err := lock.NewFileStore(layout.LocksDir, cfg.Locks.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("open lock store: %w", err)
	}
	locks, err := lock.NewManager(store, lock.Options{
		StaleThreshold: cfg.Locks.StaleThreshold,
		Clock:          c,
	})
	if err != nil {
		return nil, fmt.Errorf("open lock manager: %w", err)
	}
	trees, err := worktree.NewManager(layout.Root)
	if err != nil {
		return nil, fmt.Errorf("open worktree manager: %w", err)
	}
	auditor, err := audit.NewLogger(layout.LocalState, warnings, c)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &Coordinator{
		layout:  layout,
		cfg:     cfg,
		session: strings.TrimSpace(opts.Session),
		clock:   c,
		issues:  issues,
		store:   store,
		locks:   locks,
		guard: protect.NewGuard(store, protect.Options{
			Threshold:    locks.Threshold(),
			Clock:        c,
			MainCheckout: layout.Root,
			Getwd:        opts.Getwd,
		}),
		worktrees: trees,
		merger: merge.NewCoordinator(merge.Options{
			Attempts: cfg.Merge.Attempts,
			Delay:    cfg.Merge.RetryDelay,
			OnRetry:  opts.OnMergeRetry,
		}),
		audit: auditor,
		tel:   tel,
	}, nil
}

// Layout returns the state paths.
func (c *Coordinator) Layout() repo.Layout { return c.layout }

// Config returns the resolved configuration.
func (c *Coordinator) Config() config.Config { return c.cfg }

// Session returns the acting session id.
func (c *Coordinator) Session() string { return c.session }

// Issues returns the issue repository.
func (c *Coordinator) Issues() *issue.Repository { return c.issues }

// Locks returns the lock manager.
func (c *Coordinator) Locks() *lock.Manager { return c.locks }

// Guard returns the deletion guard.
func (c *Coordinator) Guard() *protect.Guard { return c.guard }

// Worktrees returns the worktree manager.
func (c *Coordinator) Worktrees() worktree.Manager { return c.worktrees }

// Audit returns the audit logger.
func (c *Coordinator) Audit() *audit.Logger { return c.audit }

func (c *Coordinator) requireSession() error {
	if c.session == "" {
		return ErrNoSession
	}
	return nil
}

// Heartbeater returns a keepalive loop for issueID at the configured interval.
func (c *Coordinator) Heartbeater(issueID string, onBeat func(lock.Record), onError func(error)) (*lock.Heartbeater, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	return &lock.Heartbeater{
		Manager:  c.locks,
		Issue:    issueID,
		Session:  c.session,
		Interval: c.cfg.Locks.HeartbeatInterval,
		OnBeat: func(rec lock.Record) {
			_ = c.audit.LogHeartbeat(issueID, c.session)
			if onBeat != nil {
				onBeat(rec)
			}
		},
		OnError: onError,
	}, nil
}

// withSpan runs fn inside a telemetry span.
func (c *Coordinator) withSpan(ctx context.Context, name, issueID string, fn func(context.Context) error) error {
	ctx, span := c.tel.Start(ctx, name, issueAttr(issueID)...)
	err := fn(ctx)
	telemetry.End(span, err)
	return err
}
