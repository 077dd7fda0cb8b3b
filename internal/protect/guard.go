package protect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cmtonkinson/worksync/internal/clock"
	"github.com/cmtonkinson/worksync/internal/lock"
)

// ErrProtected marks refused deletions.
var ErrProtected = errors.New("path is protected")

// ProtectedError explains which protected path blocked a deletion.
type ProtectedError struct {
	Target    string
	Protected string
	Reason    string
	Cwd       string
}

func (e *ProtectedError) Error() string {
	return fmt.Sprintf("refusing to delete %s: %s %s (cwd %s)", e.Target, e.Reason, e.Protected, e.Cwd)
}

// Is matches ErrProtected.
func (e *ProtectedError) Is(target error) bool {
	return target == ErrProtected
}

const (
	reasonLockedWorktree  = "it is the locked worktree"
	reasonInsideWorktree  = "it lies inside the locked worktree"
	reasonContainsLocked  = "it contains the locked worktree"
	reasonContainsMain    = "it contains the main checkout"
	reasonContainsCurrent = "it contains the current working directory"
)

// ProtectedPaths returns the canonical worktree paths of every non-stale lock.
// Paths that cannot be resolved are kept in cleaned absolute form.
func ProtectedPaths(records []lock.Record, now time.Time, threshold time.Duration) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.Worktree == "" || lock.IsStale(rec, now, threshold) {
			continue
		}
		path, err := Canonical(rec.Worktree)
		if err != nil {
			path = filepath.Clean(rec.Worktree)
		}
		seen[path] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Source supplies lock records and the shared side of the lock-store guard.
// lock.Store satisfies it.
type Source interface {
	List(ctx context.Context) ([]lock.Record, error)
	Shared(ctx context.Context) (lock.UnlockFunc, error)
}

// Options configure a Guard.
type Options struct {
	Threshold time.Duration
	Clock     clock.Clock
	// MainCheckout is never deletable, nor is anything containing it.
	MainCheckout string
	// Getwd defaults to os.Getwd.
	Getwd func() (string, error)
}

// Guard authorizes deletions against the current lock set.
type Guard struct {
	source       Source
	threshold    time.Duration
	clock        clock.Clock
	mainCheckout string
	getwd        func() (string, error)
}

// NewGuard builds a Guard over source.
func NewGuard(source Source, opts Options) *Guard {
	if opts.Threshold <= 0 {
		opts.Threshold = lock.DefaultStaleThreshold
	}
	if opts.Getwd == nil {
		opts.Getwd = os.Getwd
	}
	return &Guard{
		source:       source,
		threshold:    opts.Threshold,
		clock:        clock.OrSystem(opts.Clock),
		mainCheckout: opts.MainCheckout,
		getwd:        opts.Getwd,
	}
}

// Protected returns the current protected set.
func (g *Guard) Protected(ctx context.Context) ([]string, error) {
	records, err := g.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	return ProtectedPaths(records, g.clock.Now(), g.threshold), nil
}

// Authorize returns a *ProtectedError when target must not be deleted.
func (g *Guard) Authorize(ctx context.Context, target string) error {
	return g.withShared(ctx, func() error {
		return g.authorize(ctx, target)
	})
}

// Remove authorizes target and calls remove while the lock store's shared
// guard is held, so no acquire or takeover can land between the check and
// the deletion.
func (g *Guard) Remove(ctx context.Context, target string, remove func(string) error) error {
	if remove == nil {
		return errors.New("remove function is required")
	}
	return g.withShared(ctx, func() error {
		if err := g.authorize(ctx, target); err != nil {
			return err
		}
		return remove(target)
	})
}

func (g *Guard) authorize(ctx context.Context, target string) error {
	canonical, err := Canonical(target)
	if err != nil {
		return err
	}
	cwd, err := g.getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	cwdCanonical, err := Canonical(cwd)
	if err != nil {
		return err
	}
	refuse := func(protected, reason string) error {
		return &ProtectedError{Target: target, Protected: protected, Reason: reason, Cwd: cwd}
	}

	protected, err := g.Protected(ctx)
	if err != nil {
		return err
	}
	for _, path := range protected {
		switch {
		case canonical == path:
			return refuse(path, reasonLockedWorktree)
		case within(canonical, path):
			return refuse(path, reasonInsideWorktree)
		case within(path, canonical):
			return refuse(path, reasonContainsLocked)
		}
	}
	if g.mainCheckout != "" {
		main, err := Canonical(g.mainCheckout)
		if err != nil {
			return err
		}
		if within(main, canonical) {
			return refuse(main, reasonContainsMain)
		}
	}
	if within(cwdCanonical, canonical) {
		return refuse(cwdCanonical, reasonContainsCurrent)
	}
	return nil
}

func (g *Guard) withShared(ctx context.Context, fn func() error) (err error) {
	unlock, err := g.source.Shared(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("release lock guard: %w", unlockErr)
		}
	}()
	return fn()
}
