package issue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/cmtonkinson/worksync/internal/clock"
	"github.com/cmtonkinson/worksync/internal/graph"
	"github.com/cmtonkinson/worksync/internal/slug"
)

const (
	// DocumentFileName is the status/metadata record inside an issue directory.
	DocumentFileName = "issue.md"
	// PlanFileName is the plan record inside an issue directory.
	PlanFileName = "plan.md"
	// graphLockFileName serializes graph and status mutations.
	graphLockFileName = ".graph.lock"

	issueDirMode  = 0o755
	issueFileMode = 0o644

	// DefaultScanLimit caps the number of directory entries a scan will visit.
	DefaultScanLimit = 5000
	// DefaultLockTimeout bounds how long a mutation waits for the graph lock.
	DefaultLockTimeout = 30 * time.Second

	lockPollInterval = 50 * time.Millisecond
	parseConcurrency = 8
)

// ErrScanOverflow is returned when the repository holds more entries than the
// scan ceiling allows. Scans never return a partial index.
var ErrScanOverflow = errors.New("issue scan overflow")

// ScanOverflowError reports how far the scan got before the ceiling tripped.
type ScanOverflowError struct {
	Root  string
	Limit int
	Seen  int
}

func (e *ScanOverflowError) Error() string {
	return fmt.Sprintf("%v: %s holds more than %d entries (saw %d); raise issues.scan_limit or archive old versions",
		ErrScanOverflow, e.Root, e.Limit, e.Seen)
}

// Is matches ErrScanOverflow.
func (e *ScanOverflowError) Is(target error) bool {
	return target == ErrScanOverflow
}

// Options tune a Repository.
type Options struct {
	ScanLimit   int
	LockTimeout time.Duration
	Clock       clock.Clock
}

// Repository reads and writes issue directories under a root.
type Repository struct {
	root        string
	scanLimit   int
	lockTimeout time.Duration
	clock       clock.Clock
}

// NewRepository builds a Repository rooted at the issues directory.
func NewRepository(root string, opts Options) (*Repository, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("issue root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve issue root %s: %w", root, err)
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = DefaultScanLimit
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	return &Repository{
		root:        abs,
		scanLimit:   opts.ScanLimit,
		lockTimeout: opts.LockTimeout,
		clock:       clock.OrSystem(opts.Clock),
	}, nil
}

// Root returns the absolute issues directory.
func (r *Repository) Root() string {
	return r.root
}

// Dir returns the directory for a qualified issue id.
func (r *Repository) Dir(id string) (string, error) {
	version, name, err := ParseID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.root, version, name), nil
}

type candidate struct {
	version string
	name    string
	dir     string
}

// Scan reads every issue under the root, ordered by version then name.
func (r *Repository) Scan(ctx context.Context) ([]Issue, error) {
	candidates, err := r.candidates()
	if err != nil {
		return nil, err
	}

	issues := make([]Issue, len(candidates))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(parseConcurrency)
	for i, c := range candidates {
		i, c := i, c
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			iss, err := r.readDir(c.version, c.name, c.dir)
			if err != nil {
				return err
			}
			issues[i] = iss
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	Sort(issues)
	return issues, nil
}

// candidates lists issue directories, failing once the entry count passes
// the scan ceiling.
func (r *Repository) candidates() ([]candidate, error) {
	versions, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read issue root %s: %w", r.root, err)
	}
	seen := len(versions)
	if seen > r.scanLimit {
		return nil, &ScanOverflowError{Root: r.root, Limit: r.scanLimit, Seen: seen}
	}

	var out []candidate
	for _, v := range versions {
		if !v.IsDir() || strings.HasPrefix(v.Name(), ".") {
			continue
		}
		versionDir := filepath.Join(r.root, v.Name())
		entries, err := os.ReadDir(versionDir)
		if err != nil {
			return nil, fmt.Errorf("read version directory %s: %w", versionDir, err)
		}
		seen += len(entries)
		if seen > r.scanLimit {
			return nil, &ScanOverflowError{Root: r.root, Limit: r.scanLimit, Seen: seen}
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			out = append(out, candidate{
				version: v.Name(),
				name:    e.Name(),
				dir:     filepath.Join(versionDir, e.Name()),
			})
		}
	}
	return out, nil
}

// Get reads a single issue by qualified id.
func (r *Repository) Get(ctx context.Context, id string) (Issue, error) {
	if err := ctx.Err(); err != nil {
		return Issue{}, err
	}
	version, name, err := ParseID(id)
	if err != nil {
		return Issue{}, err
	}
	dir := filepath.Join(r.root, version, name)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Issue{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Issue{}, fmt.Errorf("stat issue directory %s: %w", dir, err)
	}
	return r.readDir(version, name, dir)
}

func (r *Repository) readDir(version, name, dir string) (Issue, error) {
	id := QualifiedID(version, name)
	docPath := filepath.Join(dir, DocumentFileName)
	data, err := os.ReadFile(docPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Issue{}, fmt.Errorf("issue %s: missing %s (restore it or remove %s)", id, docPath, dir)
		}
		return Issue{}, fmt.Errorf("read issue %s: %w", docPath, err)
	}
	iss, err := decodeDocument(id, data)
	if err != nil {
		return Issue{}, fmt.Errorf("parse issue %s: %w", docPath, err)
	}
	iss.Version = version
	iss.Name = name
	iss.Dir = dir
	if _, err := os.Stat(filepath.Join(dir, PlanFileName)); err == nil {
		iss.HasPlan = true
	}
	return iss, nil
}

// CreateInput describes a new issue.
type CreateInput struct {
	Version   string
	Title     string
	Name      string
	DependsOn []string
	Body      string
	Plan      string
}

// Create writes a new open issue. Dependencies must already exist; each one
// gains the new id in its blocks list.
func (r *Repository) Create(ctx context.Context, input CreateInput) (Issue, error) {
	if err := ValidateVersion(input.Version); err != nil {
		return Issue{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = slug.Slugify(input.Title)
	}
	if name == "" {
		return Issue{}, errors.New("issue name or title is required")
	}
	id := QualifiedID(input.Version, name)
	if _, _, err := ParseID(id); err != nil {
		return Issue{}, err
	}

	var created Issue
	err := r.withGraphLock(ctx, func() error {
		dir := filepath.Join(r.root, input.Version, name)
		if _, err := os.Stat(dir); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, id)
		}
		deps := make([]Issue, 0, len(input.DependsOn))
		for _, depID := range input.DependsOn {
			dep, err := r.Get(ctx, depID)
			if err != nil {
				return fmt.Errorf("dependency %s: %w", depID, err)
			}
			deps = append(deps, dep)
		}

		now := r.clock.Now()
		created = Issue{
			ID:        id,
			Version:   input.Version,
			Name:      name,
			Title:     strings.TrimSpace(input.Title),
			Status:    StatusOpen,
			DependsOn: dedupe(input.DependsOn),
			CreatedAt: now,
			UpdatedAt: now,
			Body:      input.Body,
			Dir:       dir,
		}
		if err := r.stage(&created, input.Plan); err != nil {
			return err
		}
		for _, dep := range deps {
			if slices.Contains(dep.Blocks, id) {
				continue
			}
			dep.Blocks = append(dep.Blocks, id)
			dep.UpdatedAt = now
			if err := r.write(dep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Issue{}, err
	}
	return created, nil
}

// stage writes the documents into a hidden sibling directory and renames it
// into place, so a scan never sees an issue directory without issue.md.
func (r *Repository) stage(iss *Issue, plan string) error {
	dir := iss.Dir
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, issueDirMode); err != nil {
		return fmt.Errorf("create version directory %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, "."+iss.Name+"-")
	if err != nil {
		return fmt.Errorf("create staging directory in %s: %w", parent, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()
	if err := os.Chmod(staging, issueDirMode); err != nil {
		return fmt.Errorf("chmod staging directory %s: %w", staging, err)
	}

	iss.Dir = staging
	if err := r.write(*iss); err != nil {
		return err
	}
	if plan == "" {
		plan = "# Plan\n"
	}
	planPath := filepath.Join(staging, PlanFileName)
	if err := atomic.WriteFile(planPath, strings.NewReader(plan)); err != nil {
		return fmt.Errorf("write plan %s: %w", planPath, err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("move issue into %s: %w", dir, err)
	}
	committed = true
	iss.Dir = dir
	iss.HasPlan = true
	return nil
}

// SetStatus validates and persists a status change.
func (r *Repository) SetStatus(ctx context.Context, id string, to Status) (Issue, Status, error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return Issue{}, "", err
	}
	var (
		updated Issue
		from    Status
	)
	err := r.withGraphLock(ctx, func() error {
		iss, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		from = iss.Status
		if err := ValidateTransition(iss.Status, to); err != nil {
			return fmt.Errorf("issue %s: %w", id, err)
		}
		if iss.Status == to {
			updated = iss
			return nil
		}
		iss.Status = to
		iss.UpdatedAt = r.clock.Now()
		if err := r.write(iss); err != nil {
			return err
		}
		updated = iss
		return nil
	})
	if err != nil {
		return Issue{}, "", err
	}
	return updated, from, nil
}

// AddDependency records that id depends on dep. The edge is checked against
// the current graph under the graph lock and rejected with a
// *graph.CycleError before anything is written when it would close a cycle.
func (r *Repository) AddDependency(ctx context.Context, id, dep string) error {
	return r.withGraphLock(ctx, func() error {
		issues, err := r.Scan(ctx)
		if err != nil {
			return err
		}
		byID := ByID(issues)
		from, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		to, ok := byID[dep]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, dep)
		}
		if slices.Contains(from.DependsOn, dep) {
			return nil
		}
		g := graph.New(DependencyMap(issues))
		if err := g.CheckEdge(id, dep); err != nil {
			return err
		}

		now := r.clock.Now()
		from.DependsOn = append(from.DependsOn, dep)
		from.UpdatedAt = now
		if err := r.write(from); err != nil {
			return err
		}
		if !slices.Contains(to.Blocks, id) {
			to.Blocks = append(to.Blocks, id)
			to.UpdatedAt = now
			if err := r.write(to); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveDependency drops the id -> dep edge when present.
func (r *Repository) RemoveDependency(ctx context.Context, id, dep string) error {
	return r.withGraphLock(ctx, func() error {
		from, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if !slices.Contains(from.DependsOn, dep) {
			return nil
		}
		now := r.clock.Now()
		from.DependsOn = slices.DeleteFunc(from.DependsOn, func(v string) bool { return v == dep })
		from.UpdatedAt = now
		if err := r.write(from); err != nil {
			return err
		}
		to, err := r.Get(ctx, dep)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if slices.Contains(to.Blocks, id) {
			to.Blocks = slices.DeleteFunc(to.Blocks, func(v string) bool { return v == id })
			to.UpdatedAt = now
			return r.write(to)
		}
		return nil
	})
}

// write atomically replaces the issue document.
func (r *Repository) write(iss Issue) error {
	data, err := encodeDocument(iss)
	if err != nil {
		return fmt.Errorf("encode issue %s: %w", iss.ID, err)
	}
	dir := iss.Dir
	if dir == "" {
		if dir, err = r.Dir(iss.ID); err != nil {
			return err
		}
	}
	path := filepath.Join(dir, DocumentFileName)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write issue %s: %w", path, err)
	}
	if err := os.Chmod(path, issueFileMode); err != nil {
		return fmt.Errorf("chmod issue %s: %w", path, err)
	}
	return nil
}

// withGraphLock runs fn while holding the exclusive graph lock.
func (r *Repository) withGraphLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(r.root, issueDirMode); err != nil {
		return fmt.Errorf("create issue root %s: %w", r.root, err)
	}
	lockPath := filepath.Join(r.root, graphLockFileName)
	fl := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, lockPollInterval)
	if err != nil {
		return fmt.Errorf("acquire issue graph lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("issue graph lock %s is already held; wait for the other process to finish", lockPath)
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
