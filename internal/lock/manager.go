package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cmtonkinson/worksync/internal/clock"
)

// Liveness is an informational hint about the holder's process.
type Liveness string

const (
	LivenessUnknown Liveness = "unknown"
	LivenessAlive   Liveness = "alive"
	LivenessDead    Liveness = "dead"
)

// Options configure a Manager.
type Options struct {
	StaleThreshold time.Duration
	Clock          clock.Clock
	// PID and Hostname are stamped on records this manager writes. Zero
	// values use the current process.
	PID      int
	Hostname string
}

// Manager runs lock operations against a Store.
type Manager struct {
	store     Store
	threshold time.Duration
	clock     clock.Clock
	pid       int
	hostname  string
}

// NewManager builds a Manager over store.
func NewManager(store Store, opts Options) (*Manager, error) {
	if store == nil {
		return nil, errors.New("lock store is required")
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = DefaultStaleThreshold
	}
	if opts.PID == 0 {
		opts.PID = os.Getpid()
	}
	if opts.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			opts.Hostname = host
		}
	}
	return &Manager{
		store:     store,
		threshold: opts.StaleThreshold,
		clock:     clock.OrSystem(opts.Clock),
		pid:       opts.PID,
		hostname:  opts.Hostname,
	}, nil
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Threshold returns the staleness threshold.
func (m *Manager) Threshold() time.Duration {
	return m.threshold
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// AcquireResult reports what an acquire did.
type AcquireResult struct {
	Outcome Outcome
	Record  Record
	// Previous is the superseded record on takeover.
	Previous *Record
}

// Acquire claims issueID for sessionID. A record held by the same session is
// refreshed; a stale record held by another session is overwritten in one
// atomic write; a live record held by another session yields *LockedError.
func (m *Manager) Acquire(ctx context.Context, issueID, sessionID, worktree string) (AcquireResult, error) {
	if err := validateSession(sessionID); err != nil {
		return AcquireResult{}, err
	}
	if err := validateIssueID(issueID); err != nil {
		return AcquireResult{}, err
	}

	var result AcquireResult
	err := m.exclusive(ctx, func() error {
		existing, err := m.store.Read(ctx, issueID)
		if err != nil {
			return err
		}
		now := m.clock.Now()
		outcome := Decide(existing, sessionID, now, m.threshold)

		var rec Record
		switch outcome {
		case OutcomeLocked:
			return &LockedError{
				Issue:    issueID,
				Holder:   existing.Session,
				Age:      existing.Age(now),
				Worktree: existing.Worktree,
			}
		case OutcomeRefreshed:
			rec = *existing
			rec.HeartbeatAt = now
			rec.PID = m.pid
			rec.Hostname = m.hostname
			if worktree != "" {
				rec.Worktree = worktree
			}
		default:
			rec = Record{
				Issue:       issueID,
				Session:     sessionID,
				AcquiredAt:  now,
				HeartbeatAt: now,
				Worktree:    worktree,
				PID:         m.pid,
				Hostname:    m.hostname,
			}
			if outcome == OutcomeTookOver {
				if rec.Worktree == "" {
					rec.Worktree = existing.Worktree
				}
				prev := *existing
				result.Previous = &prev
			}
		}
		if err := m.store.Write(ctx, rec); err != nil {
			return err
		}
		result.Outcome = outcome
		result.Record = rec
		return nil
	})
	if err != nil {
		return AcquireResult{}, err
	}
	return result, nil
}

// Release removes the lock held by sessionID. A missing record is a no-op.
func (m *Manager) Release(ctx context.Context, issueID, sessionID string) error {
	if err := validateSession(sessionID); err != nil {
		return err
	}
	return m.exclusive(ctx, func() error {
		existing, err := m.store.Read(ctx, issueID)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		if err := CheckOwner(existing, issueID, sessionID); err != nil {
			return err
		}
		return m.store.Remove(ctx, issueID)
	})
}

// Heartbeat refreshes the timestamp of a lock held by sessionID.
func (m *Manager) Heartbeat(ctx context.Context, issueID, sessionID string) (Record, error) {
	if err := validateSession(sessionID); err != nil {
		return Record{}, err
	}
	var rec Record
	err := m.exclusive(ctx, func() error {
		existing, err := m.store.Read(ctx, issueID)
		if err != nil {
			return err
		}
		if err := CheckOwner(existing, issueID, sessionID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, issueID)
			}
			return err
		}
		rec = *existing
		rec.HeartbeatAt = m.clock.Now()
		return m.store.Write(ctx, rec)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Status is the observable state of one issue lock.
type Status struct {
	Issue       string
	Held        bool
	Stale       bool
	Session     string
	Age         time.Duration
	Worktree    string
	AcquiredAt  time.Time
	HeartbeatAt time.Time
	PID         int
	Hostname    string
	Owner       Liveness
}

// Check reports the lock state of issueID without taking the guard.
func (m *Manager) Check(ctx context.Context, issueID string) (Status, error) {
	rec, err := m.store.Read(ctx, issueID)
	if err != nil {
		return Status{}, err
	}
	if rec == nil {
		return Status{Issue: issueID}, nil
	}
	return m.status(*rec), nil
}

func (m *Manager) status(rec Record) Status {
	now := m.clock.Now()
	stale := IsStale(rec, now, m.threshold)
	owner := LivenessUnknown
	if rec.Hostname != "" && rec.Hostname == m.hostname {
		owner = processAlive(rec.PID)
	}
	return Status{
		Issue:       rec.Issue,
		Held:        !stale,
		Stale:       stale,
		Session:     rec.Session,
		Age:         rec.Age(now),
		Worktree:    rec.Worktree,
		AcquiredAt:  rec.AcquiredAt,
		HeartbeatAt: rec.HeartbeatAt,
		PID:         rec.PID,
		Hostname:    rec.Hostname,
		Owner:       owner,
	}
}

// List reports every lock, stale or not, sorted by issue id.
func (m *Manager) List(ctx context.Context) ([]Status, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(records))
	for _, rec := range records {
		out = append(out, m.status(rec))
	}
	return out, nil
}

// Held maps each issue with a non-stale lock to its holding session.
func (m *Manager) Held(ctx context.Context) (map[string]string, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	held := make(map[string]string, len(records))
	for _, rec := range records {
		if !IsStale(rec, now, m.threshold) {
			held[rec.Issue] = rec.Session
		}
	}
	return held, nil
}

// Recover returns the last known worktree recorded for issueID, whether or
// not the lock is still live.
func (m *Manager) Recover(ctx context.Context, issueID string) (string, error) {
	rec, err := m.store.Read(ctx, issueID)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.Worktree == "" {
		return "", fmt.Errorf("%w: no worktree recorded for %s", ErrNotFound, issueID)
	}
	return rec.Worktree, nil
}

func (m *Manager) exclusive(ctx context.Context, fn func() error) (err error) {
	unlock, err := m.store.Exclusive(ctx)
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

func validateSession(session string) error {
	if session == "" {
		return errors.New("session id is required")
	}
	return nil
}
